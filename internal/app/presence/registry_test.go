package presence

import "testing"

func TestUserKeyShape(t *testing.T) {
	if got := userKey(12, 34); got != "chatroom:12:user:34" {
		t.Errorf("userKey(12, 34) = %q, want %q", got, "chatroom:12:user:34")
	}
}

func TestRoomPatternShape(t *testing.T) {
	if got := roomPattern(12); got != "chatroom:12:user:*" {
		t.Errorf("roomPattern(12) = %q, want %q", got, "chatroom:12:user:*")
	}
}

func TestRoomPatternMatchesUserKeys(t *testing.T) {
	// The scan pattern and the per-user key builder must stay in sync; a
	// drifting prefix would silently empty every chatroom's online list.
	key := userKey(7, 99)
	pattern := roomPattern(7)

	prefix := pattern[:len(pattern)-1]
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		t.Errorf("key %q does not match pattern %q", key, pattern)
	}
}
