package chat

import "testing"

type nopConn struct{}

func (nopConn) Send(payload []byte) error { return nil }
func (nopConn) ForceClose(reason string)  {}

func TestConnTablePutGetRemove(t *testing.T) {
	table := NewConnTable()

	if _, ok := table.Get(1, 10); ok {
		t.Fatal("Get on empty table reported a connection")
	}

	table.Put(1, 10, nopConn{})

	if _, ok := table.Get(1, 10); !ok {
		t.Fatal("Get did not find stored connection")
	}

	if !table.Remove(1, 10) {
		t.Fatal("Remove reported no entry for stored connection")
	}

	if table.Remove(1, 10) {
		t.Fatal("second Remove reported an entry")
	}
}

func TestConnTableIsEmpty(t *testing.T) {
	table := NewConnTable()

	if !table.IsEmpty(1) {
		t.Fatal("fresh table not empty")
	}

	table.Put(1, 10, nopConn{})
	if table.IsEmpty(1) {
		t.Fatal("table empty after Put")
	}

	table.Remove(1, 10)
	if !table.IsEmpty(1) {
		t.Fatal("table not empty after removing last connection")
	}
}

func TestConnTableUserIDs(t *testing.T) {
	table := NewConnTable()
	table.Put(1, 10, nopConn{})
	table.Put(1, 11, nopConn{})
	table.Put(2, 12, nopConn{})

	ids := table.UserIDs(1)
	if len(ids) != 2 {
		t.Fatalf("UserIDs(1) = %v, want 2 entries", ids)
	}
	if _, ok := ids[10]; !ok {
		t.Error("UserIDs(1) missing user 10")
	}
	if _, ok := ids[12]; ok {
		t.Error("UserIDs(1) leaked user from chatroom 2")
	}
}

func TestConnTableRoomIDs(t *testing.T) {
	table := NewConnTable()
	table.Put(1, 10, nopConn{})
	table.Put(2, 11, nopConn{})

	rooms := table.RoomIDs()
	if len(rooms) != 2 {
		t.Fatalf("RoomIDs = %v, want 2 entries", rooms)
	}

	table.Remove(1, 10)
	rooms = table.RoomIDs()
	if len(rooms) != 1 || rooms[0] != 2 {
		t.Fatalf("RoomIDs after removal = %v, want [2]", rooms)
	}
}

func TestConnTablePutReplacesExisting(t *testing.T) {
	table := NewConnTable()

	first := &recordingConn{}
	second := &recordingConn{}

	table.Put(1, 10, first)
	table.Put(1, 10, second)

	conn, ok := table.Get(1, 10)
	if !ok {
		t.Fatal("Get did not find replaced connection")
	}
	if conn != Conn(second) {
		t.Error("Get returned the old connection after replacement")
	}

	ids := table.UserIDs(1)
	if len(ids) != 1 {
		t.Errorf("UserIDs = %v, want a single entry after replacement", ids)
	}
}
