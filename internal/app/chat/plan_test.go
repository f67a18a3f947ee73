package chat

import (
	"testing"

	"parley/internal/app/user"
)

func TestScopeAllows(t *testing.T) {
	sender := &user.UserInfo{ID: 7}

	tests := []struct {
		name   string
		scope  Scope
		sender *user.UserInfo
		userID int64
		want   bool
	}{
		{"all includes sender", ScopeAll, sender, 7, true},
		{"all includes others", ScopeAll, sender, 8, true},
		{"others excludes sender", ScopeOthers, sender, 7, false},
		{"others includes others", ScopeOthers, sender, 8, true},
		{"self includes sender", ScopeSelf, sender, 7, true},
		{"self excludes others", ScopeSelf, sender, 8, false},
		{"nil sender others delivers to everyone", ScopeOthers, nil, 8, true},
		{"nil sender self delivers to no one", ScopeSelf, nil, 8, false},
		{"unknown scope denies", Scope("bogus"), sender, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeAllows(tt.scope, tt.sender, tt.userID); got != tt.want {
				t.Errorf("scopeAllows(%q, %v, %d) = %v, want %v", tt.scope, tt.sender, tt.userID, got, tt.want)
			}
		})
	}
}

func TestPlanDeliveryAllLocal(t *testing.T) {
	online := []user.UserInfo{{ID: 1}, {ID: 2}}
	local := map[int64]struct{}{1: {}, 2: {}}
	sender := &user.UserInfo{ID: 1}

	plan := planDelivery(online, local, ScopeAll, sender)

	if len(plan.localTargets) != 2 {
		t.Errorf("localTargets = %v, want 2 entries", plan.localTargets)
	}
	if plan.sawRemote {
		t.Error("sawRemote = true for fully local room")
	}
	if plan.relayNeeded {
		t.Error("relayNeeded = true for fully local room; single-instance must never publish")
	}
}

func TestPlanDeliveryMixedInstances(t *testing.T) {
	online := []user.UserInfo{{ID: 1}, {ID: 2}, {ID: 3}}
	local := map[int64]struct{}{1: {}}
	sender := &user.UserInfo{ID: 1}

	plan := planDelivery(online, local, ScopeAll, sender)

	if len(plan.localTargets) != 1 || plan.localTargets[0] != 1 {
		t.Errorf("localTargets = %v, want [1]", plan.localTargets)
	}
	if !plan.sawRemote {
		t.Error("sawRemote = false with remote users online")
	}
	if !plan.relayNeeded {
		t.Error("relayNeeded = false with remote users online")
	}
}

func TestPlanDeliveryOthersScopeSkipsSenderLocally(t *testing.T) {
	online := []user.UserInfo{{ID: 1}, {ID: 2}}
	local := map[int64]struct{}{1: {}, 2: {}}
	sender := &user.UserInfo{ID: 1}

	plan := planDelivery(online, local, ScopeOthers, sender)

	if len(plan.localTargets) != 1 || plan.localTargets[0] != 2 {
		t.Errorf("localTargets = %v, want [2]", plan.localTargets)
	}
}

func TestPlanDeliverySelfScopeNeverRelays(t *testing.T) {
	online := []user.UserInfo{{ID: 1}, {ID: 2}}
	local := map[int64]struct{}{1: {}}
	sender := &user.UserInfo{ID: 1}

	plan := planDelivery(online, local, ScopeSelf, sender)

	if len(plan.localTargets) != 1 || plan.localTargets[0] != 1 {
		t.Errorf("localTargets = %v, want [1]", plan.localTargets)
	}
	if !plan.sawRemote {
		t.Error("sawRemote = false with a remote user online")
	}
	if plan.relayNeeded {
		t.Error("relayNeeded = true for self-scoped event")
	}
}
