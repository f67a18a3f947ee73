package chat

import "parley/internal/app/user"

// deliveryPlan is the pure result of deciding how a broadcast fans out, before
// any I/O happens. Separating the decision from its execution keeps the fan-out
// algorithm testable without a registry or relay backend.
type deliveryPlan struct {
	// localTargets are the user ids with a local connection that pass the scope filter.
	localTargets []int64

	// sawRemote is set when at least one online user has no local connection here.
	sawRemote bool

	// relayNeeded is set when the envelope must be published so other
	// instances can deliver it. Self-scoped events never need the relay.
	relayNeeded bool
}

// planDelivery computes the delivery plan for a broadcast given the registry's
// view of online users, a snapshot of locally connected user ids, the scope,
// and the (possibly nil) sender.
func planDelivery(online []user.UserInfo, localIDs map[int64]struct{}, scope Scope, sender *user.UserInfo) deliveryPlan {
	var plan deliveryPlan

	for _, u := range online {
		if _, isLocal := localIDs[u.ID]; !isLocal {
			plan.sawRemote = true
			continue
		}

		if scopeAllows(scope, sender, u.ID) {
			plan.localTargets = append(plan.localTargets, u.ID)
		}
	}

	plan.relayNeeded = plan.sawRemote && scope != ScopeSelf

	return plan
}
