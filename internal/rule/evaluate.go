package rule

import "github.com/quorumhq/quorum/model"

// VotingGroupIDs flattens the set of group IDs reachable from the tree.
// Eligibility checks test membership against this set instead of
// re-walking the tree per candidate group.
func VotingGroupIDs(r model.ApprovalRule) map[string]struct{} {
	ids := make(map[string]struct{})
	collectGroupIDs(r, ids)
	return ids
}

func collectGroupIDs(r model.ApprovalRule, ids map[string]struct{}) {
	switch r.Type {
	case model.RuleGroupRequirement:
		ids[r.GroupID] = struct{}{}
	case model.RuleAnd, model.RuleOr:
		for _, child := range r.Rules {
			collectGroupIDs(child, ids)
		}
	}
}

// CoversApproval reports whether the given approval votes satisfy the
// rule tree. Leaves count distinct voters naming the leaf's group;
// and-nodes require every child satisfied, or-nodes at least one.
//
// The votes must be consolidated approvals only. Veto handling belongs
// to the state machine, not the rule engine.
func CoversApproval(r model.ApprovalRule, approvals []model.Vote) bool {
	switch r.Type {
	case model.RuleGroupRequirement:
		voters := make(map[string]struct{})
		for _, v := range approvals {
			if v.NamesGroup(r.GroupID) {
				voters[v.UserID] = struct{}{}
			}
		}
		return len(voters) >= r.MinCount
	case model.RuleAnd:
		for _, child := range r.Rules {
			if !CoversApproval(child, approvals) {
				return false
			}
		}
		return true
	case model.RuleOr:
		for _, child := range r.Rules {
			if CoversApproval(child, approvals) {
				return true
			}
		}
		return false
	}
	return false
}

// RequiresStepUp reports whether voting on behalf of any of the target
// groups demands a high-privilege session. A group requires step-up when
// its leaf is marked RequireStepUp or when the external policy names it.
// The policy set may be nil.
func RequiresStepUp(r model.ApprovalRule, targetGroups []string, policy map[string]struct{}) bool {
	targets := make(map[string]struct{}, len(targetGroups))
	for _, g := range targetGroups {
		targets[g] = struct{}{}
	}
	for g := range targets {
		if _, ok := policy[g]; ok {
			return true
		}
	}
	return leafRequiresStepUp(r, targets)
}

func leafRequiresStepUp(r model.ApprovalRule, targets map[string]struct{}) bool {
	switch r.Type {
	case model.RuleGroupRequirement:
		if !r.RequireStepUp {
			return false
		}
		_, ok := targets[r.GroupID]
		return ok
	case model.RuleAnd, model.RuleOr:
		for _, child := range r.Rules {
			if leafRequiresStepUp(child, targets) {
				return true
			}
		}
	}
	return false
}
