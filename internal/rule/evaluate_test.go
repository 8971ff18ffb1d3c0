package rule

import (
	"testing"
	"time"

	"github.com/quorumhq/quorum/model"
)

func approval(userID string, groups ...string) model.Vote {
	return model.Vote{
		ID:             "v-" + userID,
		UserID:         userID,
		Type:           model.VoteApprove,
		VotedForGroups: groups,
		CastedAt:       time.Now(),
	}
}

func TestVotingGroupIDs(t *testing.T) {
	tree := or(
		and(leaf(g1, 1), leaf(g2, 2)),
		leaf(g1, 3),
		leaf(g3, 1),
	)
	ids := VotingGroupIDs(tree)
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3 (duplicates collapse)", len(ids))
	}
	for _, g := range []string{g1, g2, g3} {
		if _, ok := ids[g]; !ok {
			t.Errorf("ids missing %s", g)
		}
	}
}

func TestCoversApproval(t *testing.T) {
	cases := []struct {
		name      string
		rule      model.ApprovalRule
		approvals []model.Vote
		want      bool
	}{
		{
			"leaf_satisfied_by_distinct_voters",
			leaf(g1, 2),
			[]model.Vote{approval("u1", g1), approval("u2", g1)},
			true,
		},
		{
			"leaf_counts_distinct_voters_not_votes",
			leaf(g1, 2),
			[]model.Vote{approval("u1", g1), approval("u1", g1)},
			false,
		},
		{
			"leaf_ignores_votes_for_other_groups",
			leaf(g1, 1),
			[]model.Vote{approval("u1", g2)},
			false,
		},
		{
			"and_requires_every_child",
			and(leaf(g1, 1), leaf(g2, 1)),
			[]model.Vote{approval("u1", g1)},
			false,
		},
		{
			"and_satisfied",
			and(leaf(g1, 1), leaf(g2, 1)),
			[]model.Vote{approval("u1", g1), approval("u2", g2)},
			true,
		},
		{
			"or_satisfied_by_one_child",
			or(leaf(g1, 5), leaf(g2, 1)),
			[]model.Vote{approval("u1", g2)},
			true,
		},
		{
			"or_unsatisfied",
			or(leaf(g1, 2), leaf(g2, 2)),
			[]model.Vote{approval("u1", g1), approval("u2", g2)},
			false,
		},
		{
			"single_vote_covers_multiple_groups",
			and(leaf(g1, 1), leaf(g2, 1)),
			[]model.Vote{approval("u1", g1, g2)},
			true,
		},
		{
			"empty_approvals",
			leaf(g1, 1),
			nil,
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CoversApproval(tc.rule, tc.approvals); got != tc.want {
				t.Errorf("CoversApproval() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCoversApproval_monotoneInApprovals(t *testing.T) {
	tree := and(leaf(g1, 2), or(leaf(g2, 1), leaf(g3, 1)))
	votes := []model.Vote{
		approval("u1", g1),
		approval("u2", g1),
		approval("u3", g2),
	}
	if !CoversApproval(tree, votes) {
		t.Fatal("base vote set should cover the rule")
	}
	// Adding any approval must never uncover a covered rule.
	extras := []model.Vote{
		approval("u4", g3),
		approval("u5", g1, g2, g3),
		approval("u6"),
	}
	grown := votes
	for _, extra := range extras {
		grown = append(grown, extra)
		if !CoversApproval(tree, grown) {
			t.Errorf("adding vote from %s uncovered the rule", extra.UserID)
		}
	}
}

func TestRequiresStepUp(t *testing.T) {
	tree := and(
		model.ApprovalRule{Type: model.RuleGroupRequirement, GroupID: g1, MinCount: 1, RequireStepUp: true},
		leaf(g2, 1),
	)
	policy := map[string]struct{}{g3: {}}

	cases := []struct {
		name    string
		targets []string
		want    bool
	}{
		{"targets_step_up_leaf", []string{g1}, true},
		{"targets_plain_leaf", []string{g2}, false},
		{"targets_policy_group", []string{g3}, true},
		{"mixed_targets", []string{g2, g1}, true},
		{"no_targets", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequiresStepUp(tree, tc.targets, policy); got != tc.want {
				t.Errorf("RequiresStepUp(%v) = %v, want %v", tc.targets, got, tc.want)
			}
		})
	}

	if RequiresStepUp(tree, []string{g2}, nil) {
		t.Error("nil policy must not require step-up for plain groups")
	}
}
