package engine

import (
	"testing"
	"time"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/model"
)

const (
	groupFinance  = "1f9c0a4e-1d2b-4c3d-8e4f-0a1b2c3d4e5f"
	groupSecurity = "2a0d1b5f-2e3c-4d4e-9f50-1b2c3d4e5f60"
	groupLegal    = "3b1e2c60-3f4d-4e5f-a061-2c3d4e5f6071"
)

var voteBase = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func groupReq(groupID string, minCount int) model.ApprovalRule {
	return model.ApprovalRule{Type: model.RuleGroupRequirement, GroupID: groupID, MinCount: minCount}
}

func allOf(children ...model.ApprovalRule) model.ApprovalRule {
	return model.ApprovalRule{Type: model.RuleAnd, Rules: children}
}

func pendingWorkflow(r model.ApprovalRule) model.Workflow {
	return model.Workflow{
		ID:                    "wf-1",
		Name:                  "quarterly budget sign-off",
		TemplateID:            "wt-1",
		Rule:                  r,
		Status:                model.WorkflowStatusPending,
		RecalculationRequired: true,
		Version:               1,
	}
}

func ballot(userID string, t model.VoteType, at time.Duration, groups ...string) model.Vote {
	return model.Vote{
		ID:             "v-" + userID,
		WorkflowID:     "wf-1",
		UserID:         userID,
		Type:           t,
		VotedForGroups: groups,
		CastedAt:       voteBase.Add(at),
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name       string
		rule       model.ApprovalRule
		history    []model.Vote
		wantStatus string
	}{
		{
			"two_distinct_approvers_satisfy_min_count",
			groupReq(groupFinance, 2),
			[]model.Vote{
				ballot("u1", model.VoteApprove, 0, groupFinance),
				ballot("u2", model.VoteApprove, time.Minute, groupFinance),
			},
			model.WorkflowStatusApproved,
		},
		{
			"same_user_revote_counts_once",
			groupReq(groupFinance, 2),
			[]model.Vote{
				ballot("u1", model.VoteApprove, 0, groupFinance),
				{ID: "v-u1b", WorkflowID: "wf-1", UserID: "u1", Type: model.VoteApprove,
					VotedForGroups: []string{groupFinance}, CastedAt: voteBase.Add(time.Minute)},
			},
			model.WorkflowStatusPending,
		},
		{
			"and_with_partial_coverage_stays_pending",
			allOf(groupReq(groupFinance, 1), groupReq(groupSecurity, 1)),
			[]model.Vote{ballot("u1", model.VoteApprove, 0, groupFinance)},
			model.WorkflowStatusPending,
		},
		{
			"veto_rejects_despite_full_coverage",
			groupReq(groupFinance, 1),
			[]model.Vote{
				ballot("u1", model.VoteApprove, 0, groupFinance),
				ballot("u2", model.VoteApprove, time.Minute, groupFinance),
				ballot("u3", model.VoteVeto, 2*time.Minute, groupFinance),
			},
			model.WorkflowStatusRejected,
		},
		{
			"empty_history_stays_pending",
			groupReq(groupFinance, 1),
			nil,
			model.WorkflowStatusPending,
		},
		{
			"revote_from_veto_to_approve_approves",
			groupReq(groupFinance, 1),
			[]model.Vote{
				{ID: "v1", WorkflowID: "wf-1", UserID: "u1", Type: model.VoteVeto,
					VotedForGroups: []string{groupFinance}, CastedAt: voteBase},
				{ID: "v2", WorkflowID: "wf-1", UserID: "u1", Type: model.VoteApprove,
					VotedForGroups: []string{groupFinance}, CastedAt: voteBase.Add(time.Minute)},
			},
			model.WorkflowStatusApproved,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(pendingWorkflow(tc.rule), tc.history)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tc.wantStatus)
			}
			if got.RecalculationRequired {
				t.Error("RecalculationRequired = true after evaluation, want false")
			}
		})
	}
}

func TestEvaluate_terminalStatesAreImmutable(t *testing.T) {
	veto := []model.Vote{ballot("u9", model.VoteVeto, 0, groupFinance)}
	for _, status := range []string{model.WorkflowStatusApproved, model.WorkflowStatusCanceled} {
		w := pendingWorkflow(groupReq(groupFinance, 1))
		w.Status = status
		w.RecalculationRequired = true
		got, err := Evaluate(w, veto)
		if err != nil {
			t.Fatalf("Evaluate(%s) error = %v", status, err)
		}
		if got.Status != status {
			t.Errorf("Status = %q, want terminal %q untouched", got.Status, status)
		}
		if got.RecalculationRequired {
			t.Errorf("RecalculationRequired not cleared on terminal %q", status)
		}
	}
}

func TestEvaluate_revalidationFailureSurfaces(t *testing.T) {
	w := pendingWorkflow(groupReq(groupFinance, 1))
	w.Name = ""
	if _, err := Evaluate(w, nil); err == nil {
		t.Error("Evaluate(invalid record) error = nil, want validation failure")
	}
}

func activeTemplate(r model.ApprovalRule) model.WorkflowTemplate {
	return model.WorkflowTemplate{
		ID:      "wt-1",
		Name:    "budget approval",
		Rule:    r,
		Status:  model.TemplateStatusActive,
		SpaceID: "sp-1",
		Version: model.TemplateVersionLatest,
	}
}

func membership(entity model.EntityRef, groupID string) model.Membership {
	return model.Membership{Entity: entity, GroupID: groupID}
}

func voterRoles(templateID string) []model.BoundRole {
	return []model.BoundRole{{
		Name: "voter", ResourceType: model.ResourceWorkflowTemplate,
		Permissions: []string{model.PermissionVote},
		Scope:       model.WorkflowTemplateScope(templateID),
	}}
}

func TestCanVote(t *testing.T) {
	user := model.EntityRef{ID: "u-1", Type: model.EntityUser}
	stranger := model.EntityRef{ID: "u-2", Type: model.EntityUser}
	tmpl := activeTemplate(groupReq(groupFinance, 1))

	deprecatedClosed := tmpl
	deprecatedClosed.Status = model.TemplateStatusDeprecated
	deprecatedClosed.AllowVotingOnDeprecatedTemplate = false
	deprecatedClosed.Version = "3"

	deprecatedOpen := deprecatedClosed
	deprecatedOpen.AllowVotingOnDeprecatedTemplate = true

	cases := []struct {
		name       string
		in         CanVoteInput
		wantOK     bool
		wantReason string
	}{
		{
			"eligible_member_with_vote_permission",
			CanVoteInput{
				Entity: user, Template: tmpl,
				Memberships: []model.Membership{membership(user, groupFinance)},
				Roles:       voterRoles(tmpl.ID),
			},
			true, "",
		},
		{
			"deprecated_template_closed_to_voting",
			CanVoteInput{
				Entity: user, Template: deprecatedClosed,
				Memberships: []model.Membership{membership(user, groupFinance)},
				Roles:       voterRoles(tmpl.ID),
			},
			false, model.ErrWorkflowTemplateNotActive,
		},
		{
			"deprecated_template_open_to_voting",
			CanVoteInput{
				Entity: user, Template: deprecatedOpen,
				Memberships: []model.Membership{membership(user, groupFinance)},
				Roles:       voterRoles(tmpl.ID),
			},
			true, "",
		},
		{
			"no_memberships",
			CanVoteInput{Entity: user, Template: tmpl, Roles: voterRoles(tmpl.ID)},
			false, model.ErrEntityNotInRequiredGroup,
		},
		{
			"memberships_span_identities",
			CanVoteInput{
				Entity: user, Template: tmpl,
				Memberships: []model.Membership{
					membership(user, groupFinance),
					membership(stranger, groupFinance),
				},
				Roles: voterRoles(tmpl.ID),
			},
			false, model.ErrInconsistentMemberships,
		},
		{
			"missing_vote_permission",
			CanVoteInput{
				Entity: user, Template: tmpl,
				Memberships: []model.Membership{membership(user, groupFinance)},
			},
			false, model.ErrEntityNotEligibleToVote,
		},
		{
			"member_of_irrelevant_group_only",
			CanVoteInput{
				Entity: user, Template: tmpl,
				Memberships: []model.Membership{membership(user, groupLegal)},
				Roles:       voterRoles(tmpl.ID),
			},
			false, model.ErrEntityNotInRequiredGroup,
		},
		{
			"space_role_reaches_template_via_parent",
			CanVoteInput{
				Entity: user, Template: tmpl,
				Memberships: []model.Membership{membership(user, groupFinance)},
				Roles: []model.BoundRole{{
					Name: "space_voter", ResourceType: model.ResourceWorkflowTemplate,
					Permissions: []string{model.PermissionVote},
					Scope:       model.SpaceScope("sp-1"),
				}},
				Parents: authz.TemplateParents{tmpl.ID: "sp-1"},
			},
			true, "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanVote(tc.in)
			if got.Eligible != tc.wantOK {
				t.Fatalf("Eligible = %v, want %v (reason %q)", got.Eligible, tc.wantOK, got.ReasonCode)
			}
			if got.ReasonCode != tc.wantReason {
				t.Errorf("ReasonCode = %q, want %q", got.ReasonCode, tc.wantReason)
			}
		})
	}
}

func TestCanVote_stepUp(t *testing.T) {
	user := model.EntityRef{ID: "u-1", Type: model.EntityUser}
	agent := model.EntityRef{ID: "a-1", Type: model.EntityAgent}

	sensitiveLeaf := model.ApprovalRule{
		Type: model.RuleGroupRequirement, GroupID: groupSecurity, MinCount: 1, RequireStepUp: true,
	}
	tmpl := activeTemplate(allOf(groupReq(groupFinance, 1), sensitiveLeaf))

	base := CanVoteInput{
		Template: tmpl,
		Roles:    voterRoles(tmpl.ID),
	}

	t.Run("user_targeting_sensitive_group_requires_step_up", func(t *testing.T) {
		in := base
		in.Entity = user
		in.Memberships = []model.Membership{membership(user, groupSecurity)}
		got := CanVote(in)
		if !got.Eligible || !got.RequireHighPrivilege {
			t.Errorf("got %+v, want eligible with step-up", got)
		}
	})

	t.Run("user_targeting_plain_group_does_not", func(t *testing.T) {
		in := base
		in.Entity = user
		in.Memberships = []model.Membership{membership(user, groupFinance)}
		got := CanVote(in)
		if !got.Eligible || got.RequireHighPrivilege {
			t.Errorf("got %+v, want eligible without step-up", got)
		}
	})

	t.Run("explicit_targets_override_memberships", func(t *testing.T) {
		in := base
		in.Entity = user
		in.Memberships = []model.Membership{
			membership(user, groupFinance),
			membership(user, groupSecurity),
		}
		in.VotedForGroups = []string{groupFinance}
		got := CanVote(in)
		if !got.Eligible || got.RequireHighPrivilege {
			t.Errorf("got %+v, want eligible without step-up for plain target", got)
		}
	})

	t.Run("policy_group_requires_step_up", func(t *testing.T) {
		in := base
		in.Entity = user
		in.Memberships = []model.Membership{membership(user, groupFinance)}
		in.StepUpGroups = map[string]struct{}{groupFinance: {}}
		got := CanVote(in)
		if !got.Eligible || !got.RequireHighPrivilege {
			t.Errorf("got %+v, want eligible with step-up from policy", got)
		}
	})

	t.Run("agents_never_step_up", func(t *testing.T) {
		in := base
		in.Entity = agent
		in.Memberships = []model.Membership{membership(agent, groupSecurity)}
		got := CanVote(in)
		if !got.Eligible || got.RequireHighPrivilege {
			t.Errorf("got %+v, want eligible without step-up for agent", got)
		}
	})
}
