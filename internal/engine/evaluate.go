// Package engine implements the workflow state machine: voting
// eligibility and status recomputation over consolidated votes, plus the
// orchestrating service that wraps the pure core with storage,
// idempotency, and optimistic concurrency.
package engine

import (
	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/internal/rule"
	"github.com/quorumhq/quorum/internal/vote"
	"github.com/quorumhq/quorum/model"
)

// Evaluate recomputes a workflow's status from its full vote history and
// returns the updated workflow. Terminal workflows pass through
// unchanged except that the recalculation flag is cleared. A single veto
// rejects regardless of approval coverage. The result is re-validated
// before being returned; a validation failure means a collaborator
// persisted a record violating the model invariants.
func Evaluate(w model.Workflow, history []model.Vote) (model.Workflow, error) {
	if w.IsTerminal() {
		w.RecalculationRequired = false
		return w, nil
	}

	effective := vote.Consolidate(history)
	approvals, vetoes := vote.Partition(effective)

	switch {
	case len(effective) == 0:
		w.Status = model.WorkflowStatusPending
	case len(vetoes) > 0:
		w.Status = model.WorkflowStatusRejected
	case rule.CoversApproval(w.Rule, approvals):
		w.Status = model.WorkflowStatusApproved
	default:
		w.Status = model.WorkflowStatusPending
	}
	w.RecalculationRequired = false

	if err := w.Validate(); err != nil {
		return model.Workflow{}, err
	}
	return w, nil
}

// Eligibility is the verdict of a CanVote check. Eligible verdicts carry
// whether the ballot demands a high-privilege session; ineligible ones
// carry a stable reason code from the model error taxonomy.
type Eligibility struct {
	Eligible             bool   `json:"eligible"`
	RequireHighPrivilege bool   `json:"require_high_privilege,omitempty"`
	ReasonCode           string `json:"reason_code,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

func ineligible(code, reason string) Eligibility {
	return Eligibility{ReasonCode: code, Reason: reason}
}

// CanVoteInput is the hydrated snapshot an eligibility check runs over.
// The storage collaborator supplies memberships, roles, and template
// parentage; the identity collaborator supplies the entity reference.
type CanVoteInput struct {
	Entity      model.EntityRef
	Template    model.WorkflowTemplate
	Memberships []model.Membership
	Roles       []model.BoundRole
	Parents     authz.TemplateParents

	// VotedForGroups narrows the step-up predicate to the groups the
	// ballot targets; when empty the voter's own membership groups are
	// used.
	VotedForGroups []string

	// StepUpGroups is the external policy set of groups requiring
	// high-privilege sessions. May be nil.
	StepUpGroups map[string]struct{}
}

// CanVote decides whether the identity may vote on the template's
// workflows. It is a total function: every rejection returns a distinct
// stable reason code and nothing panics or errors.
func CanVote(in CanVoteInput) Eligibility {
	if !in.Template.VotingAllowed() {
		return ineligible(model.ErrWorkflowTemplateNotActive,
			"the workflow template is not active and does not allow voting after deprecation")
	}

	if len(in.Memberships) == 0 {
		return ineligible(model.ErrEntityNotInRequiredGroup,
			"the entity belongs to no groups")
	}
	for _, m := range in.Memberships {
		if m.Entity != in.Entity {
			return ineligible(model.ErrInconsistentMemberships,
				"membership rows span more than one identity")
		}
	}

	templateScope := model.WorkflowTemplateScope(in.Template.ID)
	if !authz.HasPermission(in.Roles, templateScope, model.PermissionVote, in.Parents) {
		return ineligible(model.ErrEntityNotEligibleToVote,
			"the entity does not hold the vote permission for this workflow template")
	}

	voterGroups := make([]string, 0, len(in.Memberships))
	votingGroups := rule.VotingGroupIDs(in.Template.Rule)
	inRequiredGroup := false
	for _, m := range in.Memberships {
		voterGroups = append(voterGroups, m.GroupID)
		if _, ok := votingGroups[m.GroupID]; ok {
			inRequiredGroup = true
		}
	}
	if !inRequiredGroup {
		return ineligible(model.ErrEntityNotInRequiredGroup,
			"none of the entity's groups appear in the approval rule")
	}

	// Agents never step up; their credentials carry no interactive
	// authentication context to elevate.
	requireHighPrivilege := false
	if in.Entity.Type == model.EntityUser {
		targets := in.VotedForGroups
		if len(targets) == 0 {
			targets = voterGroups
		}
		requireHighPrivilege = rule.RequiresStepUp(in.Template.Rule, targets, in.StepUpGroups)
	}

	return Eligibility{Eligible: true, RequireHighPrivilege: requireHighPrivilege}
}
