package model

import "time"

// Workflow template status constants. Deprecation is one-directional:
// active templates may be marked pending_deprecation, then deprecated;
// there is no un-deprecation.
const (
	TemplateStatusActive             = "active"
	TemplateStatusPendingDeprecation = "pending_deprecation"
	TemplateStatusDeprecated         = "deprecated"
)

// TemplateVersionLatest marks the single active head of a template family.
// Exactly one template per family holds this version, and it must be
// active; deprecation assigns a concrete integer version.
const TemplateVersionLatest = "latest"

// WorkflowTemplate defines the approval rule and lifecycle policy that
// workflow instances are created from.
type WorkflowTemplate struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Rule   ApprovalRule `json:"rule"`
	Status string       `json:"status"`

	// AllowVotingOnDeprecatedTemplate keeps open workflows votable after
	// the template leaves active status. Set at deprecation time to the
	// negation of the cancel-workflows choice.
	AllowVotingOnDeprecatedTemplate bool `json:"allow_voting_on_deprecated_template"`

	SpaceID   string    `json:"space_id"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VotingAllowed reports whether votes may still be cast on workflows
// instantiated from this template.
func (t WorkflowTemplate) VotingAllowed() bool {
	switch t.Status {
	case TemplateStatusActive:
		return true
	case TemplateStatusPendingDeprecation, TemplateStatusDeprecated:
		return t.AllowVotingOnDeprecatedTemplate
	default:
		return false
	}
}
