package model

import (
	"fmt"
	"time"
)

// Workflow status constants.
const (
	WorkflowStatusPending              = "pending"
	WorkflowStatusEvaluationInProgress = "evaluation_in_progress"
	WorkflowStatusApproved             = "approved"
	WorkflowStatusRejected             = "rejected"
	WorkflowStatusCanceled             = "canceled"
)

// MaxWorkflowNameLength is the upper bound on workflow names.
const MaxWorkflowNameLength = 255

var validWorkflowStatuses = map[string]bool{
	WorkflowStatusPending:              true,
	WorkflowStatusEvaluationInProgress: true,
	WorkflowStatusApproved:             true,
	WorkflowStatusRejected:             true,
	WorkflowStatusCanceled:             true,
}

// Workflow is an approval workflow instance. Status changes only through
// the state machine's evaluation; Version is the optimistic-concurrency
// token checked by the store on update.
type Workflow struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Description           string       `json:"description,omitempty"`
	TemplateID            string       `json:"template_id"`
	Rule                  ApprovalRule `json:"rule"`
	Status                string       `json:"status"`
	RecalculationRequired bool         `json:"recalculation_required"`
	Version               int          `json:"version"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the workflow's status can no longer change
// through evaluation. Approved and canceled workflows stay as they are;
// evaluation on them only clears the recalculation flag.
func (w Workflow) IsTerminal() bool {
	return w.Status == WorkflowStatusApproved || w.Status == WorkflowStatusCanceled
}

// Validate checks the workflow's own invariants: name present and bounded,
// status drawn from the known set. Rule-tree invariants are checked by the
// rule engine's validator.
func (w Workflow) Validate() error {
	var details []FieldError
	if w.Name == "" {
		details = append(details, FieldError{Field: "name", Code: "REQUIRED", Message: "name is required"})
	} else if len(w.Name) > MaxWorkflowNameLength {
		details = append(details, FieldError{
			Field: "name", Code: "TOO_LONG",
			Message: fmt.Sprintf("name must be at most %d characters", MaxWorkflowNameLength),
		})
	}
	if !validWorkflowStatuses[w.Status] {
		details = append(details, FieldError{
			Field: "status", Code: "INVALID_ENUM",
			Message: fmt.Sprintf("invalid workflow status %q", w.Status),
		})
	}
	if len(details) > 0 {
		return NewValidationError(details)
	}
	return nil
}
