package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Approval-domain error codes.
const (
	ErrMaxRuleNestingExceeded    = "MAX_RULE_NESTING_EXCEEDED"
	ErrEntityNotEligibleToVote   = "ENTITY_NOT_ELIGIBLE_TO_VOTE"
	ErrEntityNotInRequiredGroup  = "ENTITY_NOT_IN_REQUIRED_GROUP"
	ErrWorkflowTemplateNotActive = "WORKFLOW_TEMPLATE_NOT_ACTIVE"
	ErrRequestorNotAuthorized    = "REQUESTOR_NOT_AUTHORIZED"
	ErrConcurrentModification    = "CONCURRENT_MODIFICATION"
	ErrInconsistentMemberships   = "INCONSISTENT_MEMBERSHIPS"
)

// ErrorEnvelope is the standard error value returned by every public
// operation. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewMaxRuleNestingError returns a MAX_RULE_NESTING_EXCEEDED error.
func NewMaxRuleNestingError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMaxRuleNestingExceeded,
		Message: fmt.Sprintf("approval rules may be nested at most %d levels below the root", MaxRuleDepth),
	}
}

// NewNotEligibleToVoteError returns an ENTITY_NOT_ELIGIBLE_TO_VOTE error.
func NewNotEligibleToVoteError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrEntityNotEligibleToVote, Message: msg}
}

// NewNotInRequiredGroupError returns an ENTITY_NOT_IN_REQUIRED_GROUP error.
func NewNotInRequiredGroupError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrEntityNotInRequiredGroup, Message: msg}
}

// NewTemplateNotActiveError returns a WORKFLOW_TEMPLATE_NOT_ACTIVE error.
func NewTemplateNotActiveError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowTemplateNotActive, Message: msg}
}

// NewRequestorNotAuthorizedError returns a REQUESTOR_NOT_AUTHORIZED error.
func NewRequestorNotAuthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRequestorNotAuthorized, Message: msg}
}

// NewConcurrentModificationError returns a CONCURRENT_MODIFICATION error.
// Callers should re-read the aggregate and retry.
func NewConcurrentModificationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConcurrentModification, Message: msg}
}

// NewInconsistentMembershipsError returns an INCONSISTENT_MEMBERSHIPS error.
// It indicates a collaborator supplied membership rows spanning more than
// one identity, which violates the eligibility check's input contract.
func NewInconsistentMembershipsError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInconsistentMemberships, Message: msg}
}
