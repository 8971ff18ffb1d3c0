package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "workflow not found"}
	want := "NOT_FOUND: workflow not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "name", Code: "REQUIRED", Message: "name is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "name" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "name")
	}
}

func TestDomainErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"nesting", NewMaxRuleNestingError(), ErrMaxRuleNestingExceeded},
		{"not_eligible", NewNotEligibleToVoteError("no vote permission"), ErrEntityNotEligibleToVote},
		{"not_in_group", NewNotInRequiredGroupError("no relevant group"), ErrEntityNotInRequiredGroup},
		{"template_not_active", NewTemplateNotActiveError("template deprecated"), ErrWorkflowTemplateNotActive},
		{"requestor", NewRequestorNotAuthorizedError("missing manage"), ErrRequestorNotAuthorized},
		{"occ", NewConcurrentModificationError("version changed"), ErrConcurrentModification},
		{"memberships", NewInconsistentMembershipsError("mixed identities"), ErrInconsistentMemberships},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: Code = %q, want %q", tc.name, tc.err.Code, tc.code)
		}
		if tc.err.Message == "" {
			t.Errorf("%s: Message is empty", tc.name)
		}
	}
}
