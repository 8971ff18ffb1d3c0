// Package authz implements role validation, the scoped permission
// checker, and the system role catalog. All checks are pure functions
// over caller-supplied role bindings; nothing here reads storage or
// holds mutable state, so every function is safe for concurrent use.
package authz

import (
	"fmt"
	"regexp"

	"github.com/quorumhq/quorum/model"
)

// RawRole is an unvalidated role as received from the transport layer.
// ValidateRole is the only sanctioned path from RawRole to BoundRole.
type RawRole struct {
	Name         string             `json:"name"`
	ResourceType model.ResourceType `json:"resource_type"`
	Permissions  []string           `json:"permissions"`
	Scope        model.Scope        `json:"scope"`
}

var roleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateRole checks a raw role's structural invariants and returns the
// bound role. Errors are reported per field.
func ValidateRole(raw RawRole) (model.BoundRole, error) {
	var errs []model.FieldError

	switch {
	case raw.Name == "":
		errs = append(errs, model.FieldError{Field: "name", Code: "REQUIRED", Message: "name is required"})
	case len(raw.Name) > model.MaxRoleNameLength:
		errs = append(errs, model.FieldError{
			Field: "name", Code: "TOO_LONG",
			Message: fmt.Sprintf("name must be at most %d characters", model.MaxRoleNameLength),
		})
	case !roleNamePattern.MatchString(raw.Name):
		errs = append(errs, model.FieldError{
			Field: "name", Code: "INVALID_FORMAT",
			Message: "name may contain only letters, digits, and underscores",
		})
	}

	if len(model.PermissionsFor(raw.ResourceType)) == 0 {
		errs = append(errs, model.FieldError{
			Field: "resource_type", Code: "INVALID_ENUM",
			Message: fmt.Sprintf("unknown resource type %q", raw.ResourceType),
		})
	}

	if len(raw.Permissions) == 0 {
		errs = append(errs, model.FieldError{
			Field: "permissions", Code: "REQUIRED", Message: "at least one permission is required",
		})
	}
	for i, p := range raw.Permissions {
		if !model.PermissionAllowed(raw.ResourceType, p) {
			errs = append(errs, model.FieldError{
				Field: fmt.Sprintf("permissions[%d]", i), Code: "INVALID_ENUM",
				Message: fmt.Sprintf("permission %q is not valid for resource type %q", p, raw.ResourceType),
			})
		}
	}

	if err := raw.Scope.Validate(); err != nil {
		errs = append(errs, model.FieldError{Field: "scope", Code: "INVALID", Message: err.Error()})
	} else if !model.ScopeKindAllowed(raw.ResourceType, raw.Scope.Kind) {
		errs = append(errs, model.FieldError{
			Field: "scope", Code: "INCOMPATIBLE",
			Message: fmt.Sprintf("scope kind %q is not allowed for resource type %q", raw.Scope.Kind, raw.ResourceType),
		})
	}

	if len(errs) > 0 {
		return model.BoundRole{}, model.NewValidationError(errs)
	}
	return model.BoundRole{
		Name:         raw.Name,
		ResourceType: raw.ResourceType,
		Permissions:  raw.Permissions,
		Scope:        raw.Scope,
	}, nil
}

// ValidateRoles validates a batch fail-fast: the first invalid role fails
// the whole batch and nothing is accepted.
func ValidateRoles(raws []RawRole) ([]model.BoundRole, error) {
	roles := make([]model.BoundRole, 0, len(raws))
	for _, raw := range raws {
		role, err := ValidateRole(raw)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// CheckAssignable rejects role assignments that are invalid for the
// target identity kind. Agents may only hold workflow_template roles;
// assigning anything else to an agent is a validation error, not an
// authorization failure.
func CheckAssignable(entity model.EntityRef, roles []model.BoundRole) error {
	if entity.Type != model.EntityAgent {
		return nil
	}
	for i, r := range roles {
		if r.ResourceType != model.ResourceWorkflowTemplate {
			return model.NewValidationError([]model.FieldError{{
				Field: fmt.Sprintf("roles[%d]", i), Code: "NOT_ASSIGNABLE",
				Message: fmt.Sprintf("roles of resource type %q cannot be assigned to agents", r.ResourceType),
			}})
		}
	}
	return nil
}
