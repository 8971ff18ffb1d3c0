// Package model contains the domain value types for the approval engine:
// scopes, roles, rule trees, votes, workflows, and templates. All types are
// immutable value types; operations return new values instead of mutating.
package model

import "fmt"

// ScopeKind identifies the resource boundary a scope refers to.
type ScopeKind string

// The four scope kinds, from broadest to narrowest.
const (
	ScopeOrg              ScopeKind = "org"
	ScopeSpace            ScopeKind = "space"
	ScopeGroup            ScopeKind = "group"
	ScopeWorkflowTemplate ScopeKind = "workflow_template"
)

// Scope is the resource boundary a role's permissions apply to. An org
// scope has no ID; every other kind carries the ID of the resource it
// names. Equality is structural.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// OrgScope returns the organization-wide scope.
func OrgScope() Scope {
	return Scope{Kind: ScopeOrg}
}

// SpaceScope returns a scope bound to the given space.
func SpaceScope(spaceID string) Scope {
	return Scope{Kind: ScopeSpace, ID: spaceID}
}

// GroupScope returns a scope bound to the given group.
func GroupScope(groupID string) Scope {
	return Scope{Kind: ScopeGroup, ID: groupID}
}

// WorkflowTemplateScope returns a scope bound to the given workflow template.
func WorkflowTemplateScope(templateID string) Scope {
	return Scope{Kind: ScopeWorkflowTemplate, ID: templateID}
}

// Equal reports whether two scopes are structurally identical. Org scopes
// are always equal to each other regardless of ID.
func (s Scope) Equal(other Scope) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind == ScopeOrg {
		return true
	}
	return s.ID == other.ID
}

// Matches reports whether a role held at scope s authorizes a request at
// the requested scope. Org-scoped roles match everything; any other scope
// matches only an identical scope. The space-to-template hierarchy is
// resolved by the permission checker, which knows template parentage.
func (s Scope) Matches(requested Scope) bool {
	if s.Kind == ScopeOrg {
		return true
	}
	return s.Equal(requested)
}

// Validate checks the scope's structural invariants: org scopes carry no
// ID, all other kinds require one.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeOrg:
		if s.ID != "" {
			return NewBadRequestError("org scope must not carry an ID")
		}
	case ScopeSpace, ScopeGroup, ScopeWorkflowTemplate:
		if s.ID == "" {
			return NewBadRequestError(fmt.Sprintf("%s scope requires an ID", s.Kind))
		}
	default:
		return NewBadRequestError(fmt.Sprintf("unknown scope kind %q", s.Kind))
	}
	return nil
}

// String returns a human-readable form, e.g. "space:sp-1" or "org".
func (s Scope) String() string {
	if s.Kind == ScopeOrg {
		return string(ScopeOrg)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}
