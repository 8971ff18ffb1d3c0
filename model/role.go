package model

// ResourceType identifies the kind of resource a role grants permissions on.
type ResourceType string

// Resource types that roles can be defined for.
const (
	ResourceGroup            ResourceType = "group"
	ResourceSpace            ResourceType = "space"
	ResourceWorkflowTemplate ResourceType = "workflow_template"
)

// Permission names. Each resource type admits a fixed subset (see
// PermissionsFor).
const (
	PermissionRead           = "read"
	PermissionWrite          = "write"
	PermissionManage         = "manage"
	PermissionInstantiate    = "instantiate"
	PermissionVote           = "vote"
	PermissionWorkflowRead   = "workflow_read"
	PermissionWorkflowList   = "workflow_list"
	PermissionWorkflowCancel = "workflow_cancel"
)

// MaxRoleNameLength is the upper bound on role names.
const MaxRoleNameLength = 100

// permissionVocabulary maps each resource type to the permissions it admits.
var permissionVocabulary = map[ResourceType][]string{
	ResourceGroup: {PermissionRead, PermissionWrite, PermissionManage},
	ResourceSpace: {PermissionRead, PermissionManage},
	ResourceWorkflowTemplate: {
		PermissionRead, PermissionWrite, PermissionInstantiate, PermissionVote,
		PermissionWorkflowRead, PermissionWorkflowList, PermissionWorkflowCancel,
	},
}

// allowedScopeKinds maps each resource type to the scope kinds a role of
// that type may be bound to. Broader kinds are included where the hierarchy
// collapses (e.g. an org-scoped workflow_template role applies to all
// templates).
var allowedScopeKinds = map[ResourceType][]ScopeKind{
	ResourceGroup:            {ScopeGroup},
	ResourceSpace:            {ScopeSpace, ScopeOrg},
	ResourceWorkflowTemplate: {ScopeWorkflowTemplate, ScopeSpace, ScopeOrg},
}

// PermissionsFor returns the permission vocabulary for a resource type.
// The returned slice must not be mutated.
func PermissionsFor(rt ResourceType) []string {
	return permissionVocabulary[rt]
}

// PermissionAllowed reports whether a permission belongs to the vocabulary
// of the given resource type.
func PermissionAllowed(rt ResourceType, permission string) bool {
	for _, p := range permissionVocabulary[rt] {
		if p == permission {
			return true
		}
	}
	return false
}

// ScopeKindAllowed reports whether a role of the given resource type may be
// bound to a scope of the given kind.
func ScopeKindAllowed(rt ResourceType, kind ScopeKind) bool {
	for _, k := range allowedScopeKinds[rt] {
		if k == kind {
			return true
		}
	}
	return false
}

// BoundRole is a named permission set attached to a concrete scope.
// Instances are produced only by the authz validator or by binding a
// system role template; they are immutable thereafter and removed by
// unassignment, never mutated.
type BoundRole struct {
	Name         string       `json:"name"`
	ResourceType ResourceType `json:"resource_type"`
	Permissions  []string     `json:"permissions"`
	Scope        Scope        `json:"scope"`
}

// HasPermission reports whether the role carries the given permission.
func (r BoundRole) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
