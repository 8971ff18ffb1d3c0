package authz

import "github.com/quorumhq/quorum/model"

// TemplateParents maps workflow template IDs to their parent space IDs.
// The permission checker never resolves parentage itself; the storage
// collaborator supplies this map alongside the role bindings.
type TemplateParents map[string]string

// HasPermission reports whether some role in roles grants the permission
// at the requested scope. Org-scoped roles match unconditionally.
// Space-scoped roles additionally cover workflow-template-scoped requests
// when the template's parent space equals the role's space, resolved
// through the parents map; an absent mapping means no match.
func HasPermission(roles []model.BoundRole, requested model.Scope, permission string, parents TemplateParents) bool {
	for _, role := range roles {
		if !role.HasPermission(permission) {
			continue
		}
		if role.Scope.Matches(requested) {
			return true
		}
		if role.Scope.Kind == model.ScopeSpace && requested.Kind == model.ScopeWorkflowTemplate {
			if parentSpace, ok := parents[requested.ID]; ok && parentSpace == role.Scope.ID {
				return true
			}
		}
	}
	return false
}

// IsOrgAdmin reports whether the role set carries manage at org scope.
func IsOrgAdmin(roles []model.BoundRole) bool {
	for _, role := range roles {
		if role.Scope.Kind == model.ScopeOrg && role.HasPermission(model.PermissionManage) {
			return true
		}
	}
	return false
}

// CanAssignRoles reports whether an identity holding requestorRoles may
// assign every role in toAssign. Org admins may assign anything. Anyone
// else needs manage at a matching or broader scope for each role: group
// roles need group manage, space roles need space manage, and
// workflow-template roles need manage on the template's parent space.
// Org-scoped assignment by a non-admin is always rejected, as is a
// template role whose parent space is not in the map. The check is
// all-or-nothing across the batch.
func CanAssignRoles(requestorRoles []model.BoundRole, toAssign []model.BoundRole, parents TemplateParents) bool {
	if IsOrgAdmin(requestorRoles) {
		return true
	}
	for _, role := range toAssign {
		if !canAssignRole(requestorRoles, role, parents) {
			return false
		}
	}
	return true
}

func canAssignRole(requestorRoles []model.BoundRole, role model.BoundRole, parents TemplateParents) bool {
	switch role.Scope.Kind {
	case model.ScopeGroup:
		return HasPermission(requestorRoles, role.Scope, model.PermissionManage, nil)
	case model.ScopeSpace:
		return HasPermission(requestorRoles, role.Scope, model.PermissionManage, nil)
	case model.ScopeWorkflowTemplate:
		parentSpace, ok := parents[role.Scope.ID]
		if !ok {
			return false
		}
		return HasPermission(requestorRoles, model.SpaceScope(parentSpace), model.PermissionManage, nil)
	default:
		// Org-scoped roles are assignable by org admins only.
		return false
	}
}
