package authz

import (
	"fmt"

	"github.com/quorumhq/quorum/model"
)

// RoleTemplate is a system role definition before scope binding. The
// catalog below is a read-only process-wide table built once at load;
// templates carry no lifecycle of their own.
type RoleTemplate struct {
	Name         string
	ResourceType model.ResourceType
	Permissions  []string
}

// System role names.
const (
	RoleGroupMember    = "group_member"
	RoleGroupManager   = "group_manager"
	RoleSpaceViewer    = "space_viewer"
	RoleSpaceManager   = "space_manager"
	RoleTemplateViewer = "template_viewer"
	RoleTemplateEditor = "template_editor"
	RoleVoter          = "voter"
	RoleWorkflowAdmin  = "workflow_admin"
)

var systemRoles = map[string]RoleTemplate{
	RoleGroupMember: {
		Name:         RoleGroupMember,
		ResourceType: model.ResourceGroup,
		Permissions:  []string{model.PermissionRead},
	},
	RoleGroupManager: {
		Name:         RoleGroupManager,
		ResourceType: model.ResourceGroup,
		Permissions:  []string{model.PermissionRead, model.PermissionWrite, model.PermissionManage},
	},
	RoleSpaceViewer: {
		Name:         RoleSpaceViewer,
		ResourceType: model.ResourceSpace,
		Permissions:  []string{model.PermissionRead},
	},
	RoleSpaceManager: {
		Name:         RoleSpaceManager,
		ResourceType: model.ResourceSpace,
		Permissions:  []string{model.PermissionRead, model.PermissionManage},
	},
	RoleTemplateViewer: {
		Name:         RoleTemplateViewer,
		ResourceType: model.ResourceWorkflowTemplate,
		Permissions:  []string{model.PermissionRead, model.PermissionWorkflowRead, model.PermissionWorkflowList},
	},
	RoleTemplateEditor: {
		Name:         RoleTemplateEditor,
		ResourceType: model.ResourceWorkflowTemplate,
		Permissions: []string{
			model.PermissionRead, model.PermissionWrite, model.PermissionInstantiate,
			model.PermissionWorkflowRead, model.PermissionWorkflowList,
		},
	},
	RoleVoter: {
		Name:         RoleVoter,
		ResourceType: model.ResourceWorkflowTemplate,
		Permissions:  []string{model.PermissionRead, model.PermissionVote, model.PermissionWorkflowRead},
	},
	RoleWorkflowAdmin: {
		Name:         RoleWorkflowAdmin,
		ResourceType: model.ResourceWorkflowTemplate,
		Permissions:  model.PermissionsFor(model.ResourceWorkflowTemplate),
	},
}

// TemplateByName looks up a system role template.
func TemplateByName(name string) (RoleTemplate, bool) {
	t, ok := systemRoles[name]
	return t, ok
}

// Bind attaches a system role template to a concrete scope, producing an
// immutable bound role. The scope must be valid for the template's
// resource type.
func (t RoleTemplate) Bind(scope model.Scope) (model.BoundRole, error) {
	if err := scope.Validate(); err != nil {
		return model.BoundRole{}, err
	}
	if !model.ScopeKindAllowed(t.ResourceType, scope.Kind) {
		return model.BoundRole{}, model.NewBadRequestError(fmt.Sprintf(
			"system role %q cannot be bound to a %s scope", t.Name, scope.Kind))
	}
	perms := make([]string, len(t.Permissions))
	copy(perms, t.Permissions)
	return model.BoundRole{
		Name:         t.Name,
		ResourceType: t.ResourceType,
		Permissions:  perms,
		Scope:        scope,
	}, nil
}
