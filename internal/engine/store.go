package engine

import (
	"context"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/model"
)

// Store is the persistence collaborator the engine orchestrates over.
// The engine itself is pure; the store supplies hydrated snapshots and
// persists results under optimistic concurrency.
type Store interface {
	// CreateWorkflow persists a new workflow. Returns CONFLICT if the ID
	// already exists.
	CreateWorkflow(ctx context.Context, w model.Workflow) error

	// GetWorkflow retrieves a workflow by ID. Returns NOT_FOUND if absent.
	GetWorkflow(ctx context.Context, id string) (model.Workflow, error)

	// UpdateWorkflow persists an updated workflow. The Version field must
	// match the stored version; a mismatch returns CONCURRENT_MODIFICATION
	// and the caller re-reads and retries.
	UpdateWorkflow(ctx context.Context, w model.Workflow) error

	// AppendVote adds a vote to a workflow's append-only history.
	AppendVote(ctx context.Context, v model.Vote) error

	// ListVotes returns a workflow's full vote history ordered by CastedAt.
	ListVotes(ctx context.Context, workflowID string) ([]model.Vote, error)

	// ListWorkflowsByTemplate returns every workflow instantiated from the
	// given template, in any state.
	ListWorkflowsByTemplate(ctx context.Context, templateID string) ([]model.Workflow, error)

	// CreateTemplate persists a new workflow template.
	CreateTemplate(ctx context.Context, t model.WorkflowTemplate) error

	// GetTemplate retrieves a template by ID. Returns NOT_FOUND if absent.
	GetTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error)

	// UpdateTemplate persists template lifecycle changes.
	UpdateTemplate(ctx context.Context, t model.WorkflowTemplate) error

	// MembershipsFor returns the group memberships of an identity.
	MembershipsFor(ctx context.Context, entity model.EntityRef) ([]model.Membership, error)

	// RolesFor returns the resolved role bindings of an identity.
	RolesFor(ctx context.Context, entity model.EntityRef) ([]model.BoundRole, error)

	// AssignRoles attaches bound roles to an identity.
	AssignRoles(ctx context.Context, entity model.EntityRef, roles []model.BoundRole) error

	// TemplateParents resolves workflow template IDs to their parent
	// space IDs. Unknown IDs are simply absent from the result.
	TemplateParents(ctx context.Context, templateIDs ...string) (authz.TemplateParents, error)
}
