package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateWorkflow inserts a new workflow.
func (s *PgStore) CreateWorkflow(ctx context.Context, w model.Workflow) error {
	ruleJSON, err := json.Marshal(w.Rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflows (
			id, name, description, template_id, rule, status,
			recalculation_required, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.Name, w.Description, w.TemplateID, ruleJSON, w.Status,
		w.RecalculationRequired, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *PgStore) GetWorkflow(ctx context.Context, id string) (model.Workflow, error) {
	var w model.Workflow
	var ruleJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, template_id, rule, status,
		       recalculation_required, version, created_at, updated_at
		FROM workflows
		WHERE id = $1`,
		id,
	).Scan(
		&w.ID, &w.Name, &w.Description, &w.TemplateID, &ruleJSON, &w.Status,
		&w.RecalculationRequired, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("query workflow: %w", err)
	}

	if err := json.Unmarshal(ruleJSON, &w.Rule); err != nil {
		return model.Workflow{}, fmt.Errorf("unmarshal rule: %w", err)
	}
	return w, nil
}

// UpdateWorkflow persists an updated workflow with optimistic locking.
func (s *PgStore) UpdateWorkflow(ctx context.Context, w model.Workflow) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows SET
			status = $1,
			recalculation_required = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND version = $6`,
		w.Status, w.RecalculationRequired, w.Version+1,
		time.Now().UTC(),
		w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConcurrentModificationError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", w.ID, w.Version))
	}
	return nil
}

// AppendVote adds a vote to the workflow's append-only history.
func (s *PgStore) AppendVote(ctx context.Context, v model.Vote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO votes (id, workflow_id, user_id, type, voted_for_groups, casted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.WorkflowID, v.UserID, v.Type, v.VotedForGroups, v.CastedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// ListVotes returns the vote history ordered by CastedAt.
func (s *PgStore) ListVotes(ctx context.Context, workflowID string) ([]model.Vote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, user_id, type, voted_for_groups, casted_at
		FROM votes
		WHERE workflow_id = $1
		ORDER BY casted_at ASC, id ASC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.UserID, &v.Type, &v.VotedForGroups, &v.CastedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

// ListWorkflowsByTemplate returns every workflow instantiated from the
// given template.
func (s *PgStore) ListWorkflowsByTemplate(ctx context.Context, templateID string) ([]model.Workflow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, template_id, rule, status,
		       recalculation_required, version, created_at, updated_at
		FROM workflows
		WHERE template_id = $1
		ORDER BY id ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflows by template: %w", err)
	}
	defer rows.Close()

	var workflows []model.Workflow
	for rows.Next() {
		var w model.Workflow
		var ruleJSON []byte
		if err := rows.Scan(
			&w.ID, &w.Name, &w.Description, &w.TemplateID, &ruleJSON, &w.Status,
			&w.RecalculationRequired, &w.Version, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if err := json.Unmarshal(ruleJSON, &w.Rule); err != nil {
			return nil, fmt.Errorf("unmarshal rule: %w", err)
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

// CreateTemplate inserts a new workflow template.
func (s *PgStore) CreateTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	ruleJSON, err := json.Marshal(t.Rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_templates (
			id, name, rule, status, allow_voting_on_deprecated_template,
			space_id, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, ruleJSON, t.Status, t.AllowVotingOnDeprecatedTemplate,
		t.SpaceID, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *PgStore) GetTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error) {
	var t model.WorkflowTemplate
	var ruleJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, rule, status, allow_voting_on_deprecated_template,
		       space_id, version, created_at, updated_at
		FROM workflow_templates
		WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.Name, &ruleJSON, &t.Status, &t.AllowVotingOnDeprecatedTemplate,
		&t.SpaceID, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowTemplate{}, model.NewNotFoundError(fmt.Sprintf("workflow template %q not found", id))
	}
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("query workflow template: %w", err)
	}

	if err := json.Unmarshal(ruleJSON, &t.Rule); err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("unmarshal rule: %w", err)
	}
	return t, nil
}

// UpdateTemplate persists template lifecycle changes.
func (s *PgStore) UpdateTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_templates SET
			status = $1,
			allow_voting_on_deprecated_template = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5`,
		t.Status, t.AllowVotingOnDeprecatedTemplate, t.Version,
		time.Now().UTC(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("workflow template %q not found", t.ID))
	}
	return nil
}

// MembershipsFor returns the memberships of an identity.
func (s *PgStore) MembershipsFor(ctx context.Context, entity model.EntityRef) ([]model.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, entity_type, group_id, role, created_at, updated_at
		FROM memberships
		WHERE entity_id = $1 AND entity_type = $2`,
		entity.ID, entity.Type,
	)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.Entity.ID, &m.Entity.Type, &m.GroupID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}

// RolesFor returns the role bindings of an identity.
func (s *PgStore) RolesFor(ctx context.Context, entity model.EntityRef) ([]model.BoundRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, resource_type, permissions, scope_kind, scope_id
		FROM role_bindings
		WHERE entity_id = $1 AND entity_type = $2`,
		entity.ID, entity.Type,
	)
	if err != nil {
		return nil, fmt.Errorf("query role bindings: %w", err)
	}
	defer rows.Close()

	var roles []model.BoundRole
	for rows.Next() {
		var r model.BoundRole
		if err := rows.Scan(&r.Name, &r.ResourceType, &r.Permissions, &r.Scope.Kind, &r.Scope.ID); err != nil {
			return nil, fmt.Errorf("scan role binding: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role bindings: %w", err)
	}
	return roles, nil
}

// AssignRoles attaches bound roles to an identity.
func (s *PgStore) AssignRoles(ctx context.Context, entity model.EntityRef, roles []model.BoundRole) error {
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, r := range roles {
		batch.Queue(`
			INSERT INTO role_bindings (
				entity_id, entity_type, name, resource_type, permissions,
				scope_kind, scope_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entity.ID, entity.Type, r.Name, r.ResourceType, r.Permissions,
			r.Scope.Kind, r.Scope.ID, now,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range roles {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert role binding: %w", err)
		}
	}
	return nil
}

// TemplateParents resolves template IDs to parent space IDs.
func (s *PgStore) TemplateParents(ctx context.Context, templateIDs ...string) (authz.TemplateParents, error) {
	if len(templateIDs) == 0 {
		return authz.TemplateParents{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, space_id
		FROM workflow_templates
		WHERE id = ANY($1) AND space_id <> ''`,
		templateIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query template parents: %w", err)
	}
	defer rows.Close()

	parents := make(authz.TemplateParents, len(templateIDs))
	for rows.Next() {
		var id, spaceID string
		if err := rows.Scan(&id, &spaceID); err != nil {
			return nil, fmt.Errorf("scan template parent: %w", err)
		}
		parents[id] = spaceID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template parents: %w", err)
	}
	return parents, nil
}

// HealthCheck pings the database pool.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
