package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/model"
)

// MemoryStore is an in-memory Store for testing and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]model.Workflow
	votes       map[string][]model.Vote // key: workflow ID
	templates   map[string]model.WorkflowTemplate
	memberships map[model.EntityRef][]model.Membership
	roles       map[model.EntityRef][]model.BoundRole
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]model.Workflow),
		votes:       make(map[string][]model.Vote),
		templates:   make(map[string]model.WorkflowTemplate),
		memberships: make(map[model.EntityRef][]model.Membership),
		roles:       make(map[model.EntityRef][]model.BoundRole),
	}
}

// CreateWorkflow persists a new workflow.
func (s *MemoryStore) CreateWorkflow(_ context.Context, w model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[w.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow %q already exists", w.ID))
	}
	s.workflows[w.ID] = w
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.workflows[id]
	if !exists {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	return w, nil
}

// UpdateWorkflow persists an updated workflow with optimistic locking.
func (s *MemoryStore) UpdateWorkflow(_ context.Context, w model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.workflows[w.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", w.ID))
	}
	if existing.Version != w.Version {
		return model.NewConcurrentModificationError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", w.ID, w.Version, existing.Version))
	}

	w.Version++
	w.UpdatedAt = time.Now().UTC()
	s.workflows[w.ID] = w
	return nil
}

// AppendVote adds a vote to the workflow's history.
func (s *MemoryStore) AppendVote(_ context.Context, v model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[v.WorkflowID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", v.WorkflowID))
	}
	s.votes[v.WorkflowID] = append(s.votes[v.WorkflowID], v)
	return nil
}

// ListVotes returns the vote history ordered by CastedAt. Votes with
// equal timestamps keep their append order so consolidation is
// deterministic.
func (s *MemoryStore) ListVotes(_ context.Context, workflowID string) ([]model.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := s.votes[workflowID]
	result := make([]model.Vote, len(votes))
	copy(result, votes)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CastedAt.Before(result[j].CastedAt)
	})
	return result, nil
}

// ListWorkflowsByTemplate returns every workflow instantiated from the
// given template, ordered by ID.
func (s *MemoryStore) ListWorkflowsByTemplate(_ context.Context, templateID string) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Workflow
	for _, w := range s.workflows {
		if w.TemplateID == templateID {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateTemplate persists a new workflow template.
func (s *MemoryStore) CreateTemplate(_ context.Context, t model.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow template %q already exists", t.ID))
	}
	s.templates[t.ID] = t
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *MemoryStore) GetTemplate(_ context.Context, id string) (model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.templates[id]
	if !exists {
		return model.WorkflowTemplate{}, model.NewNotFoundError(fmt.Sprintf("workflow template %q not found", id))
	}
	return t, nil
}

// UpdateTemplate persists template lifecycle changes.
func (s *MemoryStore) UpdateTemplate(_ context.Context, t model.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow template %q not found", t.ID))
	}
	t.UpdatedAt = time.Now().UTC()
	s.templates[t.ID] = t
	return nil
}

// MembershipsFor returns the memberships of an identity.
func (s *MemoryStore) MembershipsFor(_ context.Context, entity model.EntityRef) ([]model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberships := s.memberships[entity]
	result := make([]model.Membership, len(memberships))
	copy(result, memberships)
	return result, nil
}

// RolesFor returns the role bindings of an identity.
func (s *MemoryStore) RolesFor(_ context.Context, entity model.EntityRef) ([]model.BoundRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := s.roles[entity]
	result := make([]model.BoundRole, len(roles))
	copy(result, roles)
	return result, nil
}

// AssignRoles attaches bound roles to an identity.
func (s *MemoryStore) AssignRoles(_ context.Context, entity model.EntityRef, roles []model.BoundRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[entity] = append(s.roles[entity], roles...)
	return nil
}

// TemplateParents resolves template IDs to parent space IDs.
func (s *MemoryStore) TemplateParents(_ context.Context, templateIDs ...string) (authz.TemplateParents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parents := make(authz.TemplateParents, len(templateIDs))
	for _, id := range templateIDs {
		if t, exists := s.templates[id]; exists && t.SpaceID != "" {
			parents[id] = t.SpaceID
		}
	}
	return parents, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// AddMembership seeds a membership row. Test helper.
func (s *MemoryStore) AddMembership(m model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[m.Entity] = append(s.memberships[m.Entity], m)
}
