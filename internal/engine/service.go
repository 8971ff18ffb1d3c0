package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorumhq/quorum/internal/authz"
	"github.com/quorumhq/quorum/internal/idempotency"
	"github.com/quorumhq/quorum/internal/rule"
	"github.com/quorumhq/quorum/internal/stepup"
	"github.com/quorumhq/quorum/model"
)

const (
	// maxEvaluateRetries bounds the re-read/retry loop on version
	// conflicts during status recomputation.
	maxEvaluateRetries = 3

	defaultIdempotencyTTL = 24 * time.Hour
)

// Service orchestrates the pure state machine over storage, idempotency,
// and the step-up policy.
type Service struct {
	store  Store
	idem   idempotency.Store
	stepUp *stepup.Policy
	logger *zap.Logger
}

// NewService creates a new workflow service. A nil step-up policy means
// no group requires high-privilege sessions beyond rule-level marks.
func NewService(store Store, idem idempotency.Store, stepUp *stepup.Policy, logger *zap.Logger) *Service {
	if stepUp == nil {
		stepUp = stepup.Empty()
	}
	return &Service{store: store, idem: idem, stepUp: stepUp, logger: logger}
}

// CastVoteRequest is a vote submission.
type CastVoteRequest struct {
	Type           model.VoteType `json:"type"`
	VotedForGroups []string       `json:"voted_for_groups,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// CastVoteResult is the outcome of a vote submission.
type CastVoteResult struct {
	Vote     model.Vote     `json:"vote"`
	Workflow model.Workflow `json:"workflow"`
	Replayed bool           `json:"-"`
}

// CastVote records a ballot on a workflow and recomputes its status.
// The voter must be eligible per CanVote, and high-privilege ballots are
// rejected when the session lacks step-up context. Submissions carrying
// an idempotency key replay their stored outcome on retry.
func (s *Service) CastVote(ctx context.Context, rctx *model.RequestContext, workflowID string, req CastVoteRequest) (CastVoteResult, error) {
	if req.Type != model.VoteApprove && req.Type != model.VoteVeto {
		return CastVoteResult{}, model.NewBadRequestError(fmt.Sprintf("invalid vote type %q", req.Type))
	}

	var idemKey, inputHash string
	if req.IdempotencyKey != "" && s.idem != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return CastVoteResult{}, fmt.Errorf("marshal vote request: %w", err)
		}
		idemKey = idempotency.FormatKey(workflowID, req.IdempotencyKey)
		inputHash = idempotency.HashInput(payload)

		cached, found, err := s.idem.Check(ctx, idemKey, inputHash)
		if err != nil {
			return CastVoteResult{}, err
		}
		if found {
			w, err := s.store.GetWorkflow(ctx, workflowID)
			if err != nil {
				return CastVoteResult{}, err
			}
			return CastVoteResult{
				Vote:     model.Vote{ID: cached.VoteID, WorkflowID: workflowID},
				Workflow: w,
				Replayed: true,
			}, nil
		}
	}

	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return CastVoteResult{}, err
	}
	if w.IsTerminal() {
		return CastVoteResult{}, model.NewConflictError(
			fmt.Sprintf("workflow %q is %s and no longer accepts votes", w.ID, w.Status))
	}

	eligibility, err := s.Eligibility(ctx, rctx, w, req.VotedForGroups)
	if err != nil {
		return CastVoteResult{}, err
	}
	if !eligibility.Eligible {
		return CastVoteResult{}, &model.ErrorEnvelope{Code: eligibility.ReasonCode, Message: eligibility.Reason}
	}
	if eligibility.RequireHighPrivilege && !rctx.HighPrivilege {
		return CastVoteResult{}, model.NewForbiddenError(
			"voting on the targeted groups requires a high-privilege session")
	}

	votedFor := req.VotedForGroups
	if len(votedFor) == 0 {
		votedFor, err = s.memberGroups(ctx, rctx.Entity(), w.Rule)
		if err != nil {
			return CastVoteResult{}, err
		}
	}

	v := model.Vote{
		ID:             uuid.New().String(),
		WorkflowID:     w.ID,
		UserID:         rctx.EntityID,
		Type:           req.Type,
		VotedForGroups: votedFor,
		CastedAt:       time.Now().UTC(),
	}
	if err := s.store.AppendVote(ctx, v); err != nil {
		return CastVoteResult{}, err
	}

	updated, err := s.recalculate(ctx, w.ID)
	if err != nil {
		return CastVoteResult{}, err
	}

	s.logger.Info("vote cast",
		zap.String("workflow_id", w.ID),
		zap.String("vote_id", v.ID),
		zap.String("vote_type", string(v.Type)),
		zap.String("status", updated.Status),
	)

	if idemKey != "" {
		result := idempotency.Result{VoteID: v.ID, WorkflowStatus: updated.Status}
		if err := s.idem.Save(ctx, idemKey, inputHash, result, defaultIdempotencyTTL); err != nil {
			// The vote is already durable; a failed idempotency save only
			// costs dedup on retry.
			s.logger.Warn("saving idempotency result failed",
				zap.String("key", idemKey), zap.Error(err))
		}
	}

	return CastVoteResult{Vote: v, Workflow: updated}, nil
}

// Eligibility hydrates the voter's memberships, roles, and template
// parentage and runs the pure CanVote check against the workflow's
// template.
func (s *Service) Eligibility(ctx context.Context, rctx *model.RequestContext, w model.Workflow, votedForGroups []string) (Eligibility, error) {
	t, err := s.store.GetTemplate(ctx, w.TemplateID)
	if err != nil {
		return Eligibility{}, err
	}

	entity := rctx.Entity()
	memberships, err := s.store.MembershipsFor(ctx, entity)
	if err != nil {
		return Eligibility{}, err
	}
	roles, err := s.store.RolesFor(ctx, entity)
	if err != nil {
		return Eligibility{}, err
	}
	parents, err := s.store.TemplateParents(ctx, t.ID)
	if err != nil {
		return Eligibility{}, err
	}

	return CanVote(CanVoteInput{
		Entity:         entity,
		Template:       t,
		Memberships:    memberships,
		Roles:          roles,
		Parents:        parents,
		VotedForGroups: votedForGroups,
		StepUpGroups:   s.stepUp.Groups(),
	}), nil
}

// RecalculateStatus re-evaluates a workflow from its full vote history.
func (s *Service) RecalculateStatus(ctx context.Context, workflowID string) (model.Workflow, error) {
	return s.recalculate(ctx, workflowID)
}

// recalculate runs Evaluate and persists the result, re-reading and
// retrying on version conflicts.
func (s *Service) recalculate(ctx context.Context, workflowID string) (model.Workflow, error) {
	var lastErr error
	for attempt := 0; attempt < maxEvaluateRetries; attempt++ {
		w, err := s.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return model.Workflow{}, err
		}
		history, err := s.store.ListVotes(ctx, workflowID)
		if err != nil {
			return model.Workflow{}, err
		}

		updated, err := Evaluate(w, history)
		if err != nil {
			// A persisted record failing re-validation is a server-side
			// fault, not a caller mistake.
			s.logger.Error("persisted workflow failed re-validation",
				zap.String("workflow_id", workflowID), zap.Error(err))
			return model.Workflow{}, err
		}

		err = s.store.UpdateWorkflow(ctx, updated)
		if err == nil {
			updated.Version++
			return updated, nil
		}
		if !isConcurrentModification(err) {
			return model.Workflow{}, err
		}
		lastErr = err
	}
	return model.Workflow{}, lastErr
}

// Cancel moves a non-terminal workflow to canceled. The requestor must
// hold workflow_cancel on the workflow's template.
func (s *Service) Cancel(ctx context.Context, rctx *model.RequestContext, workflowID string) (model.Workflow, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.Workflow{}, err
	}
	if w.IsTerminal() {
		return model.Workflow{}, model.NewConflictError(
			fmt.Sprintf("workflow %q is already %s", w.ID, w.Status))
	}

	if err := s.requireTemplatePermission(ctx, rctx, w.TemplateID, model.PermissionWorkflowCancel); err != nil {
		return model.Workflow{}, err
	}

	w.Status = model.WorkflowStatusCanceled
	w.RecalculationRequired = false
	if err := s.store.UpdateWorkflow(ctx, w); err != nil {
		return model.Workflow{}, err
	}
	w.Version++

	s.logger.Info("workflow canceled",
		zap.String("workflow_id", w.ID),
		zap.String("entity_id", rctx.EntityID),
	)
	return w, nil
}

// GetWorkflow returns a workflow to a requestor holding workflow_read on
// its template.
func (s *Service) GetWorkflow(ctx context.Context, rctx *model.RequestContext, workflowID string) (model.Workflow, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.Workflow{}, err
	}
	if err := s.requireTemplatePermission(ctx, rctx, w.TemplateID, model.PermissionWorkflowRead); err != nil {
		return model.Workflow{}, err
	}
	return w, nil
}

// CreateWorkflowRequest carries the inputs for instantiating a workflow
// from a template.
type CreateWorkflowRequest struct {
	TemplateID  string `json:"template_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateWorkflow instantiates a pending workflow from an active template.
// The requestor needs the instantiate permission on the template.
func (s *Service) CreateWorkflow(ctx context.Context, rctx *model.RequestContext, req CreateWorkflowRequest) (model.Workflow, error) {
	t, err := s.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return model.Workflow{}, err
	}
	if t.Status != model.TemplateStatusActive {
		return model.Workflow{}, model.NewTemplateNotActiveError(
			fmt.Sprintf("workflow template %q is %s and cannot be instantiated", t.ID, t.Status))
	}

	if err := s.requireTemplatePermission(ctx, rctx, t.ID, model.PermissionInstantiate); err != nil {
		return model.Workflow{}, err
	}

	now := time.Now().UTC()
	w := model.Workflow{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		TemplateID:  t.ID,
		Rule:        t.Rule,
		Status:      model.WorkflowStatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.Validate(); err != nil {
		return model.Workflow{}, err
	}
	if err := s.store.CreateWorkflow(ctx, w); err != nil {
		return model.Workflow{}, err
	}

	s.logger.Info("workflow created",
		zap.String("workflow_id", w.ID),
		zap.String("template_id", t.ID),
	)
	return w, nil
}

// CreateTemplateRequest creates a new workflow template.
type CreateTemplateRequest struct {
	Name    string          `json:"name"`
	SpaceID string          `json:"space_id"`
	Rule    json.RawMessage `json:"rule"`
}

// CreateTemplate validates the rule tree and persists a new active
// template at the latest version. The requestor needs manage on the
// parent space.
func (s *Service) CreateTemplate(ctx context.Context, rctx *model.RequestContext, req CreateTemplateRequest) (model.WorkflowTemplate, error) {
	if req.Name == "" {
		return model.WorkflowTemplate{}, model.NewValidationError([]model.FieldError{
			{Field: "name", Code: "REQUIRED", Message: "name is required"},
		})
	}
	if req.SpaceID == "" {
		return model.WorkflowTemplate{}, model.NewValidationError([]model.FieldError{
			{Field: "space_id", Code: "REQUIRED", Message: "space_id is required"},
		})
	}

	parsed, err := rule.Parse(req.Rule)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}

	roles, err := s.store.RolesFor(ctx, rctx.Entity())
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	if !authz.HasPermission(roles, model.SpaceScope(req.SpaceID), model.PermissionManage, nil) {
		return model.WorkflowTemplate{}, model.NewRequestorNotAuthorizedError(
			fmt.Sprintf("managing templates in space %q requires the manage permission", req.SpaceID))
	}

	now := time.Now().UTC()
	t := model.WorkflowTemplate{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Rule:      parsed,
		Status:    model.TemplateStatusActive,
		SpaceID:   req.SpaceID,
		Version:   model.TemplateVersionLatest,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return model.WorkflowTemplate{}, err
	}

	s.logger.Info("workflow template created",
		zap.String("template_id", t.ID),
		zap.String("space_id", t.SpaceID),
	)
	return t, nil
}

// DeprecateTemplateRequest starts template deprecation.
type DeprecateTemplateRequest struct {
	// Version is the concrete version assigned in place of "latest".
	Version string `json:"version"`

	// CancelWorkflows cancels every open workflow instantiated from
	// this template instead of letting voting continue.
	CancelWorkflows bool `json:"cancel_workflows"`
}

// MarkTemplateForDeprecation moves an active template to
// pending_deprecation, assigning it a concrete positive integer
// version. Voting on existing workflows continues unless
// CancelWorkflows was chosen, in which case open workflows are
// canceled.
func (s *Service) MarkTemplateForDeprecation(ctx context.Context, rctx *model.RequestContext, templateID string, req DeprecateTemplateRequest) (model.WorkflowTemplate, error) {
	if n, err := strconv.Atoi(req.Version); err != nil || n <= 0 {
		return model.WorkflowTemplate{}, model.NewValidationError([]model.FieldError{
			{Field: "version", Code: "INVALID", Message: "a concrete positive integer version must be assigned at deprecation"},
		})
	}

	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	if t.Status != model.TemplateStatusActive {
		return model.WorkflowTemplate{}, model.NewConflictError(
			fmt.Sprintf("workflow template %q is %s, only active templates can enter deprecation", t.ID, t.Status))
	}

	if err := s.requireSpaceManage(ctx, rctx, t.SpaceID); err != nil {
		return model.WorkflowTemplate{}, err
	}

	t.Status = model.TemplateStatusPendingDeprecation
	t.Version = req.Version
	t.AllowVotingOnDeprecatedTemplate = !req.CancelWorkflows
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return model.WorkflowTemplate{}, err
	}

	if req.CancelWorkflows {
		if err := s.cancelOpenWorkflows(ctx, t.ID); err != nil {
			return model.WorkflowTemplate{}, err
		}
	}

	s.logger.Info("workflow template marked for deprecation",
		zap.String("template_id", t.ID),
		zap.String("version", t.Version),
		zap.Bool("allow_voting", t.AllowVotingOnDeprecatedTemplate),
	)
	return t, nil
}

// cancelOpenWorkflows closes every non-terminal workflow of a template
// entering deprecation. Terminal workflows keep their outcome.
func (s *Service) cancelOpenWorkflows(ctx context.Context, templateID string) error {
	workflows, err := s.store.ListWorkflowsByTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	for _, w := range workflows {
		if w.IsTerminal() {
			continue
		}
		w.Status = model.WorkflowStatusCanceled
		w.RecalculationRequired = false
		if err := s.store.UpdateWorkflow(ctx, w); err != nil {
			return err
		}
		s.logger.Info("workflow canceled by template deprecation",
			zap.String("workflow_id", w.ID),
			zap.String("template_id", templateID),
		)
	}
	return nil
}

// MarkTemplateAsDeprecated completes deprecation. One-directional; there
// is no un-deprecation.
func (s *Service) MarkTemplateAsDeprecated(ctx context.Context, rctx *model.RequestContext, templateID string) (model.WorkflowTemplate, error) {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	if t.Status != model.TemplateStatusPendingDeprecation {
		return model.WorkflowTemplate{}, model.NewConflictError(
			fmt.Sprintf("workflow template %q is %s, only pending_deprecation templates can be deprecated", t.ID, t.Status))
	}

	if err := s.requireSpaceManage(ctx, rctx, t.SpaceID); err != nil {
		return model.WorkflowTemplate{}, err
	}

	t.Status = model.TemplateStatusDeprecated
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return model.WorkflowTemplate{}, err
	}

	s.logger.Info("workflow template deprecated", zap.String("template_id", t.ID))
	return t, nil
}

// AssignRoles validates a batch of raw roles and attaches them to an
// identity. The batch is all-or-nothing: validation fails fast, agents
// may only receive workflow_template roles, and the requestor must be
// authorized to assign every role.
func (s *Service) AssignRoles(ctx context.Context, rctx *model.RequestContext, target model.EntityRef, raws []authz.RawRole) ([]model.BoundRole, error) {
	roles, err := authz.ValidateRoles(raws)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckAssignable(target, roles); err != nil {
		return nil, err
	}

	requestorRoles, err := s.store.RolesFor(ctx, rctx.Entity())
	if err != nil {
		return nil, err
	}

	var templateIDs []string
	for _, r := range roles {
		if r.Scope.Kind == model.ScopeWorkflowTemplate {
			templateIDs = append(templateIDs, r.Scope.ID)
		}
	}
	parents, err := s.store.TemplateParents(ctx, templateIDs...)
	if err != nil {
		return nil, err
	}

	if !authz.CanAssignRoles(requestorRoles, roles, parents) {
		return nil, model.NewRequestorNotAuthorizedError(
			"the requestor may not assign one or more of the requested roles")
	}

	if err := s.store.AssignRoles(ctx, target, roles); err != nil {
		return nil, err
	}

	s.logger.Info("roles assigned",
		zap.String("target_entity", target.ID),
		zap.Int("count", len(roles)),
	)
	return roles, nil
}

// memberGroups returns the voter's membership groups intersected with
// the rule's voting groups, the default ballot target set.
func (s *Service) memberGroups(ctx context.Context, entity model.EntityRef, r model.ApprovalRule) ([]string, error) {
	memberships, err := s.store.MembershipsFor(ctx, entity)
	if err != nil {
		return nil, err
	}
	voting := rule.VotingGroupIDs(r)
	var groups []string
	for _, m := range memberships {
		if _, ok := voting[m.GroupID]; ok {
			groups = append(groups, m.GroupID)
		}
	}
	return groups, nil
}

func (s *Service) requireTemplatePermission(ctx context.Context, rctx *model.RequestContext, templateID, permission string) error {
	roles, err := s.store.RolesFor(ctx, rctx.Entity())
	if err != nil {
		return err
	}
	parents, err := s.store.TemplateParents(ctx, templateID)
	if err != nil {
		return err
	}
	if !authz.HasPermission(roles, model.WorkflowTemplateScope(templateID), permission, parents) {
		return model.NewForbiddenError(
			fmt.Sprintf("the %s permission is required on workflow template %q", permission, templateID))
	}
	return nil
}

func (s *Service) requireSpaceManage(ctx context.Context, rctx *model.RequestContext, spaceID string) error {
	roles, err := s.store.RolesFor(ctx, rctx.Entity())
	if err != nil {
		return err
	}
	if !authz.HasPermission(roles, model.SpaceScope(spaceID), model.PermissionManage, nil) {
		return model.NewRequestorNotAuthorizedError(
			fmt.Sprintf("managing templates in space %q requires the manage permission", spaceID))
	}
	return nil
}

func isConcurrentModification(err error) bool {
	env, ok := err.(*model.ErrorEnvelope)
	return ok && env.Code == model.ErrConcurrentModification
}
