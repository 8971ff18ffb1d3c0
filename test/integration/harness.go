// Package integration provides a reusable test harness for end-to-end
// testing of the approval engine server. It starts a full HTTP server
// over in-memory stores with a test JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/internal/idempotency"
	"github.com/quorumhq/quorum/internal/stepup"
	"github.com/quorumhq/quorum/internal/transport"
	"github.com/quorumhq/quorum/model"
)

// TestHarness encapsulates a fully wired approval engine instance for
// integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for seeding test scenarios.
	Store            *engine.MemoryStore
	IdempotencyStore *idempotency.MemoryStore
	Service          *engine.Service

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	stepUpGroups []string
}

// WithStepUpGroups writes a step-up policy file containing the given
// group IDs and loads it into the engine.
func WithStepUpGroups(groups ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.stepUpGroups = append(c.stepUpGroups, groups...)
	}
}

// NewTestHarness starts a wired server over in-memory stores and returns
// the harness. The server is shut down when the test finishes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	var hc harnessConfig
	for _, opt := range opts {
		opt(&hc)
	}

	issuer := newTokenIssuer(t)

	cfg := config.Defaults()
	cfg.Identity.Issuer = issuer.Issuer()
	cfg.Identity.Audience = issuer.audience
	cfg.Identity.JWKSURL = issuer.JWKSURL()
	cfg.Identity.StepUpACRValues = []string{"phrh"}
	cfg.Observability.Metrics.Enabled = false

	var stepUpPolicy *stepup.Policy
	if len(hc.stepUpGroups) > 0 {
		stepUpPolicy = loadStepUpPolicy(t, hc.stepUpGroups)
	}

	store := engine.NewMemoryStore()
	idemStore := idempotency.NewMemoryStore()
	svc := engine.NewService(store, idemStore, stepUpPolicy, zap.NewNop())

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, nil)
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Service:      svc,
		Logger:       zap.NewNop(),
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:                t,
		server:           server,
		issuer:           issuer,
		Store:            store,
		IdempotencyStore: idemStore,
		Service:          svc,
		cfg:              cfg,
	}
}

func loadStepUpPolicy(t *testing.T, groups []string) *stepup.Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepup.yaml")
	var buf bytes.Buffer
	buf.WriteString("groups:\n")
	for _, g := range groups {
		buf.WriteString("  - " + g + "\n")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing step-up policy: %v", err)
	}
	policy, err := stepup.Load(path)
	if err != nil {
		t.Fatalf("loading step-up policy: %v", err)
	}
	return policy
}

// BaseURL returns the base URL of the running server.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid, signed JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT token that expired in the past.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GET performs an authenticated GET request against the harness server.
func (h *TestHarness) GET(path, token string) *http.Response {
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST with extra headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	return h.doRequest(http.MethodPost, path, body, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ParseJSON decodes the response body into target and closes it.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		h.t.Fatalf("decode response body: %v", err)
	}
}

// ReadBody reads and closes the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus fails the test if the response status does not match.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body := h.ReadBody(resp)
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, expected, body)
	}
}

// AssertJSON asserts the status code and decodes the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body := h.ReadBody(resp)
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, expected, body)
	}
	h.ParseJSON(resp, target)
}

// --- seeding helpers ---

// SeedTemplate stores an active template with the given rule.
func (h *TestHarness) SeedTemplate(templateID, spaceID string, rule model.ApprovalRule) {
	h.t.Helper()
	tmpl := model.WorkflowTemplate{
		ID: templateID, Name: "integration template", Rule: rule,
		Status: model.TemplateStatusActive, SpaceID: spaceID,
		Version: model.TemplateVersionLatest,
	}
	if err := h.Store.CreateTemplate(context.Background(), tmpl); err != nil {
		h.t.Fatalf("seeding template: %v", err)
	}
}

// SeedWorkflow stores a pending workflow instantiated from templateID.
func (h *TestHarness) SeedWorkflow(workflowID, templateID string, rule model.ApprovalRule) {
	h.t.Helper()
	now := time.Now().UTC()
	w := model.Workflow{
		ID: workflowID, Name: "integration workflow", TemplateID: templateID,
		Rule: rule, Status: model.WorkflowStatusPending, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := h.Store.CreateWorkflow(context.Background(), w); err != nil {
		h.t.Fatalf("seeding workflow: %v", err)
	}
}

// SeedVoter gives the user a membership in groupID plus the vote and
// workflow read permissions on templateID.
func (h *TestHarness) SeedVoter(userID, groupID, templateID string) {
	h.t.Helper()
	entity := model.EntityRef{ID: userID, Type: model.EntityUser}
	h.Store.AddMembership(model.Membership{Entity: entity, GroupID: groupID})
	roles := []model.BoundRole{{
		Name: "voter", ResourceType: model.ResourceWorkflowTemplate,
		Permissions: []string{model.PermissionVote, model.PermissionWorkflowRead},
		Scope:       model.WorkflowTemplateScope(templateID),
	}}
	if err := h.Store.AssignRoles(context.Background(), entity, roles); err != nil {
		h.t.Fatalf("seeding roles: %v", err)
	}
}

// SeedOrgAdmin gives the user org-wide manage plus every workflow
// template permission.
func (h *TestHarness) SeedOrgAdmin(userID string) {
	h.t.Helper()
	entity := model.EntityRef{ID: userID, Type: model.EntityUser}
	roles := []model.BoundRole{
		{
			Name: "org_admin", ResourceType: model.ResourceSpace,
			Permissions: []string{model.PermissionRead, model.PermissionManage},
			Scope:       model.OrgScope(),
		},
		{
			Name: "workflow_admin", ResourceType: model.ResourceWorkflowTemplate,
			Permissions: model.PermissionsFor(model.ResourceWorkflowTemplate),
			Scope:       model.OrgScope(),
		},
	}
	if err := h.Store.AssignRoles(context.Background(), entity, roles); err != nil {
		h.t.Fatalf("seeding roles: %v", err)
	}
}
