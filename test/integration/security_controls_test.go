package integration

import (
	"net/http"
	"testing"

	"github.com/quorumhq/quorum/model"
)

func TestSecurity_MissingToken(t *testing.T) {
	h := NewTestHarness(t)
	rule := financeRule(1)
	h.SeedTemplate("wt-1", "sp-1", rule)
	h.SeedWorkflow("wf-1", "wt-1", rule)

	resp := h.GET("/v1/workflows/wf-1", "")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_ExpiredToken(t *testing.T) {
	h := NewTestHarness(t)
	rule := financeRule(1)
	h.SeedTemplate("wt-1", "sp-1", rule)
	h.SeedWorkflow("wf-1", "wt-1", rule)

	expired := h.GenerateExpiredToken(TestClaims{SubjectID: "alice"})
	resp := h.GET("/v1/workflows/wf-1", expired)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_VoterWithoutGroupMembership(t *testing.T) {
	h := NewTestHarness(t)
	rule := financeRule(1)
	h.SeedTemplate("wt-1", "sp-1", rule)
	h.SeedWorkflow("wf-1", "wt-1", rule)

	// mallory holds no memberships or roles at all.
	mallory := h.GenerateToken(TestClaims{SubjectID: "mallory"})
	resp := h.POST("/v1/workflows/wf-1/votes", map[string]any{"type": "approve"}, mallory)

	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, http.StatusForbidden, &body)
	if body.Error.Code != model.ErrEntityNotInRequiredGroup {
		t.Errorf("code = %q, want %q", body.Error.Code, model.ErrEntityNotInRequiredGroup)
	}
}

func TestSecurity_CancelRequiresPermission(t *testing.T) {
	h := NewTestHarness(t)
	rule := financeRule(1)
	h.SeedTemplate("wt-1", "sp-1", rule)
	h.SeedWorkflow("wf-1", "wt-1", rule)
	h.SeedVoter("alice", groupFinance, "wt-1")
	h.SeedOrgAdmin("root")

	// Voters may not cancel.
	alice := h.GenerateToken(TestClaims{SubjectID: "alice"})
	resp := h.POST("/v1/workflows/wf-1/cancel", nil, alice)
	h.AssertStatus(t, resp, http.StatusForbidden)

	// Workflow admins may.
	admin := h.GenerateToken(TestClaims{SubjectID: "root"})
	resp = h.POST("/v1/workflows/wf-1/cancel", nil, admin)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSecurity_AgentCannotReceiveGroupRole(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedOrgAdmin("root")
	admin := h.GenerateToken(TestClaims{SubjectID: "root"})

	resp := h.POST("/v1/entities/bot-1/roles", map[string]any{
		"entity_type": "agent",
		"roles": []map[string]any{{
			"name":          "finance_approver",
			"resource_type": "group",
			"permissions":   []string{"read"},
			"scope":         map[string]any{"kind": "group", "id": groupFinance},
		}},
	}, admin)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestSecurity_RoleAssignmentRequiresOrgAdmin(t *testing.T) {
	h := NewTestHarness(t)
	rule := financeRule(1)
	h.SeedTemplate("wt-1", "sp-1", rule)
	h.SeedVoter("alice", groupFinance, "wt-1")

	alice := h.GenerateToken(TestClaims{SubjectID: "alice"})
	resp := h.POST("/v1/entities/bob/roles", map[string]any{
		"roles": []map[string]any{{
			"name":          "finance_approver",
			"resource_type": "group",
			"permissions":   []string{"read"},
			"scope":         map[string]any{"kind": "group", "id": groupFinance},
		}},
	}, alice)
	h.AssertStatus(t, resp, http.StatusForbidden)
}
