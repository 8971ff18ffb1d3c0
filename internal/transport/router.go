package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Service      *engine.Service
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Authenticate func(http.Handler) http.Handler
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes, no authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// Authenticated routes behind the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Post("/v1/workflows", handleWorkflowCreate(deps.Service))
		r.Get("/v1/workflows/{workflowId}", handleWorkflowGet(deps.Service))
		r.Post("/v1/workflows/{workflowId}/votes", handleCastVote(deps.Service, deps.Metrics))
		r.Get("/v1/workflows/{workflowId}/eligibility", handleEligibility(deps.Service, deps.Metrics))
		r.Post("/v1/workflows/{workflowId}/recalculate", handleWorkflowRecalculate(deps.Service, deps.Metrics))
		r.Post("/v1/workflows/{workflowId}/cancel", handleWorkflowCancel(deps.Service))

		r.Post("/v1/templates", handleTemplateCreate(deps.Service))
		r.Post("/v1/templates/{templateId}/deprecate", handleTemplateDeprecate(deps.Service, deps.Metrics))
		r.Post("/v1/templates/{templateId}/deprecated", handleTemplateDeprecated(deps.Service, deps.Metrics))

		r.Post("/v1/entities/{entityId}/roles", handleAssignRoles(deps.Service))
	})

	return r
}
