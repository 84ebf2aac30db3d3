package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TTS1976/alcohol-check-engine/internal/config"
	"github.com/TTS1976/alcohol-check-engine/internal/engine"
	"github.com/TTS1976/alcohol-check-engine/internal/observability"
	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Engine    *engine.Engine
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks

	// Authenticate is the middleware chain that verifies the caller and
	// stores the Actor in the context. Nil disables authentication; only
	// tests do that.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// Authenticated API routes.
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		r.Use(RequestLogging)

		r.Get("/api/v1/workflow/state", handleWorkflowState(deps.Engine, deps.Metrics))
		r.Get("/api/v1/confirmers", handleConfirmers(deps.Engine))
		r.Get("/api/v1/submissions/pending", handlePendingSubmissions(deps.Engine, deps.Metrics))
		r.Get("/api/v1/submissions/{submissionId}/can-approve", handleCanApprove(deps.Engine, deps.Metrics))
	})

	return r
}

// NewAuthChain composes the standard authentication middleware: JWT
// verification followed by Actor construction from the org directory.
func NewAuthChain(cfg config.IdentityConfig, jwks *JWKSClient, dir orgdir.Provider) func(http.Handler) http.Handler {
	verify := JWTAuthenticator(cfg, jwks)
	build := BuildActor(dir)
	return func(next http.Handler) http.Handler {
		return verify(build(next))
	}
}
