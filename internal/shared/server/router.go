package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/billing"
	"smartqa-backend/internal/runs"
	"smartqa-backend/internal/services/health"
	"smartqa-backend/internal/shared/config"
	"smartqa-backend/internal/shared/metrics"
	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
	"smartqa-backend/internal/testcases"
)

const triggerGroup = "TRIGGER"

// RouterDeps carries the handlers mounted under /api/v1.
type RouterDeps struct {
	Config           config.Config
	Verifier         middleware.TokenVerifier
	AnalysisHandler  *analyses.Handler
	ArtifactHandler  *artifacts.Handler
	TestCaseHandler  *testcases.Handler
	RunHandler       *runs.Handler
	BillingHandler   *billing.Handler
	Health           *health.Service
	TriggerRateLimit middleware.RateLimitRule
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	r.GET("/metrics", metrics.Handler())
	healthz := func(c *gin.Context) {
		status := deps.Health.Check(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	}
	r.GET("/healthz", healthz)

	api := r.Group("/api/v1")
	api.GET("/health", healthz)

	authed := api.Group("")
	authed.Use(middleware.Auth(deps.Verifier, deps.Config.IsDevLike()))
	registerMeRoutes(authed)

	rule := deps.TriggerRateLimit
	if rule.Rate <= 0 {
		rule = middleware.RateLimitRule{Rate: 0.5, Burst: 5}
	}
	triggerLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Rules:        map[string]middleware.RateLimitRule{triggerGroup: rule},
		DefaultGroup: triggerGroup,
	})

	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(authed, triggerLimit)
	}
	if deps.ArtifactHandler != nil {
		deps.ArtifactHandler.RegisterRoutes(authed)
	}
	if deps.TestCaseHandler != nil {
		deps.TestCaseHandler.RegisterRoutes(authed)
	}
	if deps.RunHandler != nil {
		deps.RunHandler.RegisterRoutes(authed)
	}
	if deps.BillingHandler != nil {
		deps.BillingHandler.RegisterRoutes(authed)
		if deps.Config.IsDevLike() {
			deps.BillingHandler.RegisterDevRoutes(authed.Group("/dev"))
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
