// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/cache"
	"github.com/tbourn/go-production-goals/internal/config"
	"github.com/tbourn/go-production-goals/internal/events"
	"github.com/tbourn/go-production-goals/internal/http/handlers"
	"github.com/tbourn/go-production-goals/internal/http/middleware"
	"github.com/tbourn/go-production-goals/internal/services"
)

// Deps carries the stores and collaborators the routes are built on. Cache,
// Events and Clock are optional; nil values fall back to an in-memory cache,
// no-op publishing and the system clock.
type Deps struct {
	DB     *gorm.DB
	Cache  cache.KeyCache
	Events events.Publisher
	Clock  services.Clock
}

// corsHeaders are the request headers browsers may send cross-origin.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderUserID, "X-User-Role", middleware.HeaderIdempotencyKey,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health, metrics and docs endpoints, and then mounts the versioned
// API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// and on the API group:
//  8. Auth: bearer token (or X-User-ID when auth is disabled)
//  9. Idempotency validator (needs the user; before the limiter so replays bypass it)
//  10. Rate limiter on mutations (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	useCORS(r, cfg.CORS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(deps.DB))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	subs, projects, stats := buildServices(cfg, deps)
	h := handlers.New(subs, projects, stats)

	api := groupWithPrefix(r, cfg.APIBasePath)

	// 8) Identity
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:   cfg.Auth.JWTSecret,
		Disabled: cfg.Auth.Disabled,
	}))

	// 9) Idempotency validation against the key cache and audit table
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, subs.Seen))

	// 10) Token-bucket rate limiter per user/IP, mutations only
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Only(http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)
	api.Use(rl.Handler())

	// Submissions
	api.POST("/submissions", h.Submit)
	api.PUT("/submissions/:id", h.EditSubmission)
	api.DELETE("/submissions/:id", h.DeleteSubmission)

	// Reads (compressible)
	reads := api.Group("", gzip.Gzip(gzip.DefaultCompression))
	{
		reads.GET("/projects/active", h.ActiveProjects)
		reads.GET("/projects/:id", h.GetProject)
		reads.GET("/projects/:id/top", h.TopContributors)
		reads.GET("/projects/:id/archives", h.ProjectArchives)
		reads.GET("/completed/recent", h.RecentlyCompleted)
		reads.GET("/parts/:id/submissions/mine", h.MySubmissions)
		reads.GET("/me/contributions", h.MyContributions)
		reads.GET("/contributions", h.GroupContributions)
	}

	// Administration
	admin := api.Group("/admin", middleware.RequireAdmin())
	{
		admin.POST("/projects", h.CreateProject)
		admin.POST("/projects/:id/parts", h.AddPart)
		admin.POST("/projects/:id/start", h.StartProject)
		admin.DELETE("/projects/:id", h.DeleteProject)
		admin.DELETE("/archives/:id", h.DeleteArchive)
	}
}

// buildServices performs the dependency injection: services ← db/cache/events.
func buildServices(cfg config.Config, deps Deps) (*services.SubmissionService, *services.ProjectService, *services.StatsService) {
	clock := deps.Clock
	if clock == nil {
		clock = services.SystemClock{}
	}
	kc := deps.Cache
	if kc == nil {
		kc = cache.NewMemory()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}

	subs := &services.SubmissionService{
		DB:                  deps.DB,
		Cache:               kc,
		Events:              pub,
		Detector:            &services.CompletionDetector{Clock: clock},
		Clock:               clock,
		KeyTTL:              cfg.IdempotencyTTL,
		DuplicateWindow:     cfg.Goals.DuplicateWindow,
		EditDuplicateWindow: cfg.Goals.EditDuplicateWindow,
		AuditKeep:           cfg.Goals.AuditKeep,
	}
	projects := &services.ProjectService{
		DB:           deps.DB,
		Clock:        clock,
		RecentWindow: cfg.Goals.RecentCompletionWindow,
	}
	stats := &services.StatsService{
		DB:           deps.DB,
		Clock:        clock,
		RecentWindow: cfg.Goals.RecentCompletionWindow,
	}
	return subs, projects, stats
}

// health reports liveness and, when a database is wired, whether it answers
// a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database unreachable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// useCORS installs the CORS posture (safe defaults: allow all if none
// configured).
func useCORS(r *gin.Engine, cfg config.CORSConfig) {
	if len(cfg.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
