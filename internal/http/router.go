// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/flashcard-market/docs" // swagger doc registration
	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/config"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/http/handlers"
	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/repo"
	"github.com/tbourn/flashcard-market/internal/services"
)

// accessStoreShim adapts the repository free functions to the
// services.AccessStore interface expected by the access engine.
type accessStoreShim struct{}

// GetSet proxies repo.GetSet without preloads.
func (accessStoreShim) GetSet(ctx context.Context, db *gorm.DB, id uint) (*domain.Set, error) {
	return repo.GetSet(ctx, db, id)
}

// GetUser proxies repo.GetUser.
func (accessStoreShim) GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// HasPurchase proxies repo.HasPurchase.
func (accessStoreShim) HasPurchase(ctx context.Context, db *gorm.DB, userID, setID uint) (bool, error) {
	return repo.HasPurchase(ctx, db, userID, setID)
}

// HasSubscription proxies repo.HasSubscription.
func (accessStoreShim) HasSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (bool, error) {
	return repo.HasSubscription(ctx, db, userID, educatorID)
}

// App holds the services behind the API. It is built once at startup and
// shared by every request.
type App struct {
	DB            *gorm.DB
	Tokens        *services.TokenManager
	Users         *services.UserService
	Sets          *services.SetService
	Cards         *services.CardService
	Categories    *services.CategoryService
	Tags          *services.TagService
	Likes         *services.LikeService
	Purchases     *services.PurchaseService
	Subscriptions *services.SubscriptionService
	History       *services.HistoryService
}

// NewApp builds every service over db and the shared cache c.
func NewApp(db *gorm.DB, c *cache.Cache, cfg config.Config) (*App, error) {
	tokens, err := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.JWTIssuer)
	if err != nil {
		return nil, err
	}
	listings := services.NewListings(services.Limits{Default: cfg.Page.DefaultLimit, Max: cfg.Page.MaxLimit})
	access := services.NewSetAccessService(db, accessStoreShim{})

	sets := services.NewSetService(db, c, access, listings)
	purchases := services.NewPurchaseService(db, c, listings)
	if cfg.IdempotencyTTL > 0 {
		purchases.IdempotencyTTL = cfg.IdempotencyTTL
	}

	return &App{
		DB:            db,
		Tokens:        tokens,
		Users:         services.NewUserService(db, tokens, cfg.Auth.AdminEmail),
		Sets:          sets,
		Cards:         services.NewCardService(db, c),
		Categories:    services.NewCategoryService(db, c, listings),
		Tags:          services.NewTagService(db, c, listings),
		Likes:         services.NewLikeService(db, c, listings),
		Purchases:     purchases,
		Subscriptions: services.NewSubscriptionService(db, c, listings),
		History:       sets.History,
	}, nil
}

// verifyToken resolves a bearer token to the caller identity.
func (a *App) verifyToken(raw string) (middleware.Identity, error) {
	claims, err := a.Tokens.Parse(raw)
	if err != nil {
		return middleware.Identity{}, err
	}
	uid, err := claims.UserID()
	if err != nil {
		return middleware.Identity{}, err
	}
	return middleware.Identity{UserID: uid, Role: claims.Role}, nil
}

// replayLookup answers the idempotency validator from the purchase store.
func (a *App) replayLookup(ctx context.Context, userID, setID uint, key string, _ time.Time) (bool, error) {
	return a.Purchases.HasReplay(ctx, userID, setID, key)
}

func (a *App) handlers() *handlers.Handlers {
	return handlers.New(handlers.Services{
		Sets:          a.Sets,
		Cards:         a.Cards,
		Categories:    a.Categories,
		Tags:          a.Tags,
		Likes:         a.Likes,
		Purchases:     a.Purchases,
		Subscriptions: a.Subscriptions,
		History:       a.History,
		Users:         a.Users,
	})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. Auth: optional caller identity from the bearer token
//  8. Idempotency validator (needs the caller for its replay lookup)
//  9. Rate limiter (per user/IP, bypass on replay; stricter per-IP on /auth)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, app *App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-API-Key"},
		MaskQueryParams: []string{"email"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit and response compression
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Liveness/readiness stay outside auth and rate limiting
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(app.DB))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// 7) Caller identity
	r.Use(middleware.Auth(app.verifyToken))

	// 8) Idempotency validation (before rate limiting)
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Routes: []string{joinPath(apiBase, "/sets/:id/purchase")},
		},
		app.replayLookup,
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		Scope: "api",
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
		Key:   middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", handlers.HeaderIdempotentReplay}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
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
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Authenticated responses depend on the caller and must not be shared.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:           cfg.Security.EnableHSTS,
		HSTSMaxAge:           cfg.Security.HSTSMaxAge,
		NoStoreAuthenticated: true,
		EnablePolicy:         true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	authLimit := middleware.NewRateLimiter(middleware.RateLimitOptions{
		Scope: "auth",
		RPS:   cfg.AuthRateRPS,
		Burst: cfg.AuthRateBurst,
		Key:   middleware.KeyByIP(),
	})
	mountAPI(groupWithPrefix(r, apiBase), app.handlers(), authLimit.Handler())
}

// mountAPI registers the versioned endpoints. Reads that have an anonymous
// behavior stay public; everything else requires a caller.
// Credential endpoints get their own per-IP limiter on top of the global one.
func mountAPI(api *gin.RouterGroup, h *handlers.Handlers, authLimit gin.HandlerFunc) {
	// Accounts
	auth := api.Group("/auth", authLimit)
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)

	// Public reads
	api.GET("/sets", h.ListSets)
	api.GET("/sets/:id", h.GetSet)
	api.GET("/sets/:id/access", h.GetSetAccess)
	api.GET("/sets/:id/content", h.GetSetContent)
	api.GET("/educators/:id/sets", h.ListEducatorSets)
	api.GET("/categories", h.ListCategories)
	api.GET("/categories/:id", h.GetCategory)
	api.GET("/tags", h.ListTags)

	authed := api.Group("", middleware.RequireUser())
	{
		authed.GET("/users/me", h.Me)
		authed.PUT("/users/:id/role", h.SetRole)

		// Authoring
		authed.POST("/sets", h.CreateSet)
		authed.PUT("/sets/:id", h.UpdateSet)
		authed.DELETE("/sets/:id", h.DeleteSet)
		authed.PUT("/sets/:id/tags", h.SetSetTags)
		authed.POST("/sets/:id/cards", h.AddCard)
		authed.PUT("/cards/:id", h.UpdateCard)
		authed.DELETE("/cards/:id", h.DeleteCard)

		// Engagement
		authed.POST("/sets/:id/like", h.LikeSet)
		authed.DELETE("/sets/:id/like", h.UnlikeSet)
		authed.POST("/sets/:id/purchase", h.PurchaseSet)
		authed.POST("/educators/:id/subscription", h.Subscribe)
		authed.DELETE("/educators/:id/subscription", h.Unsubscribe)

		// Caller's own lists
		authed.GET("/me/purchases", h.ListMyPurchases)
		authed.GET("/me/subscriptions", h.ListMySubscriptions)
		authed.GET("/me/likes", h.ListMyLikes)
		authed.GET("/me/history", h.ListMyHistory)

		// Catalog curation
		authed.POST("/categories", h.CreateCategory)
		authed.PUT("/categories/:id", h.RenameCategory)
		authed.DELETE("/categories/:id", h.DeleteCategory)
		authed.POST("/tags", h.CreateTag)
	}
}

// readiness reports 503 while the database cannot be reached.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
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

// joinPath prefixes p with base the way groupWithPrefix mounts routes.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return strings.TrimRight(base, "/") + p
}
