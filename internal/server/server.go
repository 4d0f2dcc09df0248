// Package server contains the HTTP handlers for the feed API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"novafeed/internal/cache"
	"novafeed/internal/config"
	"novafeed/internal/featureflags"
	"novafeed/internal/feed"
	"novafeed/internal/generator"
	"novafeed/internal/middleware"
	"novafeed/internal/observability"
	"novafeed/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("novafeed")
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	redis          *redis.Client
	generator      generator.Generator
	sessions       *session.Registry
	featureFlags   *featureflags.Manager
	promMiddleware *fiberprometheus.FiberPrometheus
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("generator setup failed: %w", err)
	}
	return NewServerWithDeps(cfg, gen, cache.InitRedis(cfg.RedisURL)), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case rate limits fail open.
func NewServerWithDeps(cfg *config.Config, gen generator.Generator, redisClient *redis.Client) *Server {
	s := &Server{
		config:         cfg,
		redis:          redisClient,
		generator:      gen,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		promMiddleware: httpMetrics(),
	}
	s.sessions = session.NewRegistry(s.newSession, session.Config{
		IdleTTL: cfg.SessionIdleTTL(),
		Limit:   cfg.SessionLimit,
	})
	return s
}

// NewGenerator picks the content provider named by cfg.Generator.
func NewGenerator(cfg *config.Config) (generator.Generator, error) {
	switch cfg.Generator {
	case config.GeneratorOpenAI:
		gen, err := generator.NewOpenAIGenerator(generator.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.GeneratorSynthetic, "":
		return generator.NewSynthetic(cfg.SyntheticSeed), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}

func (s *Server) feedRequest() generator.Request {
	req := generator.DefaultRequest()
	if s.config.FeedUserCount > 0 {
		req.Users = s.config.FeedUserCount
	}
	if s.config.FeedPostCount >= 0 {
		req.Posts = s.config.FeedPostCount
	}
	return req
}

func (s *Server) newSession(id string) *feed.Session {
	return feed.NewSession(id, s.generator,
		feed.WithRequest(s.feedRequest()),
		feed.WithReconciledLikes(s.featureFlags.Enabled(featureflags.ReconcileLikeCounts, id)),
		feed.WithLoadTimeout(s.config.GeneratorTimeout()),
	)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders: "ETag, X-Trace-ID",
		MaxAge:        86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/feature-flags", s.GetFeatureFlags)

	bootstrapLimit := s.bootstrapLimiter()

	sessions := api.Group("/sessions")
	sessions.Post("/", bootstrapLimit, s.CreateSession)

	one := sessions.Group("/:id", s.withSession)
	one.Get("/", s.GetSession)
	one.Delete("/", s.DeleteSession)
	one.Post("/bootstrap", bootstrapLimit, s.Bootstrap)
	one.Put("/selection", s.SelectAuthor)

	one.Get("/users", s.GetUsers)
	one.Get("/users/:userId", s.GetUser)

	one.Get("/posts", s.GetPosts)
	one.Post("/posts", s.CreatePost)
	one.Post("/posts/:postId/like", s.ToggleLike)
	one.Post("/posts/:postId/comments", s.AddComment)
}

// bootstrapLimiter caps generator calls per client IP. Each session creation
// or retry costs one provider request.
func (s *Server) bootstrapLimiter() fiber.Handler {
	if s.config.BootstrapRateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.redis, s.config.BootstrapRateLimit, s.config.BootstrapRateWindow(), "bootstrap")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional; only a
// configured but unreachable Redis makes the service unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"redis":     redisStatus,
			"generator": s.generator.Name(),
		},
		"sessions": s.sessions.Len(),
		"time":     time.Now(),
	})
}

// GetFeatureFlags returns configured flags and their state for ?session=.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	subject := c.Query("session")
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(subject),
	})
}

// Shutdown stops background work and closes Redis.
func (s *Server) Shutdown(_ context.Context) error {
	s.sessions.Stop()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			observability.Logger.Warn("redis close failed", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}
