// Package main runs the StudioBook API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/studiobook/backend/config"
	"github.com/studiobook/backend/internal/appointments"
	"github.com/studiobook/backend/internal/appointmenttypes"
	"github.com/studiobook/backend/internal/auth"
	"github.com/studiobook/backend/internal/guard"
	"github.com/studiobook/backend/internal/locations"
	"github.com/studiobook/backend/internal/memberships"
	"github.com/studiobook/backend/internal/middleware"
	"github.com/studiobook/backend/internal/organizations"
	"github.com/studiobook/backend/internal/users"
	"github.com/studiobook/backend/internal/webhooks"
	"github.com/studiobook/backend/pkg/database"
	"github.com/studiobook/backend/pkg/queue"
	"github.com/studiobook/backend/pkg/redis"
	"github.com/studiobook/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessions := auth.NewSessionService(cfg.Identity.SessionSecret)

	// Repositories
	userRepo := users.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	membershipRepo := memberships.NewRepository(pool)
	typeRepo := appointmenttypes.NewRepository(pool)
	locationRepo := locations.NewRepository(pool)
	appointmentRepo := appointments.NewRepository(pool)
	ledger := webhooks.NewRepository(pool)

	// Authorization chain and rate limiting
	chain := middleware.NewChain(orgRepo, cfg.Identity.AdminRoles)
	rl := middleware.NewRateLimiter(cfg.RateLimit, newLimiterStore(cfg, rdb, logger))

	// Handlers
	userHandler := users.NewHandler(userRepo)
	orgHandler := organizations.NewHandler(orgRepo, logger)
	membershipHandler := memberships.NewHandler(pool, membershipRepo, cfg.Retention.Days, logger)
	typeHandler := appointmenttypes.NewHandler(pool, typeRepo, logger)
	locationHandler := locations.NewHandler(pool, locationRepo, logger)
	appointmentHandler := appointments.NewHandler(pool, appointmentRepo, logger)

	// Webhook ingestion: verify, ledger, enqueue for the worker
	verifier, err := webhooks.NewVerifier(cfg.Webhook.SigningSecret, cfg.Webhook.Tolerance)
	if err != nil {
		logger.Fatal("webhook verifier", zap.Error(err))
	}
	jobQueue := queue.NewQueue(rdb.Client, cfg.Sync.QueueAttempts, logger)
	webhookHandler := webhooks.NewHandler(verifier, ledger, jobQueue, nil, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Session(sessions))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Identity-provider webhooks (signature-verified, no session required)
	router.POST("/webhooks/identity", webhookHandler.Receive)

	// Page-level guards: redirect-based checks for server-rendered views. The
	// API below returns status codes instead.
	pages := guard.New(orgRepo)
	app := router.Group("/app")
	{
		app.GET("/dashboard", pages.RequireTenant(), func(c *gin.Context) {
			response.OK(c, gin.H{"view": "dashboard"})
		})
		app.GET("/schedule", pages.RequireStaff(), func(c *gin.Context) {
			response.OK(c, gin.H{"view": "schedule"})
		})
		app.GET("/account", pages.RequireAuthenticated(), func(c *gin.Context) {
			response.OK(c, gin.H{"view": "account"})
		})
	}

	api := router.Group("/api")
	{
		// Profile: authenticated stage only, no tenant needed
		api.GET("/me", chain.Handlers(middleware.StageAuthenticated, userHandler.GetProfile)...)
		api.PATCH("/me", chain.Handlers(middleware.StageAuthenticated,
			rl.Limit("profile.update", middleware.ClassMutate), userHandler.UpdateProfile)...)

		// Organization
		api.GET("/organization", chain.Handlers(middleware.StageOrgScoped, orgHandler.GetCurrent)...)
		api.POST("/organization/slug-check", chain.Handlers(middleware.StageAuthenticated, orgHandler.CheckSlug)...)
		api.POST("/organization/slug-suggest", chain.Handlers(middleware.StageAuthenticated, orgHandler.SuggestSlug)...)

		// Memberships
		api.GET("/memberships", chain.Handlers(middleware.StageStaff, membershipHandler.List)...)
		api.GET("/memberships/removed", chain.Handlers(middleware.StageAdmin, membershipHandler.ListRemoved)...)
		api.POST("/memberships/:id/remove", chain.Handlers(middleware.StageAdmin,
			rl.Limit("membership.remove", middleware.ClassDelete), membershipHandler.Remove)...)
		api.POST("/memberships/:id/restore", chain.Handlers(middleware.StageAdmin,
			rl.Limit("membership.restore", middleware.ClassMutate), membershipHandler.Restore)...)
		api.DELETE("/memberships/:id", chain.Handlers(middleware.StageAdmin,
			rl.Limit("membership.delete", middleware.ClassDelete), membershipHandler.Delete)...)
		api.PATCH("/memberships/:id/role", chain.Handlers(middleware.StageAdmin,
			rl.Limit("membership.role", middleware.ClassMutate), membershipHandler.AssignRole)...)

		// Appointment types
		api.GET("/appointment-types", chain.Handlers(middleware.StageStaff, typeHandler.List)...)
		api.GET("/appointment-types/:id", chain.Handlers(middleware.StageStaff, typeHandler.Get)...)
		api.POST("/appointment-types", chain.Handlers(middleware.StageAdmin,
			rl.Limit("type.create", middleware.ClassCreate), typeHandler.Create)...)
		api.PUT("/appointment-types/:id", chain.Handlers(middleware.StageAdmin,
			rl.Limit("type.update", middleware.ClassMutate), typeHandler.Update)...)
		api.DELETE("/appointment-types/:id", chain.Handlers(middleware.StageAdmin,
			rl.Limit("type.archive", middleware.ClassDelete), typeHandler.Archive)...)
		api.POST("/appointment-types/:id/restore", chain.Handlers(middleware.StageAdmin,
			rl.Limit("type.restore", middleware.ClassMutate), typeHandler.Restore)...)

		// Locations
		api.GET("/locations", chain.Handlers(middleware.StageStaff, locationHandler.List)...)
		api.POST("/locations", chain.Handlers(middleware.StageAdmin,
			rl.Limit("location.create", middleware.ClassCreate), locationHandler.Create)...)
		api.PUT("/locations/:id", chain.Handlers(middleware.StageAdmin,
			rl.Limit("location.update", middleware.ClassMutate), locationHandler.Update)...)
		api.DELETE("/locations/:id", chain.Handlers(middleware.StageAdmin,
			rl.Limit("location.archive", middleware.ClassDelete), locationHandler.Archive)...)
		api.POST("/locations/:id/restore", chain.Handlers(middleware.StageAdmin,
			rl.Limit("location.restore", middleware.ClassMutate), locationHandler.Restore)...)

		// Appointments
		api.GET("/appointments", chain.Handlers(middleware.StageStaff, appointmentHandler.List)...)
		api.GET("/appointments/:id", chain.Handlers(middleware.StageStaff, appointmentHandler.Get)...)
		api.POST("/appointments", chain.Handlers(middleware.StageStaff,
			rl.Limit("appointment.create", middleware.ClassCreate), appointmentHandler.Create)...)
		api.PUT("/appointments/:id", chain.Handlers(middleware.StageStaff,
			rl.Limit("appointment.update", middleware.ClassMutate), appointmentHandler.Update)...)
		api.POST("/appointments/:id/cancel", chain.Handlers(middleware.StageStaff,
			rl.Limit("appointment.cancel", middleware.ClassMutate), appointmentHandler.Cancel)...)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newLimiterStore picks the rate-limit backing store: Redis for clustered
// deployments, process memory otherwise.
func newLimiterStore(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) limiter.Store {
	if cfg.RateLimit.UseRedis {
		store, err := sredis.NewStoreWithOptions(rdb.Client, limiter.StoreOptions{
			Prefix: "ratelimit",
		})
		if err == nil {
			return store
		}
		logger.Warn("redis rate-limit store unavailable, using memory", zap.Error(err))
	}
	return memory.NewStore()
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
