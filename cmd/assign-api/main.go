package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/assign-override-api/api/swagger"
	"github.com/noah-isme/assign-override-api/internal/app"
	"github.com/noah-isme/assign-override-api/internal/handler"
	"github.com/noah-isme/assign-override-api/internal/middleware"
	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/pkg/config"
	"github.com/noah-isme/assign-override-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/assign-override-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assign-override-api/pkg/middleware/requestid"
)

// @title Assignment Override API
// @version 1.0.0
// @description Assignment date overrides and personal data export and deletion.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := app.Build(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	container.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}
	logr.Info("server stopped")
}

func newRouter(cfg *config.Config, c *app.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics, "/health", "/ready", "/metrics"))

	system := handler.NewMetricsHandler(c.Metrics, c.ReadyChecks())
	r.GET("/health", system.Health)
	r.GET("/ready", system.Ready)
	r.GET("/metrics", system.Prometheus)
	r.GET("/metrics/summary", system.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	overrides := handler.NewOverrideHandler(c.Overrides)
	privacy := handler.NewPrivacyHandler(c.Requests, c.Exports)

	api := r.Group(cfg.APIPrefix)
	api.GET("/privacy/exports/:token", privacy.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(c.Tokens))
	authed.GET("/assignments/:id/overrides/effective/:userId", overrides.Effective)

	manage := authed.Group("")
	manage.Use(middleware.RequireCapability(models.CapabilityManageOverrides))
	manage.GET("/assignments/:id/overrides", overrides.List)
	manage.POST("/assignments/:id/overrides", overrides.Create)
	manage.POST("/assignments/:id/overrides/reorder", overrides.Reorder)
	manage.GET("/overrides/:id", overrides.Get)
	manage.PUT("/overrides/:id", overrides.Update)
	manage.DELETE("/overrides/:id", overrides.Delete)
	manage.POST("/overrides/:id/duplicate", overrides.Duplicate)

	dpo := authed.Group("/privacy")
	dpo.Use(middleware.RequireCapability(models.CapabilityManagePrivacy))
	dpo.POST("/requests", privacy.CreateRequest)
	dpo.GET("/requests/:id", privacy.RequestStatus)
	dpo.GET("/users/:userId/contexts", privacy.UserContexts)
	dpo.GET("/contexts/:contextId/users", privacy.ContextUsers)

	return r
}
