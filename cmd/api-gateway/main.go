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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-fee-ledger/api/swagger"
	"github.com/noah-isme/sma-fee-ledger/internal/app"
	"github.com/noah-isme/sma-fee-ledger/internal/handler"
	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/pkg/config"
	"github.com/noah-isme/sma-fee-ledger/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-fee-ledger/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-fee-ledger/pkg/middleware/requestid"
)

// @title SMA Fee Ledger API
// @version 1.0.0
// @description Fee ledger, late-fee batch, waivers and guardian reminders
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "api-gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer container.Close()

	container.StartReminderQueue(ctx)
	if cfg.Scheduler.Enabled {
		container.Scheduler().Start(ctx)
		logr.Info("finance scheduler enabled", zap.Int("run_hour", cfg.Scheduler.RunHour))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(container.Metrics, "/metrics", "/health"))

	registerRoutes(r, cfg, container)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
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
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func registerRoutes(r *gin.Engine, cfg *config.Config, c *app.Container) {
	metricsHandler := handler.NewMetricsHandler(c.Metrics)
	feeHandler := handler.NewFeeHandler(c.Ledger)
	waiverHandler := handler.NewWaiverHandler(c.WaiverSvc)
	lateFeeHandler := handler.NewLateFeeHandler(c.LateFees)
	reminderHandler := handler.NewReminderHandler(c.Reminders, c.Exports)

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleBursar}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(c.Tokens))

	fees := api.Group("/fees", middleware.RequireRoles(staff...))
	fees.GET("/:id/ledger", feeHandler.Ledger)
	fees.POST("/:id/payments", feeHandler.RecordPayment)
	fees.POST("/:id/installments/:seq/payments", feeHandler.RecordInstallmentPayment)

	waivers := api.Group("/waivers")
	waivers.GET("", middleware.RequireRoles(staff...), waiverHandler.List)
	waivers.POST("", middleware.RequireRoles(staff...), waiverHandler.Create)
	waivers.POST("/:id/approve", middleware.RequireRoles(admins...), waiverHandler.Approve)
	waivers.POST("/:id/reject", middleware.RequireRoles(admins...), waiverHandler.Reject)

	api.POST("/late-fees/run",
		middleware.RequireRoles(admins...),
		middleware.Audit(c.Audit, "late_fee_run_requested", "late_fee_batch"),
		lateFeeHandler.Run,
	)

	reminders := api.Group("/reminders", middleware.RequireRoles(staff...))
	reminders.GET("", reminderHandler.List)
	reminders.GET("/export", reminderHandler.Export)
	reminders.POST("/dispatch",
		middleware.Audit(c.Audit, "reminder_dispatch_requested", "reminder"),
		reminderHandler.Dispatch,
	)

	api.GET("/metrics/summary", middleware.RequireRoles(admins...), metricsHandler.Summary)
}
