package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "ecofin/api/swagger" // swagger docs
	"ecofin/internal/handler"
	"ecofin/internal/logger"
	"ecofin/internal/middleware"
	"ecofin/internal/scheduler"
	"ecofin/internal/service"
	"ecofin/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	go a.hub.Run(ctx)

	var syncJob *scheduler.Interval
	if a.cfg.Billing.SyncEnabled {
		syncJob = scheduler.NewInterval(scheduler.Config{
			Name:     "payment-sync",
			Interval: a.cfg.Billing.SyncInterval,
		}, func(ctx context.Context) error {
			_, err := a.paymentService.SyncPayments(ctx, service.SystemActor)
			return err
		}, a.log)
		if err := syncJob.Start(ctx); err != nil {
			return fmt.Errorf("start payment sync scheduler: %w", err)
		}
	}

	var alertJob *scheduler.Interval
	if a.cfg.Alerts.Enabled {
		alertJob = scheduler.NewInterval(scheduler.Config{
			Name:     "appointment-alerts",
			Interval: a.cfg.Alerts.Interval,
		}, func(ctx context.Context) error {
			_, err := a.alertService.SendAppointmentAlerts(ctx, service.SystemActor, service.AlertOptions{DaysAhead: a.cfg.Alerts.DaysAhead})
			return err
		}, a.log)
		if err := alertJob.Start(ctx); err != nil {
			return fmt.Errorf("start appointment alert scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:         ":" + a.cfg.App.Port,
		Handler:      newRouter(a),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if syncJob != nil {
		if err := syncJob.Stop(shutdownCtx); err != nil {
			a.log.Warn("Payment sync did not stop cleanly", zap.Error(err))
		}
	}
	if alertJob != nil {
		if err := alertJob.Stop(shutdownCtx); err != nil {
			a.log.Warn("Appointment alerts did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newRouter sets up middleware, ops endpoints and the /api routes.
func newRouter(a *app) *gin.Engine {
	if a.cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.Recovery(a.log), logger.GinMiddleware(a.log), a.metrics.GinMiddleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = a.cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", handler.IdempotencyHeader, "X-Request-ID"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	auth := middleware.NewAuth(a.cfg.JWT.Secret, a.cfg.App.IsProduction())

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "websocket_clients": a.hub.ClientCount()})
	})
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(a.hub, c, auth.Secret())
	})

	api := router.Group("/api")
	for _, h := range []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewUserHandler(a.userService, auth),
		handler.NewClientHandler(a.clientService, auth),
		handler.NewWorkerHandler(a.workerService, a.documentService, a.alertService, auth, a.cfg.HTTP.MaxUploadBytes, a.cfg.Alerts.DaysAhead),
		handler.NewSettingsHandler(a.settingsService, auth),
		handler.NewImportHandler(a.importService, auth, a.cfg.HTTP.MaxUploadBytes),
		handler.NewRecordHandler(a.recordService, auth),
		handler.NewReportHandler(a.reportService, auth),
		handler.NewInvoiceHandler(a.invoiceService, a.revenueService, auth),
		handler.NewPaymentHandler(a.paymentService, auth),
		handler.NewTaxHandler(a.taxService, auth),
		handler.NewAuditHandler(a.auditService, auth),
	} {
		h.RegisterRoutes(api)
	}
	return router
}
