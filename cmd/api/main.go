package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/handler"
	"github.com/academy-hq/academy-api/internal/repository"
	"github.com/academy-hq/academy-api/internal/service"
	"github.com/academy-hq/academy-api/pkg/cache"
	"github.com/academy-hq/academy-api/pkg/config"
	"github.com/academy-hq/academy-api/pkg/database"
	"github.com/academy-hq/academy-api/pkg/jobs"
	"github.com/academy-hq/academy-api/pkg/logger"
	"github.com/academy-hq/academy-api/pkg/storage"
)

// @title Academy API
// @version 1.0.0
// @description Attendance and payment reconciliation backend for a private academy
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs read caches; the API stays functional without it.
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	reconStore := repository.NewReconciliationStore(db)

	zone := billing.Zone(cfg.Billing.UTCOffsetHours)
	clock := billing.ZoneClock(zone)
	engine := billing.NewEngine(cfg.Billing.CycleSessions)

	notifications := service.NewNotificationService(jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, nil, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, nil, logr)

	attendanceSvc := service.NewAttendanceService(
		reconStore,
		enrollmentRepo,
		classRepo,
		attendanceRepo,
		cacheRepo,
		notifications,
		metricsSvc,
		engine,
		clock,
		nil,
		logr,
		service.AttendanceConfig{
			Zone:          zone,
			WindowMargin:  cfg.Billing.WindowMargin,
			DebtSoftBlock: cfg.Billing.DebtSoftBlock,
		},
	)

	paymentSvc := service.NewPaymentService(
		reconStore,
		attendanceRepo,
		enrollmentRepo,
		paymentRepo,
		cacheRepo,
		metricsSvc,
		engine,
		nil,
		logr,
		service.PaymentConfig{},
	)

	handlers := handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Students:    handler.NewStudentHandler(studentSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Classes:     handler.NewClassHandler(classSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Attendance:  handler.NewAttendanceHandler(attendanceSvc),
		Payments:    handler.NewPaymentHandler(paymentSvc),
	}

	if cfg.Dashboard.Enabled {
		dashboardSvc := service.NewDashboardService(dashboardRepo, cacheRepo, clock, logr, service.DashboardConfig{
			Zone:          zone,
			CacheTTL:      cfg.Dashboard.CacheTTL,
			CycleSessions: cfg.Billing.CycleSessions,
		})
		handlers.Dashboard = handler.NewDashboardHandler(dashboardSvc)
	}

	if cfg.Exports.Enabled {
		archive, err := storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export archive", "dir", cfg.Exports.Dir, "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Exports.DownloadTTL)
		exportSvc := service.NewExportService(studentRepo, attendanceRepo, paymentRepo, archive, signer, logr)
		handlers.Exports = handler.NewExportHandler(exportSvc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifications.Start(ctx)
	defer notifications.Stop()

	router := handler.NewRouter(cfg, logr, authSvc, metricsSvc, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
