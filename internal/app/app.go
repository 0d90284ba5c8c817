package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	_ "korner-support-service/docs"
	"korner-support-service/internal/cache"
	"korner-support-service/internal/config"
	"korner-support-service/internal/database"
	"korner-support-service/internal/handlers"
	"korner-support-service/internal/lock"
	"korner-support-service/internal/metrics"
	"korner-support-service/internal/middleware"
	"korner-support-service/internal/redisdb"
	"korner-support-service/internal/repositories"
	"korner-support-service/internal/routes"
	"korner-support-service/internal/services"
	"korner-support-service/internal/storage"
	"korner-support-service/internal/workers"
)

const (
	localCacheTTL   = time.Minute
	telegramTimeout = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

// deps are shared by the HTTP server and the workers process.
type deps struct {
	cfg      *config.Config
	db       *sql.DB
	redis    *redis.Client
	asynqOpt asynq.RedisClientOpt
	registry *prometheus.Registry

	kycRepo    *repositories.KYCRepository
	reportRepo *repositories.ReportRepository
	ticketRepo *repositories.SupportTicketRepository
	cache      cache.Cache
	alerts     services.TicketAlertService
}

func newDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redisdb.ParseRedisURL(cfg.Redis.URL, cfg.Redis.SkipTLSVerify)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb, err := redisdb.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	alertMetrics, err := metrics.NewAlertMetrics(registry)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, err
	}

	ticketRepo := repositories.NewSupportTicketRepository(db)
	telegram := services.NewTelegramService(cfg.Telegram, &http.Client{Timeout: telegramTimeout})
	// вне прода алерты не отправляются
	alerts := services.NewTicketAlertService(ticketRepo, telegram, alertMetrics, services.TicketAlertOptions{
		Enabled:     cfg.IsProduction(),
		ChatID:      cfg.Telegram.SupportChatID,
		MaxAttempts: cfg.Workers.AlertMaxAttempts,
		Pause:       cfg.Workers.AlertRetryPause,
	})

	return &deps{
		cfg:        cfg,
		db:         db,
		redis:      rdb,
		asynqOpt:   workers.RedisConnOpt(redisOpts),
		registry:   registry,
		kycRepo:    repositories.NewKYCRepository(db),
		reportRepo: repositories.NewReportRepository(db),
		ticketRepo: ticketRepo,
		cache:      cache.NewRedisCache(rdb, localCacheTTL),
		alerts:     alerts,
	}, nil
}

func (d *deps) Close() {
	if err := d.redis.Close(); err != nil {
		logrus.Warnf("[app][close] redis: %v", err)
	}
	if err := d.db.Close(); err != nil {
		logrus.Warnf("[app][close] db: %v", err)
	}
}

// RunServer serves the HTTP API until ctx is cancelled. With withWorkers the
// asynq server and scheduler run in the same process.
func RunServer(ctx context.Context, cfg *config.Config, withWorkers bool) error {
	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	presigner, err := storage.NewS3Presigner(cfg.S3)
	if err != nil {
		return err
	}
	queue := asynq.NewClient(d.asynqOpt)
	defer queue.Close()

	// === Services ===
	policy := services.NewKYCPolicyService(d.kycRepo, cfg.KYC.MaxAttempts)
	kycService := services.NewKYCService(d.kycRepo, policy, presigner, lock.NewManager(d.redis), cfg.KYC)
	kycAdminService := services.NewKYCAdminService(d.kycRepo, presigner)
	reportService := services.NewReportService(d.reportRepo, d.cache, cfg.Cache.CatalogTTL)
	supportService := services.NewSupportService(d.ticketRepo, d.cache, workers.NewDispatcher(queue), cfg.Cache.CatalogTTL)

	// === Handlers ===
	prod := cfg.IsProduction()
	h := routes.Handlers{
		KYC:      handlers.NewKYCHandler(kycService, prod),
		KYCAdmin: handlers.NewKYCAdminHandler(kycAdminService, prod),
		Reports:  handlers.NewReportHandler(reportService, prod),
		Support:  handlers.NewSupportHandler(supportService, prod),
	}

	httpMetrics, err := middleware.NewHTTPMetrics(d.registry)
	if err != nil {
		return err
	}

	// === Gin ===
	if prod {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(httpMetrics.Handler())
	routes.SetupRoutes(router, cfg, h, middleware.NewAuth(cfg.JWT), d.registry)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logrus.Infof("[app] HTTP server listening on %s (env=%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var stopWorkers func()
	if withWorkers {
		stopWorkers, err = startWorkers(d)
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	logrus.Info("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logrus.Errorf("[app] http shutdown: %v", shutdownErr)
	}
	if stopWorkers != nil {
		stopWorkers()
	}
	return err
}

// RunWorkers processes alert tasks and runs the re-delivery scheduler.
// Metrics are exposed on cfg.Workers.MetricsAddr.
func RunWorkers(ctx context.Context, cfg *config.Config) error {
	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	stop, err := startWorkers(d)
	if err != nil {
		return err
	}
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Workers.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("[workers][metrics] %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}

func startWorkers(d *deps) (func(), error) {
	srv := workers.NewServer(d.asynqOpt, d.cfg.Workers.Concurrency)
	if err := srv.Start(workers.NewHandlers(d.alerts).Mux()); err != nil {
		return nil, fmt.Errorf("start asynq server: %w", err)
	}

	scheduler, err := workers.NewScheduler(d.asynqOpt, d.cfg.Workers.AlertRetrySpec)
	if err != nil {
		srv.Shutdown()
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	logrus.Infof("[workers] started concurrency=%d", d.cfg.Workers.Concurrency)

	return func() {
		scheduler.Shutdown()
		srv.Shutdown()
	}, nil
}

// Migrate applies or rolls back the embedded schema migrations.
func Migrate(ctx context.Context, cfg *config.Config, down bool) (int, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	direction := migrate.Up
	if down {
		direction = migrate.Down
	}
	return database.Migrate(db, direction)
}
