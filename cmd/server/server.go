package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"anonhost/internal/cache"
	"anonhost/internal/config"
	"anonhost/internal/handlers"
	"anonhost/internal/mailer"
	"anonhost/internal/metrics"
	"anonhost/internal/repository"
	"anonhost/internal/services"
	"anonhost/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

const reapInterval = 5 * time.Minute

func newLogger(cfg config.Config) *slog.Logger {
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newObjectStore(cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageDriver {
	case "s3":
		return storage.NewS3Store(storage.S3Options{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			UseSSL:          cfg.S3UseSSL,
		})
	case "filesystem", "":
		return storage.NewFilesystemStore(cfg.StorageRoot)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func newMailer(cfg config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.MailConfigured() {
		return mailer.NewMailgunMailer(cfg.MailgunAPIURL, cfg.MailgunAPIKey, cfg.MailgunDomain, cfg.MailgunFromEmail, logger)
	}
	logger.Warn("Mailgun not configured, verification codes will be logged")
	return mailer.NewLogMailer(logger)
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := repository.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := repository.Migrate(db, cfg); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// RunMigrate brings the schema up to date and exits.
func RunMigrate(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	if _, err := openDatabase(cfg); err != nil {
		return err
	}
	logger.Info("Schema is up to date")
	return nil
}

func Run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	rdb, err := repository.InitRedis(cfg.RedisURL, cfg.RedisPassword, 0)
	if err != nil {
		logger.Warn("Redis unavailable, short-link cache disabled", "error", err)
		rdb = nil
	}

	objectStore, err := newObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	chunkStore, err := storage.NewFilesystemStore(cfg.ChunkDir)
	if err != nil {
		return fmt.Errorf("failed to initialize chunk store: %w", err)
	}

	store := storage.NewAdapter(objectStore, cache.NewMemo[bool](storage.HealthTTL, nil), cfg.StoragePublicURL, logger, m)

	auditService := services.NewAuditService(db, logger)
	identity := services.NewIdentityResolver(db, logger)
	settingsService := services.NewSettingsService(db)
	mediaService := services.NewMediaService(db, store, logger, auditService)
	statsService := services.NewStatsService(db, cache.NewMemo[services.Stats](services.StatsTTL, nil), logger, m)
	uploadService := services.NewUploadService(store, mediaService, settingsService, auditService, logger)
	chunkService := services.NewChunkedUploadService(chunkStore, uploadService, logger)
	mail := newMailer(cfg, logger)

	svc := handlers.Services{
		Identity:   identity,
		Auth:       services.NewAuthService(db, mail, auditService, logger),
		APIKeys:    services.NewAPIKeyService(db, auditService),
		Settings:   settingsService,
		Profiles:   services.NewProfileService(db, store, logger, auditService),
		Media:      mediaService,
		Upload:     uploadService,
		Chunks:     chunkService,
		Delivery:   services.NewDeliveryService(store, m),
		Shortlinks: services.NewShortlinkService(db, rdb, logger, m, auditService),
		Stats:      statsService,
		Admin:      services.NewAdminService(db, mail, auditService, logger),
		QR:         services.NewQRService(),
		Store:      store,
	}

	limiters := &handlers.RateLimiters{
		Authenticated: services.NewIPRateLimiter(services.AuthenticatedRate, 20, logger),
		Anonymous:     services.NewIPRateLimiter(services.AnonymousRate, 10, logger),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewHandler(cfg, logger, svc, reg)
	r := h.SetupRouter(limiters)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go auditService.Start(workerCtx)
	go identity.Start(workerCtx)
	go mediaService.StartReaper(workerCtx, reapInterval)
	go chunkService.StartReaper(workerCtx, time.Hour, services.ChunkMaxAge)
	go limiters.Authenticated.StartCleanup(workerCtx, 10*time.Minute)
	go limiters.Anonymous.StartCleanup(workerCtx, 10*time.Minute)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	workerCancel()
	if rdb != nil {
		_ = rdb.Close()
	}
	// Give workers a moment to flush.
	time.Sleep(100 * time.Millisecond)

	logger.Info("Server exiting")
	return nil
}
