package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoscribe/config"
	"github.com/yoockh/yoscribe/internal/api/handlers"
	"github.com/yoockh/yoscribe/internal/api/middleware"
	"github.com/yoockh/yoscribe/internal/api/routes"
	"github.com/yoockh/yoscribe/internal/logger"
	"github.com/yoockh/yoscribe/internal/providers/stt"
	"github.com/yoockh/yoscribe/internal/repositories/auditlog"
	"github.com/yoockh/yoscribe/internal/services"
	"github.com/yoockh/yoscribe/internal/storage"
	"github.com/yoockh/yoscribe/internal/workers"
)

const archiveTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.App, log *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit log
	storeOpts := []auditlog.Option{auditlog.WithLogger(log)}
	if cfg.AuditRedisURL != "" {
		rdb, err := config.NewRedis(ctx, cfg.AuditRedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		storeOpts = append(storeOpts, auditlog.WithPublisher(auditlog.NewRedisPublisher(rdb, cfg.AuditRedisStream, cfg.AuditRedisMaxLen)))
		log.WithField("stream", cfg.AuditRedisStream).Info("audit stream enabled")
	}
	audit, err := auditlog.Open(cfg.AuditDir, storeOpts...)
	if err != nil {
		return err
	}
	defer audit.Close()

	var uploader storage.Uploader
	if cfg.AuditArchiveBucket != "" {
		gcs, err := storage.NewGCSUploader(context.Background(), cfg.AuditArchiveBucket)
		if err != nil {
			return err
		}
		defer gcs.Close()
		uploader = gcs
	}

	artifacts, err := storage.NewArtifactStore(cfg.ArtifactDir)
	if err != nil {
		return err
	}
	sweeper := &workers.ArtifactSweeper{
		Store:    artifacts,
		Interval: cfg.ArtifactSweepInterval,
		MaxAge:   cfg.ArtifactMaxAge,
		Logger:   log,
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	provider, err := newProvider(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	// Services
	authSvc, err := services.NewAuthService(cfg.AllowedPasswords, cfg.AdminPassword, []byte(cfg.AdminSessionSecret), cfg.AdminSessionTTL)
	if err != nil {
		return err
	}
	auditSvc := services.NewAuditService(audit, uploader, log)
	transcribeSvc := services.NewTranscriptionService(authSvc, artifacts, provider, audit, cfg.STTLanguage, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Transcribe:     handlers.NewTranscribeHandler(transcribeSvc, cfg.MaxUploadBytes),
		Auth:           handlers.NewAuthHandler(authSvc, auditSvc),
		Admin:          handlers.NewAdminHandler(auditSvc),
		AuthService:    authSvc,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr(), "provider": cfg.STTProvider}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}

	archiveCtx, cancelArchive := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancelArchive()
	if _, err := auditSvc.Archive(archiveCtx); err != nil {
		log.WithError(err).Error("audit archive failed")
	}
	return nil
}

func newProvider(ctx context.Context, cfg config.App) (stt.Provider, error) {
	switch cfg.STTProvider {
	case config.ProviderGoogle:
		g, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return stt.NewOpenAIWhisper(stt.OpenAIWhisperConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.STTTimeout,
		}), nil
	}
}
