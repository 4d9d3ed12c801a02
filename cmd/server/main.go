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
	"github.com/jmoiron/sqlx"

	"batchforge/internal/config"
	"batchforge/internal/email/noop"
	"batchforge/internal/email/ses"
	"batchforge/internal/handler"
	"batchforge/internal/port"
	"batchforge/internal/provider/zhipu"
	"batchforge/internal/repository/postgres"
	"batchforge/internal/router"
	"batchforge/internal/service"
	s3storage "batchforge/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Log.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize provider client
	gateways := zhipu.NewClient(&cfg.Provider)

	// Initialize optional job ledger
	var (
		db      *sqlx.DB
		jobRepo port.JobRepository
	)
	if cfg.DB.Enabled {
		db, err = postgres.NewDB(&cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		jobRepo = postgres.NewJobRepo(db)
		log.Printf("job ledger enabled (%s:%d/%s)", cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	}

	// Initialize optional result storage
	var storage port.ObjectStorage
	if cfg.S3.Enabled {
		storage, err = s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		log.Printf("result export enabled (bucket %s)", cfg.S3.Bucket)
	}

	// Initialize notifier
	var notifier port.Notifier
	switch cfg.Email.Provider {
	case "ses":
		notifier, err = ses.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
	default:
		notifier = noop.NewNoopSender()
	}

	// Initialize service and handlers
	batchSvc := service.NewBatchService(gateways, jobRepo, storage, notifier, &cfg.Batch, &cfg.Provider, &cfg.S3)
	batchH := handler.NewBatchHandler(batchSvc, cfg.Batch.MaxUploadMB)
	healthH := handler.NewHealthHandler(db)

	r := router.Setup(batchH, healthH, router.Options{
		DefaultAPIKey:  cfg.Provider.APIKey,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
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
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
