// Package server initializes and runs the upload service: it builds the
// object storage gateway, opens the file-record database when configured,
// and hosts the HTTP API until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/terravista/terraplan/internal/logging"
	"github.com/terravista/terraplan/internal/server/blobstore"
	"github.com/terravista/terraplan/internal/server/config"
	"github.com/terravista/terraplan/internal/server/httpapi"
	"github.com/terravista/terraplan/internal/server/shared/db"
	"github.com/terravista/terraplan/internal/server/uploads"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	uploads *uploads.Service
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	gateway, err := blobstore.New(ctx, blobstore.Config{
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway init error: %w", err)
	}

	// The database is optional: without it the server still runs the full
	// upload pipeline and only skips file-record registration.
	var database *sql.DB
	if cfg.DatabaseDSN != "" {
		database, err = db.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	}

	us := uploads.NewService(gateway, database, cfg, logger)

	return &App{config: cfg, logger: logger, db: database, uploads: us}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.uploads, app.config.APIKey, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
}
