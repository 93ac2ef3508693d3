// Package server initializes and runs the deployment server. It wires the
// Graph client, blob uploader, catalog search and the optional run history
// store, starts the HTTP API, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/azblob"
	"github.com/dmitrijs2005/intunedeploy/internal/graph"
	"github.com/dmitrijs2005/intunedeploy/internal/graph/auth"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/dmitrijs2005/intunedeploy/internal/server/config"
	"github.com/dmitrijs2005/intunedeploy/internal/server/history"
	"github.com/dmitrijs2005/intunedeploy/internal/server/httpapi"
	"github.com/dmitrijs2005/intunedeploy/internal/uploader"
	"github.com/dmitrijs2005/intunedeploy/internal/winget"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler
	db      *sql.DB
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	tokens := auth.NewClientCredentials(auth.Config{
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AuthorityBase: cfg.AuthorityBase,
		Scope:         cfg.Scope,
		HTTPClient:    httpClient,
	})

	registry := graph.NewClient(cfg.GraphBaseURL, httpClient, tokens, logger)
	blobs := azblob.NewUploader(httpClient, logger, int(cfg.BlockSize), cfg.Concurrency)

	uploads := uploader.NewService(registry, blobs, logger, uploader.Config{
		StorageURITimeout: cfg.StorageURITimeout,
		CommitTimeout:     cfg.CommitTimeout,
		PublishTimeout:    cfg.PublishTimeout,
	})

	search := winget.NewSearcher(nil)

	// Run history is optional; without a DSN the server keeps no records.
	var runs *history.Service
	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = history.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		runs = history.NewService(history.NewPostgresRepository(db), logger)
	}

	handler := httpapi.NewHandler(uploads, search, runs, logger).Router()

	return &App{config: cfg, logger: logger, handler: handler, db: db}, nil
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

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "server shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "HTTP API listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

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
			app.logger.Error(ctx, "db close error", "error", err.Error())
		}
	}
}
