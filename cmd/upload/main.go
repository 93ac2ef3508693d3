// Command upload publishes a single .intunewin package and blocks until the
// application is published. Credentials come from the same configuration
// sources as the server (environment, JSON file, flags).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/azblob"
	"github.com/dmitrijs2005/intunedeploy/internal/flagx"
	"github.com/dmitrijs2005/intunedeploy/internal/graph"
	"github.com/dmitrijs2005/intunedeploy/internal/graph/auth"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/dmitrijs2005/intunedeploy/internal/server/config"
	"github.com/dmitrijs2005/intunedeploy/internal/uploader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()

	args := flagx.FilterArgs(os.Args[1:], []string{"-f", "-n", "-p", "-desc", "-pub"})

	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	path := fs.String("f", "", "path to the .intunewin package")
	displayName := fs.String("n", "", "display name for the application")
	packageID := fs.String("p", "", "winget package id")
	description := fs.String("desc", "", "application description")
	publisher := fs.String("pub", "", "application publisher")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" || *displayName == "" || *packageID == "" {
		return fmt.Errorf("flags -f, -n and -p are required")
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
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

	appID, err := uploads.Upload(context.Background(), uploader.Request{
		Path:        *path,
		DisplayName: *displayName,
		PackageID:   *packageID,
		Description: *description,
		Publisher:   *publisher,
	})
	if err != nil {
		if appID != "" {
			fmt.Fprintf(os.Stderr, "application shell was created: %s\n", appID)
		}
		return err
	}

	fmt.Println(appID)
	return nil
}
