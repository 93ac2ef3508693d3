// Package uploader drives the end-to-end publish pipeline for a Win32
// package: container parse, payload decrypt, registry records, block-blob
// upload, file commit and publish polling.
//
// One Service call handles one package. Nothing is retried internally;
// every failure propagates with enough context for the operator to decide
// whether to re-run, and the remote application is left in whatever state
// it reached. Concurrent runs for different applications are independent;
// runs for the same application must be serialized by the caller.
package uploader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/dmitrijs2005/intunedeploy/internal/graph"
	"github.com/dmitrijs2005/intunedeploy/internal/intunewin"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/dmitrijs2005/intunedeploy/internal/pollx"
)

// State names one stage of an upload run. Terminal states are StatePublished
// and StateFailed.
type State string

const (
	StateStarted              State = "Started"
	StatePlaceholderCreated   State = "PlaceholderCreated"
	StateURIReady             State = "UriReady"
	StateUploaded             State = "Uploaded"
	StateFileCommitRequested  State = "FileCommitRequested"
	StateFileCommitted        State = "FileCommitted"
	StateVersionFinalized     State = "VersionFinalized"
	StatePublished            State = "Published"
	StateFailed               State = "Failed"
)

// Poll cadence for commit and publish checks. Variables as test seams.
var (
	commitPollInterval  = 10 * time.Second
	publishPollInterval = 10 * time.Second
)

// Registry is the management-service surface the pipeline depends on,
// implemented by *graph.Client.
type Registry interface {
	CreateWin32App(ctx context.Context, meta graph.AppMetadata) (string, error)
	CreateContentVersion(ctx context.Context, appID string) (string, error)
	CreateContentFile(ctx context.Context, appID, versionID, name string, size, sizeEncrypted int64) (*graph.ContentFile, error)
	WaitForStorageURI(ctx context.Context, appID, versionID, fileID string, timeout time.Duration) (*graph.ContentFile, error)
	CommitContentFile(ctx context.Context, appID, versionID, fileID string, enc graph.FileEncryptionInfo) error
	GetContentFile(ctx context.Context, appID, versionID, fileID string) (*graph.ContentFile, error)
	CommitContentVersion(ctx context.Context, appID, versionID string) error
	GetApp(ctx context.Context, appID string) (*graph.MobileApp, error)
}

// BlobUploader streams a local file to a write-destination URI,
// implemented by *azblob.Uploader.
type BlobUploader interface {
	Upload(ctx context.Context, path, sasURI string) error
}

// Config carries the per-stage polling budgets.
type Config struct {
	StorageURITimeout time.Duration
	CommitTimeout     time.Duration
	PublishTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.StorageURITimeout <= 0 {
		c.StorageURITimeout = 300 * time.Second
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 600 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 900 * time.Second
	}
}

// Request describes one package to publish.
type Request struct {
	// Path is the filesystem location of the .intunewin container.
	Path string
	// DisplayName is the friendly name shown in the management console.
	DisplayName string
	// PackageID is the winget package identifier.
	PackageID string
	// Description defaults to DisplayName when empty.
	Description string
	// Publisher defaults to "Unknown" when empty.
	Publisher string
}

type Service struct {
	registry Registry
	blobs    BlobUploader
	logger   logging.Logger
	cfg      Config
}

func NewService(registry Registry, blobs BlobUploader, logger logging.Logger, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{registry: registry, blobs: blobs, logger: logger, cfg: cfg}
}

// Upload runs the whole pipeline and blocks until the application is
// published or a stage fails. The returned application id is non-empty as
// soon as the shell record was created, including on later failure, so the
// caller can inspect or clean up the remote side.
func (s *Service) Upload(ctx context.Context, req Request) (string, error) {
	log := s.logger.With("package", req.PackageID, "displayName", req.DisplayName)
	log.Info(ctx, "starting upload run", "path", req.Path)

	desc, encryptedPath, err := intunewin.Open(req.Path)
	if err != nil {
		return "", err
	}
	defer os.Remove(encryptedPath)

	key, err := desc.Key()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrMalformedContainer, err)
	}
	iv, err := desc.IV()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrMalformedContainer, err)
	}

	decryptedPath := encryptedPath + ".decrypted"
	if err := intunewin.DecryptFile(encryptedPath, decryptedPath, key, iv, desc.UnencryptedSize); err != nil {
		return "", err
	}
	defer os.Remove(decryptedPath)

	encInfo, err := os.Stat(encryptedPath)
	if err != nil {
		return "", fmt.Errorf("stat encrypted payload: %w", err)
	}

	appID, err := s.registry.CreateWin32App(ctx, graph.AppMetadata{
		DisplayName:       req.DisplayName,
		Description:       req.Description,
		Publisher:         req.Publisher,
		InstallerFileName: desc.FileName,
		PackageID:         req.PackageID,
	})
	if err != nil {
		return "", err
	}
	log = log.With("appId", appID)
	log.Info(ctx, "created application shell")

	versionID, err := s.registry.CreateContentVersion(ctx, appID)
	if err != nil {
		return appID, err
	}
	log.Info(ctx, "created content version", "versionId", versionID)

	file, err := s.registry.CreateContentFile(ctx, appID, versionID, desc.FileName, desc.UnencryptedSize, encInfo.Size())
	if err != nil {
		return appID, err
	}
	s.transition(ctx, log, StatePlaceholderCreated)

	file, err = s.registry.WaitForStorageURI(ctx, appID, versionID, file.ID, s.cfg.StorageURITimeout)
	if err != nil {
		return appID, err
	}
	s.transition(ctx, log, StateURIReady)

	if err := s.blobs.Upload(ctx, decryptedPath, file.AzureStorageURI); err != nil {
		return appID, err
	}
	s.transition(ctx, log, StateUploaded)

	err = s.registry.CommitContentFile(ctx, appID, versionID, file.ID, graph.FileEncryptionInfo{
		EncryptionKey:        desc.EncryptionKey,
		InitializationVector: desc.InitializationVec,
		Mac:                  desc.Mac,
		MacKey:               desc.MacKey,
		ProfileIdentifier:    desc.ProfileIdentifier,
		FileDigest:           desc.FileDigest,
		FileDigestAlgorithm:  desc.FileDigestAlgorithm,
	})
	if err != nil {
		return appID, err
	}
	s.transition(ctx, log, StateFileCommitRequested)

	if err := s.waitForFileCommit(ctx, log, appID, versionID, file.ID); err != nil {
		return appID, err
	}
	s.transition(ctx, log, StateFileCommitted)

	if err := s.registry.CommitContentVersion(ctx, appID, versionID); err != nil {
		return appID, err
	}
	s.transition(ctx, log, StateVersionFinalized)

	if err := s.waitForPublished(ctx, log, appID); err != nil {
		return appID, err
	}
	s.transition(ctx, log, StatePublished)

	log.Info(ctx, "upload finished successfully")
	return appID, nil
}

// waitForFileCommit polls the file resource until the service reports it
// committed. An explicit commitFileFailed state fails immediately with
// common.ErrCommitFailed; no automatic retry.
func (s *Service) waitForFileCommit(ctx context.Context, log logging.Logger, appID, versionID, fileID string) error {
	err := pollx.Until(ctx, commitPollInterval, s.cfg.CommitTimeout, func(ctx context.Context) (bool, error) {
		f, err := s.registry.GetContentFile(ctx, appID, versionID, fileID)
		if err != nil {
			return false, err
		}
		log.Info(ctx, "commit poll", "isCommitted", f.IsCommitted, "uploadState", f.UploadState, "size", f.Size)

		if f.UploadState == graph.UploadStateCommitFailed {
			return false, fmt.Errorf("%w: uploadState=%s", common.ErrCommitFailed, f.UploadState)
		}
		return f.IsCommitted, nil
	})
	if err != nil {
		return fmt.Errorf("wait for file commit: %w", err)
	}
	return nil
}

// waitForPublished polls the application until publishingState reports
// published.
func (s *Service) waitForPublished(ctx context.Context, log logging.Logger, appID string) error {
	err := pollx.Until(ctx, publishPollInterval, s.cfg.PublishTimeout, func(ctx context.Context) (bool, error) {
		app, err := s.registry.GetApp(ctx, appID)
		if err != nil {
			return false, err
		}
		log.Info(ctx, "publish poll", "publishingState", app.PublishingState)
		return app.PublishingState == graph.PublishingStatePublished, nil
	})
	if err != nil {
		return fmt.Errorf("wait for publish: %w", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, log logging.Logger, state State) {
	log.Info(ctx, "pipeline state", "state", string(state))
}
