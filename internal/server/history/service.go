package history

import (
	"context"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/google/uuid"
)

// Service records run lifecycles. A nil *Service is a no-op, which is how
// the server runs when no history DSN is configured. Recording failures are
// logged but never fail the upload itself.
type Service struct {
	repo   Repository
	logger logging.Logger
}

func NewService(repo Repository, logger logging.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Start records the beginning of a run and returns its id.
func (s *Service) Start(ctx context.Context, packagePath, displayName, packageID, state string) string {
	if s == nil {
		return ""
	}

	run := &Run{
		ID:          uuid.NewString(),
		PackagePath: packagePath,
		DisplayName: displayName,
		PackageID:   packageID,
		State:       state,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		s.logger.Warn(ctx, "recording run start failed", "error", err.Error())
		return ""
	}
	return run.ID
}

// Finish records the terminal state of a run started earlier.
func (s *Service) Finish(ctx context.Context, id, appID, state, errText string) {
	if s == nil || id == "" {
		return
	}
	if err := s.repo.Finish(ctx, id, appID, state, errText); err != nil {
		s.logger.Warn(ctx, "recording run finish failed", "error", err.Error())
	}
}

// ListRecent returns up to limit runs, newest first. A nil Service returns
// an empty list.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	if s == nil {
		return []*Run{}, nil
	}
	return s.repo.ListRecent(ctx, limit)
}
