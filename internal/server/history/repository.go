// Package history persists deployment-run records so operators can inspect
// and clean up applications left mid-pipeline by a failed upload.
package history

import "context"

// Repository stores and queries upload runs.
type Repository interface {
	// Create inserts a new run in its starting state.
	Create(ctx context.Context, run *Run) error

	// Finish records the terminal state of a run, the application id if one
	// was assigned, and the error text for failures.
	Finish(ctx context.Context, id, appID, state, errText string) error

	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}
