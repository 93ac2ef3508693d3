package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intunedeploy/internal/dbx"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, run *Run) error {
	query :=
		`INSERT INTO runs (id, package_path, display_name, package_id, state, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.PackagePath, run.DisplayName, run.PackageID, run.State, run.StartedAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Finish records the terminal state of a run. The check and the update run
// in one transaction so a run that already reached a terminal state is
// never overwritten by a late or duplicate Finish. Finishing an unknown
// run id is a no-op.
func (r *PostgresRepository) Finish(ctx context.Context, id, appID, state, errText string) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var finished bool
		err := tx.QueryRowContext(ctx,
			`SELECT finished_at IS NOT NULL FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&finished)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if finished {
			return nil
		}

		query :=
			`UPDATE runs
			 SET app_id = $2, state = $3, error = $4, finished_at = now()
			 WHERE id = $1
			 `

		_, err = tx.ExecContext(ctx, query, id, appID, state, errText)
		return err
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	query :=
		`SELECT id, package_path, display_name, package_id, app_id, state, error, started_at, finished_at
		 FROM runs
		 ORDER BY started_at DESC
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.ID, &run.PackagePath, &run.DisplayName, &run.PackageID,
			&run.AppID, &run.State, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return runs, nil
}
