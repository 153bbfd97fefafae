package db

import (
	"context"
	"fmt"
	"time"

	"github.com/david/launchpad/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run statuses stored in ingest_runs.
const (
	RunCompleted = "completed"
	RunPartial   = "partial" // some sources failed
	RunFailed    = "failed"  // every source failed
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SourceRecord is one row of ingest_run_sources.
type SourceRecord struct {
	SourceID   string
	Records    int
	Error      string
	DurationMS int64
}

// RunRecord is one row of ingest_runs with its per-source rows.
type RunRecord struct {
	RunID         string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Loaded        int
	Fetched       int
	Persisted     int
	FailedSources int
	Status        string
	Sources       []SourceRecord
}

var opportunityColumns = []string{
	"id", "name", "organization", "category", "type", "country", "deadline",
	"prize", "link", "source", "date_added", "status", "description", "tags",
	"position", "run_id",
}

// opportunityRows converts a snapshot to COPY rows. Position keeps the
// snapshot order.
func opportunityRows(runID uuid.UUID, opps []models.Opportunity) [][]any {
	rows := make([][]any, 0, len(opps))
	for i, o := range opps {
		tags := o.Tags
		if tags == nil {
			tags = []string{}
		}
		rows = append(rows, []any{
			o.ID, o.Name, o.Organization, o.Category, o.Type, o.Country, o.Deadline,
			o.Prize, o.Link, o.Source, o.DateAdded, o.Status, o.Description, tags,
			i, runID,
		})
	}
	return rows
}

// ReplaceSnapshot swaps the mirrored collection for snap in one transaction.
func (s *Store) ReplaceSnapshot(ctx context.Context, runID string, snap models.Snapshot) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "DELETE FROM opportunities"); err != nil {
		return fmt.Errorf("clear opportunities: %w", err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"opportunities"},
		opportunityColumns,
		pgx.CopyFromRows(opportunityRows(id, snap.Opportunities)),
	)
	if err != nil {
		return fmt.Errorf("copy opportunities: %w", err)
	}
	if int(n) != len(snap.Opportunities) {
		return fmt.Errorf("copy opportunities: wrote %d of %d rows", n, len(snap.Opportunities))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecordRun stores a run and its per-source stats.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	id, err := uuid.Parse(run.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.RunID, err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO ingest_runs (run_id, started_at, completed_at, loaded, fetched, persisted, failed_sources, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			loaded = EXCLUDED.loaded,
			fetched = EXCLUDED.fetched,
			persisted = EXCLUDED.persisted,
			failed_sources = EXCLUDED.failed_sources,
			status = EXCLUDED.status`,
		id, run.StartedAt, run.CompletedAt, run.Loaded, run.Fetched, run.Persisted, run.FailedSources, run.Status,
	)
	for _, src := range run.Sources {
		batch.Queue(`
			INSERT INTO ingest_run_sources (run_id, source_id, records, error, duration_ms)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id, source_id) DO UPDATE SET
				records = EXCLUDED.records,
				error = EXCLUDED.error,
				duration_ms = EXCLUDED.duration_ms`,
			id, src.SourceID, src.Records, src.Error, src.DurationMS,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, without source rows.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id::text, started_at, completed_at, loaded, fetched, persisted, failed_sources, status
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &r.Loaded, &r.Fetched, &r.Persisted, &r.FailedSources, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountOpportunities reports how many records the mirror holds.
func (s *Store) CountOpportunities(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities").Scan(&n); err != nil {
		return 0, fmt.Errorf("count opportunities: %w", err)
	}
	return n, nil
}
