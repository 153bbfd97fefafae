package db

import (
	"context"

	"github.com/david/launchpad/internal/ingest"
	"github.com/david/launchpad/internal/models"
)

// Mirror replicates saved snapshots and run history into Postgres.
type Mirror struct {
	Store *Store
}

func NewMirror(store *Store) *Mirror {
	return &Mirror{Store: store}
}

// MirrorSnapshot implements ingest.SnapshotMirror. The run row is written
// even when the snapshot copy fails.
func (m *Mirror) MirrorSnapshot(ctx context.Context, run *ingest.RunResult, snap models.Snapshot) error {
	copyErr := m.Store.ReplaceSnapshot(ctx, run.RunID, snap)
	if err := m.Store.RecordRun(ctx, RunRecordFromResult(run)); err != nil {
		if copyErr != nil {
			return copyErr
		}
		return err
	}
	return copyErr
}

// RunRecordFromResult flattens a pipeline result into storage rows.
func RunRecordFromResult(res *ingest.RunResult) RunRecord {
	rec := RunRecord{
		RunID:         res.RunID,
		StartedAt:     res.StartedAt,
		Loaded:        res.Loaded,
		Fetched:       res.Fetched,
		Persisted:     res.Persisted,
		FailedSources: res.Failed(),
		Status:        RunCompleted,
		Sources:       make([]SourceRecord, 0, len(res.Sources)),
	}
	if !res.FinishedAt.IsZero() {
		finished := res.FinishedAt
		rec.CompletedAt = &finished
	}

	switch {
	case len(res.Sources) > 0 && rec.FailedSources == len(res.Sources):
		rec.Status = RunFailed
	case rec.FailedSources > 0:
		rec.Status = RunPartial
	}

	for _, s := range res.Sources {
		src := SourceRecord{
			SourceID:   s.Name,
			Records:    s.Records,
			DurationMS: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			src.Error = s.Err.Error()
		}
		rec.Sources = append(rec.Sources, src)
	}
	return rec
}
