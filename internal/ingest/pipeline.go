package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/david/launchpad/internal/logger"
	"github.com/david/launchpad/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers        = 4
	DefaultAdapterTimeout = 2 * time.Minute
)

// SnapshotStore persists the collection between runs. Load reports a missing
// snapshot with an error matching fs.ErrNotExist.
type SnapshotStore interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snap models.Snapshot) error
}

// SnapshotMirror receives a copy of every saved snapshot.
type SnapshotMirror interface {
	MirrorSnapshot(ctx context.Context, run *RunResult, snap models.Snapshot) error
}

// MergeOrder decides which side wins when a prior record and a freshly
// fetched one share an id or a name.
type MergeOrder int

const (
	// MergeExistingFirst keeps prior records, so curation and date_added survive.
	MergeExistingFirst MergeOrder = iota
	// MergeNewestFirst lets fresh records replace prior ones.
	MergeNewestFirst
)

func (m MergeOrder) String() string {
	switch m {
	case MergeExistingFirst:
		return "existing-first"
	case MergeNewestFirst:
		return "newest-first"
	default:
		return fmt.Sprintf("MergeOrder(%d)", int(m))
	}
}

// ParseMergeOrder reads "existing-first" or "newest-first".
func ParseMergeOrder(s string) (MergeOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "existing-first":
		return MergeExistingFirst, nil
	case "newest-first":
		return MergeNewestFirst, nil
	default:
		return 0, fmt.Errorf("unknown merge order %q", s)
	}
}

// SourceStat describes one adapter invocation.
type SourceStat struct {
	Name     string
	Records  int
	Err      error
	Duration time.Duration
}

// RunResult summarizes a pipeline run.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Loaded     int // records in the prior snapshot
	Fetched    int // raw records returned by adapters
	Persisted  int // records written to the new snapshot
	Sources    []SourceStat
}

// Failed counts adapters that errored, panicked or timed out.
func (r *RunResult) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline runs every adapter once and replaces the snapshot with the merged,
// deduplicated result.
type Pipeline struct {
	Adapters   []Adapter
	Store      SnapshotStore
	Mirror     SnapshotMirror // optional
	Normalizer *Normalizer
	Log        logger.Logger

	Workers        int
	AdapterTimeout time.Duration
	MergeOrder     MergeOrder
	Now            func() time.Time
}

func NewPipeline(adapters []Adapter, store SnapshotStore, log logger.Logger) *Pipeline {
	return &Pipeline{
		Adapters:       adapters,
		Store:          store,
		Normalizer:     NewNormalizer(),
		Log:            log,
		Workers:        DefaultWorkers,
		AdapterTimeout: DefaultAdapterTimeout,
		MergeOrder:     MergeExistingFirst,
		Now:            time.Now,
	}
}

// Run executes one aggregation run. Only a failure to write the snapshot (or
// cancellation of ctx) is returned; source failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	log := p.logger().With(logger.String("run_id", res.RunID))
	log.Info("run starting",
		logger.Int("sources", len(p.Adapters)),
		logger.String("merge_order", p.MergeOrder.String()),
	)

	// Load existing to preserve curated data
	prior := p.loadExisting(ctx, log)
	res.Loaded = len(prior)
	log.Infof("Loaded %d existing opportunities", len(prior))

	outputs, stats := p.collect(ctx, log)
	res.Sources = stats
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("run cancelled: %w", err)
	}

	norm := p.normalizer()
	var fresh []models.Opportunity
	for _, recs := range outputs {
		res.Fetched += len(recs)
		for _, raw := range recs {
			fresh = append(fresh, norm.Normalize(raw))
		}
	}
	log.Infof("Scraped %d new opportunities total", res.Fetched)

	existing := make([]models.Opportunity, 0, len(prior))
	for _, o := range prior {
		existing = append(existing, norm.Complete(o))
	}

	unique := Dedup(p.merge(existing, fresh))
	kept := unique[:0]
	for _, o := range unique {
		if IsValid(o) {
			kept = append(kept, o)
		}
	}
	SortByDateAdded(kept)
	res.Persisted = len(kept)
	log.Infof("Final: %d unique opportunities", len(kept))

	snap := models.NewSnapshot(p.now().UTC().Format(time.RFC3339), kept)
	if err := p.Store.Save(ctx, snap); err != nil {
		return res, fmt.Errorf("save snapshot: %w", err)
	}
	res.FinishedAt = p.now()
	log.Info("snapshot saved",
		logger.Int("total", snap.Total),
		logger.Int("failed_sources", res.Failed()),
		logger.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)

	if p.Mirror != nil {
		if err := p.Mirror.MirrorSnapshot(ctx, res, snap); err != nil {
			log.Error("snapshot mirror failed", logger.Error(err))
		}
	}

	return res, nil
}

func (p *Pipeline) loadExisting(ctx context.Context, log logger.Logger) []models.Opportunity {
	snap, err := p.Store.Load(ctx)
	switch {
	case err == nil:
		return snap.Opportunities
	case errors.Is(err, fs.ErrNotExist):
		log.Info("no existing snapshot, starting empty")
	default:
		log.Warn("could not load existing data", logger.Error(err))
	}
	return nil
}

// collect runs the adapters on a bounded pool. Outputs are indexed by
// adapter position so the merge order never depends on completion order.
func (p *Pipeline) collect(ctx context.Context, log logger.Logger) ([][]RawOpportunity, []SourceStat) {
	outputs := make([][]RawOpportunity, len(p.Adapters))
	stats := make([]SourceStat, len(p.Adapters))

	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, a := range p.Adapters {
		g.Go(func() error {
			start := time.Now()
			recs, err := p.runAdapter(ctx, a)
			stats[i] = SourceStat{Name: a.Name(), Err: err, Duration: time.Since(start)}
			if err != nil {
				log.Error("adapter failed",
					logger.String("source", a.Name()),
					logger.Error(err),
				)
				return nil
			}
			outputs[i] = recs
			stats[i].Records = len(recs)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return outputs, stats
}

// runAdapter isolates one adapter: panics become errors and an adapter that
// ignores its context is abandoned once the timeout elapses.
func (p *Pipeline) runAdapter(ctx context.Context, a Adapter) ([]RawOpportunity, error) {
	timeout := p.adapterTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		recs []RawOpportunity
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		recs, err := a.Fetch(ctx)
		done <- outcome{recs: recs, err: err}
	}()

	select {
	case o := <-done:
		return o.recs, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("no result after %s: %w", timeout, ctx.Err())
	}
}

func (p *Pipeline) merge(existing, fresh []models.Opportunity) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(existing)+len(fresh))
	if p.MergeOrder == MergeNewestFirst {
		out = append(out, fresh...)
		return append(out, existing...)
	}
	out = append(out, existing...)
	return append(out, fresh...)
}

// SortByDateAdded orders records newest first. Ties keep their relative
// order; unparseable dates go last.
func SortByDateAdded(opps []models.Opportunity) {
	keys := make(map[string]time.Time, len(opps))
	parse := func(s string) (time.Time, bool) {
		if t, ok := keys[s]; ok {
			return t, !t.IsZero()
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			t = time.Time{}
		}
		keys[s] = t
		return t, !t.IsZero()
	}

	sort.SliceStable(opps, func(i, j int) bool {
		ti, okI := parse(opps[i].DateAdded)
		tj, okJ := parse(opps[j].DateAdded)
		switch {
		case okI && okJ:
			return ti.After(tj)
		default:
			return okI && !okJ
		}
	})
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) normalizer() *Normalizer {
	if p.Normalizer != nil {
		return p.Normalizer
	}
	return &Normalizer{Now: p.Now}
}

func (p *Pipeline) logger() logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.NewNop()
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return DefaultWorkers
}

func (p *Pipeline) adapterTimeout() time.Duration {
	if p.AdapterTimeout > 0 {
		return p.AdapterTimeout
	}
	return DefaultAdapterTimeout
}
