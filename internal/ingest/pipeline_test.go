package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/david/launchpad/internal/logger"
	"github.com/david/launchpad/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// stubAdapter returns fixed records after an optional delay.
type stubAdapter struct {
	name  string
	recs  []RawOpportunity
	err   error
	delay time.Duration
	panic bool
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panic {
		panic("selector exploded")
	}
	return s.recs, s.err
}

// stuckAdapter ignores its context until released.
type stuckAdapter struct {
	release chan struct{}
}

func (s *stuckAdapter) Name() string { return "stuck" }

func (s *stuckAdapter) Fetch(context.Context) ([]RawOpportunity, error) {
	<-s.release
	return nil, nil
}

type memStore struct {
	mu      sync.Mutex
	prior   *models.Snapshot
	loadErr error
	saveErr error
	saved   []models.Snapshot
}

func (m *memStore) Load(context.Context) (models.Snapshot, error) {
	if m.loadErr != nil {
		return models.Snapshot{}, m.loadErr
	}
	if m.prior == nil {
		return models.Snapshot{}, fmt.Errorf("open snapshot: %w", fs.ErrNotExist)
	}
	return *m.prior, nil
}

func (m *memStore) Save(_ context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memStore) last(t *testing.T) models.Snapshot {
	t.Helper()
	require.NotEmpty(t, m.saved, "nothing saved")
	return m.saved[len(m.saved)-1]
}

type recordingMirror struct {
	calls int
	err   error
}

func (r *recordingMirror) MirrorSnapshot(context.Context, *RunResult, models.Snapshot) error {
	r.calls++
	return r.err
}

func newTestPipeline(store SnapshotStore, adapters ...Adapter) (*Pipeline, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	clock := func() time.Time { return testClock }
	p := NewPipeline(adapters, store, logger.FromZap(zap.New(core)))
	p.Now = clock
	p.Normalizer = &Normalizer{Now: clock}
	p.AdapterTimeout = 2 * time.Second
	return p, logs
}

func names(opps []models.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.Name
	}
	return out
}

func TestPipeline_PartialFailure(t *testing.T) {
	store := &memStore{}
	p, logs := newTestPipeline(store,
		&stubAdapter{name: "alpha", recs: []RawOpportunity{{Name: "Alpha Hackathon"}, {Name: "Alpha Prize"}}},
		&stubAdapter{name: "beta", err: errors.New("connection refused")},
		&stubAdapter{name: "gamma", recs: []RawOpportunity{{Name: "Gamma Fellowship"}}},
	)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Persisted)
	assert.Equal(t, 1, res.Failed())
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "beta", res.Sources[1].Name)
	assert.Error(t, res.Sources[1].Err)
	assert.Equal(t, 2, res.Sources[0].Records)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel)
	require.Equal(t, 1, errs.Len())
	entry := errs.All()[0]
	assert.Equal(t, "adapter failed", entry.Message)
	assert.Equal(t, "beta", entry.ContextMap()["source"])

	snap := store.last(t)
	assert.Equal(t, 3, snap.Total)
	assert.ElementsMatch(t, []string{"Alpha Hackathon", "Alpha Prize", "Gamma Fellowship"}, names(snap.Opportunities))
}

func TestPipeline_PanicAndTimeoutAreSourceFailures(t *testing.T) {
	stuck := &stuckAdapter{release: make(chan struct{})}
	defer close(stuck.release)

	store := &memStore{}
	p, _ := newTestPipeline(store,
		&stubAdapter{name: "ok", recs: []RawOpportunity{{Name: "Working Source Prize"}}},
		&stubAdapter{name: "boom", panic: true},
		stuck,
	)
	p.AdapterTimeout = 50 * time.Millisecond

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed())
	assert.ErrorContains(t, res.Sources[1].Err, "panic")
	assert.ErrorContains(t, res.Sources[2].Err, "no result after")
	assert.ErrorIs(t, res.Sources[2].Err, context.DeadlineExceeded)
	assert.Equal(t, []string{"Working Source Prize"}, names(store.last(t).Opportunities))
}

func TestPipeline_MergeOrder(t *testing.T) {
	prior := models.NewSnapshot("2025-02-01T00:00:00Z", []models.Opportunity{{
		ID:           "acme0001",
		Name:         "Acme Grant",
		Organization: "Acme Foundation",
		Description:  "Hand curated description",
		DateAdded:    "2025-01-15T00:00:00Z",
		Type:         "grant",
		Country:      "Global",
		Prize:        "$10,000",
		Status:       "open",
		Tags:         []string{"curated"},
	}})
	fresh := []RawOpportunity{{Name: "Acme Grant", Organization: "ACME", Description: "Scraped text"}}

	t.Run("existing first keeps curated record", func(t *testing.T) {
		store := &memStore{prior: &prior}
		p, _ := newTestPipeline(store, &stubAdapter{name: "feed", recs: fresh})

		res, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Loaded)

		opps := store.last(t).Opportunities
		require.Len(t, opps, 1)
		assert.Equal(t, "acme0001", opps[0].ID)
		assert.Equal(t, "Hand curated description", opps[0].Description)
		assert.Equal(t, "2025-01-15T00:00:00Z", opps[0].DateAdded)
	})

	t.Run("newest first replaces it", func(t *testing.T) {
		store := &memStore{prior: &prior}
		p, _ := newTestPipeline(store, &stubAdapter{name: "feed", recs: fresh})
		p.MergeOrder = MergeNewestFirst

		_, err := p.Run(context.Background())
		require.NoError(t, err)

		opps := store.last(t).Opportunities
		require.Len(t, opps, 1)
		assert.Equal(t, MakeID("Acme Grant", "ACME"), opps[0].ID)
		assert.Equal(t, "Scraped text", opps[0].Description)
		assert.Equal(t, "2025-03-01T12:00:00Z", opps[0].DateAdded)
	})
}

func TestPipeline_ExistingSurvivesUnrelatedFetch(t *testing.T) {
	prior := models.NewSnapshot("2025-02-01T00:00:00Z", []models.Opportunity{{
		ID: "acme0001", Name: "Acme Grant", DateAdded: "2025-01-15T00:00:00Z",
	}})
	store := &memStore{prior: &prior}
	p, _ := newTestPipeline(store, &stubAdapter{name: "feed", recs: []RawOpportunity{
		{Name: "Beta Accelerator"}, {Name: "Gamma Fellowship"},
	}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Persisted)

	count := 0
	for _, o := range store.last(t).Opportunities {
		if o.Name == "Acme Grant" {
			count++
			assert.Equal(t, "acme0001", o.ID)
		}
	}
	assert.Equal(t, 1, count)
}

func TestPipeline_PriorRecordsPersistVerbatim(t *testing.T) {
	curated := []models.Opportunity{
		{
			ID:           "curated1",
			Name:         "Acme  Seed   Grant",
			Organization: "Acme",
			Type:         "Grant",
			Country:      "Chile",
			Deadline:     "Rolling",
			Prize:        "In-kind support",
			Link:         "https://acme.example/seed",
			Source:       "Manual",
			DateAdded:    "2025-01-02T00:00:00Z",
			Status:       "open",
			Description:  "  Curated by hand  ",
			Tags:         []string{"AI", "ai", "seed"},
		},
		{
			ID:        "curated2",
			Name:      "Older Fund",
			Type:      "grant",
			Country:   "Global",
			Prize:     "Varies",
			DateAdded: "2025-01-01T00:00:00Z",
			Status:    "closed",
			Tags:      []string{},
		},
	}
	prior := models.NewSnapshot("2025-02-01T00:00:00Z", curated)

	for _, adapters := range [][]Adapter{nil, {&stubAdapter{name: "empty"}}} {
		store := &memStore{prior: &prior}
		p, _ := newTestPipeline(store, adapters...)

		res, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Fetched)

		snap := store.last(t)
		assert.Equal(t, "2025-03-01T12:00:00Z", snap.LastUpdated)
		if diff := cmp.Diff(curated, snap.Opportunities); diff != "" {
			t.Errorf("prior records changed (-want +got):\n%s", diff)
		}
	}
}

func TestPipeline_DeterministicOrder(t *testing.T) {
	run := func() []string {
		store := &memStore{}
		p, _ := newTestPipeline(store,
			&stubAdapter{name: "slow", delay: 40 * time.Millisecond, recs: []RawOpportunity{{Name: "Slow One"}, {Name: "Shared Name"}}},
			&stubAdapter{name: "medium", delay: 20 * time.Millisecond, recs: []RawOpportunity{{Name: "Medium One"}}},
			&stubAdapter{name: "fast", recs: []RawOpportunity{{Name: "Fast One"}, {Name: "shared name"}}},
		)
		p.Workers = 3
		_, err := p.Run(context.Background())
		require.NoError(t, err)
		return names(store.last(t).Opportunities)
	}

	first := run()
	assert.Equal(t, []string{"Slow One", "Shared Name", "Medium One", "Fast One"}, first)
	assert.Equal(t, first, run())
}

func TestPipeline_NoNewRecordsKeepsPrior(t *testing.T) {
	prior := models.NewSnapshot("2025-02-01T00:00:00Z", []models.Opportunity{
		{ID: "p1", Name: "Prior Grant One", DateAdded: "2025-01-02T00:00:00Z"},
		{ID: "p2", Name: "Prior Grant Two", DateAdded: "2025-01-01T00:00:00Z"},
	})
	store := &memStore{prior: &prior}
	p, _ := newTestPipeline(store, &stubAdapter{name: "empty"}, &stubAdapter{name: "down", err: errors.New("503")})

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Fetched)
	snap := store.last(t)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, "2025-03-01T12:00:00Z", snap.LastUpdated)
	assert.Equal(t, []string{"Prior Grant One", "Prior Grant Two"}, names(snap.Opportunities))
}

func TestPipeline_UnreadablePriorIsWarned(t *testing.T) {
	store := &memStore{loadErr: errors.New("invalid character '}'")}
	p, logs := newTestPipeline(store, &stubAdapter{name: "feed", recs: []RawOpportunity{{Name: "Fresh Prize"}}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Loaded)
	assert.Equal(t, 1, logs.FilterMessage("could not load existing data").Len())
	assert.Equal(t, 1, store.last(t).Total)
}

func TestPipeline_SaveFailure(t *testing.T) {
	diskFull := errors.New("no space left on device")
	mirror := &recordingMirror{}
	store := &memStore{saveErr: diskFull}
	p, _ := newTestPipeline(store, &stubAdapter{name: "feed", recs: []RawOpportunity{{Name: "Lost Prize"}}})
	p.Mirror = mirror

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.NotNil(t, res)
	assert.Equal(t, 0, mirror.calls, "nothing is mirrored when the snapshot was not written")
}

func TestPipeline_MirrorFailureIsLogged(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("db down")}
	store := &memStore{}
	p, logs := newTestPipeline(store, &stubAdapter{name: "feed", recs: []RawOpportunity{{Name: "Mirrored Prize"}}})
	p.Mirror = mirror

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, 1, logs.FilterMessage("snapshot mirror failed").Len())
}

func TestPipeline_ValidityFilter(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPipeline(store, &stubAdapter{name: "feed", recs: []RawOpportunity{
		{Name: ""}, {Name: "abc"}, {Name: "abcd"}, {Name: "   x   "},
	}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, []string{"abcd"}, names(store.last(t).Opportunities))
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &memStore{}
	p, _ := newTestPipeline(store, &stubAdapter{name: "slow", delay: time.Second})

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.saved)
}

func TestPipeline_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &memStore{}
	adapters := make([]Adapter, 0, 10)
	for i := 0; i < 10; i++ {
		adapters = append(adapters, &stubAdapter{
			name:  fmt.Sprintf("src%d", i),
			delay: time.Duration(i) * time.Millisecond,
			recs:  []RawOpportunity{{Name: fmt.Sprintf("Opportunity number %d", i)}},
		})
	}
	p, _ := newTestPipeline(store, adapters...)
	p.Workers = 3

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Persisted)
}

func TestSortByDateAdded(t *testing.T) {
	opps := []models.Opportunity{
		{Name: "old", DateAdded: "2024-01-01T00:00:00Z"},
		{Name: "broken", DateAdded: "yesterday"},
		{Name: "new", DateAdded: "2025-06-01T00:00:00Z"},
		{Name: "tie-a", DateAdded: "2025-01-01T00:00:00Z"},
		{Name: "tie-b", DateAdded: "2025-01-01T00:00:00Z"},
		{Name: "offset", DateAdded: "2025-03-01T10:00:00+02:00"},
	}
	SortByDateAdded(opps)
	assert.Equal(t, []string{"new", "offset", "tie-a", "tie-b", "old", "broken"}, names(opps))
}

func TestParseMergeOrder(t *testing.T) {
	for in, want := range map[string]MergeOrder{
		"":               MergeExistingFirst,
		"existing-first": MergeExistingFirst,
		"Newest-First":   MergeNewestFirst,
	} {
		got, err := ParseMergeOrder(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, want, mustParse(t, got.String()))
	}

	_, err := ParseMergeOrder("oldest")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) MergeOrder {
	t.Helper()
	m, err := ParseMergeOrder(s)
	require.NoError(t, err)
	return m
}
