package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/david/launchpad/internal/logger"
)

// Strategy and fetcher identifiers used in sources.yaml.
const (
	StrategyRSS          = "rss"
	StrategyHTMLCards    = "html_cards"
	StrategyChallengeGov = "api_challenge_gov"

	FetcherHTTP  = "http"
	FetcherColly = "colly"
)

// StrategyConstructor builds an adapter for one configured source.
type StrategyConstructor func(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (Adapter, error)

// StrategyFactory maps strategy IDs (from sources.yaml) to constructors.
type StrategyFactory struct {
	strategies map[string]StrategyConstructor

	// NewFetcher picks the transport for a source. Tests swap in a mock.
	NewFetcher func(cfg SourceConfig, log logger.Logger) Fetcher
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]StrategyConstructor),
		NewFetcher: DefaultFetcher,
	}
}

// NewDefaultFactory knows every built-in strategy.
func NewDefaultFactory() *StrategyFactory {
	f := NewStrategyFactory()
	f.Register(StrategyRSS, func(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (Adapter, error) {
		return NewRSSStrategy(cfg, fetcher, log)
	})
	f.Register(StrategyHTMLCards, func(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (Adapter, error) {
		return NewHTMLCardsStrategy(cfg, fetcher, log)
	})
	f.Register(StrategyChallengeGov, func(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (Adapter, error) {
		return NewChallengeGovStrategy(cfg, fetcher, log), nil
	})
	return f
}

func (f *StrategyFactory) Register(id string, ctor StrategyConstructor) {
	f.strategies[id] = ctor
}

func (f *StrategyFactory) Get(id string) (StrategyConstructor, error) {
	ctor, ok := f.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", id)
	}
	return ctor, nil
}

// Names lists registered strategies, sorted.
func (f *StrategyFactory) Names() []string {
	out := make([]string, 0, len(f.strategies))
	for id := range f.strategies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Build creates adapters for the active sources of reg, in declaration order.
func (f *StrategyFactory) Build(reg *Registry, log logger.Logger) ([]Adapter, error) {
	if log == nil {
		log = logger.NewNop()
	}
	active := reg.Active()
	adapters := make([]Adapter, 0, len(active))
	for _, cfg := range active {
		ctor, err := f.Get(cfg.Strategy)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.ID, err)
		}
		srcLog := log.With(logger.String("source", cfg.ID))
		a, err := ctor(cfg, f.NewFetcher(cfg, srcLog), srcLog)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// DefaultFetcher returns a colly fetcher for HTML sources that ask for it and
// the net/http fetcher otherwise.
func DefaultFetcher(cfg SourceConfig, log logger.Logger) Fetcher {
	if cfg.Fetcher == FetcherColly {
		return NewCollyFetcher(cfg.Fetch, log)
	}
	return NewHTTPFetcher(cfg.Fetch, log)
}

// apply fills fields the strategy left empty. Default tags come first.
func (d RecordDefaults) apply(rec *RawOpportunity) {
	if rec.Organization == "" {
		rec.Organization = d.Organization
	}
	if rec.Category == "" {
		rec.Category = d.Category
	}
	if rec.Type == "" {
		rec.Type = d.Type
	}
	if rec.Country == "" {
		rec.Country = d.Country
	}
	if rec.Prize == "" {
		rec.Prize = d.Prize
	}
	if rec.Description == "" {
		rec.Description = d.Description
	}
	tags := mergeUniqueFold(make([]string, 0, len(d.Tags)+len(rec.Tags)), d.Tags)
	rec.Tags = mergeUniqueFold(tags, rec.Tags)
}

// sourceLabel is the "source" field of a record: configured, or the host of
// the source URL.
func sourceLabel(cfg SourceConfig) string {
	if s := strings.TrimSpace(cfg.Source); s != "" {
		return s
	}
	if cfg.URL != "" {
		return extractDomain(cfg.URL)
	}
	return extractDomain(cfg.Feed.URLTemplate)
}
