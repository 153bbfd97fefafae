package ingest

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all data sources, in declaration
// order. That order is the order results are merged in.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`  // Default: 15
	MaxRetries     int    `yaml:"max_retries,omitempty"`      // Default: 2, negative disables
	RequestDelayMS int    `yaml:"request_delay_ms,omitempty"` // Minimum gap between requests to one host
	ProxyURL       string `yaml:"proxy_url,omitempty"`
	AcceptLanguage string `yaml:"accept_language,omitempty"`
}

func (c FetchConfig) interval() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// SourceConfig defines a single data source for ingestion.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`          // "rss", "html_cards", "api_challenge_gov"
	Fetcher  string `yaml:"fetcher,omitempty"` // "http" (default) or "colly"
	Active   *bool  `yaml:"active,omitempty"`  // Default: true
	Source   string `yaml:"source,omitempty"`  // value of the record "source" field
	URL      string `yaml:"url,omitempty"`

	ItemLimit      int `yaml:"item_limit,omitempty"`
	NameMax        int `yaml:"name_max,omitempty"`
	DescriptionMax int `yaml:"description_max,omitempty"`

	// HTTP fetching configuration
	Fetch FetchConfig `yaml:"fetch,omitempty"`

	Defaults RecordDefaults `yaml:"defaults,omitempty"`

	// For the rss strategy
	Feed FeedConfig `yaml:"feed,omitempty"`

	// For the html_cards strategy
	Selectors    SelectorConfig `yaml:"selectors,omitempty"`
	RequireLink  bool           `yaml:"require_link,omitempty"`
	FallbackLink string         `yaml:"fallback_link,omitempty"`
}

// IsActive reports whether the source takes part in runs.
func (s SourceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// RecordDefaults are applied by a strategy to every record of its source.
type RecordDefaults struct {
	Organization string   `yaml:"organization,omitempty"`
	Category     string   `yaml:"category,omitempty"`
	Type         string   `yaml:"type,omitempty"`
	Country      string   `yaml:"country,omitempty"`
	Prize        string   `yaml:"prize,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
}

// FeedConfig drives the rss strategy. Organization and URLTemplate may carry
// a {query} placeholder.
type FeedConfig struct {
	URLTemplate              string   `yaml:"url_template,omitempty"`
	Queries                  []string `yaml:"queries,omitempty"`
	InferType                bool     `yaml:"infer_type,omitempty"`
	Organization             string   `yaml:"organization,omitempty"`
	OrganizationFromSource   bool     `yaml:"organization_from_source,omitempty"`
	StripTitleSuffix         string   `yaml:"strip_title_suffix,omitempty"`
	MinTitleLength           int      `yaml:"min_title_length,omitempty"`
	RequireKeywords          []string `yaml:"require_keywords,omitempty"`
	DescriptionTemplate      string   `yaml:"description_template,omitempty"`
	DescriptionFallbackTitle bool     `yaml:"description_fallback_title,omitempty"`
}

type SelectorConfig struct {
	Container    string `yaml:"container,omitempty"` // CSS selector for the card wrapper
	Title        string `yaml:"title,omitempty"`
	Link         string `yaml:"link,omitempty"`
	LinkAttr     string `yaml:"link_attr,omitempty"` // Attribute to extract link from (default: href)
	Organization string `yaml:"organization,omitempty"`
	Content      string `yaml:"content,omitempty"`
}

// LoadRegistry reads the source registry. An empty path selects the
// embedded sources.yaml; otherwise the file at path is used.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return ParseRegistry(data)
}

var envRefRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ParseRegistry decodes registry YAML after expanding ${VAR} references.
// Bare $ signs (prizes, regex anchors) are left alone.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := envRefRegex.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})

	var reg Registry
	if err := yaml.Unmarshal(expanded, &reg); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	seen := make(map[string]struct{}, len(r.Sources))
	for i, s := range r.Sources {
		if s.ID == "" {
			return fmt.Errorf("source #%d: missing id", i+1)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}

		switch s.Fetcher {
		case "", FetcherHTTP, FetcherColly:
		default:
			return fmt.Errorf("source %s: unknown fetcher %q", s.ID, s.Fetcher)
		}
		if s.URL == "" && s.Feed.URLTemplate == "" {
			return fmt.Errorf("source %s: url or feed.url_template required", s.ID)
		}
	}
	return nil
}

// Active returns the sources that take part in runs, in declaration order.
func (r *Registry) Active() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// Select returns a registry holding only the named sources, in declaration
// order. Named sources are enabled even when the file marks them inactive.
func (r *Registry) Select(ids []string) (*Registry, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}

	on := true
	out := &Registry{}
	for _, s := range r.Sources {
		if want[s.ID] {
			s.Active = &on
			out.Sources = append(out.Sources, s)
			delete(want, s.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown sources: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
