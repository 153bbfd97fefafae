package ingest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"github.com/david/launchpad/internal/logger"
)

const (
	queryPlaceholder   = "{query}"
	titlePlaceholder   = "{title}"
	summaryPlaceholder = "{summary}"

	// templateTitleMax bounds the title inserted into a description template.
	templateTitleMax = 200
)

// feedItem is one RSS <item> or Atom <entry>.
type feedItem struct {
	Title   string
	Link    string
	Summary string // raw, possibly HTML
	Source  string // RSS <source>, the publisher for aggregator feeds
}

type feedTarget struct {
	query string
	url   string
}

// RSSStrategy reads RSS 2.0 and Atom feeds, optionally one per query.
type RSSStrategy struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     logger.Logger
	suffix  *regexp.Regexp
}

// NewRSSStrategy validates the feed settings of cfg.
func NewRSSStrategy(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (*RSSStrategy, error) {
	s := &RSSStrategy{cfg: cfg, fetcher: fetcher, log: log}
	if expr := cfg.Feed.StripTitleSuffix; expr != "" {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("source %s: strip_title_suffix: %w", cfg.ID, err)
		}
		s.suffix = re
	}
	if cfg.Feed.URLTemplate != "" && len(cfg.Feed.Queries) == 0 {
		return nil, fmt.Errorf("source %s: url_template needs queries", cfg.ID)
	}
	return s, nil
}

func (s *RSSStrategy) Name() string { return s.cfg.ID }

func (s *RSSStrategy) targets() []feedTarget {
	if s.cfg.Feed.URLTemplate == "" {
		return []feedTarget{{url: s.cfg.URL}}
	}
	out := make([]feedTarget, 0, len(s.cfg.Feed.Queries))
	for _, q := range s.cfg.Feed.Queries {
		out = append(out, feedTarget{
			query: q,
			url:   strings.ReplaceAll(s.cfg.Feed.URLTemplate, queryPlaceholder, q),
		})
	}
	return out
}

// Fetch reads every feed of the source. A feed that cannot be fetched or
// parsed is logged and skipped.
func (s *RSSStrategy) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	var out []RawOpportunity
	for _, t := range s.targets() {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		items, err := s.fetchFeed(ctx, t.url)
		if err != nil {
			s.log.Warn("feed failed",
				logger.String("source", s.cfg.ID),
				logger.String("url", t.url),
				logger.Error(err),
			)
			continue
		}

		if s.cfg.ItemLimit > 0 && len(items) > s.cfg.ItemLimit {
			items = items[:s.cfg.ItemLimit]
		}
		for _, it := range items {
			if rec, ok := s.toRecord(it, t.query); ok {
				out = append(out, rec)
			}
		}
	}

	s.log.Info("source scraped",
		logger.String("source", s.cfg.ID),
		logger.Int("records", len(out)),
	)
	return out, nil
}

func (s *RSSStrategy) fetchFeed(ctx context.Context, url string) ([]feedItem, error) {
	doc, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()
	return parseFeed(doc.Body)
}

// parseFeed extracts items from an RSS 2.0 or Atom document.
func parseFeed(r io.Reader) ([]feedItem, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []feedItem
	for _, n := range xmlquery.Find(root, "//item") {
		items = append(items, feedItem{
			Title:   childText(n, "title"),
			Link:    childText(n, "link"),
			Summary: childText(n, "description"),
			Source:  childText(n, "source"),
		})
	}
	if len(items) > 0 {
		return items, nil
	}

	for _, n := range xmlquery.Find(root, "//*[local-name()='entry']") {
		it := feedItem{
			Title:   childText(n, "title"),
			Summary: childText(n, "content"),
		}
		if it.Summary == "" {
			it.Summary = childText(n, "summary")
		}
		if link := childElement(n, "link"); link != nil {
			it.Link = strings.TrimSpace(link.SelectAttr("href"))
		}
		items = append(items, it)
	}

	if len(items) == 0 && xmlquery.FindOne(root, "//*[local-name()='rss' or local-name()='feed' or local-name()='RDF']") == nil {
		return nil, fmt.Errorf("parse feed: not an RSS or Atom document")
	}
	return items, nil
}

// childElement returns the first direct child with the given local name.
func childElement(n *xmlquery.Node, local string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			return c
		}
	}
	return nil
}

func childText(n *xmlquery.Node, local string) string {
	if c := childElement(n, local); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}

func (s *RSSStrategy) toRecord(it feedItem, query string) (RawOpportunity, bool) {
	feed := s.cfg.Feed

	title := cleanText(HTMLToText(it.Title))
	if s.suffix != nil {
		title = strings.TrimSpace(s.suffix.ReplaceAllString(title, ""))
	}
	if title == "" {
		return RawOpportunity{}, false
	}
	if feed.MinTitleLength > 0 && utf8.RuneCountInString(title) < feed.MinTitleLength {
		return RawOpportunity{}, false
	}
	if len(feed.RequireKeywords) > 0 && !containsAnyFold(title, feed.RequireKeywords) {
		return RawOpportunity{}, false
	}

	rec := RawOpportunity{
		Name:   truncateRunes(title, s.cfg.NameMax),
		Link:   strings.TrimSpace(it.Link),
		Source: sourceLabel(s.cfg),
	}

	if feed.InferType {
		t := inferType(query)
		rec.Type = t
		rec.Category = titleCase(t)
		rec.Tags = []string{t}
	}

	switch {
	case feed.OrganizationFromSource && cleanText(it.Source) != "":
		rec.Organization = cleanText(it.Source)
	case feed.Organization != "":
		rec.Organization = strings.ReplaceAll(feed.Organization, queryPlaceholder, query)
	}

	summary := HTMLToText(it.Summary)
	if feed.DescriptionTemplate != "" {
		rec.Description = strings.NewReplacer(
			titlePlaceholder, truncateRunes(title, templateTitleMax),
			summaryPlaceholder, summary,
		).Replace(feed.DescriptionTemplate)
	} else {
		rec.Description = summary
	}
	if rec.Description == "" && feed.DescriptionFallbackTitle {
		rec.Description = title
	}
	rec.Description = truncateRunes(strings.TrimSpace(rec.Description), s.cfg.DescriptionMax)

	s.cfg.Defaults.apply(&rec)
	return rec, true
}

// inferType maps search terms to an opportunity type. First match wins.
func inferType(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "grant"):
		return TypeGrant
	case strings.Contains(q, "accelerator"):
		return TypeAccelerator
	case strings.Contains(q, "hackathon"):
		return TypeHackathon
	case strings.Contains(q, "fellowship"):
		return TypeFellowship
	default:
		return TypeCompetition
	}
}
