package ingest

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/launchpad/internal/logger"
)

// HTMLCardsStrategy extracts one record per card on a listing page.
type HTMLCardsStrategy struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     logger.Logger
}

func NewHTMLCardsStrategy(cfg SourceConfig, fetcher Fetcher, log logger.Logger) (*HTMLCardsStrategy, error) {
	if cfg.Selectors.Container == "" || cfg.Selectors.Title == "" {
		return nil, fmt.Errorf("source %s: selectors.container and selectors.title are required for html_cards", cfg.ID)
	}
	return &HTMLCardsStrategy{cfg: cfg, fetcher: fetcher, log: log}, nil
}

func (s *HTMLCardsStrategy) Name() string { return s.cfg.ID }

// Fetch loads the listing page. An unreachable or unparseable page yields
// zero records, the same as a page without cards.
func (s *HTMLCardsStrategy) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	fetched, err := s.fetcher.Fetch(ctx, s.cfg.URL)
	if err != nil {
		s.log.Warn("page failed",
			logger.String("source", s.cfg.ID),
			logger.String("url", s.cfg.URL),
			logger.Error(err),
		)
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(fetched.Body)
	fetched.Body.Close() // Close immediately
	if err != nil {
		s.log.Warn("page parse failed",
			logger.String("source", s.cfg.ID),
			logger.Error(err),
		)
		return nil, nil
	}

	pageURL := fetched.URL
	if pageURL == "" {
		pageURL = s.cfg.URL
	}

	out := s.extract(doc, pageURL)
	s.log.Info("source scraped",
		logger.String("source", s.cfg.ID),
		logger.Int("records", len(out)),
	)
	return out, nil
}

func (s *HTMLCardsStrategy) extract(doc *goquery.Document, pageURL string) []RawOpportunity {
	sel := s.cfg.Selectors
	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}

	cards := doc.Find(sel.Container)
	if s.cfg.ItemLimit > 0 && cards.Length() > s.cfg.ItemLimit {
		cards = cards.Slice(0, s.cfg.ItemLimit)
	}

	var out []RawOpportunity
	cards.Each(func(_ int, card *goquery.Selection) {
		title := cleanText(card.Find(sel.Title).First().Text())
		if title == "" {
			return
		}

		var href string
		if sel.Link == "" || sel.Link == "." {
			href = card.AttrOr(linkAttr, "")
		} else {
			href = card.Find(sel.Link).First().AttrOr(linkAttr, "")
		}
		link := resolveLink(pageURL, href)
		if link == "" {
			if s.cfg.RequireLink {
				return
			}
			link = s.cfg.FallbackLink
		}

		rec := RawOpportunity{
			Name:   truncateRunes(title, s.cfg.NameMax),
			Link:   link,
			Source: sourceLabel(s.cfg),
		}
		if sel.Organization != "" {
			rec.Organization = cleanText(card.Find(sel.Organization).First().Text())
		}
		if sel.Content != "" {
			rec.Description = truncateRunes(cleanText(card.Find(sel.Content).First().Text()), s.cfg.DescriptionMax)
		}

		s.cfg.Defaults.apply(&rec)
		out = append(out, rec)
	})

	return out
}
