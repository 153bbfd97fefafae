package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/david/launchpad/internal/logger"
	"github.com/david/launchpad/internal/models"
)

const (
	challengeGovDefaultAgency = "US Government"
	challengeGovLinkTemplate  = "https://www.challenge.gov/challenge/%s"
)

// ChallengeGovResponse is the challenges.json envelope. Items are decoded
// one by one so a malformed entry does not sink its siblings.
type ChallengeGovResponse struct {
	Results []json.RawMessage `json:"results"`
}

// ChallengeGovRecord holds the fields used from a challenge.
type ChallengeGovRecord struct {
	ID               models.FlexString `json:"id"`
	Title            models.FlexString `json:"title"`
	AgencyName       models.FlexString `json:"agency_name"`
	TotalPrize       any               `json:"total_prize_offered_amount"`
	EndDate          models.FlexString `json:"end_date"`
	URL              models.FlexString `json:"url"`
	BriefDescription models.FlexString `json:"brief_description"`
}

// ChallengeGovStrategy reads the challenge.gov JSON API.
type ChallengeGovStrategy struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     logger.Logger
}

func NewChallengeGovStrategy(cfg SourceConfig, fetcher Fetcher, log logger.Logger) *ChallengeGovStrategy {
	return &ChallengeGovStrategy{cfg: cfg, fetcher: fetcher, log: log}
}

func (s *ChallengeGovStrategy) Name() string { return s.cfg.ID }

func (s *ChallengeGovStrategy) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	doc, err := s.fetcher.Fetch(ctx, s.cfg.URL)
	if err != nil {
		s.log.Warn("api request failed",
			logger.String("source", s.cfg.ID),
			logger.String("url", s.cfg.URL),
			logger.Error(err),
		)
		return nil, nil
	}
	defer doc.Body.Close()

	out, err := s.decode(doc.Body)
	if err != nil {
		s.log.Warn("api payload malformed",
			logger.String("source", s.cfg.ID),
			logger.Error(err),
		)
		return nil, nil
	}

	s.log.Info("source scraped",
		logger.String("source", s.cfg.ID),
		logger.Int("records", len(out)),
	)
	return out, nil
}

func (s *ChallengeGovStrategy) decode(r io.Reader) ([]RawOpportunity, error) {
	var resp ChallengeGovResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := resp.Results
	if s.cfg.ItemLimit > 0 && len(results) > s.cfg.ItemLimit {
		results = results[:s.cfg.ItemLimit]
	}

	out := make([]RawOpportunity, 0, len(results))
	for i, item := range results {
		var ch ChallengeGovRecord
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&ch); err != nil {
			s.log.Debug("skipping malformed challenge",
				logger.String("source", s.cfg.ID),
				logger.Int("index", i),
				logger.Error(err),
			)
			continue
		}
		out = append(out, s.toRecord(ch))
	}
	return out, nil
}

func (s *ChallengeGovStrategy) toRecord(ch ChallengeGovRecord) RawOpportunity {
	org := strings.TrimSpace(string(ch.AgencyName))
	if org == "" {
		org = challengeGovDefaultAgency
	}

	link := strings.TrimSpace(string(ch.URL))
	if link == "" {
		link = fmt.Sprintf(challengeGovLinkTemplate, strings.TrimSpace(string(ch.ID)))
	}

	deadline := strings.TrimSpace(string(ch.EndDate))
	if len(deadline) > 10 {
		deadline = deadline[:10]
	}

	rec := RawOpportunity{
		Name:         cleanText(string(ch.Title)),
		Organization: org,
		Prize:        formatPrize(ch.TotalPrize),
		Deadline:     deadline,
		Link:         link,
		Source:       sourceLabel(s.cfg),
		Description:  truncateRunes(HTMLToText(string(ch.BriefDescription)), s.cfg.DescriptionMax),
	}
	s.cfg.Defaults.apply(&rec)
	return rec
}
