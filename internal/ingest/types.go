package ingest

import (
	"context"
	"io"
	"time"
)

// RawOpportunity is the partially populated record an adapter emits.
// Empty fields are filled by the normalizer. Adapters normally leave ID and
// DateAdded empty.
type RawOpportunity struct {
	ID           string
	Name         string
	Organization string
	Category     string
	Type         string
	Country      string
	Deadline     string // any format the date parser understands
	Prize        string
	Link         string
	Source       string
	DateAdded    string
	Status       string
	Description  string
	Tags         []string
}

// Adapter fetches one external source. Per-request failures are handled
// inside; a returned error (or a panic) means the whole source failed.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]RawOpportunity, error)
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL. Non-2xx responses are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Opportunity types.
const (
	TypeCompetition = "competition"
	TypeHackathon   = "hackathon"
	TypeGrant       = "grant"
	TypeAccelerator = "accelerator"
	TypeFellowship  = "fellowship"
)
