// Package report renders run results and configuration as terminal tables.
package report

import (
	"io"
	"strings"
	"time"

	"github.com/david/launchpad/internal/db"
	"github.com/david/launchpad/internal/ingest"
	"github.com/jedib0t/go-pretty/v6/table"
)

const maxErrWidth = 60

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// Run prints per-source stats of a finished run.
func Run(w io.Writer, res *ingest.RunResult) {
	t := newTable(w)
	t.SetTitle("Run " + res.RunID)
	t.AppendHeader(table.Row{"Source", "Records", "Duration", "Error"})

	for _, s := range res.Sources {
		errText := ""
		if s.Err != nil {
			errText = shorten(s.Err.Error(), maxErrWidth)
		}
		t.AppendRow(table.Row{s.Name, s.Records, s.Duration.Round(time.Millisecond).String(), errText})
	}

	t.AppendFooter(table.Row{"Loaded / fetched / persisted", res.Loaded, res.Fetched, res.Persisted})
	t.Render()
}

// Sources prints the configured registry.
func Sources(w io.Writer, sources []ingest.SourceConfig) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Strategy", "Fetcher", "Active", "Limit", "URL"})

	for _, s := range sources {
		fetcher := s.Fetcher
		if fetcher == "" {
			fetcher = ingest.FetcherHTTP
		}
		url := s.URL
		if url == "" {
			url = s.Feed.URLTemplate
		}
		active := "yes"
		if !s.IsActive() {
			active = "no"
		}
		t.AppendRow(table.Row{s.ID, s.Strategy, fetcher, active, s.ItemLimit, url})
	}
	t.Render()
}

// Runs prints stored run history.
func Runs(w io.Writer, runs []db.RunRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Status", "Loaded", "Fetched", "Persisted", "Failed", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			shortID(r.RunID), r.Status, r.Loaded, r.Fetched, r.Persisted, r.FailedSources,
			duration, r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
