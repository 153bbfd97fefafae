package ingest

import (
	"strings"

	"github.com/david/launchpad/internal/models"
)

// Dedup keeps the first record for every id and every name. A record
// is dropped when either its id or its lowercased, trimmed name was already
// seen. Empty names never collide. Output order follows input order.
func Dedup(opps []models.Opportunity) []models.Opportunity {
	seenIDs := make(map[string]struct{}, len(opps))
	seenNames := make(map[string]struct{}, len(opps))
	out := make([]models.Opportunity, 0, len(opps))

	for _, o := range opps {
		name := strings.ToLower(strings.TrimSpace(o.Name))
		if _, dup := seenIDs[o.ID]; dup {
			continue
		}
		if name != "" {
			if _, dup := seenNames[name]; dup {
				continue
			}
			seenNames[name] = struct{}{}
		}
		seenIDs[o.ID] = struct{}{}
		out = append(out, o)
	}

	return out
}
