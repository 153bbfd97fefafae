package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/david/launchpad/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

// Schema defaults for fields an adapter leaves empty.
const (
	DefaultType    = TypeCompetition
	DefaultCountry = "Global"
	DefaultPrize   = "Varies"
	DefaultStatus  = "open"

	// MaxDescriptionLen caps descriptions, in runes.
	MaxDescriptionLen = 250
	// MinNameLen is the exclusive lower bound on retained name length.
	MinNameLen = 3

	idLength = 8
)

// MakeID derives the identity key of a record. Same name and organization,
// ignoring case and surrounding whitespace, always give the same id.
func MakeID(name, organization string) string {
	key := strings.ToLower(strings.TrimSpace(name) + strings.TrimSpace(organization))
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Normalizer completes raw records into canonical opportunities. Now is the
// only impure input; it stamps date_added on records that lack one.
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer returns a normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize fills every missing field with its default. The result always
// satisfies the full schema.
func (n *Normalizer) Normalize(raw RawOpportunity) models.Opportunity {
	opp := models.Opportunity{
		ID:           strings.TrimSpace(raw.ID),
		Name:         cleanText(raw.Name),
		Organization: strings.TrimSpace(raw.Organization),
		Category:     strings.TrimSpace(raw.Category),
		Type:         strings.ToLower(strings.TrimSpace(raw.Type)),
		Country:      strings.TrimSpace(raw.Country),
		Prize:        strings.TrimSpace(raw.Prize),
		Link:         strings.TrimSpace(raw.Link),
		Source:       strings.TrimSpace(raw.Source),
		DateAdded:    strings.TrimSpace(raw.DateAdded),
		Status:       strings.TrimSpace(raw.Status),
		Description:  TruncateText(strings.TrimSpace(raw.Description), MaxDescriptionLen),
		Tags:         mergeUniqueFold([]string{}, raw.Tags),
	}

	if opp.ID == "" {
		opp.ID = MakeID(opp.Name, opp.Organization)
	}
	if opp.Type == "" {
		opp.Type = DefaultType
	}
	if opp.Country == "" {
		opp.Country = DefaultCountry
	}
	if opp.Prize == "" {
		opp.Prize = DefaultPrize
	}
	if opp.Status == "" {
		opp.Status = DefaultStatus
	}
	if opp.DateAdded == "" {
		opp.DateAdded = n.now().UTC().Format(time.RFC3339)
	}
	if d, ok := parseDeadline(raw.Deadline); ok {
		opp.Deadline = d
	}

	return opp
}

// Complete fills the absent fields of a record read back from a prior
// snapshot. Present values are kept verbatim, including deadlines the date
// parser would not understand.
func (n *Normalizer) Complete(opp models.Opportunity) models.Opportunity {
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	if strings.TrimSpace(opp.ID) == "" {
		opp.ID = MakeID(cleanText(opp.Name), opp.Organization)
	}
	fill(&opp.Type, DefaultType)
	fill(&opp.Country, DefaultCountry)
	fill(&opp.Prize, DefaultPrize)
	fill(&opp.Status, DefaultStatus)
	fill(&opp.DateAdded, n.now().UTC().Format(time.RFC3339))
	if opp.Tags == nil {
		opp.Tags = []string{}
	}
	return opp
}

func (n *Normalizer) now() time.Time {
	if n == nil || n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// IsValid reports whether a record may be kept in a snapshot.
func IsValid(opp models.Opportunity) bool {
	return utf8.RuneCountInString(strings.TrimSpace(opp.Name)) > MinNameLen
}

// TruncateText cuts a string to max runes, appending an ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	r := []rune(text)
	if maxLen > 3 {
		return strings.TrimSpace(string(r[:maxLen-3])) + "..."
	}
	return string(r[:maxLen])
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// HTMLToText strips markup (script and style bodies included), decodes
// entities and collapses whitespace.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return cleanText(s)
	}
	return cleanText(html.UnescapeString(textPolicy.Sanitize(s)))
}
