package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Opportunity is one normalized record of the persisted snapshot.
// Field order is the on-disk order.
type Opportunity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Organization string   `json:"organization"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Country      string   `json:"country"`
	Deadline     string   `json:"deadline"`     // YYYY-MM-DD or empty
	Prize        string   `json:"prize"`        // free text
	Link         string   `json:"link"`
	Source       string   `json:"source"`       // origin domain
	DateAdded    string   `json:"date_added"`   // RFC 3339, UTC
	Status       string   `json:"status"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
}

// Snapshot is the whole persisted collection, replaced wholesale each run.
type Snapshot struct {
	LastUpdated   string        `json:"last_updated"`
	Total         int           `json:"total"`
	Opportunities []Opportunity `json:"opportunities"`
}

// NewSnapshot builds a snapshot whose Total always matches its contents.
func NewSnapshot(lastUpdated string, opps []Opportunity) Snapshot {
	if opps == nil {
		opps = []Opportunity{}
	}
	return Snapshot{
		LastUpdated:   lastUpdated,
		Total:         len(opps),
		Opportunities: opps,
	}
}

// FlexString decodes any JSON scalar as a string. Snapshots are hand-curated
// between runs, so a prize typed as 5000 or a status typed as true must not
// make the whole file unreadable.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*s = FlexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = FlexString(strconv.FormatBool(t))
	default:
		// objects and arrays keep their JSON text
		*s = FlexString(data)
	}
	return nil
}

// FlexStrings accepts a list of scalars or a single scalar.
type FlexStrings []string

func (s *FlexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] != '[' {
		var one FlexString
		if err := one.UnmarshalJSON(data); err != nil {
			return err
		}
		if one == "" {
			*s = nil
			return nil
		}
		*s = FlexStrings{string(one)}
		return nil
	}
	var items []FlexString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(FlexStrings, 0, len(items))
	for _, it := range items {
		out = append(out, string(it))
	}
	*s = out
	return nil
}

type lenientOpportunity struct {
	ID           FlexString  `json:"id"`
	Name         FlexString  `json:"name"`
	Organization FlexString  `json:"organization"`
	Category     FlexString  `json:"category"`
	Type         FlexString  `json:"type"`
	Country      FlexString  `json:"country"`
	Deadline     FlexString  `json:"deadline"`
	Prize        FlexString  `json:"prize"`
	Link         FlexString  `json:"link"`
	Source       FlexString  `json:"source"`
	DateAdded    FlexString  `json:"date_added"`
	Status       FlexString  `json:"status"`
	Description  FlexString  `json:"description"`
	Tags         FlexStrings `json:"tags"`
}

// UnmarshalJSON reads an opportunity leniently; absent fields stay empty and
// are filled in by the normalizer.
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	var l lenientOpportunity
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*o = Opportunity{
		ID:           string(l.ID),
		Name:         string(l.Name),
		Organization: string(l.Organization),
		Category:     string(l.Category),
		Type:         string(l.Type),
		Country:      string(l.Country),
		Deadline:     string(l.Deadline),
		Prize:        string(l.Prize),
		Link:         string(l.Link),
		Source:       string(l.Source),
		DateAdded:    string(l.DateAdded),
		Status:       string(l.Status),
		Description:  string(l.Description),
		Tags:         []string(l.Tags),
	}
	return nil
}
