package ingest

import (
	"testing"

	"github.com/david/launchpad/internal/models"
	"github.com/stretchr/testify/assert"
)

func ids(opps []models.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ID
	}
	return out
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name string
		in   []models.Opportunity
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
		{
			name: "same id keeps first",
			in: []models.Opportunity{
				{ID: "a", Name: "First Name"},
				{ID: "b", Name: "Other"},
				{ID: "a", Name: "Renamed Later"},
			},
			want: []string{"a", "b"},
		},
		{
			name: "name collision across ids",
			in: []models.Opportunity{
				{ID: "a", Name: "Climate Hackathon"},
				{ID: "b", Name: "  climate HACKATHON "},
				{ID: "c", Name: "Water Hackathon"},
			},
			want: []string{"a", "c"},
		},
		{
			name: "empty names never collide",
			in: []models.Opportunity{
				{ID: "a", Name: ""},
				{ID: "b", Name: "   "},
			},
			want: []string{"a", "b"},
		},
		{
			name: "dropped record does not claim its id",
			in: []models.Opportunity{
				{ID: "a", Name: "Grant One"},
				{ID: "b", Name: "grant one"},
				{ID: "b", Name: "Grant Two"},
			},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup(tt.in)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestDedup_Stable(t *testing.T) {
	in := []models.Opportunity{
		{ID: "x", Name: "Zeta Prize"},
		{ID: "y", Name: "Alpha Prize"},
		{ID: "z", Name: "Mid Prize"},
	}
	assert.Equal(t, in, Dedup(in))
	assert.Equal(t, Dedup(in), Dedup(Dedup(in)))
}
