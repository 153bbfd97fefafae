package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpportunityUnmarshal_StringifiesScalars(t *testing.T) {
	raw := `{"name":"Acme Grant","prize":5000,"status":true,"deadline":null,"tags":"curated"}`

	var o Opportunity
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, "Acme Grant", o.Name)
	assert.Equal(t, "5000", o.Prize)
	assert.Equal(t, "true", o.Status)
	assert.Equal(t, "", o.Deadline)
	assert.Equal(t, []string{"curated"}, o.Tags)
}

func TestOpportunityUnmarshal_TagListWithNumbers(t *testing.T) {
	var o Opportunity
	require.NoError(t, json.Unmarshal([]byte(`{"tags":["eu", 2026, false]}`), &o))
	assert.Equal(t, []string{"eu", "2026", "false"}, o.Tags)
}

func TestOpportunityUnmarshal_RejectsBrokenJSON(t *testing.T) {
	var o Opportunity
	assert.Error(t, json.Unmarshal([]byte(`{"name":`), &o))
}

func TestNewSnapshot_TotalMatches(t *testing.T) {
	s := NewSnapshot("2025-01-01T00:00:00Z", nil)
	assert.Equal(t, 0, s.Total)
	assert.NotNil(t, s.Opportunities)

	s = NewSnapshot("2025-01-01T00:00:00Z", []Opportunity{{Name: "a"}, {Name: "b"}})
	assert.Equal(t, 2, s.Total)
}

func TestSnapshotMarshal_FieldOrder(t *testing.T) {
	s := NewSnapshot("2025-01-01T00:00:00Z", []Opportunity{{ID: "abcd1234", Tags: []string{}}})
	out, err := json.Marshal(s)
	require.NoError(t, err)

	want := `{"last_updated":"2025-01-01T00:00:00Z","total":1,"opportunities":[{"id":"abcd1234","name":"","organization":"","category":"","type":"","country":"","deadline":"","prize":"","link":"","source":"","date_added":"","status":"","description":"","tags":[]}]}`
	assert.Equal(t, want, string(out))
}
