package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsServerSpellings(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	for _, raw := range []string{
		`"2025-03-01T12:30:00Z"`,
		`"2025-03-01T12:30:00"`,
		`"2025-03-01 12:30:00"`,
		`1740832200`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.True(t, want.Equal(ts.Time), raw)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestSortedRecommendationsByPriority(t *testing.T) {
	recs := []Recommendation{
		{Title: "a", Priority: PriorityLow},
		{Title: "b", Priority: PriorityHigh},
		{Title: "c", Priority: PriorityMedium},
		{Title: "d", Priority: PriorityHigh},
	}
	sorted := SortedRecommendations(recs)
	titles := make([]string, 0, len(sorted))
	for _, r := range sorted {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, titles)
	assert.Equal(t, "a", recs[0].Title)
}
