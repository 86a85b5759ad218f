package dataset

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.May, 20, 8, 30, 15, 123456000, time.UTC)

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]Activity{
		{Date: "01/02/25", Distance: Miles(3.333), Type: "Running"},
		{Date: "01/03/25", Distance: nil, Type: "Yoga"},
		{Date: "01/04/25", Distance: Miles(1.0), Type: "Running"},
	})
	require.Equal(t, 3, stats.TotalActivities)
	require.Equal(t, 4.33, stats.TotalDistance)
	require.Equal(t, []string{"Running", "Yoga"}, stats.ActivityTypes)

	empty := ComputeStats(nil)
	require.Equal(t, 0, empty.TotalActivities)
	require.Equal(t, 0.0, empty.TotalDistance)
	require.NotNil(t, empty.ActivityTypes)
}

func TestBuildSortsAndCounts(t *testing.T) {
	input := map[string][]Activity{
		"Bruce": {
			{Date: "02/01/25", Distance: Miles(1), Type: "Running"},
			{Date: "01/15/25", Distance: Miles(2), Type: "Running"},
		},
		"Joe": {},
	}
	d := Build(input, testNow)

	require.Equal(t, "01/15/25", d.Runners["Bruce"].Activities[0].Date)
	require.Equal(t, "02/01/25", input["Bruce"][0].Date, "input must not be reordered")
	require.Equal(t, 2, d.Metadata.TotalRunners)
	require.Equal(t, 2, d.Metadata.TotalActivities)
	require.Equal(t, "2025-05-20T08:30:15.123456", d.Metadata.LastUpdated)
	require.NotNil(t, d.Runners["Joe"].Activities)
	require.Equal(t, []string{"Bruce", "Joe"}, d.RunnerNames())
}

func TestEncodeShape(t *testing.T) {
	d := Build(map[string][]Activity{
		"Zoë": {{Date: "01/15/25", Distance: nil, Type: "Run & Walk", Duration: NotAvailable, Pace: NotAvailable}},
	}, testNow)

	buf, err := Encode(d)
	require.NoError(t, err)
	text := string(buf)

	require.Contains(t, text, `"Zoë"`)
	require.Contains(t, text, `"Run & Walk"`)
	require.Contains(t, text, `"distance": null`)
	require.True(t, strings.HasPrefix(text, "{\n  \"runners\": {"))

	var generic map[string]any
	require.NoError(t, json.Unmarshal(buf, &generic))
	require.Contains(t, generic, "metadata")

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, d, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
	_, err = Decode([]byte(`{"metadata": {}}`))
	require.Error(t, err)
}
