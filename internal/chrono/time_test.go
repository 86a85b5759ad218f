package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestRange(t *testing.T) {
	now := time.Date(2025, time.May, 20, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		start    *int
		end      *int
		months   []time.Month
		previous bool
		err      bool
	}{
		{
			name:   "defaults",
			months: []time.Month{1, 2, 3, 4, 5},
		},
		{
			name:   "explicit window",
			start:  intp(2),
			end:    intp(3),
			months: []time.Month{2, 3},
		},
		{
			name:     "current month only includes previous",
			start:    intp(5),
			end:      intp(5),
			months:   []time.Month{4, 5},
			previous: true,
		},
		{
			name:     "start only at current month",
			start:    intp(5),
			months:   []time.Month{4, 5},
			previous: true,
		},
		{
			name:   "single past month",
			start:  intp(3),
			end:    intp(3),
			months: []time.Month{3},
		},
		{name: "start zero", start: intp(0), err: true},
		{name: "end thirteen", end: intp(13), err: true},
		{name: "start after end", start: intp(4), end: intp(2), err: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			months, previous, err := Range(c.start, c.end, now)
			if c.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.months, months)
			require.Equal(t, c.previous, previous)
		})
	}
}

func TestRangeJanuary(t *testing.T) {
	now := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	months, previous, err := Range(nil, nil, now)
	require.NoError(t, err)
	require.Equal(t, []time.Month{time.January}, months)
	require.False(t, previous)
}

func TestIsPartial(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, IsPartial([]time.Month{1, 2, 3}, now))
	require.True(t, IsPartial([]time.Month{2, 3}, now))
}

func TestFixedTime(t *testing.T) {
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	var api TimeAPI = FixedTime(at)
	require.Equal(t, at, api.Now())
}
