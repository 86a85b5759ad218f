package detailcache

import (
	"context"
	"testing"
	"time"

	"runharvest/internal/extract"
	"runharvest/internal/telemetry"

	"github.com/stretchr/testify/require"
)

type movableClock struct {
	now time.Time
}

func (m *movableClock) Now() time.Time {
	return m.now
}

func TestKey(t *testing.T) {
	cases := []struct {
		link   string
		expect string
	}{
		{"https://runkeeper.com/user/bruce/activity/1", "https://runkeeper.com/user/bruce/activity/1"},
		{"HTTPS://RunKeeper.com:443/user/bruce/activity/1#map", "https://runkeeper.com/user/bruce/activity/1"},
		{"https://runkeeper.com/user/bruce/activity/1?b=2&a=1", "https://runkeeper.com/user/bruce/activity/1?a=1&b=2"},
	}

	for _, test := range cases {
		key, err := Key(test.link)
		require.NoError(t, err)
		require.Equal(t, test.expect, key)
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	clock := &movableClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := Open(Options{TTL: time.Hour, Clock: clock}, &telemetry.Recorder{})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	link := "https://runkeeper.com/user/bruce/activity/1"
	_, err = cache.Lookup(ctx, link)
	require.ErrorIs(t, err, ErrMiss)

	detail := extract.Detail{Duration: "30:12", Pace: "9:44"}
	require.NoError(t, cache.Store(ctx, link, detail))

	got, ok := cache.Get(ctx, link+"#route")
	require.True(t, ok)
	require.Equal(t, detail, got)

	clock.now = clock.now.Add(2 * time.Hour)
	_, ok = cache.Get(ctx, link)
	require.False(t, ok)
	_, err = cache.Lookup(ctx, link)
	require.ErrorIs(t, err, ErrMiss)
}

func TestCachePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	link := "https://runkeeper.com/user/mary/activity/7"

	cache, err := Open(Options{Path: dir}, &telemetry.Recorder{})
	require.NoError(t, err)
	cache.Put(ctx, link, extract.Detail{Duration: "1:02:00", Pace: "10:00"})
	require.NoError(t, cache.Close())

	reopened, err := Open(Options{Path: dir}, &telemetry.Recorder{})
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, ok := reopened.Get(ctx, link)
	require.True(t, ok)
	require.Equal(t, "1:02:00", got.Duration)
}

func TestCacheBadLink(t *testing.T) {
	rec := &telemetry.Recorder{}
	cache, err := Open(Options{}, rec)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	cache.Put(context.Background(), "://bad", extract.Detail{})
	require.Len(t, rec.Reports("warning", report_put), 1)
}
