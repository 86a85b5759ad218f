package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"runharvest/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Build(map[string][]Activity{
		"Bruce": {run("01/05/25", 3.1), {Date: "01/06/25", Type: "Yoga", Duration: NotAvailable, Pace: NotAvailable}},
		"Mary":  {run("02/01/25", 6.2)},
	}, testNow)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "runners_data.json"))

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	d := sampleDataset()
	require.NoError(t, store.Save(ctx, d))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, d, loaded)
}

func TestLoadPriorDegrades(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	rec := &telemetry.Recorder{}
	require.Nil(t, LoadPrior(ctx, NewFileStore(filepath.Join(dir, "missing.json")), rec))
	require.Len(t, rec.Reports("warning", report_store_load), 1)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	require.Nil(t, LoadPrior(ctx, NewFileStore(corrupt), rec))
	require.Len(t, rec.Reports("warning", report_store_load), 2)

	good := NewFileStore(filepath.Join(dir, "good.json"))
	require.NoError(t, good.Save(ctx, sampleDataset()))
	prior := LoadPrior(ctx, good, rec)
	require.NotNil(t, prior)
	require.Len(t, prior.Runners, 2)
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, "sqlite", filepath.Join(t.TempDir(), "runners.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first := sampleDataset()
	require.NoError(t, store.Save(ctx, first))

	second := Build(map[string][]Activity{"Joe": {run("03/01/25", 1)}}, testNow)
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, second, loaded)
}

func TestOpenSQLStoreRejectsDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "postgres", "", "")
	require.Error(t, err)
}
