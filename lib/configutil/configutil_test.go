package configutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string            `json:"name"`
	Workers  int               `json:"workers"`
	Headless *bool             `json:"headless"`
	Users    map[string]string `json:"users"`
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadConfigMergesLocalLayer(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app.json5"), `{
		// comments are allowed
		name: "base",
		workers: 4,
		headless: true,
		users: { "1": "Ann" },
	}`)
	write(t, filepath.Join(dir, "app.local.json5"), `{ workers: 2, headless: false }`)

	cfg, err := ReadConfig[sample](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 2, cfg.Workers)
	require.NotNil(t, cfg.Headless)
	require.False(t, *cfg.Headless)
	require.Equal(t, map[string]string{"1": "Ann"}, cfg.Users)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app.local.json5"), `{ name: "local" }`)

	cfg, err := ReadConfig[sample](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Name)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[sample](filepath.Join(t.TempDir(), "app.json5"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app.json5"), `{ name: `)
	_, err := ReadConfig[sample](filepath.Join(dir, "app.json5"))
	require.Error(t, err)
	require.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	write(t, filepath.Join(root, "app.json5"), `{ name: "found" }`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := ReadRecursively[sample]("app.json5")
	require.NoError(t, err)
	require.Equal(t, "found", cfg.Name)
}

func TestLayerPaths(t *testing.T) {
	require.Equal(t,
		[]string{"conf/runharvest.json5", "conf/runharvest.local.json5"},
		LayerPaths("conf/runharvest.json5"),
	)
}
