package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"runharvest/internal/extract"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runharvest.json5")
	writeFile(t, path, `{
		// roster
		users: {
			"bruce-w": "Bruce",
			"mary-k": "Mary",
		},
		concurrency: 2,
		output: { driver: "json", path: "runners.json" },
		timeouts: { month_ms: 7000, navigate_ms: 45000 },
	}`)
	writeFile(t, filepath.Join(dir, "runharvest.local.json5"), `{
		headless: false,
		output: { path: "local.json" },
		credential: { secret: { project: "p", secret: "cookie" } },
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 2, cfg.Concurrency)
	require.False(t, *cfg.Headless)
	require.True(t, *cfg.PreserveFailedUsers)
	require.Equal(t, "local.json", cfg.Output.Path)
	require.Equal(t, OutputJSON, cfg.Output.Driver)
	require.Equal(t, "cookie", cfg.Credential.Secret.Secret)
	require.Equal(t, "checker", cfg.Credential.CookieName)
	require.Equal(t, "https://runkeeper.com", cfg.BaseURL)

	require.Equal(t, []extract.User{
		{ID: "bruce-w", Name: "Bruce"},
		{ID: "mary-k", Name: "Mary"},
	}, cfg.Roster())

	extractor := cfg.Extractor()
	require.Equal(t, 7*time.Second, extractor.MonthTimeout)
	require.Equal(t, extract.DefaultConfig().ListTimeout, extractor.ListTimeout)
	require.Equal(t, 45*time.Second, cfg.NavigateTimeout())

	var unset Config
	require.Zero(t, unset.NavigateTimeout())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "runharvest.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Users: map[string]string{"a": "Alice", "b": "Bob"}}
		cfg.SetDefaults()
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no users", func(c *Config) { c.Users = nil }, "no users configured"},
		{"blank name", func(c *Config) { c.Users["c"] = " " }, "c has no name"},
		{"duplicate names", func(c *Config) { c.Users["c"] = "Alice" }, `a and c share the name "Alice"`},
		{"unknown driver", func(c *Config) { c.Output.Driver = "csv" }, `unknown driver "csv"`},
		{"sqlite without dsn", func(c *Config) { c.Output.Driver = OutputSQLite }, "needs a dsn"},
		{"incomplete secret", func(c *Config) { c.Credential.Secret = &SecretConfig{Project: "p"} }, "project and secret are required"},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, test.errMsg)
		})
	}
}

func TestDetailCacheTTL(t *testing.T) {
	require.Equal(t, time.Duration(0), Config{}.DetailCacheTTL())
	require.Equal(t, 48*time.Hour, Config{DetailCache: DetailCacheConfig{TTLHours: 48}}.DetailCacheTTL())
}
