// Package config is the typed configuration of the runharvest command.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"runharvest/internal/extract"
	"runharvest/internal/harvest"
	"runharvest/lib/configutil"
)

const DefaultPath = "runharvest.json5"

const (
	OutputJSON   = "json"
	OutputSQLite = "sqlite"
	OutputLibSQL = "libsql"
)

type OutputConfig struct {
	// Driver is one of json, sqlite or libsql.
	Driver string `json:"driver"`
	// Path is the json file written by the json driver.
	Path string `json:"path"`
	DSN  string `json:"dsn"`
	Key  string `json:"key"`
}

type SecretConfig struct {
	Project string `json:"project"`
	Secret  string `json:"secret"`
	Version string `json:"version"`
	BaseURL string `json:"base_url"`
}

type CredentialConfig struct {
	CookieName     string        `json:"cookie_name"`
	Domain         string        `json:"domain"`
	SyncToRemote   bool          `json:"sync_to_remote"`
	Secret         *SecretConfig `json:"secret"`
	FirefoxProfile string        `json:"firefox_profile"`
	// DisableFirefox skips the local cookie jar.
	DisableFirefox bool `json:"disable_firefox"`
}

type DetailCacheConfig struct {
	Disabled bool   `json:"disabled"`
	Path     string `json:"path"`
	TTLHours int    `json:"ttl_hours"`
}

// TimeoutsConfig holds page driver timeouts in milliseconds, zero keeps the default.
type TimeoutsConfig struct {
	Month    int `json:"month_ms"`
	List     int `json:"list_ms"`
	Idle     int `json:"idle_ms"`
	Detail   int `json:"detail_ms"`
	Consent  int `json:"consent_ms"`
	Settle   int `json:"settle_ms"`
	Interval int `json:"detail_interval_ms"`
	Navigate int `json:"navigate_ms"`
}

type Config struct {
	BaseURL string `json:"base_url"`
	// Users maps a site user id to the runner's display name.
	Users       map[string]string `json:"users"`
	Concurrency int               `json:"concurrency"`
	Headless    *bool             `json:"headless"`
	ChromePath  string            `json:"chrome_path"`
	UserAgent   string            `json:"user_agent"`
	// Year the months are harvested in, zero is the current year.
	Year                int               `json:"year"`
	Output              OutputConfig      `json:"output"`
	Credential          CredentialConfig  `json:"credential"`
	DetailCache         DetailCacheConfig `json:"detail_cache"`
	Timeouts            TimeoutsConfig    `json:"timeouts"`
	PreserveFailedUsers *bool             `json:"preserve_failed_users"`
	LogLevel            string            `json:"log_level"`
}

// Load reads path and its local override layer and fills in defaults.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://runkeeper.com"
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Concurrency <= 0 {
		c.Concurrency = harvest.DefaultConcurrency
	}
	if c.Headless == nil {
		headless := true
		c.Headless = &headless
	}
	if c.PreserveFailedUsers == nil {
		preserve := true
		c.PreserveFailedUsers = &preserve
	}
	if c.Output.Driver == "" {
		c.Output.Driver = OutputJSON
	}
	if c.Output.Path == "" {
		c.Output.Path = "data.json"
	}
	if c.Credential.CookieName == "" {
		c.Credential.CookieName = "checker"
	}
	if c.Credential.Domain == "" {
		c.Credential.Domain = "runkeeper.com"
	}
	if c.DetailCache.Path == "" {
		c.DetailCache.Path = ".cache/details"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Users) == 0 {
		errs = append(errs, errors.New("users: no users configured"))
	}
	names := make(map[string]string, len(c.Users))
	for id, name := range c.Users {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("users: empty user id"))
		}
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("users: %s has no name", id))
			continue
		}
		if other, ok := names[name]; ok {
			first, second := other, id
			if second < first {
				first, second = second, first
			}
			errs = append(errs, fmt.Errorf("users: %s and %s share the name %q", first, second, name))
		}
		names[name] = id
	}
	switch c.Output.Driver {
	case OutputJSON:
	case OutputSQLite, OutputLibSQL:
		if c.Output.DSN == "" {
			errs = append(errs, fmt.Errorf("output: driver %s needs a dsn", c.Output.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("output: unknown driver %q", c.Output.Driver))
	}
	if s := c.Credential.Secret; s != nil && (s.Project == "" || s.Secret == "") {
		errs = append(errs, errors.New("credential.secret: project and secret are required"))
	}
	if c.Year < 0 {
		errs = append(errs, fmt.Errorf("year: %d is negative", c.Year))
	}
	return errors.Join(errs...)
}

// Roster returns the configured users sorted by name.
func (c Config) Roster() []extract.User {
	roster := make([]extract.User, 0, len(c.Users))
	for id, name := range c.Users {
		roster = append(roster, extract.User{ID: id, Name: name})
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Name < roster[j].Name
	})
	return roster
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Extractor returns the extractor config with the configured timeouts applied.
func (c Config) Extractor() extract.Config {
	cfg := extract.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	cfg.MonthTimeout = millis(c.Timeouts.Month, cfg.MonthTimeout)
	cfg.ListTimeout = millis(c.Timeouts.List, cfg.ListTimeout)
	cfg.IdleTimeout = millis(c.Timeouts.Idle, cfg.IdleTimeout)
	cfg.DetailTimeout = millis(c.Timeouts.Detail, cfg.DetailTimeout)
	cfg.ConsentTimeout = millis(c.Timeouts.Consent, cfg.ConsentTimeout)
	cfg.Settle = millis(c.Timeouts.Settle, cfg.Settle)
	cfg.DetailInterval = millis(c.Timeouts.Interval, cfg.DetailInterval)
	return cfg
}

// NavigateTimeout is zero when unset, the page driver then applies its own default.
func (c Config) NavigateTimeout() time.Duration {
	return millis(c.Timeouts.Navigate, 0)
}

func (c Config) DetailCacheTTL() time.Duration {
	if c.DetailCache.TTLHours <= 0 {
		return 0
	}
	return time.Duration(c.DetailCache.TTLHours) * time.Hour
}
