package commands

import (
	"context"
	"log/slog"

	"runharvest/internal/config"
	"runharvest/internal/credential"
	"runharvest/internal/dataset"
	"runharvest/internal/detailcache"
	"runharvest/internal/extract"
	"runharvest/internal/telemetry"
	"runharvest/lib/serviceutil"
)

// credentialSources builds the configured providers, either may be nil.
func credentialSources(ctx context.Context, cfg config.Config, tel telemetry.API) (remote credential.Provider, local credential.Provider) {
	if s := cfg.Credential.Secret; s != nil {
		sm, err := credential.NewSecretManager(ctx, credential.SecretManagerOptions{
			BaseURL:    s.BaseURL,
			Project:    s.Project,
			Secret:     s.Secret,
			Version:    s.Version,
			CookieName: cfg.Credential.CookieName,
		}, tel)
		if err != nil {
			slog.Warn("secret manager unavailable", "err", err.Error())
		} else {
			remote = sm
		}
	}
	if !cfg.Credential.DisableFirefox {
		local = credential.FirefoxJar{
			ProfileDir: cfg.Credential.FirefoxProfile,
			Domain:     cfg.Credential.Domain,
			Name:       cfg.Credential.CookieName,
		}
	}
	return remote, local
}

func fetchCookie(ctx context.Context, cfg config.Config, tel telemetry.API) (credential.RawCookie, credential.Source) {
	remote, local := credentialSources(ctx, cfg, tel)
	cookie, source, err := credential.Fetch(ctx, remote, local, credential.FetchOptions{
		SyncToRemote: cfg.Credential.SyncToRemote,
	}, tel)
	if err != nil {
		serviceutil.Fatal("failed to find the session cookie, log in with firefox first", err)
	}
	if cookie.Domain == "" {
		cookie.Domain = "." + cfg.Credential.Domain
	}
	return cookie, source
}

func openStore(ctx context.Context, cfg config.Config) (dataset.Store, func()) {
	switch cfg.Output.Driver {
	case config.OutputSQLite, config.OutputLibSQL:
		store, err := dataset.OpenSQLStore(ctx, cfg.Output.Driver, cfg.Output.DSN, cfg.Output.Key)
		if err != nil {
			serviceutil.Fatal("failed to open dataset store", err)
		}
		return store, func() { store.Close() }
	default:
		return dataset.NewFileStore(cfg.Output.Path), func() {}
	}
}

// openDetailCache returns nil when the cache is disabled or cannot be opened, harvesting
// works without it.
func openDetailCache(cfg config.Config, tel telemetry.API) (extract.DetailCache, func()) {
	if cfg.DetailCache.Disabled {
		return nil, func() {}
	}
	cache, err := detailcache.Open(detailcache.Options{
		Path: cfg.DetailCache.Path,
		TTL:  cfg.DetailCacheTTL(),
	}, tel)
	if err != nil {
		slog.Warn("detail cache unavailable, every detail page will be opened", "err", err.Error())
		return nil, func() {}
	}
	return cache, func() {
		if err := cache.Close(); err != nil {
			slog.Warn("failed to close detail cache", "err", err.Error())
		}
	}
}
