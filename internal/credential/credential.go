// Package credential finds the session cookie that authenticates harvesting sessions.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"runharvest/internal/pagedriver"
	"runharvest/internal/telemetry"
)

const (
	report_fetch_remote = "fetch.remote"
	report_fetch_local  = "fetch.local"
	report_sync_remote  = "fetch.sync-remote"
)

// DefaultCookieName is the cookie that carries the site's login session.
const DefaultCookieName = "checker"

// ErrNoCredential is returned by Fetch when no source has the cookie.
var ErrNoCredential = errors.New("no session cookie found in any source")

// ErrReadOnly is returned by providers that cannot store cookies.
var ErrReadOnly = errors.New("credential source is read-only")

// RawCookie is a cookie as stored by a credential source. Expires is seconds since the unix
// epoch, nil when the cookie has no usable expiry.
type RawCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  *int64 `json:"expires"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

func (c *RawCookie) UnmarshalJSON(buf []byte) error {
	var wire struct {
		Name     string   `json:"name"`
		Value    string   `json:"value"`
		Domain   string   `json:"domain"`
		Path     string   `json:"path"`
		Expires  *float64 `json:"expires"`
		Secure   bool     `json:"secure"`
		HTTPOnly bool     `json:"httpOnly"`
	}
	if err := json.Unmarshal(buf, &wire); err != nil {
		return err
	}
	*c = RawCookie{
		Name:     wire.Name,
		Value:    wire.Value,
		Domain:   wire.Domain,
		Path:     wire.Path,
		Secure:   wire.Secure,
		HTTPOnly: wire.HTTPOnly,
	}
	if wire.Expires != nil {
		c.Expires = ValidExpiry(int64(math.Floor(*wire.Expires)))
	}
	return nil
}

// ValidExpiry returns nil for expiries outside of the signed 32-bit unix range.
func ValidExpiry(expires int64) *int64 {
	if expires < 0 || expires > math.MaxInt32 {
		return nil
	}
	return &expires
}

// Redacted is the cookie value safe to print.
func (c RawCookie) Redacted() string {
	if len(c.Value) <= 8 {
		return "********"
	}
	return c.Value[:4] + "…" + c.Value[len(c.Value)-4:]
}

// Provider is a place a cookie can be read from and, for some, written to. Get returns
// nil, nil when the source is reachable but does not hold the cookie.
type Provider interface {
	Get(ctx context.Context) (*RawCookie, error)
	Put(ctx context.Context, cookie RawCookie) error
}

type Source string

const (
	SourceRemote Source = "secret-store"
	SourceLocal  Source = "firefox"
)

type FetchOptions struct {
	// SyncToRemote stores a cookie found locally in the remote source.
	SyncToRemote bool
}

// Fetch reads the cookie from remote and falls back to local, either may be nil.
func Fetch(ctx context.Context, remote, local Provider, opts FetchOptions, tel telemetry.API) (RawCookie, Source, error) {
	tel = telemetry.NewScopedAPI("credential", tel)

	if remote != nil {
		cookie, err := remote.Get(ctx)
		switch {
		case err != nil:
			tel.ReportWarning(report_fetch_remote, err)
		case cookie == nil || cookie.Value == "":
			tel.ReportDebug("cookie not in remote source")
		default:
			tel.ReportDebug("cookie found", describe(*cookie), SourceRemote)
			return *cookie, SourceRemote, nil
		}
	}

	if local != nil {
		cookie, err := local.Get(ctx)
		switch {
		case err != nil:
			tel.ReportWarning(report_fetch_local, err)
		case cookie == nil || cookie.Value == "":
			tel.ReportDebug("cookie not in local source")
		default:
			if opts.SyncToRemote && remote != nil {
				if err := remote.Put(ctx, *cookie); err != nil {
					tel.ReportWarning(report_sync_remote, err)
				}
			}
			tel.ReportDebug("cookie found", describe(*cookie), SourceLocal)
			return *cookie, SourceLocal, nil
		}
	}

	return RawCookie{}, "", ErrNoCredential
}

// Adapt converts a stored cookie into the shape sessions are created with.
func Adapt(c RawCookie, defaultName string) pagedriver.Cookie {
	name := c.Name
	if name == "" {
		name = defaultName
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	expires := float64(pagedriver.SessionExpiry)
	if c.Expires != nil && *c.Expires != 0 {
		expires = float64(*c.Expires)
	}
	return pagedriver.Cookie{
		Name:     name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     path,
		Expires:  expires,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: "Lax",
	}
}

func describe(c RawCookie) string {
	return fmt.Sprintf("%s=%s (domain %s)", c.Name, c.Redacted(), c.Domain)
}
