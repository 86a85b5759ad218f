// Package pagedriver is the contract between the extractor and whatever drives a real page.
//
// A Browser hands out isolated sessions, a session owns pages, a page owns elements.
// Elements are only valid until the page's document changes, callers re-query instead of
// holding on to them across navigation or clicks.
package pagedriver

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by waits that time out before their selector matches.
var ErrNotFound = errors.New("selector not found")

// SessionExpiry is the Expires value of a cookie that only lives for the session.
const SessionExpiry = -1

// Cookie is the credential injected into every session. Expires is seconds since the unix
// epoch or SessionExpiry.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	Secure   bool
	HTTPOnly bool
	SameSite string
}

type Browser interface {
	// NewSession starts an isolated browsing context (own cookies, storage and pages) with
	// cookie already set.
	NewSession(ctx context.Context, cookie Cookie) (Session, error)
}

type Session interface {
	NewPage(ctx context.Context) (Page, error)
	// Close closes every page of the session and releases it.
	Close() error
}

type Page interface {
	Goto(ctx context.Context, url string) error
	// WaitForSelector waits up to timeout for selector to match, it returns ErrNotFound
	// when it never does.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// QuerySelectorAll returns the current matches of selector, possibly none.
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Evaluate(ctx context.Context, script string) error
	// WaitForIdle waits up to timeout for the page to finish loading.
	WaitForIdle(ctx context.Context, timeout time.Duration) error
	Close() error
}

type Element interface {
	// QuerySelector returns the first descendant matching selector, nil when there is none.
	QuerySelector(ctx context.Context, selector string) (Element, error)
	Click(ctx context.Context) error
	TextContent(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	OuterHTML(ctx context.Context) (string, error)
}
