// Package fakesite is an in-memory activity site that implements the pagedriver contract
// over goquery documents. It renders the same markup the real site serves, so extraction
// can be exercised end to end without a browser.
package fakesite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"runharvest/internal/pagedriver"
)

// ErrStale is returned when an element is used after its page re-rendered.
var ErrStale = errors.New("stale element")

type Layout int

const (
	// LayoutTabPanel renders rows inside the visible tab panel.
	LayoutTabPanel Layout = iota
	// LayoutLegacyList renders rows in a ul.activity-list outside the tab panel.
	LayoutLegacyList
	// LayoutAfterScroll renders rows only once the page was scrolled to the bottom.
	LayoutAfterScroll
	// LayoutLoadMore renders PageSize rows until the load-more button is clicked.
	LayoutLoadMore
)

type Activity struct {
	ID       string
	Date     string
	Distance string
	Type     string
	Duration string
	Pace     string
	// NoLink renders the row anchor without an href.
	NoLink bool
	// BrokenDetail makes navigating to the detail page fail.
	BrokenDetail bool
}

type User struct {
	ID     string
	Layout Layout
	// Months maps a month token ("Jan-01-2025") to the rows of that month.
	Months map[string][]Activity
	// PageSize is the number of rows shown before load-more, LayoutLoadMore only.
	PageSize int
	// ShrinkAfter drops the last row of the month once this many detail pages of the user
	// were visited. Zero disables it.
	ShrinkAfter int
	// FailNavigation makes navigating to the activity list fail.
	FailNavigation bool
	// PanicOnNavigate makes navigating to the activity list panic.
	PanicOnNavigate bool
}

// Site is safe for concurrent use by many sessions.
type Site struct {
	BaseURL string
	// Cookie is the cookie value sessions must carry, empty accepts anything.
	Cookie string
	// RefuseSessions makes every NewSession fail.
	RefuseSessions bool
	// NavigationDelay is slept on every activity list navigation.
	NavigationDelay time.Duration

	users map[string]*User

	mu              sync.Mutex
	openSessions    int
	maxOpenSessions int
	sessionsOpened  int
	openPages       int
	maxSessionPages int
	detailVisits    map[string]int
	consentAccepted int
	cookies         []pagedriver.Cookie
}

func New(baseURL string, users ...*User) *Site {
	s := &Site{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		users:        make(map[string]*User, len(users)),
		detailVisits: map[string]int{},
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Site) NewSession(ctx context.Context, cookie pagedriver.Cookie) (pagedriver.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.RefuseSessions {
		return nil, fmt.Errorf("browser refused to start")
	}
	if s.Cookie != "" && cookie.Value != s.Cookie {
		return nil, fmt.Errorf("session cookie rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = append(s.cookies, cookie)
	s.sessionsOpened++
	s.openSessions++
	if s.openSessions > s.maxOpenSessions {
		s.maxOpenSessions = s.openSessions
	}
	return &session{site: s}, nil
}

// OpenPages is the number of pages not closed yet across every session.
func (s *Site) OpenPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPages
}

// OpenSessions is the number of sessions not closed yet.
func (s *Site) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openSessions
}

// MaxOpenSessions is the highest number of sessions that were open at once.
func (s *Site) MaxOpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpenSessions
}

// MaxSessionPages is the highest number of pages a single session had open at once.
func (s *Site) MaxSessionPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSessionPages
}

func (s *Site) SessionsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsOpened
}

// DetailVisits is the number of detail pages of userID that were navigated to.
func (s *Site) DetailVisits(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailVisits[userID]
}

func (s *Site) ConsentAccepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consentAccepted
}

// Cookies returns the cookie of every session opened so far.
func (s *Site) Cookies() []pagedriver.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pagedriver.Cookie(nil), s.cookies...)
}

func (s *Site) user(id string) (*User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *Site) findActivity(userID, activityID string) (Activity, bool) {
	u, ok := s.users[userID]
	if !ok {
		return Activity{}, false
	}
	for _, rows := range u.Months {
		for _, a := range rows {
			if a.ID == activityID {
				return a, true
			}
		}
	}
	return Activity{}, false
}

func (s *Site) recordDetailVisit(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailVisits[userID]++
}

func (s *Site) pageOpened(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPages++
	sess.pages++
	if sess.pages > s.maxSessionPages {
		s.maxSessionPages = sess.pages
	}
}

func (s *Site) pageClosed(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPages--
	sess.pages--
}

type session struct {
	site *Site

	// guarded by site.mu
	pages   int
	closed  bool
	open    []*page
	consent bool
}

func (s *session) NewPage(ctx context.Context) (pagedriver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.site.mu.Lock()
	closed := s.closed
	s.site.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("session closed")
	}

	p := &page{session: s}
	p.render()
	s.site.pageOpened(s)

	s.site.mu.Lock()
	s.open = append(s.open, p)
	s.site.mu.Unlock()
	return p, nil
}

func (s *session) Close() error {
	s.site.mu.Lock()
	if s.closed {
		s.site.mu.Unlock()
		return nil
	}
	s.closed = true
	open := s.open
	s.open = nil
	s.site.openSessions--
	s.site.mu.Unlock()

	for _, p := range open {
		p.Close()
	}
	return nil
}

func (s *session) acceptConsent() {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	if !s.consent {
		s.consent = true
		s.site.consentAccepted++
	}
}

func (s *session) consentGiven() bool {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	return s.consent
}

func sortedMonths(u *User) []string {
	tokens := make([]string, 0, len(u.Months))
	for token := range u.Months {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
