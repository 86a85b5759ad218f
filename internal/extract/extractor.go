// Package extract walks one user's activity history through a page driver session, month by
// month and activity by activity.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"runharvest/internal/assert"
	"runharvest/internal/dataset"
	"runharvest/internal/pagedriver"
	"runharvest/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("runharvest/internal/extract")

const (
	report_navigate_user  = "extractor.navigate-user"
	report_open_landing   = "extractor.open-landing"
	report_select_month   = "extractor.select-month"
	report_enumerate      = "extractor.enumerate"
	report_read_activity  = "extractor.read-activity"
	report_close_detail   = "extractor.close-detail"
	report_parse_distance = "extractor.parse-distance"
	report_load_more      = "extractor.load-more"
	report_consent        = "consent.dismiss"
)

// ErrUserFailed is returned by Run when the user's activity list could not be opened.
var ErrUserFailed = errors.New("user harvest failed")

// ErrInterrupted is returned by Run when ctx ends before every month was harvested. The
// activities returned with it are incomplete and must not replace stored months.
var ErrInterrupted = errors.New("user harvest interrupted")

var errNoActivities = errors.New("no activities in month")

// User is one roster entry.
type User struct {
	ID   string
	Name string
}

// Detail is what the detail page of an activity adds to its row.
type Detail struct {
	Duration string `json:"duration"`
	Pace     string `json:"pace"`
}

// DetailCache remembers details by activity link. Implementations swallow their own errors.
type DetailCache interface {
	Get(ctx context.Context, link string) (Detail, bool)
	Put(ctx context.Context, link string, d Detail)
}

type Config struct {
	BaseURL string
	// MonthTimeout bounds the wait for a month tab.
	MonthTimeout time.Duration
	// ListTimeout bounds the wait for the month's activity list.
	ListTimeout time.Duration
	// IdleTimeout bounds every wait for a page to finish loading.
	IdleTimeout time.Duration
	// DetailTimeout bounds the wait for each detail field.
	DetailTimeout time.Duration
	// ConsentTimeout bounds the wait for the cookie consent banner.
	ConsentTimeout time.Duration
	// Settle is slept after clicks and scrolls that trigger client side rendering.
	Settle time.Duration
	// DetailInterval is the minimum spacing between detail page opens of one session.
	DetailInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://runkeeper.com",
		MonthTimeout:   5 * time.Second,
		ListTimeout:    10 * time.Second,
		IdleTimeout:    10 * time.Second,
		DetailTimeout:  5 * time.Second,
		ConsentTimeout: 5 * time.Second,
		Settle:         2 * time.Second,
		DetailInterval: 500 * time.Millisecond,
	}
}

type Extractor struct {
	cfg   Config
	base  *url.URL
	cache DetailCache
	tel   telemetry.API
}

// New creates an Extractor, cache may be nil.
func New(cfg Config, cache DetailCache, tel telemetry.API) (*Extractor, error) {
	assert.NotNil(tel, "telemetry")
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	return &Extractor{
		cfg:   cfg,
		base:  base,
		cache: cache,
		tel:   telemetry.NewScopedAPI("extract", tel),
	}, nil
}

func (e *Extractor) ActivityListURL(userID string) string {
	return fmt.Sprintf("%s/user/%s/activitylist", e.base.String(), url.PathEscape(userID))
}

// OpenLanding navigates page to the site's landing page and dismisses the cookie consent
// banner when one shows up.
func (e *Extractor) OpenLanding(ctx context.Context, page pagedriver.Page) error {
	if err := page.Goto(ctx, e.base.String()); err != nil {
		e.tel.ReportBroken(report_open_landing, err)
		return fmt.Errorf("open landing page: %w", err)
	}
	e.DismissConsent(ctx, page)
	return nil
}

// Run harvests months of user with page, opening detail pages in session. It returns
// ErrUserFailed when the activity list itself could not be reached and ErrInterrupted when
// ctx ends before it is done. Everything else that goes wrong is reported and skipped.
func (e *Extractor) Run(ctx context.Context, session pagedriver.Session, page pagedriver.Page, user User, months []MonthToken) ([]dataset.Activity, error) {
	assert.NotNil(session, "session")
	assert.NotNil(page, "page")

	ctx, span := tracer.Start(ctx, "Extractor.Run", trace.WithAttributes(
		attribute.String("user", user.Name),
		attribute.Int("months", len(months)),
	))
	defer span.End()

	limit := rate.Inf
	if e.cfg.DetailInterval > 0 {
		limit = rate.Every(e.cfg.DetailInterval)
	}
	r := &run{
		Extractor:  e,
		session:    session,
		page:       page,
		user:       user,
		limiter:    rate.NewLimiter(limit, 1),
		activities: []dataset.Activity{},
	}

	if o := r.navigateUser(ctx); !o.OK() {
		e.tel.ReportBroken(report_navigate_user, o.Reason, user.Name, user.ID, UserFailed.String())
		span.SetStatus(codes.Error, o.Reason.Error())
		return r.activities, fmt.Errorf("%w: %s: %w", ErrUserFailed, user.Name, o.Reason)
	}

	for _, month := range months {
		if ctx.Err() != nil {
			break
		}
		n := r.harvestMonth(ctx, month)
		e.tel.ReportDebug("month harvested", user.Name, month.String(), n)
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return r.activities, fmt.Errorf("%w: %s: %w", ErrInterrupted, user.Name, err)
	}

	span.SetAttributes(attribute.Int("activities", len(r.activities)))
	return r.activities, nil
}

// run is the state of one Run call.
type run struct {
	*Extractor
	session    pagedriver.Session
	page       pagedriver.Page
	user       User
	limiter    *rate.Limiter
	activities []dataset.Activity
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (r *run) navigateUser(ctx context.Context) Outcome[struct{}] {
	target := r.ActivityListURL(r.user.ID)
	if err := r.page.Goto(ctx, target); err != nil {
		return Failed[struct{}](NavigatingUser, fmt.Errorf("goto %s: %w", target, err))
	}
	if err := r.page.WaitForIdle(ctx, r.cfg.IdleTimeout); err != nil {
		return Failed[struct{}](NavigatingUser, fmt.Errorf("wait for %s: %w", target, err))
	}
	return OK(NavigatingUser, struct{}{})
}

func (r *run) harvestMonth(ctx context.Context, month MonthToken) int {
	ctx, span := tracer.Start(ctx, "harvestMonth", trace.WithAttributes(
		attribute.String("month", month.String()),
	))
	defer span.End()

	if o := r.selectMonth(ctx, month); !o.OK() {
		r.skipMonth(month, o.State, o.Reason)
		return 0
	}
	list := r.discoverList(ctx, month)
	if !list.OK() {
		r.skipMonth(month, list.State, list.Reason)
		return 0
	}

	count := 0
	for index := 0; ; index++ {
		// the list is re-read for every index, opening a detail page can re-render it
		items, err := r.page.QuerySelectorAll(ctx, list.Value)
		if err != nil {
			r.tel.ReportWarning(report_enumerate, err, r.user.Name, month.String(), index, EnumeratingActivities.String())
			break
		}
		if index >= len(items) {
			r.tel.ReportDebug("month exhausted", r.user.Name, month.String(), index, MonthExhausted.String())
			break
		}

		o := r.readActivity(ctx, items[index], month)
		if !o.OK() {
			r.tel.ReportWarning(report_read_activity, o.Reason, r.user.Name, month.String(), index, o.State.String())
			continue
		}
		r.activities = append(r.activities, o.Value)
		count++
	}
	span.SetAttributes(attribute.Int("activities", count))
	return count
}

func (r *run) skipMonth(month MonthToken, state State, reason error) {
	if errors.Is(reason, errNoActivities) {
		r.tel.ReportDebug("month has no activities", r.user.Name, month.String(), MonthExhausted.String())
		return
	}
	r.tel.ReportWarning(report_select_month, reason, r.user.Name, month.String(), state.String())
}

func (r *run) selectMonth(ctx context.Context, month MonthToken) Outcome[struct{}] {
	tab, err := r.page.WaitForSelector(ctx, month.Selector(), r.cfg.MonthTimeout)
	if err != nil {
		return Skipped[struct{}](SelectingMonth, fmt.Errorf("month tab %s: %w", month, err))
	}
	if err := tab.Click(ctx); err != nil {
		return Skipped[struct{}](SelectingMonth, fmt.Errorf("click month tab %s: %w", month, err))
	}
	sleep(ctx, r.cfg.Settle)

	if err := r.page.WaitForIdle(ctx, r.cfg.IdleTimeout); err != nil {
		return Skipped[struct{}](WaitingForList, fmt.Errorf("wait for idle: %w", err))
	}
	if _, err := r.page.WaitForSelector(ctx, monthListSelector, r.cfg.ListTimeout); err != nil {
		return Skipped[struct{}](WaitingForList, fmt.Errorf("activity list: %w", err))
	}
	return OK(SelectingMonth, struct{}{})
}

// discoverList finds the selector that matches the month's rows.
func (r *run) discoverList(ctx context.Context, month MonthToken) Outcome[string] {
	selector, err := r.firstMatching(ctx, listSelectors)
	if err != nil {
		return Skipped[string](EnumeratingActivities, err)
	}

	if selector == "" {
		if err := r.page.Evaluate(ctx, scrollScript); err != nil {
			r.tel.ReportWarning(report_enumerate, fmt.Errorf("scroll: %w", err), r.user.Name, month.String(), EnumeratingActivities.String())
		}
		sleep(ctx, r.cfg.Settle)

		items, err := r.page.QuerySelectorAll(ctx, listSelectors[0])
		if err != nil {
			return Skipped[string](EnumeratingActivities, err)
		}
		if len(items) == 0 {
			return Skipped[string](MonthExhausted, errNoActivities)
		}
		selector = listSelectors[0]
	}

	r.loadMore(ctx, month)
	return OK(EnumeratingActivities, selector)
}

// firstMatching returns the first selector with at least one match, empty when none has.
func (r *run) firstMatching(ctx context.Context, selectors []string) (string, error) {
	for _, selector := range selectors {
		items, err := r.page.QuerySelectorAll(ctx, selector)
		if err != nil {
			return "", err
		}
		if len(items) > 0 {
			return selector, nil
		}
	}
	return "", nil
}

func (r *run) loadMore(ctx context.Context, month MonthToken) {
	for _, selector := range loadMoreSelectors {
		buttons, err := r.page.QuerySelectorAll(ctx, selector)
		if err != nil || len(buttons) == 0 {
			continue
		}
		if err := buttons[0].Click(ctx); err != nil {
			r.tel.ReportWarning(report_load_more, err, r.user.Name, month.String(), selector)
			return
		}
		sleep(ctx, r.cfg.Settle)
		return
	}
}

func (r *run) readActivity(ctx context.Context, item pagedriver.Element, month MonthToken) Outcome[dataset.Activity] {
	outer, err := item.OuterHTML(ctx)
	if err != nil {
		return Skipped[dataset.Activity](EnumeratingActivities, fmt.Errorf("read row: %w", err))
	}
	row, err := parseRow(ctx, outer, r.base)
	if err != nil {
		return Skipped[dataset.Activity](EnumeratingActivities, err)
	}

	detail := r.readDetail(ctx, row.link)
	if !detail.OK() {
		return Skipped[dataset.Activity](detail.State, detail.Reason)
	}

	activity := row.activity(month)
	if activity.Distance == nil {
		r.tel.ReportWarning(report_parse_distance, fmt.Errorf("unreadable distance %q", row.distance), r.user.Name, month.String(), row.link)
	}
	activity.Duration = detail.Value.Duration
	activity.Pace = detail.Value.Pace
	return OK(EnumeratingActivities, activity)
}

func (r *run) readDetail(ctx context.Context, link string) Outcome[Detail] {
	if r.cache != nil {
		if d, ok := r.cache.Get(ctx, link); ok {
			return OK(ReadingDetail, d)
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return Skipped[Detail](OpeningDetail, err)
	}
	detailPage, err := r.session.NewPage(ctx)
	if err != nil {
		return Skipped[Detail](OpeningDetail, fmt.Errorf("new page: %w", err))
	}
	defer r.closeDetail(detailPage, link)

	if err := detailPage.Goto(ctx, link); err != nil {
		return Skipped[Detail](OpeningDetail, fmt.Errorf("goto %s: %w", link, err))
	}
	if err := detailPage.WaitForIdle(ctx, r.cfg.IdleTimeout); err != nil {
		return Skipped[Detail](OpeningDetail, fmt.Errorf("wait for %s: %w", link, err))
	}

	d := Detail{
		Duration: r.readField(ctx, detailPage, durationSelector),
		Pace:     r.readField(ctx, detailPage, paceSelector),
	}
	if r.cache != nil && (d.Duration != dataset.NotAvailable || d.Pace != dataset.NotAvailable) {
		r.cache.Put(ctx, link, d)
	}
	return OK(ReadingDetail, d)
}

func (r *run) readField(ctx context.Context, page pagedriver.Page, selector string) string {
	el, err := page.WaitForSelector(ctx, selector, r.cfg.DetailTimeout)
	if err != nil {
		return dataset.NotAvailable
	}
	text, err := el.TextContent(ctx)
	if err != nil {
		return dataset.NotAvailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return dataset.NotAvailable
	}
	return text
}

func (r *run) closeDetail(page pagedriver.Page, link string) {
	if err := page.Close(); err != nil {
		r.tel.ReportWarning(report_close_detail, err, r.user.Name, link, ClosingDetail.String())
	}
}
