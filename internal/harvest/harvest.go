// Package harvest runs the extractor for every user of the roster, each in its own browser
// session, with bounded parallelism.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"runharvest/internal/assert"
	"runharvest/internal/dataset"
	"runharvest/internal/extract"
	"runharvest/internal/pagedriver"
	"runharvest/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("runharvest/internal/harvest")
var meter = otel.Meter("runharvest/internal/harvest")

// The global meter delegates to whatever provider is installed later and never fails to
// create an instrument, so the errors are discarded.
var activitiesCounter, _ = meter.Int64Counter(
	"harvested_activities",
	metric.WithDescription("activities read from the activity lists"),
)
var failedUsersCounter, _ = meter.Int64Counter(
	"failed_users",
	metric.WithDescription("users whose harvest failed outright"),
)

const (
	report_harvest_user = "orchestrator.harvest-user"
	report_summary      = "orchestrator.summary"
)

// DefaultConcurrency is the number of sessions run at once when none is configured.
const DefaultConcurrency = 4

// UserResult is the harvest of one user. Failed is set when the user's activity list could
// not be harvested to the end, Activities is then empty.
type UserResult struct {
	User       extract.User
	Activities []dataset.Activity
	Failed     bool
	Err        error
	Elapsed    time.Duration
}

// Progress is emitted every time a user's harvest completes.
type Progress struct {
	Completed  int
	Total      int
	Name       string
	Activities int
	Failed     bool
	Elapsed    time.Duration
}

type Result struct {
	// Users are in completion order.
	Users   []UserResult
	Elapsed time.Duration
}

// Activities maps every user's display name to its activities, failed users included.
func (r Result) Activities() map[string][]dataset.Activity {
	out := make(map[string][]dataset.Activity, len(r.Users))
	for _, u := range r.Users {
		out[u.User.Name] = u.Activities
	}
	return out
}

// Fresh is the harvest handed to the merge. With excludeFailed, users whose harvest failed
// are left out so their previously stored activities survive an incremental merge.
func (r Result) Fresh(excludeFailed bool) map[string][]dataset.Activity {
	out := make(map[string][]dataset.Activity, len(r.Users))
	for _, u := range r.Users {
		if excludeFailed && u.Failed {
			continue
		}
		out[u.User.Name] = u.Activities
	}
	return out
}

// Interrupted reports whether any user was cut short by the harvest's context ending.
func (r Result) Interrupted() bool {
	for _, u := range r.Users {
		if errors.Is(u.Err, extract.ErrInterrupted) {
			return true
		}
	}
	return false
}

func (r Result) Failed() []extract.User {
	var out []extract.User
	for _, u := range r.Users {
		if u.Failed {
			out = append(out, u.User)
		}
	}
	return out
}

func (r Result) TotalActivities() int {
	n := 0
	for _, u := range r.Users {
		n += len(u.Activities)
	}
	return n
}

type Options struct {
	Concurrency int
	// OnProgress is called from the aggregating goroutine, one call at a time.
	OnProgress func(Progress)
}

type Orchestrator struct {
	browser   pagedriver.Browser
	extractor *extract.Extractor
	opts      Options
	tel       telemetry.API
}

func New(browser pagedriver.Browser, extractor *extract.Extractor, opts Options, tel telemetry.API) *Orchestrator {
	assert.NotNil(browser, "browser")
	assert.NotNil(extractor, "extractor")
	assert.NotNil(tel, "telemetry")
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		browser:   browser,
		extractor: extractor,
		opts:      opts,
		tel:       telemetry.NewScopedAPI("harvest", tel),
	}
}

// Harvest runs every user through its own session, at most Concurrency at once. Every user
// ends up in the result exactly once, whatever happened to its session.
func (o *Orchestrator) Harvest(ctx context.Context, users []extract.User, months []extract.MonthToken, cookie pagedriver.Cookie) Result {
	ctx, span := tracer.Start(ctx, "Orchestrator.Harvest", trace.WithAttributes(
		attribute.Int("users", len(users)),
		attribute.Int("months", len(months)),
		attribute.Int("concurrency", o.opts.Concurrency),
	))
	defer span.End()

	start := time.Now()
	results := make(chan UserResult)

	go func() {
		g := errgroup.Group{}
		g.SetLimit(o.opts.Concurrency)
		for _, user := range users {
			user := user
			g.Go(func() error {
				results <- o.harvestUser(ctx, user, months, cookie)
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	out := Result{Users: make([]UserResult, 0, len(users))}
	for res := range results {
		out.Users = append(out.Users, res)
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(Progress{
				Completed:  len(out.Users),
				Total:      len(users),
				Name:       res.User.Name,
				Activities: len(res.Activities),
				Failed:     res.Failed,
				Elapsed:    time.Since(start),
			})
		}
	}
	out.Elapsed = time.Since(start)

	o.summarize(out)
	span.SetAttributes(attribute.Int("activities", out.TotalActivities()))
	return out
}

func (o *Orchestrator) summarize(res Result) {
	average := time.Duration(0)
	if len(res.Users) > 0 {
		average = res.Elapsed / time.Duration(len(res.Users))
	}
	o.tel.ReportDebug(
		"harvest finished",
		"users", len(res.Users),
		"failed", len(res.Failed()),
		"activities", res.TotalActivities(),
		"elapsed", res.Elapsed.Round(time.Millisecond).String(),
		"average", average.Round(time.Millisecond).String(),
	)
	o.tel.ReportCount(report_summary, int64(res.TotalActivities()))
}

func (o *Orchestrator) harvestUser(ctx context.Context, user extract.User, months []extract.MonthToken, cookie pagedriver.Cookie) (res UserResult) {
	ctx, span := tracer.Start(ctx, "Orchestrator.harvestUser", trace.WithAttributes(
		attribute.String("user", user.Name),
	))
	start := time.Now()

	res = UserResult{User: user, Activities: []dataset.Activity{}}
	defer func() {
		if p := recover(); p != nil {
			res.Activities = []dataset.Activity{}
			res.Failed = true
			res.Err = fmt.Errorf("panic: %v", p)
			o.tel.ReportBroken(report_harvest_user, res.Err, user.Name, string(debug.Stack()))
		}
		res.Elapsed = time.Since(start)

		attrs := metric.WithAttributes(attribute.String("user", user.Name))
		activitiesCounter.Add(ctx, int64(len(res.Activities)), attrs)
		if res.Failed {
			failedUsersCounter.Add(ctx, 1, attrs)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.SetAttributes(attribute.Int("activities", len(res.Activities)))
		span.End()
	}()

	fail := func(err error) UserResult {
		o.tel.ReportBroken(report_harvest_user, err, user.Name)
		return UserResult{User: user, Activities: []dataset.Activity{}, Failed: true, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %s: %w", extract.ErrInterrupted, user.Name, err))
	}

	session, err := o.browser.NewSession(ctx, cookie)
	if err != nil {
		return fail(fmt.Errorf("open session: %w", err))
	}
	defer session.Close()

	page, err := session.NewPage(ctx)
	if err != nil {
		return fail(fmt.Errorf("open page: %w", err))
	}
	defer page.Close()

	if err := o.extractor.OpenLanding(ctx, page); err != nil {
		return fail(err)
	}

	activities, err := o.extractor.Run(ctx, session, page, user, months)
	if err != nil {
		// partial months would overwrite complete stored ones
		return UserResult{User: user, Activities: []dataset.Activity{}, Failed: true, Err: err}
	}
	o.tel.ReportDebug("user harvested", user.Name, len(activities))
	return UserResult{User: user, Activities: activities}
}
