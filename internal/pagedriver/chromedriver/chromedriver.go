// Package chromedriver drives headless Chrome over the devtools protocol.
//
// Every session runs its own Chrome process so cookies and storage never leak between users.
// Pages are tabs of that process.
package chromedriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"runharvest/internal/pagedriver"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const idleScript = `document.readyState === "complete"`

type Options struct {
	Headless bool
	// ExecPath is looked up on PATH when empty.
	ExecPath  string
	UserAgent string
	// OpTimeout bounds element reads and clicks, defaults to 10 seconds.
	OpTimeout time.Duration
	// NavigateTimeout bounds waiting for a page's load event, defaults to 30 seconds.
	NavigateTimeout time.Duration
}

// ErrNavigateTimeout is returned by Page.Goto when the load event did not fire in time.
var ErrNavigateTimeout = errors.New("navigation timed out")

type Browser struct {
	opts Options
}

func NewBrowser(opts Options) *Browser {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}
	return &Browser{opts: opts}
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 900),
	)
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	return opts
}

func cookieParam(c pagedriver.Cookie) *network.CookieParam {
	param := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	switch c.SameSite {
	case "Strict":
		param.SameSite = network.CookieSameSiteStrict
	case "None":
		param.SameSite = network.CookieSameSiteNone
	default:
		param.SameSite = network.CookieSameSiteLax
	}
	if c.Expires > 0 {
		expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
		param.Expires = &expires
	}
	return param
}

func (b *Browser) NewSession(ctx context.Context, cookie pagedriver.Cookie) (pagedriver.Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	err := chromedp.Run(
		browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies([]*network.CookieParam{cookieParam(cookie)}).Do(ctx)
		}),
	)
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &session{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		opTimeout:     b.opts.OpTimeout,
		navTimeout:    b.opts.NavigateTimeout,
		pages:         map[*page]struct{}{},
	}, nil
}

type session struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	opTimeout     time.Duration
	navTimeout    time.Duration

	mu     sync.Mutex
	pages  map[*page]struct{} // tabs still open
	closed bool
}

func (s *session) NewPage(context.Context) (pagedriver.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// the first run creates the tab and must use the tab's own context, a derived one would
	// tear the tab down with it
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return s.track(tabCtx, cancel), nil
}

// track registers an open tab, the caller holds s.mu.
func (s *session) track(tabCtx context.Context, cancel context.CancelFunc) *page {
	p := &page{
		ctx:        tabCtx,
		cancel:     cancel,
		session:    s,
		opTimeout:  s.opTimeout,
		navTimeout: s.navTimeout,
	}
	s.pages[p] = struct{}{}
	return p
}

func (s *session) forget(p *page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, p)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for p := range s.pages {
		p.cancel()
	}
	s.pages = nil
	s.cancelBrowser()
	s.cancelAlloc()
	return nil
}

// run executes actions on the tab of tabCtx while honoring the deadline and cancellation of
// ctx, timeout > 0 bounds the run further.
func run(ctx, tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(tabCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type page struct {
	ctx        context.Context
	cancel     context.CancelFunc
	session    *session
	opTimeout  time.Duration
	navTimeout time.Duration
}

func (p *page) Goto(ctx context.Context, url string) error {
	err := run(ctx, p.ctx, p.navTimeout, chromedp.Navigate(url))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s after %s", ErrNavigateTimeout, url, p.navTimeout)
	}
	return err
}

func (p *page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (pagedriver.Element, error) {
	var nodes []*cdp.Node
	err := run(ctx, p.ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w", selector, pagedriver.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, pagedriver.ErrNotFound)
	}
	return &element{page: p, node: nodes[0]}, nil
}

func (p *page) QuerySelectorAll(ctx context.Context, selector string) ([]pagedriver.Element, error) {
	var nodes []*cdp.Node
	err := run(ctx, p.ctx, p.opTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	elements := make([]pagedriver.Element, len(nodes))
	for i, n := range nodes {
		elements[i] = &element{page: p, node: n}
	}
	return elements, nil
}

func (p *page) Evaluate(ctx context.Context, script string) error {
	return run(ctx, p.ctx, p.opTimeout, chromedp.Evaluate(script, nil))
}

func (p *page) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	var complete bool
	err := run(ctx, p.ctx, 0, chromedp.Poll(idleScript, &complete, chromedp.WithPollingTimeout(timeout)))
	if err != nil {
		return fmt.Errorf("wait for page load: %w", err)
	}
	return nil
}

func (p *page) Close() error {
	p.cancel()
	p.session.forget(p)
	return nil
}

type element struct {
	page *page
	node *cdp.Node
}

func (e *element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *element) QuerySelector(ctx context.Context, selector string) (pagedriver.Element, error) {
	var nodes []*cdp.Node
	err := run(ctx, e.page.ctx, e.page.opTimeout, chromedp.Nodes(
		selector, &nodes,
		chromedp.ByQuery,
		chromedp.FromNode(e.node),
		chromedp.AtLeast(0),
	))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &element{page: e.page, node: nodes[0]}, nil
}

func (e *element) Click(ctx context.Context) error {
	return run(ctx, e.page.ctx, e.page.opTimeout, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

func (e *element) TextContent(ctx context.Context) (string, error) {
	var text string
	err := run(ctx, e.page.ctx, e.page.opTimeout, chromedp.TextContent(e.ids(), &text, chromedp.ByNodeID))
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := run(ctx, e.page.ctx, e.page.opTimeout, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

func (e *element) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := run(ctx, e.page.ctx, e.page.opTimeout, chromedp.OuterHTML(e.ids(), &html, chromedp.ByNodeID))
	return html, err
}
