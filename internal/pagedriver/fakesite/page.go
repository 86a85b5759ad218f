package fakesite

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"runharvest/internal/pagedriver"

	"github.com/PuerkitoBio/goquery"
)

var (
	listPath   = regexp.MustCompile(`^/user/([^/]+)/activitylist/?$`)
	detailPath = regexp.MustCompile(`^/user/([^/]+)/activity/([^/]+)/?$`)
)

type view int

const (
	viewBlank view = iota
	viewLanding
	viewList
	viewDetail
)

type page struct {
	session *session
	closed  bool

	view       view
	user       *User
	month      string
	scrolled   bool
	loadedMore bool
	detail     Activity

	doc          *goquery.Document
	gen          int
	renderedRows int
}

func (p *page) site() *Site {
	return p.session.site
}

func (p *page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed {
		return fmt.Errorf("page closed")
	}
	return nil
}

func (p *page) Goto(ctx context.Context, url string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	site := p.site()
	path := strings.TrimPrefix(url, site.BaseURL)
	if path == url && strings.HasPrefix(url, "http") {
		return fmt.Errorf("GET %s: unknown host", url)
	}

	if path == "" || path == "/" {
		p.view = viewLanding
		p.render()
		return nil
	}

	if m := listPath.FindStringSubmatch(path); m != nil {
		u, ok := site.user(m[1])
		if !ok {
			return fmt.Errorf("GET %s: 404", url)
		}
		if u.PanicOnNavigate {
			panic(fmt.Sprintf("renderer crashed on %s", url))
		}
		if site.NavigationDelay > 0 {
			select {
			case <-time.After(site.NavigationDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if u.FailNavigation {
			return fmt.Errorf("GET %s: net::ERR_CONNECTION_RESET", url)
		}
		p.view = viewList
		p.user = u
		p.month = ""
		p.scrolled = false
		p.loadedMore = false
		p.render()
		return nil
	}

	if m := detailPath.FindStringSubmatch(path); m != nil {
		a, ok := site.findActivity(m[1], m[2])
		if !ok {
			return fmt.Errorf("GET %s: 404", url)
		}
		site.recordDetailVisit(m[1])
		if a.BrokenDetail {
			return fmt.Errorf("GET %s: net::ERR_TIMED_OUT", url)
		}
		p.view = viewDetail
		p.detail = a
		p.render()
		return nil
	}

	return fmt.Errorf("GET %s: 404", url)
}

// refresh re-renders the list when rows appeared or vanished since the last render, like
// a live document would.
func (p *page) refresh() {
	if p.view == viewList && len(p.visibleRows()) != p.renderedRows {
		p.render()
	}
}

func (p *page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (pagedriver.Element, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.refresh()
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("wait for %s: %w", selector, pagedriver.ErrNotFound)
	}
	return p.element(sel.First()), nil
}

func (p *page) QuerySelectorAll(ctx context.Context, selector string) ([]pagedriver.Element, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.refresh()
	var out []pagedriver.Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, p.element(s))
	})
	return out, nil
}

func (p *page) Evaluate(ctx context.Context, script string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if strings.Contains(script, "scrollTo") {
		p.scrolled = true
		p.render()
	}
	return nil
}

func (p *page) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	return p.check(ctx)
}

func (p *page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.site().pageClosed(p.session)
	return nil
}

func (p *page) element(sel *goquery.Selection) *element {
	return &element{page: p, gen: p.gen, sel: sel}
}

func (p *page) visibleRows() []Activity {
	if p.user == nil || p.month == "" {
		return nil
	}
	rows := p.user.Months[p.month]
	if p.user.ShrinkAfter > 0 && len(rows) > 0 && p.site().DetailVisits(p.user.ID) >= p.user.ShrinkAfter {
		rows = rows[:len(rows)-1]
	}
	switch p.user.Layout {
	case LayoutAfterScroll:
		if !p.scrolled {
			return nil
		}
	case LayoutLoadMore:
		if !p.loadedMore && p.user.PageSize < len(rows) {
			return rows[:p.user.PageSize]
		}
	}
	return rows
}

func (p *page) render() {
	var b strings.Builder
	b.WriteString("<html><head><title>Runkeeper</title></head><body>")

	switch p.view {
	case viewLanding:
		b.WriteString(`<main class="landing"><h1>Runkeeper</h1></main>`)
		if !p.session.consentGiven() {
			b.WriteString(`<div id="onetrust-banner-sdk"><p>We use cookies</p>` +
				`<button id="onetrust-accept-btn-handler">Accept All Cookies</button></div>`)
		}
	case viewList:
		p.renderList(&b)
	case viewDetail:
		b.WriteString(`<section class="activity-detail">`)
		if p.detail.Duration != "" {
			fmt.Fprintf(&b, `<div id="totalDuration"><h1><span>%s</span></h1><p>Duration</p></div>`, html.EscapeString(p.detail.Duration))
		}
		if p.detail.Pace != "" {
			fmt.Fprintf(&b, `<div id="averagePace"><h1><span>%s</span></h1><p>Pace</p></div>`, html.EscapeString(p.detail.Pace))
		}
		b.WriteString(`</section>`)
	}

	b.WriteString("</body></html>")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		panic(err)
	}
	p.doc = doc
	p.gen++
}

func (p *page) renderList(b *strings.Builder) {
	b.WriteString(`<nav class="month-tabs">`)
	for _, token := range sortedMonths(p.user) {
		fmt.Fprintf(b, `<a class="month-tab" data-date="%s">%s</a>`, token, token[:3])
	}
	b.WriteString(`</nav>`)

	rows := p.visibleRows()
	p.renderedRows = len(rows)
	if p.user.Layout == LayoutLegacyList {
		b.WriteString(`<div role="tabpanel" aria-hidden="false"><ul class="summary"></ul></div>`)
		b.WriteString(`<ul class="activity-list">`)
		p.renderRows(b, rows)
		b.WriteString(`</ul>`)
		return
	}

	b.WriteString(`<div role="tabpanel" aria-hidden="true"><ul></ul></div>`)
	b.WriteString(`<div role="tabpanel" aria-hidden="false"><ul>`)
	p.renderRows(b, rows)
	b.WriteString(`</ul>`)
	if p.user.Layout == LayoutLoadMore && !p.loadedMore && p.month != "" && len(p.user.Months[p.month]) > p.user.PageSize {
		b.WriteString(`<button class="load-more">Load more</button>`)
	}
	b.WriteString(`</div>`)
}

func (p *page) renderRows(b *strings.Builder, rows []Activity) {
	for _, a := range rows {
		b.WriteString(`<li class="activity-item">`)
		if a.NoLink {
			b.WriteString(`<a>`)
		} else {
			fmt.Fprintf(b, `<a href="/user/%s/activity/%s">`, p.user.ID, a.ID)
		}
		if a.Date != "" {
			fmt.Fprintf(b, `<span class="startDate">%s</span> `, html.EscapeString(a.Date))
		}
		if a.Distance != "" {
			fmt.Fprintf(b, `<span class="unitDistance">%s</span> `, html.EscapeString(a.Distance))
		}
		fmt.Fprintf(b, `<span class="activityType">%s</span>`, html.EscapeString(a.Type))
		b.WriteString(`</a></li>`)
	}
}

type element struct {
	page *page
	gen  int
	sel  *goquery.Selection
}

func (e *element) check(ctx context.Context) error {
	if err := e.page.check(ctx); err != nil {
		return err
	}
	if e.gen != e.page.gen {
		return ErrStale
	}
	return nil
}

func (e *element) QuerySelector(ctx context.Context, selector string) (pagedriver.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, nil
	}
	return e.page.element(found), nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	p := e.page
	if token, ok := e.sel.Attr("data-date"); ok {
		p.month = token
		p.scrolled = false
		p.loadedMore = false
		p.render()
		return nil
	}
	if e.sel.Is(".load-more, .show-more") {
		p.loadedMore = true
		p.render()
		return nil
	}
	if e.sel.Is("#onetrust-accept-btn-handler") {
		p.session.acceptConsent()
		p.render()
		return nil
	}
	return nil
}

func (e *element) TextContent(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(ctx); err != nil {
		return "", false, err
	}
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (e *element) OuterHTML(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return goquery.OuterHtml(e.sel)
}
