package chromedriver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"runharvest/internal/pagedriver"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

const listPage = `<!doctype html>
<html><body>
<ul class="activityMonth">
	<li class="activity-item"><a href="/user/bruce/activity/1"><span class="startDate">5</span><span class="unitDistance">3.10 mi</span></a></li>
	<li class="activity-item"><a href="/user/bruce/activity/2"><span class="startDate">9</span><span class="unitDistance">5.00 km</span></a></li>
</ul>
<button id="more" onclick="document.body.dataset.clicked = 'yes'">more</button>
</body></html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("chrome is not installed")
	return ""
}

func TestCookieParam(t *testing.T) {
	param := cookieParam(pagedriver.Cookie{
		Name:    "checker",
		Value:   "v",
		Domain:  ".runkeeper.com",
		Path:    "/",
		Expires: 1900000000,
		Secure:  true,
	})
	require.Equal(t, network.CookieSameSiteLax, param.SameSite)
	require.NotNil(t, param.Expires)
	require.Equal(t, int64(1900000000), param.Expires.Time().Unix())

	session := cookieParam(pagedriver.Cookie{Name: "checker", Expires: pagedriver.SessionExpiry, SameSite: "Strict"})
	require.Nil(t, session.Expires)
	require.Equal(t, network.CookieSameSiteStrict, session.SameSite)
}

func TestNewBrowserDefaults(t *testing.T) {
	b := NewBrowser(Options{})
	require.Equal(t, 10*time.Second, b.opts.OpTimeout)
	require.Equal(t, 30*time.Second, b.opts.NavigateTimeout)

	b = NewBrowser(Options{OpTimeout: time.Second, NavigateTimeout: 5 * time.Second})
	require.Equal(t, time.Second, b.opts.OpTimeout)
	require.Equal(t, 5*time.Second, b.opts.NavigateTimeout)
}

func TestSessionForgetsClosedPages(t *testing.T) {
	s := &session{pages: map[*page]struct{}{}, navTimeout: time.Second}

	var cancelled []int
	var pages []*page
	s.mu.Lock()
	for i := 0; i < 3; i++ {
		i := i
		pages = append(pages, s.track(context.Background(), func() { cancelled = append(cancelled, i) }))
	}
	s.mu.Unlock()
	require.Len(t, s.pages, 3)
	require.Equal(t, time.Second, pages[0].navTimeout)

	require.NoError(t, pages[1].Close())
	require.Len(t, s.pages, 2)
	require.NotContains(t, s.pages, pages[1])
	require.Equal(t, []int{1}, cancelled)
}

func TestBrowser(t *testing.T) {
	chrome := findChrome(t)

	var cookies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("checker"); err == nil {
			cookies = append(cookies, c.Value)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listPage)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	browser := NewBrowser(Options{Headless: true, ExecPath: chrome})
	session, err := browser.NewSession(ctx, pagedriver.Cookie{
		Name:    "checker",
		Value:   "secret",
		Domain:  "127.0.0.1",
		Path:    "/",
		Expires: pagedriver.SessionExpiry,
	})
	require.NoError(t, err)
	defer session.Close()

	page, err := session.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Goto(ctx, srv.URL+"/user/bruce/activitylist"))
	require.NoError(t, page.WaitForIdle(ctx, 5*time.Second))
	require.Contains(t, cookies, "secret")

	list, err := page.WaitForSelector(ctx, "ul.activityMonth", time.Second)
	require.NoError(t, err)
	html, err := list.OuterHTML(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "activity-item")

	items, err := page.QuerySelectorAll(ctx, "li.activity-item")
	require.NoError(t, err)
	require.Len(t, items, 2)

	link, err := items[0].QuerySelector(ctx, "a")
	require.NoError(t, err)
	href, ok, err := link.Attribute(ctx, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/user/bruce/activity/1", href)

	missing, err := items[0].QuerySelector(ctx, ".activityType")
	require.NoError(t, err)
	require.Nil(t, missing)

	distance, err := items[1].QuerySelector(ctx, ".unitDistance")
	require.NoError(t, err)
	text, err := distance.TextContent(ctx)
	require.NoError(t, err)
	require.Equal(t, "5.00 km", text)

	_, err = page.WaitForSelector(ctx, ".load-more", 300*time.Millisecond)
	require.ErrorIs(t, err, pagedriver.ErrNotFound)

	more, err := page.WaitForSelector(ctx, "#more", time.Second)
	require.NoError(t, err)
	require.NoError(t, more.Click(ctx))
	_, err = page.WaitForSelector(ctx, `body[data-clicked="yes"]`, time.Second)
	require.NoError(t, err)

	require.NoError(t, page.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)"))
	require.NoError(t, page.Close())
}
