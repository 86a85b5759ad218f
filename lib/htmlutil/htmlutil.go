package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("runharvest/lib/htmlutil")

// GetText concatenates every text node under node, the same as the DOM's textContent.
func GetText(node *html.Node) string {
	var sb strings.Builder
	writeText(&sb, node)
	return sb.String()
}

func writeText(sb *strings.Builder, node *html.Node) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		sb.WriteString(node.Data)
		return
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
}

// CleanText drops non-printable runes and joins the remaining words with single spaces.
func CleanText(s string) string {
	printable := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(printable), " ")
}

// SelectionText is CleanText over the text of every node in sel.
func SelectionText(sel *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		writeText(&sb, n)
	}
	return CleanText(sb.String())
}

type Anchor struct {
	Name string
	Href string
}

// FirstAnchor returns the first anchor in or under sel that carries a parseable href,
// resolved against base when base is not nil.
func FirstAnchor(ctx context.Context, base *url.URL, sel *goquery.Selection) (Anchor, bool) {
	_, span := tracer.Start(ctx, "FirstAnchor")
	defer span.End()

	candidates := sel.Find("a[href]")
	if sel.Is("a[href]") {
		candidates = sel.AddSelection(candidates)
	}

	var (
		found   Anchor
		ok      bool
		skipped int
	)
	candidates.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			skipped++
			return true
		}
		link, err := url.Parse(href)
		if err != nil {
			skipped++
			span.RecordError(err)
			return true
		}
		if base != nil {
			link = base.ResolveReference(link)
		}
		found = Anchor{Name: SelectionText(a), Href: link.String()}
		ok = true
		return false
	})

	span.SetAttributes(attribute.Int("skipped", skipped))
	if !ok {
		if skipped > 0 {
			span.SetStatus(codes.Error, "every anchor had an unusable href")
		}
		return Anchor{}, false
	}
	span.AddEvent("anchor", trace.WithAttributes(
		attribute.String("name", found.Name),
		attribute.String("url", found.Href),
	))
	return found, true
}
