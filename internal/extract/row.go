package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"runharvest/internal/dataset"
	"runharvest/internal/normalize"
	"runharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	monthListSelector = `div[role="tabpanel"][aria-hidden="false"] ul`
	durationSelector  = "#totalDuration > h1 > span"
	paceSelector      = "#averagePace > h1 > span"
	scrollScript      = "window.scrollTo(0, document.body.scrollHeight)"
)

// listSelectors are tried in order, the first one with a match holds the month's rows.
var listSelectors = []string{
	`div[role="tabpanel"][aria-hidden="false"] ul > li`,
	`div[role="tabpanel"] ul > li`,
	`.activity-list li`,
	`ul.activity-list li`,
	`li.activity-item`,
}

var loadMoreSelectors = []string{
	".load-more",
	".show-more",
	"button.load-more",
	"a.show-more",
}

var (
	errMissingDate     = errors.New("row has no date")
	errMissingDistance = errors.New("row has no distance")
	errMissingLink     = errors.New("row has no link")
)

type row struct {
	date     string
	distance string
	kind     string
	link     string
}

// parseRow reads an activity row from its outer HTML.
func parseRow(ctx context.Context, outer string, base *url.URL) (row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outer))
	if err != nil {
		return row{}, fmt.Errorf("parse row: %w", err)
	}
	body := doc.Find("body")

	date := htmlutil.SelectionText(body.Find("a span.startDate").First())
	if date == "" {
		return row{}, errMissingDate
	}
	distance := htmlutil.SelectionText(body.Find("a span.unitDistance").First())
	if distance == "" {
		return row{}, errMissingDistance
	}

	kind := htmlutil.SelectionText(body)
	kind = strings.ReplaceAll(kind, date, "")
	kind = strings.ReplaceAll(kind, distance, "")

	anchor, ok := htmlutil.FirstAnchor(ctx, base, body)
	if !ok {
		return row{}, errMissingLink
	}

	return row{
		date:     date,
		distance: distance,
		kind:     htmlutil.CleanText(kind),
		link:     anchor.Href,
	}, nil
}

func (r row) activity(month MonthToken) dataset.Activity {
	a := dataset.Activity{
		Date: normalize.NormalizeDate(r.date, month.Abbrev(), month.YearText()),
		Type: r.kind,
	}
	if miles, ok := normalize.ParseDistance(r.distance); ok {
		a.Distance = dataset.Miles(miles)
	}
	return a
}
