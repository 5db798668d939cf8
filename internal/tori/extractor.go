package tori

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tori-vahti/internal/models"
)

// TitleUnparsed is substituted when a listing row has no readable title.
// Other field failures leave the field absent rather than dropping the row.
const TitleUnparsed = "(no title)"

var firstNumber = regexp.MustCompile(`\d+`)

// Extractor turns search result HTML into listing records.
type Extractor struct {
	loc *time.Location

	// StopOnUnresolved stops row iteration at the first row whose date text
	// cannot be resolved. Rows arrive newest first, so an unresolvable date
	// normally means the rest of the page is older than any window in use.
	StopOnUnresolved bool
}

// NewExtractor returns an extractor that resolves relative date text in the
// given timezone.
func NewExtractor(loc *time.Location) *Extractor {
	return &Extractor{loc: loc, StopOnUnresolved: true}
}

// Extract parses a search results page and returns one record per listing
// row, in page order. Field failures are isolated per row: a bad title,
// price, link or id never drops the row. A row whose date text exists but
// does not resolve is excluded, and by default ends the scan. now is the
// reference instant for resolving relative dates.
func (e *Extractor) Extract(body []byte, now time.Time) ([]models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	localNow := now.In(e.loc)
	var listings []models.Listing
	doc.Find("a.item_row_flex").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		var l models.Listing

		if raw, ok := row.Attr("id"); ok {
			if m := firstNumber.FindString(raw); m != "" {
				if id, err := strconv.ParseUint(m, 10, 64); err == nil {
					l.ID = id
				}
			}
		}

		l.URL = strings.TrimSpace(row.AttrOr("href", ""))

		desc := row.Find("div.desc_flex")
		l.Title = strings.TrimSpace(desc.Find("div.li-title").First().Text())
		if l.Title == "" {
			l.Title = TitleUnparsed
		}

		if raw := desc.Find("div.list-details-container p.list_price").First().Text(); raw != "" {
			if m := firstNumber.FindString(raw); m != "" {
				if euros, err := strconv.ParseInt(m, 10, 64); err == nil {
					cents := euros * 100
					l.PriceCents = &cents
				}
			}
		}

		date := desc.Find("div.date-cat-container div.date_image").First()
		if date.Length() > 0 {
			resolved, ok := ResolvePubDate(date.Text(), localNow)
			if !ok {
				return !e.StopOnUnresolved
			}
			l.PublishedAt = &resolved
		}

		listings = append(listings, l)
		return true
	})
	return listings, nil
}
