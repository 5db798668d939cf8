package notify

import (
	"fmt"
	"html"
	"strings"

	"tori-vahti/internal/models"
)

// pubTimeLayout renders publication times the way the site lists them.
const pubTimeLayout = "02.01. 15:04"

// HTMLBody renders the HTML part of an alert email: a count line, one block
// per listing and a watch details footer.
func HTMLBody(a models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new product(s)!<br/><br/>", len(a.Listings))
	for _, l := range a.Listings {
		title := html.EscapeString(l.Title)
		if l.URL != "" {
			fmt.Fprintf(&b, "<b><a href=%q>%s</a></b>", l.URL, title)
		} else {
			fmt.Fprintf(&b, "<b>%s</b>", title)
		}
		fmt.Fprintf(&b, "<br/>[%s, %s]<br/><br/>", priceText(l), pubTimeText(l))
	}
	fmt.Fprintf(&b, "<hr/>Hakuvahti '%s', alue %s", html.EscapeString(a.WatchName), html.EscapeString(a.AreaCode))
	return b.String()
}

// TextBody renders the plain text alternative with the same information.
func TextBody(a models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new product(s)!\n\n", len(a.Listings))
	for _, l := range a.Listings {
		fmt.Fprintf(&b, "- %s [%s, %s]\n", l.Title, priceText(l), pubTimeText(l))
		if l.URL != "" {
			fmt.Fprintf(&b, "  %s\n", l.URL)
		}
	}
	fmt.Fprintf(&b, "\n--\nHakuvahti '%s', alue %s\n", a.WatchName, a.AreaCode)
	return b.String()
}

func priceText(l models.Listing) string {
	if l.PriceCents == nil {
		return "?"
	}
	return fmt.Sprintf("%d €", *l.PriceCents/100)
}

func pubTimeText(l models.Listing) string {
	if l.PublishedAt == nil {
		return "?"
	}
	return l.PublishedAt.Format(pubTimeLayout)
}
