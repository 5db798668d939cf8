package notify

import (
	"strings"
	"testing"
	"time"

	"tori-vahti/internal/models"
)

func sampleAlert() models.Alert {
	price := int64(25000)
	published := time.Date(2026, 8, 24, 12, 34, 59, 0, time.UTC)
	return models.Alert{
		RunID:     "run-1",
		WatchName: "Lautapelit",
		AreaCode:  "111",
		Listings: []models.Listing{
			{
				ID:          98216639,
				Title:       "Lautapeli Carcassonne",
				URL:         "https://www.tori.fi/pirkanmaa/Lautapeli_98216639.htm",
				PriceCents:  &price,
				PublishedAt: &published,
			},
			{
				ID:    98215001,
				Title: "Korttipeli Uno",
			},
		},
		Recipients: []string{"a@example.com"},
	}
}

func TestAlertSubject(t *testing.T) {
	got := sampleAlert().Subject()
	if got != "(2) Hakuvahti 'Lautapelit'" {
		t.Fatalf("unexpected subject: %q", got)
	}
}

func TestHTMLBody(t *testing.T) {
	body := HTMLBody(sampleAlert())

	if !strings.HasPrefix(body, "2 new product(s)!<br/><br/>") {
		t.Fatalf("unexpected body start: %q", body)
	}
	if !strings.Contains(body, `<a href="https://www.tori.fi/pirkanmaa/Lautapeli_98216639.htm">Lautapeli Carcassonne</a>`) {
		t.Fatalf("missing linked title in %q", body)
	}
	if !strings.Contains(body, "[250 €, 24.08. 12:34]") {
		t.Fatalf("missing price and time in %q", body)
	}
	// A listing without price, link or date still renders.
	if !strings.Contains(body, "<b>Korttipeli Uno</b><br/>[?, ?]") {
		t.Fatalf("missing fallback block in %q", body)
	}
	if !strings.Contains(body, "<hr/>Hakuvahti 'Lautapelit', alue 111") {
		t.Fatalf("missing footer in %q", body)
	}
}

func TestHTMLBody_EscapesTitle(t *testing.T) {
	a := sampleAlert()
	a.Listings[0].Title = `Myydään <halvalla> & nopeasti`
	body := HTMLBody(a)
	if !strings.Contains(body, "Myydään &lt;halvalla&gt; &amp; nopeasti") {
		t.Fatalf("title not escaped in %q", body)
	}
}

func TestTextBody(t *testing.T) {
	body := TextBody(sampleAlert())

	if !strings.HasPrefix(body, "2 new product(s)!\n\n") {
		t.Fatalf("unexpected body start: %q", body)
	}
	if !strings.Contains(body, "- Lautapeli Carcassonne [250 €, 24.08. 12:34]\n  https://www.tori.fi/pirkanmaa/Lautapeli_98216639.htm\n") {
		t.Fatalf("missing listing line in %q", body)
	}
	if !strings.Contains(body, "- Korttipeli Uno [?, ?]\n") {
		t.Fatalf("missing fallback line in %q", body)
	}
	if strings.Contains(body, "<br/>") {
		t.Fatalf("markup leaked into text body: %q", body)
	}
}
