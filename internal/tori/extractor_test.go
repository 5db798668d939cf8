package tori

import (
	"testing"
	"time"
)

const searchPageHTML = `<!DOCTYPE html>
<html lang="fi">
<head><title>Tori.fi</title></head>
<body>
<div class="list_mode_thumb">
<a class="item_row_flex" id="item_98216639" href="https://www.tori.fi/pirkanmaa/Lautapeli_Carcassonne_98216639.htm?ca=11&amp;w=1">
  <div class="item_image_div"><img src="thumb1.jpg" alt=""></div>
  <div class="desc_flex">
    <div class="li-title">Lautapeli Carcassonne</div>
    <div class="list-details-container">
      <div class="list-details with-price"><p class="list_price ineuros">250 &euro;</p></div>
    </div>
    <div class="date-cat-container">
      <div class="date_image">Tänään 12:34</div>
      <p class="list_cat">Pirkanmaa</p>
    </div>
  </div>
</a>
<a class="item_row_flex" id="item_98215001" href="https://www.tori.fi/uusimaa/Korttipeli_Uno_98215001.htm?ca=18&amp;w=1">
  <div class="item_image_div"><img src="thumb2.jpg" alt=""></div>
  <div class="desc_flex">
    <div class="li-title">Korttipeli Uno</div>
    <div class="list-details-container">
      <div class="list-details"></div>
    </div>
    <div class="date-cat-container">
      <div class="date_image">Eilen 21:02</div>
      <p class="list_cat">Uusimaa</p>
    </div>
  </div>
</a>
<a class="item_row_flex" id="item_98214777" href="https://www.tori.fi/pirkanmaa/Shakki_98214777.htm?ca=11&amp;w=1">
  <div class="item_image_div"><img src="thumb3.jpg" alt=""></div>
  <div class="desc_flex">
    <div class="li-title">Shakkilauta</div>
    <div class="list-details-container">
      <div class="list-details with-price"><p class="list_price ineuros">15 &euro;</p></div>
    </div>
    <div class="date-cat-container">
      <p class="list_cat">Pirkanmaa</p>
    </div>
  </div>
</a>
</div>
</body>
</html>`

func TestExtract(t *testing.T) {
	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	e := NewExtractor(eet)

	listings, err := e.Extract([]byte(searchPageHTML), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("unexpected listing count: %d", len(listings))
	}

	first := listings[0]
	if first.ID != 98216639 {
		t.Fatalf("unexpected id: %d", first.ID)
	}
	if first.Title != "Lautapeli Carcassonne" {
		t.Fatalf("unexpected title: %q", first.Title)
	}
	if first.URL != "https://www.tori.fi/pirkanmaa/Lautapeli_Carcassonne_98216639.htm?ca=11&w=1" {
		t.Fatalf("unexpected url: %q", first.URL)
	}
	if first.PriceCents == nil || *first.PriceCents != 25000 {
		t.Fatalf("unexpected price: %v", first.PriceCents)
	}
	wantPub := time.Date(2026, 8, 24, 12, 34, 59, 0, eet)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(wantPub) {
		t.Fatalf("unexpected published_at: %v", first.PublishedAt)
	}

	second := listings[1]
	if second.PriceCents != nil {
		t.Fatalf("expected absent price, got %v", *second.PriceCents)
	}
	wantPub = time.Date(2026, 8, 23, 21, 2, 59, 0, eet)
	if second.PublishedAt == nil || !second.PublishedAt.Equal(wantPub) {
		t.Fatalf("unexpected published_at: %v", second.PublishedAt)
	}

	third := listings[2]
	if third.PublishedAt != nil {
		t.Fatalf("expected absent published_at, got %v", third.PublishedAt)
	}
	if third.PriceCents == nil || *third.PriceCents != 1500 {
		t.Fatalf("unexpected price: %v", third.PriceCents)
	}
}

const agedPageHTML = `<html><body>
<a class="item_row_flex" id="item_1" href="https://www.tori.fi/a_1.htm">
  <div class="desc_flex">
    <div class="li-title">Tuore</div>
    <div class="date-cat-container"><div class="date_image">Tänään 12:34</div></div>
  </div>
</a>
<a class="item_row_flex" id="item_2" href="https://www.tori.fi/b_2.htm">
  <div class="desc_flex">
    <div class="li-title">Vanha</div>
    <div class="date-cat-container"><div class="date_image">20 elo 14:30</div></div>
  </div>
</a>
<a class="item_row_flex" id="item_3" href="https://www.tori.fi/c_3.htm">
  <div class="desc_flex">
    <div class="li-title">Vanhempi</div>
    <div class="date-cat-container"><div class="date_image">Tänään 10:00</div></div>
  </div>
</a>
</body></html>`

func TestExtract_StopsAtUnresolvedDate(t *testing.T) {
	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	e := NewExtractor(eet)

	listings, err := e.Extract([]byte(agedPageHTML), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != 1 {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestExtract_ScansPastUnresolvedWhenDisabled(t *testing.T) {
	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	e := NewExtractor(eet)
	e.StopOnUnresolved = false

	listings, err := e.Extract([]byte(agedPageHTML), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 2 || listings[0].ID != 1 || listings[1].ID != 3 {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestExtract_FieldFailuresAreIsolated(t *testing.T) {
	page := `<html><body>
<a class="item_row_flex" id="row_without_digits">
  <div class="desc_flex">
    <div class="list-details-container"><p class="list_price">Myydään</p></div>
    <div class="date-cat-container"><div class="date_image">Tänään 8:15</div></div>
  </div>
</a>
</body></html>`

	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	listings, err := NewExtractor(eet).Extract([]byte(page), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("unexpected listing count: %d", len(listings))
	}

	l := listings[0]
	if l.ID != 0 || l.HasID() {
		t.Fatalf("expected absent id, got %d", l.ID)
	}
	if l.URL != "" {
		t.Fatalf("expected absent url, got %q", l.URL)
	}
	if l.Title != TitleUnparsed {
		t.Fatalf("unexpected title: %q", l.Title)
	}
	if l.PriceCents != nil {
		t.Fatalf("expected absent price, got %v", *l.PriceCents)
	}
	if l.PublishedAt == nil {
		t.Fatal("expected published_at to survive other field failures")
	}
}

func TestExtract_PriceReadsFirstNumberGroup(t *testing.T) {
	// The site renders thousands with a space; only the first digit run counts.
	page := `<html><body>
<a class="item_row_flex" id="item_9" href="https://www.tori.fi/d_9.htm">
  <div class="desc_flex">
    <div class="li-title">Kallis</div>
    <div class="list-details-container"><p class="list_price">1 500 €</p></div>
    <div class="date-cat-container"><div class="date_image">Tänään 12:00</div></div>
  </div>
</a>
</body></html>`

	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	listings, err := NewExtractor(eet).Extract([]byte(page), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 1 || listings[0].PriceCents == nil || *listings[0].PriceCents != 100 {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}

func TestExtract_EmptyPage(t *testing.T) {
	now := time.Date(2026, 8, 24, 22, 0, 0, 0, eet)
	listings, err := NewExtractor(eet).Extract([]byte("<html><body></body></html>"), now)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("unexpected listings: %+v", listings)
	}
}
