package watch

import (
	"testing"
	"time"

	"tori-vahti/internal/models"
)

func cents(v int64) *int64 {
	return &v
}

func TestWithinPriceLimits(t *testing.T) {
	w := models.Watch{MinPriceCents: 100, MaxPriceCents: 30000}

	cases := []struct {
		price *int64
		want  bool
	}{
		{nil, true},
		{cents(100), true},
		{cents(30000), true},
		{cents(15000), true},
		{cents(99), false},
		{cents(30001), false},
	}
	for _, tc := range cases {
		got := WithinPriceLimits(w, models.Listing{PriceCents: tc.price})
		if got != tc.want {
			t.Errorf("WithinPriceLimits(%v) = %v, want %v", tc.price, got, tc.want)
		}
	}
}

func TestWithinWindow(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	w := models.Watch{TimespanSecs: 600}

	at := func(tm time.Time) *time.Time { return &tm }

	if WithinWindow(w, models.Listing{}, now) {
		t.Error("listing without publication time should be rejected")
	}
	if !WithinWindow(w, models.Listing{PublishedAt: at(now.Add(-10 * time.Minute))}, now) {
		t.Error("listing exactly at the cutoff should pass")
	}
	if WithinWindow(w, models.Listing{PublishedAt: at(now.Add(-10*time.Minute - time.Second))}, now) {
		t.Error("listing older than the window should be rejected")
	}
	if !WithinWindow(w, models.Listing{PublishedAt: at(now)}, now) {
		t.Error("listing published now should pass")
	}
}

func TestWithinWindow_SkewWidensWindow(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	published := now.Add(-11 * time.Minute)

	tight := models.Watch{TimespanSecs: 600}
	if WithinWindow(tight, models.Listing{PublishedAt: &published}, now) {
		t.Error("listing outside the bare window should be rejected")
	}

	skewed := models.Watch{TimespanSecs: 600, SkewSecs: 120}
	if !WithinWindow(skewed, models.Listing{PublishedAt: &published}, now) {
		t.Error("skew allowance should admit the listing")
	}
}

func TestWithinWindow_TimespanClamp(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	published := now.Add(-3 * 24 * time.Hour)

	w := models.Watch{TimespanSecs: 30 * 86400}
	if WithinWindow(w, models.Listing{PublishedAt: &published}, now) {
		t.Error("window must not reach past two days")
	}

	recent := now.Add(-47 * time.Hour)
	if !WithinWindow(w, models.Listing{PublishedAt: &recent}, now) {
		t.Error("listing inside the clamped window should pass")
	}
}

func TestAccepts(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	published := now.Add(-5 * time.Minute)
	w := models.Watch{MinPriceCents: 0, MaxPriceCents: 50000, TimespanSecs: 600}

	ok := models.Listing{PriceCents: cents(25000), PublishedAt: &published}
	if !Accepts(w, ok, now) {
		t.Error("listing inside both rules should be accepted")
	}

	tooExpensive := models.Listing{PriceCents: cents(60000), PublishedAt: &published}
	if Accepts(w, tooExpensive, now) {
		t.Error("listing above the price ceiling should be rejected")
	}

	noDate := models.Listing{PriceCents: cents(25000)}
	if Accepts(w, noDate, now) {
		t.Error("listing without publication time should be rejected")
	}

	free := models.Listing{PublishedAt: &published}
	if !Accepts(w, free, now) {
		t.Error("listing without a price should be accepted")
	}
}
