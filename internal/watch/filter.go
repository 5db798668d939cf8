package watch

import (
	"time"

	"tori-vahti/internal/models"
)

// WithinPriceLimits reports whether the listing price sits inside the
// watch's inclusive bounds. A listing without a price always passes.
func WithinPriceLimits(w models.Watch, l models.Listing) bool {
	if l.PriceCents == nil {
		return true
	}
	return *l.PriceCents >= w.MinPriceCents && *l.PriceCents <= w.MaxPriceCents
}

// WithinWindow reports whether the listing was published inside the watch's
// recency window, widened by the clock skew allowance. A listing without a
// publication time is rejected.
func WithinWindow(w models.Watch, l models.Listing, now time.Time) bool {
	if l.PublishedAt == nil {
		return false
	}
	cutoff := now.Add(-(w.Timespan() + w.Skew()))
	return !l.PublishedAt.Before(cutoff)
}

// Accepts reports whether the listing passes both the price and the recency
// rule of the watch.
func Accepts(w models.Watch, l models.Listing, now time.Time) bool {
	return WithinPriceLimits(w, l) && WithinWindow(w, l, now)
}
