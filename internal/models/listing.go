package models

import "time"

// Listing is a single classified ad lifted from a search results page.
type Listing struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PriceCents  *int64     `json:"price_cents,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// HasID reports whether the listing carried a usable numeric id.
func (l Listing) HasID() bool {
	return l.ID != 0
}
