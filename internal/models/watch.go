package models

import "time"

// MaxTimespanSecs caps the recency window a watch may request at two days.
const MaxTimespanSecs int64 = 2 * 86400

// DefaultTimespanSecs is the recency window used when a watch sets none.
const DefaultTimespanSecs int64 = 600

// DefaultMaxPriceCents bounds the price filter when a watch sets no ceiling.
const DefaultMaxPriceCents int64 = 100000 * 100

// DefaultAreaCode selects the whole country in the search URL.
const DefaultAreaCode = "3"

// Watch defines a stored search that runs on a schedule.
type Watch struct {
	Name          string   `json:"name"`
	Keywords      []string `json:"keywords"`
	AreaCode      string   `json:"area_code"`
	MinPriceCents int64    `json:"min_price_cents"`
	MaxPriceCents int64    `json:"max_price_cents"`
	TimespanSecs  int64    `json:"timespan_secs"`
	SkewSecs      int64    `json:"skew_secs"`
	Recipients    []string `json:"recipients"`
}

// Timespan returns the recency window, capped at two days.
func (w Watch) Timespan() time.Duration {
	secs := w.TimespanSecs
	if secs > MaxTimespanSecs {
		secs = MaxTimespanSecs
	}
	return time.Duration(secs) * time.Second
}

// Skew returns the clock skew allowance added when comparing timestamps.
func (w Watch) Skew() time.Duration {
	return time.Duration(w.SkewSecs) * time.Second
}
