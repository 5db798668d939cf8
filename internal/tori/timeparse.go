package tori

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var digitGroups = regexp.MustCompile(`\d{1,2}`)

// ResolvePubDate derives a publication timestamp from a listing's relative
// date text ("Tänään 12:34", "Eilen 9:05"). The last two numeric groups are
// read as hour and minute, with seconds pinned to :59 so a listing published
// within the stated minute is not pushed out of the window by second-level
// comparison. now is the reference instant and must already be in the site's
// timezone. Returns false when the text carries fewer than two numeric
// groups, an out-of-range hour or minute, or no recognized day word.
func ResolvePubDate(raw string, now time.Time) (time.Time, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))

	groups := digitGroups.FindAllString(raw, -1)
	if len(groups) < 2 {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(groups[len(groups)-2])
	minute, _ := strconv.Atoi(groups[len(groups)-1])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	day := now
	switch {
	case strings.Contains(raw, "tänään"):
	case strings.Contains(raw, "eilen"):
		day = now.AddDate(0, 0, -1)
	default:
		return time.Time{}, false
	}

	year, month, dom := day.Date()
	return time.Date(year, month, dom, hour, minute, 59, 0, now.Location()), true
}
