package watch

import (
	"errors"
	"strings"

	"tori-vahti/internal/models"
)

// ErrNoName marks a watch definition without a name.
var ErrNoName = errors.New("watch has no name")

// ErrNoKeywords marks a watch definition without any usable keyword.
var ErrNoKeywords = errors.New("watch has no keywords")

// ErrNoRecipients marks a watch definition without anyone to notify.
// Normalize does not enforce it; registration surfaces do.
var ErrNoRecipients = errors.New("watch has no recipients")

// Normalize trims a watch definition, fills defaults and rejects
// definitions that cannot run. Keyword validation happens here so a watch
// with nothing to search for never reaches a fetch.
func Normalize(w models.Watch) (models.Watch, error) {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return models.Watch{}, ErrNoName
	}

	keywords := make([]string, 0, len(w.Keywords))
	for _, kw := range w.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return models.Watch{}, ErrNoKeywords
	}
	w.Keywords = keywords

	recipients := make([]string, 0, len(w.Recipients))
	for _, r := range w.Recipients {
		r = strings.TrimSpace(r)
		if r != "" {
			recipients = append(recipients, r)
		}
	}
	w.Recipients = recipients

	if w.AreaCode == "" {
		w.AreaCode = models.DefaultAreaCode
	}
	if w.TimespanSecs <= 0 {
		w.TimespanSecs = models.DefaultTimespanSecs
	}
	if w.MaxPriceCents == 0 {
		w.MaxPriceCents = models.DefaultMaxPriceCents
	}
	return w, nil
}
