package tori

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is the classifieds site root.
const DefaultBaseURL = "https://www.tori.fi"

// SearchURL builds a search results URL for the given keywords and area code.
// Spaces inside a keyword become '+', keywords are joined with '+OR+', and the
// whole query is escaped the way a form submission would escape it. The fixed
// trailing parameters select private-seller listings sorted newest first.
func SearchURL(baseURL string, keywords []string, areaCode string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(kw, " ", "+"))
	}
	query := url.QueryEscape(strings.Join(parts, "+OR+"))
	return strings.TrimRight(baseURL, "/") + "/koko_suomi?q=" + query +
		"&cg=0&w=" + areaCode + "&st=s&st=g&ca=18&l=0&md=th"
}
