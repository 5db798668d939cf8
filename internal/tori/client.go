package tori

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"
)

// FetchHTML retrieves a search results page using http.DefaultClient.
func FetchHTML(ctx context.Context, url string) ([]byte, error) {
	return FetchHTMLWithClient(ctx, http.DefaultClient, url)
}

// FetchHTMLWithClient retrieves a search results page using the given HTTP
// client (e.g. one configured with a proxy). Sets a custom User-Agent
// (DefaultUserAgent) so the site can identify the watcher. The body is
// decoded to UTF-8 from whatever charset the response declares; the site
// still serves Latin-1 on some paths.
func FetchHTMLWithClient(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return body, nil
}
