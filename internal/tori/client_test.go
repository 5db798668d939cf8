package tori

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTMLWithClient_DecodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("unexpected user agent: %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte{'T', 0xE4, 'n', 0xE4, 0xE4, 'n'})
	}))
	defer srv.Close()

	body, err := FetchHTMLWithClient(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FetchHTMLWithClient error: %v", err)
	}
	if string(body) != "Tänään" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestFetchHTMLWithClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := FetchHTMLWithClient(context.Background(), srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("unexpected error: %v", err)
	}
}
