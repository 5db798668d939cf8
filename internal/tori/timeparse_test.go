package tori

import (
	"testing"
	"time"
)

var eet = time.FixedZone("EET", 2*60*60)

func TestResolvePubDate_Today(t *testing.T) {
	now := time.Date(2026, 8, 24, 20, 15, 7, 123, eet)

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"Tänään 12:34", time.Date(2026, 8, 24, 12, 34, 59, 0, eet)},
		{"tänään 10.00", time.Date(2026, 8, 24, 10, 0, 59, 0, eet)},
		{"\n  TÄNääN 9:05", time.Date(2026, 8, 24, 9, 5, 59, 0, eet)},
		// Extra leading numbers are ignored; the last two groups win.
		{"tänään 10 12:34", time.Date(2026, 8, 24, 12, 34, 59, 0, eet)},
	}
	for _, tc := range cases {
		got, ok := ResolvePubDate(tc.raw, now)
		if !ok {
			t.Errorf("ResolvePubDate(%q) not resolved", tc.raw)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ResolvePubDate(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestResolvePubDate_Yesterday(t *testing.T) {
	now := time.Date(2026, 8, 24, 8, 0, 0, 0, eet)
	got, ok := ResolvePubDate("Eilen 23:59", now)
	if !ok {
		t.Fatal("expected resolution")
	}
	want := time.Date(2026, 8, 23, 23, 59, 59, 0, eet)
	if !got.Equal(want) {
		t.Fatalf("ResolvePubDate = %v, want %v", got, want)
	}
}

func TestResolvePubDate_YesterdayAcrossMonth(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, eet)
	got, ok := ResolvePubDate("eilen 10.30", now)
	if !ok {
		t.Fatal("expected resolution")
	}
	want := time.Date(2024, 2, 29, 10, 30, 59, 0, eet)
	if !got.Equal(want) {
		t.Fatalf("ResolvePubDate = %v, want %v", got, want)
	}
}

func TestResolvePubDate_Unresolved(t *testing.T) {
	now := time.Date(2026, 8, 24, 20, 0, 0, 0, eet)

	for _, raw := range []string{
		"",
		"Tänään",
		"eilen ---",
		"tänään 10",
		"Eilen 26:59",
		"Tänään 12:60",
		"Jou 12 10:20",
		"12:34",
	} {
		if _, ok := ResolvePubDate(raw, now); ok {
			t.Errorf("expected %q to stay unresolved", raw)
		}
	}
}

func TestResolvePubDate_KeepsLocation(t *testing.T) {
	now := time.Date(2026, 8, 24, 20, 0, 0, 0, eet)
	got, ok := ResolvePubDate("Tänään 12:34", now)
	if !ok {
		t.Fatal("expected resolution")
	}
	if got.Location() != eet {
		t.Fatalf("unexpected location: %v", got.Location())
	}
}
