package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"tori-vahti/internal/models"
)

func TestRedisStatusStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStatusStore(mr.Addr(), "vahti:status:", time.Hour)
	defer s.Close()
	ctx := context.Background()

	in := models.WatchStatus{
		WatchName:   "pelit",
		RunID:       "run-1",
		Status:      "completed",
		NewListings: 2,
		UpdatedAt:   time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SetStatus(ctx, in); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	got, ok, err := s.GetStatus(ctx, "pelit")
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if !ok {
		t.Fatal("expected status to exist")
	}
	if got.RunID != "run-1" || got.Status != "completed" || got.NewListings != 2 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestRedisStatusStore_Missing(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStatusStore(mr.Addr(), "vahti:status:", 0)
	defer s.Close()

	_, ok, err := s.GetStatus(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if ok {
		t.Fatal("expected missing status")
	}
}
