package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"tori-vahti/internal/models"
)

func TestRedisWatchStore_SaveGet(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWatchStore(mr.Addr(), "vahti:watches:")
	defer s.Close()
	ctx := context.Background()

	in := models.Watch{
		Name:          "Lautapelit",
		Keywords:      []string{"lautapeli", "korttipeli"},
		AreaCode:      "111",
		MinPriceCents: 100,
		MaxPriceCents: 30000,
		TimespanSecs:  600,
		SkewSecs:      60,
		Recipients:    []string{"a@example.com"},
	}
	if err := s.SaveWatch(ctx, in); err != nil {
		t.Fatalf("SaveWatch error: %v", err)
	}

	got, ok, err := s.GetWatch(ctx, "Lautapelit")
	if err != nil {
		t.Fatalf("GetWatch error: %v", err)
	}
	if !ok {
		t.Fatal("expected watch to exist")
	}
	if got.AreaCode != "111" || got.MaxPriceCents != 30000 || len(got.Keywords) != 2 {
		t.Fatalf("unexpected watch: %+v", got)
	}
}

func TestRedisWatchStore_GetMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWatchStore(mr.Addr(), "vahti:watches:")
	defer s.Close()

	_, ok, err := s.GetWatch(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetWatch error: %v", err)
	}
	if ok {
		t.Fatal("expected missing watch")
	}
}

func TestRedisWatchStore_List(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWatchStore(mr.Addr(), "vahti:watches:")
	defer s.Close()
	ctx := context.Background()

	for _, name := range []string{"pelit", "kirjat"} {
		if err := s.SaveWatch(ctx, models.Watch{Name: name, Keywords: []string{"x"}}); err != nil {
			t.Fatalf("SaveWatch error: %v", err)
		}
	}

	watches, err := s.ListWatches(ctx)
	if err != nil {
		t.Fatalf("ListWatches error: %v", err)
	}
	if len(watches) != 2 {
		t.Fatalf("unexpected watch count: %d", len(watches))
	}
	byName := map[string]models.Watch{}
	for _, w := range watches {
		byName[w.Name] = w
	}
	if _, ok := byName["pelit"]; !ok {
		t.Fatalf("missing watch in %+v", watches)
	}
	if _, ok := byName["kirjat"]; !ok {
		t.Fatalf("missing watch in %+v", watches)
	}
}

func TestRedisWatchStore_SaveOverwrites(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWatchStore(mr.Addr(), "vahti:watches:")
	defer s.Close()
	ctx := context.Background()

	if err := s.SaveWatch(ctx, models.Watch{Name: "pelit", Keywords: []string{"a"}}); err != nil {
		t.Fatalf("SaveWatch error: %v", err)
	}
	if err := s.SaveWatch(ctx, models.Watch{Name: "pelit", Keywords: []string{"b"}}); err != nil {
		t.Fatalf("SaveWatch error: %v", err)
	}

	watches, err := s.ListWatches(ctx)
	if err != nil {
		t.Fatalf("ListWatches error: %v", err)
	}
	if len(watches) != 1 || watches[0].Keywords[0] != "b" {
		t.Fatalf("unexpected watches: %+v", watches)
	}
}
