package store

import (
	"context"
	"testing"

	"github.com/invgraph/graphcore/pkg/errs"
)

func TestInMemoryPutThenGet(t *testing.T) {
	s := NewInMemory[string]()
	ctx := context.Background()

	if err := s.Put(ctx, "a", "hello"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestInMemoryGetMissingReturnsNotFound(t *testing.T) {
	s := NewInMemory[string]()
	_, err := s.Get(context.Background(), "missing")
	if errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestInMemoryListPreservesInsertionOrder(t *testing.T) {
	s := NewInMemory[int]()
	ctx := context.Background()
	_ = s.Put(ctx, "c", 3)
	_ = s.Put(ctx, "a", 1)
	_ = s.Put(ctx, "b", 2)

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestInMemoryDeleteRemovesFromListAndMap(t *testing.T) {
	s := NewInMemory[int]()
	ctx := context.Background()
	_ = s.Put(ctx, "a", 1)
	_ = s.Put(ctx, "b", 2)

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected deleted entity to be gone, got %v", err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0] != 2 {
		t.Fatalf("expected only b=2 to remain, got %v", list)
	}
}

func TestInMemoryDeleteMissingReturnsNotFound(t *testing.T) {
	s := NewInMemory[int]()
	if err := s.Delete(context.Background(), "missing"); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
