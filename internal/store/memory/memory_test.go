package memory

import (
	"context"
	"testing"
)

func TestGetSetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("missing key reported present")
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("get = %q/%t/%v, want v2", v, ok, err)
	}

	if err := s.Delete(ctx, "k", "never-existed"); err != nil {
		t.Fatalf("delete with missing key: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key survived delete")
	}
}

func TestSetSemantics(t *testing.T) {
	s := New()
	ctx := context.Background()

	if n, _ := s.SetSize(ctx, "bidders"); n != 0 {
		t.Fatalf("empty set size = %d", n)
	}
	for _, m := range []string{"a", "b", "a", "a"} {
		if err := s.AddToSet(ctx, "bidders", m); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if n, _ := s.SetSize(ctx, "bidders"); n != 2 {
		t.Fatalf("set size = %d, want 2 distinct members", n)
	}

	if err := s.Delete(ctx, "bidders"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.SetSize(ctx, "bidders"); n != 0 {
		t.Fatalf("set size after delete = %d", n)
	}
}
