package blob

import (
	"context"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "stripes/t/abc123", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "stripes/t/abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get returned %q, want %q", got, "hello")
	}

	ok, err := s.Exists(ctx, "stripes/t/abc123")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = s.Get(context.Background(), "nope")
	if err != ErrNotFound {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestDeleteThenGetMissing(t *testing.T) {
	s, _ := Open(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, "a/b", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a/b"); err != ErrNotFound {
		t.Fatalf("Get after delete: got %v, want ErrNotFound", err)
	}
	// deleting again is not an error
	if err := s.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	s, _ := Open(t.TempDir())
	ctx := context.Background()
	paths := []string{
		"stripes/orders/aa", "stripes/orders/bb", "stripes/customers/cc",
	}
	for _, p := range paths {
		if err := s.Put(ctx, p, []byte("v")); err != nil {
			t.Fatalf("Put %s: %v", p, err)
		}
	}

	got, err := s.List(ctx, "stripes/orders/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %v, want 2 entries", got)
	}
}

func TestPutOverwriteIsAtomic(t *testing.T) {
	s, _ := Open(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, "x", []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "x", []byte("second")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("Get after overwrite = %q, want %q", got, "second")
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	s, _ := Open(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, "../escape", []byte("x")); err == nil {
		t.Fatalf("expected error for path traversal")
	}
}
