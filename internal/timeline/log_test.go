package timeline

import (
	"context"
	"testing"

	"github.com/strataql/strata/internal/blob"
)

func newLog(t *testing.T) *Log {
	t.Helper()
	store, err := blob.Open(t.TempDir())
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	l, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("timeline.Open: %v", err)
	}
	return l
}

func TestAppendChainsAndAdvancesHead(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	ref1, err := NewTableRef("t", []string{"h1", "h2"})
	if err != nil {
		t.Fatalf("NewTableRef: %v", err)
	}
	c1, err := l.Append(ctx, []TableRef{ref1}, 1, "insert batch 1", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c1.PrevHash != zeroHash {
		t.Fatalf("first commit PrevHash = %q, want empty", c1.PrevHash)
	}

	ref2, err := NewTableRef("t", []string{"h1", "h2", "h3"})
	if err != nil {
		t.Fatalf("NewTableRef: %v", err)
	}
	c2, err := l.Append(ctx, []TableRef{ref2}, 1, "insert batch 2", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c2.PrevHash != c1.Hash {
		t.Fatalf("second commit does not chain to first: %q != %q", c2.PrevHash, c1.Hash)
	}

	head, err := l.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != c2.Hash {
		t.Fatalf("Head = %q, want %q", head, c2.Hash)
	}
}

func TestVerifyDetectsTamperedHash(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	ref, _ := NewTableRef("t", []string{"h1"})
	if _, err := l.Append(ctx, []TableRef{ref}, 1, "c1", RetryConfig{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	report, err := l.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("Verify on untampered chain: %+v", report)
	}

	store := l.store
	data, err := store.Get(ctx, logPath)
	if err != nil {
		t.Fatalf("Get logPath: %v", err)
	}
	tampered := append([]byte(nil), data...)
	tampered[10] ^= 0xFF
	if err := store.Put(ctx, logPath, tampered); err != nil {
		t.Fatalf("Put tampered log: %v", err)
	}
	report2, err := l.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report2.OK {
		t.Fatalf("Verify should detect a tampered commit")
	}
}

func TestResetMovesHeadWithoutTruncating(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	ref1, _ := NewTableRef("t", []string{"h1"})
	c1, err := l.Append(ctx, []TableRef{ref1}, 1, "c1", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	ref2, _ := NewTableRef("t", []string{"h1", "h2"})
	if _, err := l.Append(ctx, []TableRef{ref2}, 1, "c2", RetryConfig{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := l.Reset(ctx, c1.Hash); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	head, err := l.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != c1.Hash {
		t.Fatalf("Head after reset = %q, want %q", head, c1.Hash)
	}

	commits, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("Reset must not truncate the log, got %d commits", len(commits))
	}
}

func TestReachabilityIncludesSnapshotsNotJustHead(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	ref1, _ := NewTableRef("t", []string{"h1"})
	c1, err := l.Append(ctx, []TableRef{ref1}, 1, "c1", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.CreateSnapshot(ctx, "pinned", c1.Hash); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	ref2, _ := NewTableRef("t", []string{"h2"})
	if _, err := l.Append(ctx, []TableRef{ref2}, 1, "c2", RetryConfig{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	report, err := l.Reachability(ctx)
	if err != nil {
		t.Fatalf("Reachability: %v", err)
	}
	found := map[string]bool{}
	for _, h := range report.StripeHashes {
		found[h] = true
	}
	if !found["h1"] || !found["h2"] {
		t.Fatalf("expected both h1 (pinned by snapshot) and h2 (HEAD) reachable, got %v", report.StripeHashes)
	}
}

func TestDiffReturnsCommitsBetweenTwoHashes(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	ref1, _ := NewTableRef("t", []string{"h1"})
	c1, err := l.Append(ctx, []TableRef{ref1}, 1, "c1", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	ref2, _ := NewTableRef("t", []string{"h1", "h2"})
	c2, err := l.Append(ctx, []TableRef{ref2}, 1, "c2", RetryConfig{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	diff, err := l.Diff(ctx, c1.Hash, c2.Hash)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diff) != 1 || diff[0].Hash != c2.Hash {
		t.Fatalf("Diff(c1,c2) = %+v, want [c2]", diff)
	}
}
