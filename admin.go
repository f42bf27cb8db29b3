package strata

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/strataql/strata/internal/timeline"
)

// Verify walks the full commit chain, confirming every commit's stored
// hash matches its own content and that PrevHash links are unbroken
// back to the empty root.
func (db *DB) Verify(ctx context.Context) (timeline.VerifyReport, error) {
	return db.log.Verify(ctx)
}

// GCReport summarizes one garbage collection pass: how many stripes
// remain reachable from HEAD or a named snapshot, and which orphaned
// stripe blobs were removed.
type GCReport struct {
	ReachableStripes int
	DeletedPaths     []string
}

// GC deletes every stripe blob not reachable from HEAD or a named
// snapshot. It holds the write lock for its duration: a stripe written
// by an in-flight Append but not yet linked into a commit must not be
// collected out from under it.
func (db *DB) GC(ctx context.Context) (GCReport, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	reach, err := db.log.Reachability(ctx)
	if err != nil {
		return GCReport{}, err
	}
	reachable := make(map[string]bool, len(reach.StripeHashes))
	for _, h := range reach.StripeHashes {
		reachable[h] = true
	}

	paths, err := db.store.List(ctx, "stripes/")
	if err != nil {
		return GCReport{}, err
	}
	var deleted []string
	for _, p := range paths {
		hash := stripeHashFromPath(p)
		if hash == "" || reachable[hash] {
			continue
		}
		if err := db.store.Delete(ctx, p); err != nil {
			return GCReport{}, err
		}
		deleted = append(deleted, p)
	}
	return GCReport{ReachableStripes: len(reachable), DeletedPaths: deleted}, nil
}

func stripeHashFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, ".stripe")
}
