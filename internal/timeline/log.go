package timeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/strataql/strata/internal/blob"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/slog"
)

const (
	logPath       = "timeline/commits.log"
	headPath      = "timeline/HEAD"
	snapshotDir   = "timeline/snapshots/"
	zeroHash      = ""
	maxScanBuffer = 64 * 1024 * 1024
)

// Log is the durable, append-only commit chain for one database,
// rooted at a blob.Store. Reads reload the log lazily; Append is the
// only mutator and is safe for one concurrent writer (spec.md's
// single-writer model) with compare-and-swap protection against a
// second writer racing on HEAD.
type Log struct {
	store *blob.Store
}

// Open attaches a Log to store, initializing an empty chain if none
// exists yet.
func Open(ctx context.Context, store *blob.Store) (*Log, error) {
	l := &Log{store: store}
	exists, err := store.Exists(ctx, headPath)
	if err != nil {
		return nil, errs.IOError("timeline.Open", err)
	}
	if !exists {
		if err := store.Put(ctx, headPath, []byte(zeroHash)); err != nil {
			return nil, errs.IOError("timeline.Open", err)
		}
	}
	return l, nil
}

// Head returns the hash of the latest commit, or "" for an empty chain.
func (l *Log) Head(ctx context.Context) (string, error) {
	data, err := l.store.Get(ctx, headPath)
	if err != nil {
		return "", errs.IOError("timeline.Head", err)
	}
	return string(data), nil
}

// All reads every commit in append order. The log is small relative to
// available memory at embedded-engine scale (one entry per write), so a
// full scan is acceptable; Append only ever grows the file.
func (l *Log) All(ctx context.Context) ([]Commit, error) {
	data, err := l.store.Get(ctx, logPath)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.IOError("timeline.All", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBuffer)
	var commits []Commit
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var c Commit
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, errs.Corrupt("timeline.All", fmt.Errorf("commit log line %d: %w", line, err))
		}
		commits = append(commits, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Corrupt("timeline.All", err)
	}
	return commits, nil
}

// ByHash returns the commit with the given content hash.
func (l *Log) ByHash(ctx context.Context, hash string) (Commit, error) {
	commits, err := l.All(ctx)
	if err != nil {
		return Commit{}, err
	}
	for _, c := range commits {
		if c.Hash == hash {
			return c, nil
		}
	}
	return Commit{}, errs.Newf(errs.Catalog, "timeline.ByHash", "unknown commit %q", hash)
}

// RetryConfig mirrors config.Engine.AppendRetryMaxElapsed, letting a
// caller outside this package bound how long Append retries a HEAD
// compare-and-swap race before giving up.
type RetryConfig struct {
	MaxElapsed time.Duration
}

// Append builds and durably records a new commit with the given table
// refs, retrying (per retry) if a concurrent writer moved HEAD between
// this call's read and its compare-and-swap.
func (l *Log) Append(ctx context.Context, tables []TableRef, schemaVersion int, message string, retry RetryConfig) (Commit, error) {
	var result Commit
	bo := backoff.NewExponentialBackOff()
	if retry.MaxElapsed > 0 {
		bo.MaxElapsedTime = retry.MaxElapsed
	}
	op := func() error {
		c, err := l.tryAppend(ctx, tables, schemaVersion, message)
		if errors.Is(err, ErrConcurrentWrite) {
			slog.Warnw("timeline append retry", "reason", "concurrent write")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, ErrConcurrentWrite) {
			return Commit{}, errs.New(errs.Execution, "timeline.Append", err)
		}
		return Commit{}, err
	}
	return result, nil
}

func (l *Log) tryAppend(ctx context.Context, tables []TableRef, schemaVersion int, message string) (Commit, error) {
	prevHash, err := l.Head(ctx)
	if err != nil {
		return Commit{}, err
	}
	commits, err := l.All(ctx)
	if err != nil {
		return Commit{}, err
	}

	c := Commit{
		Seq:           uint64(len(commits)) + 1,
		PrevHash:      prevHash,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Message:       message,
		Tables:        tables,
	}
	hash, err := c.contentHash()
	if err != nil {
		return Commit{}, errs.Invariant("timeline.tryAppend", "I-CHAIN-HASH", err)
	}
	c.Hash = hash

	line, err := json.Marshal(c)
	if err != nil {
		return Commit{}, errs.IOError("timeline.tryAppend", err)
	}

	// Compare-and-swap on HEAD: re-read immediately before the write and
	// abort if another writer already advanced it.
	curHead, err := l.Head(ctx)
	if err != nil {
		return Commit{}, err
	}
	if curHead != prevHash {
		return Commit{}, ErrConcurrentWrite
	}

	data, err := l.store.Get(ctx, logPath)
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		return Commit{}, errs.IOError("timeline.tryAppend", err)
	}
	next := append(append([]byte(nil), data...), line...)
	next = append(next, '\n')
	if err := l.store.Put(ctx, logPath, next); err != nil {
		return Commit{}, errs.IOError("timeline.tryAppend", err)
	}
	if err := l.store.Put(ctx, headPath, []byte(c.Hash)); err != nil {
		return Commit{}, errs.IOError("timeline.tryAppend", err)
	}
	return c, nil
}

// Reset moves HEAD to point at an existing commit hash (rollback). It
// never truncates the log: later commits remain on disk, reachable
// again if HEAD is reset forward, and subject to GC only once no
// snapshot or HEAD references them.
func (l *Log) Reset(ctx context.Context, targetHash string) error {
	if targetHash != zeroHash {
		if _, err := l.ByHash(ctx, targetHash); err != nil {
			return err
		}
	}
	if err := l.store.Put(ctx, headPath, []byte(targetHash)); err != nil {
		return errs.IOError("timeline.Reset", err)
	}
	return nil
}

// Verify walks the full chain, confirming every commit's stored hash
// matches its own content and that PrevHash links are unbroken back to
// the empty root.
func (l *Log) Verify(ctx context.Context) (VerifyReport, error) {
	commits, err := l.All(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	prev := zeroHash
	for _, c := range commits {
		if err := verifyLinkage(c, prev); err != nil {
			return VerifyReport{CommitCount: len(commits), OK: false, Err: err}, nil
		}
		prev = c.Hash
	}
	return VerifyReport{CommitCount: len(commits), HeadHash: prev, OK: true}, nil
}

// Diff returns every commit strictly between fromHash (exclusive) and
// toHash (inclusive), walking the chain backward from toHash.
func (l *Log) Diff(ctx context.Context, fromHash, toHash string) ([]Commit, error) {
	commits, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]Commit, len(commits))
	for _, c := range commits {
		byHash[c.Hash] = c
	}
	var out []Commit
	cur := toHash
	for cur != fromHash && cur != zeroHash {
		c, ok := byHash[cur]
		if !ok {
			return nil, errs.Newf(errs.Catalog, "timeline.Diff", "unknown commit %q", cur)
		}
		out = append([]Commit{c}, out...)
		cur = c.PrevHash
	}
	if cur != fromHash {
		return nil, errs.Newf(errs.Catalog, "timeline.Diff", "commit %q is not an ancestor of %q", fromHash, toHash)
	}
	return out, nil
}

// CreateSnapshot names commitHash so GC treats it as reachable.
func (l *Log) CreateSnapshot(ctx context.Context, name, commitHash string) error {
	if commitHash != zeroHash {
		if _, err := l.ByHash(ctx, commitHash); err != nil {
			return err
		}
	}
	s := Snapshot{Name: name, CommitHash: commitHash, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(s)
	if err != nil {
		return errs.IOError("timeline.CreateSnapshot", err)
	}
	if err := l.store.Put(ctx, snapshotDir+name, data); err != nil {
		return errs.IOError("timeline.CreateSnapshot", err)
	}
	return nil
}

// DropSnapshot removes a named snapshot.
func (l *Log) DropSnapshot(ctx context.Context, name string) error {
	if err := l.store.Delete(ctx, snapshotDir+name); err != nil {
		return errs.IOError("timeline.DropSnapshot", err)
	}
	return nil
}

// Snapshots lists every named snapshot.
func (l *Log) Snapshots(ctx context.Context) ([]Snapshot, error) {
	names, err := l.store.List(ctx, snapshotDir)
	if err != nil {
		return nil, errs.IOError("timeline.Snapshots", err)
	}
	out := make([]Snapshot, 0, len(names))
	for _, n := range names {
		data, err := l.store.Get(ctx, n)
		if err != nil {
			return nil, errs.IOError("timeline.Snapshots", err)
		}
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, errs.Corrupt("timeline.Snapshots", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Reachability returns the set of stripe hashes referenced by HEAD or
// any named snapshot, walking each root's ancestor chain.
func (l *Log) Reachability(ctx context.Context) (ReachabilityReport, error) {
	roots := map[string]bool{}
	head, err := l.Head(ctx)
	if err != nil {
		return ReachabilityReport{}, err
	}
	if head != zeroHash {
		roots[head] = true
	}
	snaps, err := l.Snapshots(ctx)
	if err != nil {
		return ReachabilityReport{}, err
	}
	for _, s := range snaps {
		if s.CommitHash != zeroHash {
			roots[s.CommitHash] = true
		}
	}

	commits, err := l.All(ctx)
	if err != nil {
		return ReachabilityReport{}, err
	}
	byHash := make(map[string]Commit, len(commits))
	for _, c := range commits {
		byHash[c.Hash] = c
	}

	reachableCommits := map[string]bool{}
	stripes := map[string]bool{}
	var walk func(hash string)
	walk = func(hash string) {
		if hash == zeroHash || reachableCommits[hash] {
			return
		}
		c, ok := byHash[hash]
		if !ok {
			return
		}
		reachableCommits[hash] = true
		for _, t := range c.Tables {
			for _, sh := range t.StripeHashes {
				stripes[sh] = true
			}
		}
		walk(c.PrevHash)
	}
	for root := range roots {
		walk(root)
	}

	report := ReachabilityReport{ReachableCommits: len(reachableCommits)}
	for sh := range stripes {
		report.StripeHashes = append(report.StripeHashes, sh)
	}
	return report, nil
}
