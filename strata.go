// Package strata implements the embedded lakehouse database engine: a
// content-addressed commit timeline over columnar stripe storage, with
// secondary indexes, a cost-based planner, a streaming executor, and an
// embedded scripting language runtime with a hot-path JIT. Open wires
// every layer together the way the data flow in spec.md §2 describes:
// a query string enters the language runtime, SELECT routes to the
// planner/executor, DML and DDL route to the write path and catalog,
// writes append a new commit to the timeline and
// invalidate dependent cache entries.
package strata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strataql/strata/internal/blob"
	"github.com/strataql/strata/internal/cache"
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/config"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/index"
	"github.com/strataql/strata/internal/jit"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
	"github.com/strataql/strata/internal/slog"
	"github.com/strataql/strata/internal/stripe"
	"github.com/strataql/strata/internal/timeline"
)

// Option configures a DB at Open time.
type Option func(*DB)

// WithEngineConfig overrides the compiled-in defaults from config.Defaults().
func WithEngineConfig(cfg config.Engine) Option {
	return func(db *DB) { db.cfg = cfg }
}

// DB is one open database rooted at a filesystem directory. All mutation
// goes through a single Writer handle (spec.md's single-writer model);
// reads may run concurrently with each other and with an in-flight write
// against the last-committed snapshot.
type DB struct {
	cfg   config.Engine
	store *blob.Store
	reg   *catalog.Registry
	log   *timeline.Log
	cache *cache.Cache
	eval  *lang.Evaluator
	jitc  *jit.Compiler

	writeMu sync.Mutex
	mu      sync.RWMutex
	tables  map[string]*tableState
}

// tableState is the in-memory materialization of one table's current
// stripe set plus its rebuilt secondary indexes, kept current as of the
// timeline's HEAD commit.
type tableState struct {
	stripes      []*stripe.Stripe
	stripeHashes []string
	indexes      *index.Store
}

// Open attaches a DB to root, creating an empty database there if none
// exists yet, and loads every table's current stripe set from the
// timeline's HEAD commit.
func Open(ctx context.Context, root string, name string, opts ...Option) (*DB, error) {
	store, err := blob.Open(root)
	if err != nil {
		return nil, err
	}
	reg, err := catalog.Open(ctx, name, store)
	if err != nil {
		return nil, err
	}
	log, err := timeline.Open(ctx, store)
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:    config.Defaults(),
		store:  store,
		reg:    reg,
		log:    log,
		tables: map[string]*tableState{},
	}
	for _, opt := range opts {
		opt(db)
	}
	c, err := cache.New(db.cfg.CacheMaxEntries, int64(db.cfg.CacheMaxBytes))
	if err != nil {
		return nil, errs.New(errs.Internal, "strata.Open", err)
	}
	db.cache = c
	db.eval = lang.NewEvaluator(db.cfg)
	db.jitc = jit.NewCompiler(db.eval, db.cfg)

	if err := db.reloadAll(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases resources held by db. Safe to call once all outstanding
// queries have returned.
func (db *DB) Close() error {
	return slog.Sync()
}

// appendRetry parses cfg.AppendRetryMaxElapsed, defaulting to 2s on a
// malformed or empty value rather than failing every write over a
// misconfigured tunable.
func (db *DB) appendRetry() timeline.RetryConfig {
	d, err := time.ParseDuration(db.cfg.AppendRetryMaxElapsed)
	if err != nil || d <= 0 {
		d = 2 * time.Second
	}
	return timeline.RetryConfig{MaxElapsed: d}
}

// reloadAll rebuilds every table's in-memory stripe set and indexes from
// the commit at the timeline's current HEAD.
func (db *DB) reloadAll(ctx context.Context) error {
	head, err := db.log.Head(ctx)
	if err != nil {
		return err
	}
	tableRefs := map[string]timeline.TableRef{}
	if head != "" {
		c, err := db.log.ByHash(ctx, head)
		if err != nil {
			return err
		}
		for _, tr := range c.Tables {
			tableRefs[tr.Table] = tr
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = map[string]*tableState{}
	for _, t := range db.reg.Snapshot().Tables {
		ts, err := db.loadTable(ctx, t, tableRefs[t.Name])
		if err != nil {
			return err
		}
		db.tables[t.Name] = ts
	}
	return nil
}

func (db *DB) loadTable(ctx context.Context, t catalog.Table, ref timeline.TableRef) (*tableState, error) {
	ts := &tableState{}
	for _, h := range ref.StripeHashes {
		data, err := db.store.Get(ctx, stripePath(t.Name, h))
		if err != nil {
			return nil, errs.IOError("strata.loadTable", err)
		}
		st, err := stripe.Decode(data)
		if err != nil {
			return nil, err
		}
		ts.stripes = append(ts.stripes, st)
		ts.stripeHashes = append(ts.stripeHashes, h)
	}
	ts.indexes = db.rebuildIndexes(t, ts.stripes)
	return ts, nil
}

// rebuildIndexes performs the full index rebuild the in-memory
// index.Store implies: every index on t is reconstructed from scratch by
// walking every stripe's decoded columns, since there is no incremental
// persisted index format to reconcile against a new stripe set.
func (db *DB) rebuildIndexes(t catalog.Table, stripes []*stripe.Stripe) *index.Store {
	rowCount := uint64(0)
	for _, s := range stripes {
		rowCount += uint64(s.RowCount())
	}
	store := index.ForTable(t, db.cfg.BloomFalsePositiveRate, db.cfg.BloomMaxBits, rowCount)
	for _, def := range t.Indexes {
		idx, err := store.Get(def.Name)
		if err != nil {
			continue
		}
		colIdx := make([]int, len(def.Columns))
		for i, c := range def.Columns {
			colIdx[i] = t.ColumnIndex(c)
		}
		for si, s := range stripes {
			cols := make([][]row.Value, len(colIdx))
			ok := true
			for i, ci := range colIdx {
				vals, err := s.Column(ci)
				if err != nil {
					ok = false
					break
				}
				cols[i] = vals
			}
			if !ok {
				continue
			}
			n := s.RowCount()
			for r := 0; r < n; r++ {
				key := make(index.Key, len(colIdx))
				for i := range colIdx {
					if r < len(cols[i]) {
						key[i] = cols[i][r]
					}
				}
				_ = idx.Insert(key, encodeRowID(si, r))
			}
		}
	}
	return store
}

// encodeRowID packs a stripe's position within the table's current
// stripe list and a row's offset within that stripe into one RowID.
// Stripes are immutable and copy-on-write replaces the whole stripe set
// on every mutating commit, so a RowID is only ever interpreted against
// the tableState it was produced from, never persisted across commits.
func encodeRowID(stripeIdx, rowOffset int) index.RowID {
	return index.RowID(uint64(uint32(stripeIdx))<<32 | uint64(uint32(rowOffset)))
}

func decodeRowID(id index.RowID) (stripeIdx, rowOffset int) {
	return int(uint64(id) >> 32), int(uint32(uint64(id)))
}

func stripePath(table, hash string) string {
	return fmt.Sprintf("stripes/%s/%s.stripe", table, hash)
}
