// Package jit implements strata's hot-path compiler: it counts calls to
// named script functions, and once a function crosses a call-count
// threshold it specializes the function's body (constant folding plus
// trivial inlining of pure builtins) and caches the specialized form
// keyed by (ast fingerprint, argument type signature). Later calls with
// a matching signature run the specialized form; an AST edit or a widened
// argument type invalidates the cache entry and execution falls back to
// the evaluator until the next threshold crossing.
package jit

import (
	"sync"
	"sync/atomic"

	"github.com/strataql/strata/internal/config"
	"github.com/strataql/strata/internal/lang"
)

// entry is the cached specialization for one function name: the folded
// definition that produced it, the argument type signature it was built
// for, and the rolling benchmark stats that decide its retirement.
type entry struct {
	astHash uint64
	argSig  string
	folded  *lang.FunctionDef
	stats   *callStats
}

// Compiler owns the per-function call counters and specialization cache.
// It is safe for concurrent use; the evaluator itself is single-threaded
// per spec.md §5, but the compiler's own bookkeeping (counts, entries,
// threshold) may be read from diagnostic/introspection callers.
type Compiler struct {
	eval *lang.Evaluator
	cfg  config.Engine

	threshold int64 // atomic; adaptively adjusted within [JITThresholdFloor, JITThresholdCeil]

	mu      sync.Mutex
	counts  map[string]int64
	entries map[string]*entry
}

// NewCompiler builds a Compiler that falls back to eval for every call
// until a function's invocation count crosses cfg.JITThreshold.
func NewCompiler(eval *lang.Evaluator, cfg config.Engine) *Compiler {
	return &Compiler{
		eval:      eval,
		cfg:       cfg,
		threshold: int64(cfg.JITThreshold),
		counts:    make(map[string]int64),
		entries:   make(map[string]*entry),
	}
}

// Threshold returns the current adaptive call-count threshold.
func (c *Compiler) Threshold() int64 { return atomic.LoadInt64(&c.threshold) }

// Stats reports the current call count and whether fn is specialized,
// for introspection (EXPLAIN-style tooling, tests).
func (c *Compiler) Stats(name string) (calls int64, specialized bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name], c.entries[name] != nil
}

// Call dispatches a user-function invocation: on a live cache hit it
// runs the specialized form; on a miss it counts the call and, once the
// count reaches Threshold, specializes fn and runs the specialized form
// for this very call (below the threshold, or if specialization fails,
// it runs the interpreter). Invalidating an entry resets the count.
// Dispatch never returns a result the interpreter wouldn't also
// have produced - specialization is purely an optimization of how the
// same semantics are reached.
func (c *Compiler) Call(fn *lang.Function, args []lang.Value, depth int) (lang.Value, error) {
	name := fn.Def.Name
	hash := fingerprint(fn.Def)
	sig := typeSignature(args)

	c.mu.Lock()
	e := c.entries[name]
	if e != nil && (e.astHash != hash || e.argSig != sig) {
		delete(c.entries, name)
		c.counts[name] = 0
		e = nil
	}
	if e == nil {
		c.counts[name]++
	}
	count := c.counts[name]
	c.mu.Unlock()

	if e != nil {
		return c.runSpecialized(fn, e, args, depth)
	}

	if count >= c.Threshold() {
		if folded, err := specialize(c.eval, fn.Def); err == nil {
			e = &entry{astHash: hash, argSig: sig, folded: folded, stats: newCallStats(c.cfg.JITBenchSamples)}
			c.mu.Lock()
			c.entries[name] = e
			c.mu.Unlock()
			return c.runSpecialized(fn, e, args, depth)
		}
	}

	return c.eval.CallFunction(fn, args, depth)
}

// runSpecialized executes fn's folded body in place of its original one,
// records a benchmark sample, and periodically races the specialized
// form against the interpreter to decide whether to keep it.
func (c *Compiler) runSpecialized(fn *lang.Function, e *entry, args []lang.Value, depth int) (lang.Value, error) {
	specFn := &lang.Function{Def: e.folded, Closure: fn.Closure}
	result, elapsed, err := timeCall(func() (lang.Value, error) {
		return c.eval.CallFunction(specFn, args, depth)
	})
	ready := e.stats.record(args, elapsed)
	if ready {
		c.benchmark(fn, e)
	}
	return result, err
}
