package jit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/strataql/strata/internal/lang"
)

// benchSample is one recorded specialized-form execution: the arguments
// it ran with and how long it took, kept so the periodic benchmark pass
// can re-run the same arguments through the interpreter for comparison.
type benchSample struct {
	args    []lang.Value
	elapsed time.Duration
}

// callStats accumulates specialized-call timings for one cache entry
// until there are enough to race against the interpreter, mirroring the
// bounded-sample-then-drain shape the daemon's request-latency metrics
// use for their own periodic reporting.
type callStats struct {
	mu         sync.Mutex
	maxSamples int
	samples    []benchSample
}

func newCallStats(benchSamples int) *callStats {
	if benchSamples < 1 {
		benchSamples = 1
	}
	return &callStats{maxSamples: benchSamples}
}

// record appends one specialized-call sample and reports whether enough
// have now accumulated to trigger a benchmark race.
func (s *callStats) record(args []lang.Value, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, benchSample{args: cloneArgs(args), elapsed: elapsed})
	return len(s.samples) >= s.maxSamples
}

// drain empties the accumulated samples for a benchmark pass.
func (s *callStats) drain() []benchSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.samples
	s.samples = nil
	return out
}

func cloneArgs(args []lang.Value) []lang.Value {
	out := make([]lang.Value, len(args))
	copy(out, args)
	return out
}

func timeCall(fn func() (lang.Value, error)) (lang.Value, time.Duration, error) {
	start := time.Now()
	v, err := fn()
	return v, time.Since(start), err
}

// benchmark races the accumulated specialized-call samples against the
// interpreter running the same recorded arguments. The first
// cfg.JITWarmupSamples samples are discarded before either average is
// computed, so JIT/cache warm-up and GC jitter in the first few calls
// don't bias the verdict. If the specialized form comes out slower by
// more than JITRetireMargin it is retired; otherwise the observed
// speedup nudges the adaptive threshold.
//
// Re-running a sample through the interpreter re-executes fn's body, so
// this assumes script functions racing here are side-effect-idempotent
// over their own arguments - true of the language's pure expression/
// recursion subset, which is what the hot-path compiler targets.
func (c *Compiler) benchmark(fn *lang.Function, e *entry) {
	samples := e.stats.drain()
	warmup := c.cfg.JITWarmupSamples
	if warmup >= len(samples) {
		return
	}

	var specTotal, interpTotal time.Duration
	rated := 0
	for i := warmup; i < len(samples); i++ {
		s := samples[i]
		_, interpElapsed, err := timeCall(func() (lang.Value, error) {
			return c.eval.CallFunction(fn, s.args, 0)
		})
		if err != nil {
			continue
		}
		specTotal += s.elapsed
		interpTotal += interpElapsed
		rated++
	}
	if rated == 0 {
		return
	}
	specAvg := specTotal / time.Duration(rated)
	interpAvg := interpTotal / time.Duration(rated)

	c.adjustThreshold(interpAvg, specAvg)

	if float64(specAvg) > float64(interpAvg)*c.cfg.JITRetireMargin {
		c.mu.Lock()
		delete(c.entries, fn.Def.Name)
		c.counts[fn.Def.Name] = 0
		c.mu.Unlock()
	}
}

// adjustThreshold nudges the promotion threshold toward fewer required
// calls when specialization is paying off handsomely, and toward more
// when it isn't, clamped to [JITThresholdFloor, JITThresholdCeil].
func (c *Compiler) adjustThreshold(interpAvg, specAvg time.Duration) {
	if specAvg <= 0 {
		return
	}
	speedup := float64(interpAvg) / float64(specAvg)
	cur := c.Threshold()
	next := cur
	switch {
	case speedup >= 2:
		next = cur - 1
	case speedup <= 1:
		next = cur + 1
	}
	floor := int64(c.cfg.JITThresholdFloor)
	ceil := int64(c.cfg.JITThresholdCeil)
	if next < floor {
		next = floor
	}
	if next > ceil {
		next = ceil
	}
	atomic.StoreInt64(&c.threshold, next)
}
