// Package bloomkit wraps github.com/holiman/bloomfilter/v2 into the
// membership-only, no-false-negative filter spec.md §3/§5 describes,
// shared by the stripe footer (internal/stripe) and the bloom index kind
// (internal/index). Filters are size-capped; once the requested capacity
// would exceed the configured bit budget, the filter degrades to
// "always present" — no false negatives, just no pruning power.
package bloomkit

import (
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
)

var errEmptyFilterEncoding = errors.New("bloomkit: empty filter encoding")

// Filter is a membership pre-filter over arbitrary byte keys.
type Filter struct {
	f        *bloomfilter.Filter
	degraded bool
}

// New builds a filter sized for expectedElements at the given false
// positive rate, capped at maxBits total bits. If the optimal size for
// expectedElements would exceed maxBits, the filter degrades immediately:
// Contains always reports true (a safe over-approximation), preserving
// the no-false-negative guarantee at the cost of pruning power.
func New(expectedElements uint64, falsePositiveRate float64, maxBits uint64) *Filter {
	if expectedElements == 0 {
		expectedElements = 1
	}
	f, err := bloomfilter.NewOptimal(expectedElements, falsePositiveRate)
	if err != nil || f.M() > maxBits {
		return &Filter{degraded: true}
	}
	return &Filter{f: f}
}

func hasherFor(key []byte) *xxhash.Digest {
	h := xxhash.New()
	h.Write(key) //nolint:errcheck // xxhash.Digest.Write never errors
	return h
}

// Add records key's membership. A no-op on a degraded filter, since a
// degraded filter already reports every key as possibly present.
func (b *Filter) Add(key []byte) {
	if b.degraded || b.f == nil {
		return
	}
	b.f.Add(hasherFor(key))
}

// Contains reports whether key may be present. Never a false negative:
// a degraded filter always returns true.
func (b *Filter) Contains(key []byte) bool {
	if b.degraded || b.f == nil {
		return true
	}
	return b.f.Contains(hasherFor(key))
}

// Degraded reports whether this filter overflowed its bit budget and is
// now a pass-through "always present" stand-in.
func (b *Filter) Degraded() bool { return b.degraded }

// MarshalBinary encodes the filter for storage in a stripe footer or
// index page: a one-byte tag (0 = degraded, 1 = live) followed by the
// live filter's own JSON encoding.
func (b *Filter) MarshalBinary() ([]byte, error) {
	if b.degraded || b.f == nil {
		return []byte{0}, nil
	}
	data, err := b.f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append([]byte{1}, data...), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (b *Filter) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errEmptyFilterEncoding
	}
	if data[0] == 0 {
		b.degraded = true
		b.f = nil
		return nil
	}
	f := &bloomfilter.Filter{}
	if err := f.UnmarshalJSON(data[1:]); err != nil {
		return err
	}
	b.degraded = false
	b.f = f
	return nil
}
