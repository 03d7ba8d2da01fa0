// Package bandwidth exposes bandwidth estimates to the quality evaluators.
//
// Estimation itself happens elsewhere; this package only carries the latest
// estimate from the measuring side to the deciding side.
package bandwidth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Estimate is a bandwidth estimate in bits per second, or Unknown before any
// measurement is available. The zero value is Unknown.
type Estimate struct {
	bitsPerSecond int64
	known         bool
}

// Unknown returns the estimate reported before any measurement exists.
func Unknown() Estimate {
	return Estimate{}
}

// Known returns an estimate of bps bits per second. Negative values are clamped to zero.
func Known(bps int64) Estimate {
	if bps < 0 {
		bps = 0
	}
	return Estimate{bitsPerSecond: bps, known: true}
}

// BitsPerSecond returns the estimate and whether it is known.
func (e Estimate) BitsPerSecond() (int64, bool) {
	return e.bitsPerSecond, e.known
}

// IsKnown reports whether a measurement is available.
func (e Estimate) IsKnown() bool {
	return e.known
}

// String formats the estimate for logs, "unknown" when no measurement exists.
func (e Estimate) String() string {
	if !e.known {
		return "unknown"
	}
	return fmt.Sprintf("%dbps", e.bitsPerSecond)
}

// Meter provides the current bandwidth estimate.
type Meter interface {
	// Estimate returns a single consistent snapshot of the latest estimate.
	Estimate() Estimate
}

// AtomicMeter is a Meter fed by an external measurement path.
// It is safe for concurrent use; the zero value reports Unknown.
type AtomicMeter struct {
	// v holds bps+1, with 0 meaning unknown, so one atomic load yields the whole estimate.
	v atomic.Int64
}

// NewAtomicMeter creates a meter holding initial.
func NewAtomicMeter(initial Estimate) *AtomicMeter {
	m := &AtomicMeter{}
	m.Set(initial)
	return m
}

// Set replaces the current estimate.
func (m *AtomicMeter) Set(e Estimate) {
	if !e.known {
		m.v.Store(0)
		return
	}
	m.v.Store(e.bitsPerSecond + 1)
}

// Publish replaces the current estimate. It never fails.
func (m *AtomicMeter) Publish(e Estimate) error {
	m.Set(e)
	return nil
}

// Estimate returns the current estimate.
func (m *AtomicMeter) Estimate() Estimate {
	v := m.v.Load()
	if v == 0 {
		return Unknown()
	}
	return Known(v - 1)
}

// ParseEstimate parses "unknown" (or "") and bit rates such as "1200000", "800k", "3M", "1.5m".
func ParseEstimate(s string) (Estimate, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unknown") {
		return Unknown(), nil
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1e3
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1e6
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1e9
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unknown(), fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Unknown(), fmt.Errorf("invalid bandwidth %q: must be finite", s)
	}
	if f < 0 {
		return Unknown(), fmt.Errorf("invalid bandwidth %q: must not be negative", s)
	}

	bps := f * mult
	if bps >= math.MaxInt64 {
		return Unknown(), fmt.Errorf("invalid bandwidth %q: exceeds %d bps", s, int64(math.MaxInt64))
	}

	return Known(int64(bps)), nil
}
