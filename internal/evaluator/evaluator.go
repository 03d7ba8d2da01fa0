// Package evaluator decides which variant a segmented-media player should fetch next.
//
// An Evaluator is a state transition: it receives the previous Selection together
// with the buffered queue, the playback position and the variant catalog, and returns
// the next Selection. Evaluators perform no I/O and keep no per-session state, so one
// evaluator may serve a single playback loop for its whole lifetime.
package evaluator

import (
	"fmt"
	"math/rand"

	"github.com/agleyzer/abrsim/internal/queue"
	"github.com/agleyzer/abrsim/internal/variant"
)

// Evaluator selects from a number of available variants during playback.
type Evaluator interface {
	// Evaluate returns the selection that follows prev.
	//
	// segs is a read-only view of the buffered segments ordered by start time,
	// variants is ordered by strictly decreasing bitrate and must not be empty.
	// prev.Variant is nil only on the first call of a session.
	Evaluate(segs []queue.Segment, playbackPositionUs int64, variants []variant.Variant, prev Selection) Selection
}

// mustCatalog panics when variants violates the catalog contract.
func mustCatalog(variants []variant.Variant) {
	if err := variant.ValidateCatalog(variants); err != nil {
		panic(fmt.Sprintf("evaluator: %v", err))
	}
}

// Fixed always selects the first (highest bitrate) variant.
type Fixed struct{}

// Evaluate implements Evaluator.
func (Fixed) Evaluate(_ []queue.Segment, _ int64, variants []variant.Variant, prev Selection) Selection {
	mustCatalog(variants)
	return transition(prev, variants[0])
}

// Random selects uniformly at random between the available variants.
// It is not safe for concurrent use.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a Random evaluator seeded with seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Evaluate implements Evaluator.
func (r *Random) Evaluate(_ []queue.Segment, _ int64, variants []variant.Variant, prev Selection) Selection {
	mustCatalog(variants)
	return transition(prev, variants[r.rng.Intn(len(variants))])
}
