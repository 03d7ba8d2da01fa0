// Package player implements a simulated playback control loop driving a quality evaluator.
//
// The player owns the buffered queue, the play cursor and the current selection.
// Fetching is simulated: a segment appended to the queue is available immediately.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/diag"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/queue"
	"github.com/agleyzer/abrsim/internal/variant"
)

// Player runs one playback session.
type Player struct {
	mu          sync.RWMutex
	evaluator   evaluator.Evaluator
	meter       bandwidth.Meter
	variants    []variant.Variant
	queue       *queue.Queue
	selection   evaluator.Selection
	maxBufferUs int64
	logger      *slog.Logger

	positionUs  int64
	nextSeq     int
	nextStartUs int64
	started     bool
	stalled     bool

	evaluations int
	switches    int
	discarded   int
	stalls      int
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	PositionUs  int64
	BufferedUs  int64
	QueueLength int
	// Variant is nil before the first evaluation
	Variant     *variant.Variant
	Trigger     evaluator.Trigger
	Estimate    bandwidth.Estimate
	Stalled     bool
	Evaluations int
	Switches    int
	Discarded   int
	Stalls      int
}

// New creates a player. variants must be a valid catalog whose variants all list segments.
func New(ev evaluator.Evaluator, meter bandwidth.Meter, variants []variant.Variant, maxBuffer time.Duration, logger *slog.Logger) (*Player, error) {
	if ev == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if meter == nil {
		return nil, fmt.Errorf("bandwidth meter is required")
	}
	if err := variant.ValidateCatalog(variants); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	for _, v := range variants {
		if len(v.Segments) == 0 {
			return nil, fmt.Errorf("variant %s has zero segments", v.ID)
		}
	}
	if maxBuffer <= 0 {
		return nil, fmt.Errorf("max buffer must be positive")
	}

	return &Player{
		evaluator:   ev,
		meter:       meter,
		variants:    variants,
		queue:       queue.New(),
		selection:   evaluator.NewSelection(),
		maxBufferUs: maxBuffer.Microseconds(),
		logger:      logger,
	}, nil
}

// Tick advances playback by elapsed, re-evaluates the selection, applies any
// requested discard and fetches at most one segment.
func (p *Player) Tick(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.advance(elapsed.Microseconds())
	p.evaluate()
	p.fetch()
}

// advance moves the play cursor, stopping at the end of the buffered media.
// Caller must hold the write lock.
func (p *Player) advance(elapsedUs int64) {
	if elapsedUs <= 0 {
		return
	}

	end, ok := p.queue.EndTimeUs()
	if !ok {
		p.markStalled()
		return
	}

	p.positionUs += elapsedUs
	if p.positionUs >= end {
		p.positionUs = end
		p.markStalled()
	}
	p.queue.DropPlayed(p.positionUs)
}

// markStalled records a rebuffer once playback has started.
// Caller must hold the write lock.
func (p *Player) markStalled() {
	if !p.started || p.stalled {
		return
	}
	p.stalled = true
	p.stalls++
	p.logger.Warn("playback stalled", "position", usToDuration(p.positionUs), "stalls", p.stalls)
}

// evaluate runs the evaluator and truncates the queue as requested.
// Caller must hold the write lock.
func (p *Player) evaluate() {
	prev := p.selection
	prev.QueueSize = p.queue.Len()

	next := p.evaluator.Evaluate(p.queue.Segments(), p.positionUs, p.variants, prev)
	p.evaluations++

	if prev.Variant != nil && !prev.Variant.Same(*next.Variant) {
		p.switches++
		p.logger.Debug("selection changed",
			"from", prev.Variant.ID,
			"to", next.Variant.ID,
			"trigger", next.Trigger,
		)
	}

	if discarded := p.queue.TruncateTo(next.QueueSize); len(discarded) > 0 {
		p.discarded += len(discarded)
		p.nextSeq = discarded[0].Sequence
		p.nextStartUs = discarded[0].StartTimeUs
		p.logger.Info("discarded buffered segments",
			"count", len(discarded),
			"fromSequence", discarded[0].Sequence,
			"retained", p.queue.Len(),
		)
	}

	p.selection = next
}

// fetch appends the next segment at the selected variant when the buffer has room.
// Caller must hold the write lock.
func (p *Player) fetch() {
	if p.queue.BufferedDurationUs(p.positionUs) >= p.maxBufferUs {
		return
	}

	v := *p.selection.Variant
	src := v.Segments[p.nextSeq%len(v.Segments)]
	dur := src.DurationUs()

	p.queue.Append(queue.Segment{
		Sequence:    p.nextSeq,
		URL:         src.URL,
		StartTimeUs: p.nextStartUs,
		EndTimeUs:   p.nextStartUs + dur,
		Variant:     v,
	})
	p.nextSeq++
	p.nextStartUs += dur

	p.started = true
	if p.stalled {
		p.stalled = false
		p.logger.Info("playback resumed", "position", usToDuration(p.positionUs))
	}
}

// Run ticks the player every interval until ctx is canceled.
func (p *Player) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("starting playback loop",
		"interval", interval,
		"maxBuffer", usToDuration(p.maxBufferUs),
		"variants", len(p.variants),
	)

	p.Tick(0)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping playback loop")
			return
		case <-ticker.C:
			p.Tick(interval)
		}
	}
}

// Variants returns the catalog the player selects from.
func (p *Player) Variants() []variant.Variant {
	return p.variants
}

// Buffered returns a copy of the buffered queue.
func (p *Player) Buffered() []queue.Segment {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.queue.Segments()
}

// Snapshot returns the current session state.
func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var current *variant.Variant
	if p.selection.Variant != nil {
		v := *p.selection.Variant
		current = &v
	}

	return Snapshot{
		PositionUs:  p.positionUs,
		BufferedUs:  p.queue.BufferedDurationUs(p.positionUs),
		QueueLength: p.queue.Len(),
		Variant:     current,
		Trigger:     p.selection.Trigger,
		Estimate:    p.meter.Estimate(),
		Stalled:     p.stalled,
		Evaluations: p.evaluations,
		Switches:    p.switches,
		Discarded:   p.discarded,
		Stalls:      p.stalls,
	}
}

// DebugInfo returns the state shown by diag.Render.
func (p *Player) DebugInfo() diag.Info {
	s := p.Snapshot()
	return diag.Info{
		Position: usToDuration(s.PositionUs),
		Variant:  s.Variant,
		Estimate: s.Estimate,
		Buffered: usToDuration(s.BufferedUs),
	}
}

// GetStats returns current statistics about the session.
func (p *Player) GetStats() map[string]interface{} {
	s := p.Snapshot()

	stats := map[string]interface{}{
		"position_ms":  usToDuration(s.PositionUs).Milliseconds(),
		"buffered_ms":  usToDuration(s.BufferedUs).Milliseconds(),
		"queue_length": s.QueueLength,
		"trigger":      s.Trigger.String(),
		"estimate":     s.Estimate.String(),
		"stalled":      s.Stalled,
		"evaluations":  s.Evaluations,
		"switches":     s.Switches,
		"discarded":    s.Discarded,
		"stalls":       s.Stalls,
	}

	if s.Variant != nil {
		stats["variant"] = map[string]interface{}{
			"id":         s.Variant.ID,
			"bitrate":    s.Variant.Bitrate,
			"resolution": s.Variant.Resolution(),
		}
	}

	return stats
}

func usToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
