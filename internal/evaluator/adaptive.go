package evaluator

import (
	"fmt"
	"math"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/queue"
	"github.com/agleyzer/abrsim/internal/variant"
)

// Adaptive selects the best quality the current bandwidth estimate affords,
// then applies buffer hysteresis so that a noisy estimate does not cause flapping:
// upgrades wait for a minimum buffer, downgrades wait until the buffer runs low.
// When upgrading with a long buffer it may ask the caller to discard queued
// low-quality segments so the new quality starts playing sooner.
type Adaptive struct {
	meter    bandwidth.Meter
	observer Observer

	maxInitialBitrate int64
	minIncreaseUs     int64
	maxDecreaseUs     int64
	minRetainUs       int64
	bandwidthFraction float64
}

// NewAdaptive creates an adaptive evaluator reading estimates from meter.
// observer may be nil.
func NewAdaptive(meter bandwidth.Meter, cfg Config, observer Observer) (*Adaptive, error) {
	if meter == nil {
		return nil, fmt.Errorf("bandwidth meter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Adaptive{
		meter:             meter,
		observer:          observer,
		maxInitialBitrate: cfg.MaxInitialBitrate,
		minIncreaseUs:     cfg.MinDurationForQualityIncrease.Microseconds(),
		maxDecreaseUs:     cfg.MaxDurationForQualityDecrease.Microseconds(),
		minRetainUs:       cfg.MinDurationToRetainAfterDiscard.Microseconds(),
		bandwidthFraction: cfg.BandwidthFraction,
	}, nil
}

// Evaluate implements Evaluator.
func (a *Adaptive) Evaluate(segs []queue.Segment, playbackPositionUs int64, variants []variant.Variant, prev Selection) Selection {
	mustCatalog(variants)

	bufferedUs := queue.BufferedDurationUs(segs, playbackPositionUs)
	estimate := a.meter.Estimate()
	effective := a.effectiveBitrate(estimate)
	ideal := idealVariant(variants, effective)
	chosen := ideal

	next := prev
	decision := DecisionInitial

	if current := prev.Variant; current != nil {
		decision = DecisionHold

		switch {
		case ideal.Bitrate > current.Bitrate:
			switch {
			case bufferedUs < a.minIncreaseUs:
				// Not enough buffer to risk a stall on the higher bitrate.
				chosen = *current
				decision = DecisionUpgradeDeferred
			case bufferedUs >= a.minRetainUs:
				decision = DecisionUpgrade
				if i, ok := a.discardPoint(segs, playbackPositionUs, ideal); ok {
					next.QueueSize = i
					decision = DecisionUpgradeDiscard
				}
			default:
				decision = DecisionUpgrade
			}
		case ideal.Bitrate < current.Bitrate:
			if bufferedUs >= a.maxDecreaseUs {
				// Enough buffer to ride out the dip.
				chosen = *current
				decision = DecisionDowngradeDeferred
			} else {
				decision = DecisionDowngrade
			}
		}
	}

	next = transition(next, chosen)

	if a.observer != nil {
		a.observer.Observe(Diagnostics{
			PlaybackPositionUs: playbackPositionUs,
			BufferedDurationUs: bufferedUs,
			Estimate:           estimate,
			EffectiveBitrate:   effective,
			Ideal:              ideal,
			Selected:           chosen,
			Decision:           decision,
			Trigger:            next.Trigger,
			QueueSize:          next.QueueSize,
		})
	}

	return next
}

// effectiveBitrate returns the bitrate budget for the given estimate.
func (a *Adaptive) effectiveBitrate(e bandwidth.Estimate) int64 {
	bps, ok := e.BitsPerSecond()
	if !ok {
		return a.maxInitialBitrate
	}
	budget := float64(bps) * a.bandwidthFraction
	if budget >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(budget)
}

// idealVariant returns the highest-bitrate variant within budget, or the lowest variant
// when none fits. variants must be non-empty and sorted by decreasing bitrate.
func idealVariant(variants []variant.Variant, budget int64) variant.Variant {
	for _, v := range variants {
		if v.Bitrate <= budget {
			return v
		}
	}
	return variants[len(variants)-1]
}

// discardPoint returns the first queue index from which segments may be discarded
// in favour of target. Index 0 is never a candidate. A segment qualifies when at least
// the retention floor of media precedes it and it is lower bitrate, lower resolution
// and below HD.
func (a *Adaptive) discardPoint(segs []queue.Segment, playbackPositionUs int64, target variant.Variant) (int, bool) {
	for i := 1; i < len(segs); i++ {
		s := segs[i]
		leadUs := s.StartTimeUs - playbackPositionUs
		if leadUs >= a.minRetainUs &&
			s.Variant.Bitrate < target.Bitrate &&
			s.Variant.Height < target.Height &&
			s.Variant.Height < hdHeight &&
			s.Variant.Width < hdWidth {
			return i, true
		}
	}
	return 0, false
}
