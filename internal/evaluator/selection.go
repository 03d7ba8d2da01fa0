package evaluator

import (
	"github.com/agleyzer/abrsim/internal/variant"
)

// Trigger is the sticky reason the current variant was selected.
type Trigger uint8

const (
	// TriggerUnspecified means no reason was recorded.
	TriggerUnspecified Trigger = iota
	// TriggerInitial marks the selection made at the start of playback.
	TriggerInitial
	// TriggerManual marks a selection forced by the user.
	TriggerManual
	// TriggerAdaptive marks a switch made by an evaluator during playback.
	TriggerAdaptive
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerUnspecified:
		return "unspecified"
	case TriggerInitial:
		return "initial"
	case TriggerManual:
		return "manual"
	case TriggerAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Selection is the outcome of one evaluation and the input to the next.
type Selection struct {
	// Variant is the selected variant, nil before the first evaluation.
	Variant *variant.Variant
	// Trigger is the reason Variant was selected. It only changes together with Variant.
	Trigger Trigger
	// QueueSize is the number of leading buffered segments to retain.
	// Callers set it to the current queue length before evaluating.
	QueueSize int
}

// NewSelection returns the selection to pass into the first evaluation of a session.
func NewSelection() Selection {
	return Selection{Trigger: TriggerInitial}
}

// HasVariant reports whether a variant has been selected.
func (s Selection) HasVariant() bool {
	return s.Variant != nil
}

// transition returns prev with next selected. The trigger becomes TriggerAdaptive
// only when a previous variant existed and next is a different variant.
func transition(prev Selection, next variant.Variant) Selection {
	out := prev
	if prev.Variant != nil && !prev.Variant.Same(next) {
		out.Trigger = TriggerAdaptive
	}
	out.Variant = &next
	return out
}
