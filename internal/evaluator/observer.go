package evaluator

import (
	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/variant"
)

// Decision describes which branch of the adaptive algorithm produced a selection.
type Decision string

const (
	DecisionInitial           Decision = "initial"
	DecisionHold              Decision = "hold"
	DecisionUpgrade           Decision = "upgrade"
	DecisionUpgradeDeferred   Decision = "upgrade-deferred"
	DecisionUpgradeDiscard    Decision = "upgrade-discard"
	DecisionDowngrade         Decision = "downgrade"
	DecisionDowngradeDeferred Decision = "downgrade-deferred"
)

// Diagnostics is a snapshot of one adaptive evaluation.
type Diagnostics struct {
	PlaybackPositionUs int64
	BufferedDurationUs int64
	Estimate           bandwidth.Estimate
	EffectiveBitrate   int64
	// Ideal is the variant chosen by bandwidth alone.
	Ideal variant.Variant
	// Selected is the variant after buffer hysteresis.
	Selected  variant.Variant
	Decision  Decision
	Trigger   Trigger
	QueueSize int
}

// Observer is notified after every adaptive evaluation.
// Observers must not retain or modify the evaluator's inputs.
type Observer interface {
	Observe(d Diagnostics)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d Diagnostics)

// Observe calls f(d).
func (f ObserverFunc) Observe(d Diagnostics) {
	f(d)
}

// Observers fans one evaluation out to several observers; nil entries are skipped.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(d Diagnostics) {
		for _, o := range obs {
			if o != nil {
				o.Observe(d)
			}
		}
	})
}
