// Package diag reports adaptive evaluations for humans: structured logs and a debug text block.
package diag

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/variant"
)

// LogObserver logs every evaluation at debug level and every switch at info level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates an observer writing to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// Observe implements evaluator.Observer.
func (o *LogObserver) Observe(d evaluator.Diagnostics) {
	attrs := []any{
		"decision", d.Decision,
		"position", usToDuration(d.PlaybackPositionUs),
		"buffered", usToDuration(d.BufferedDurationUs),
		"estimate", d.Estimate,
		"effectiveBitrate", d.EffectiveBitrate,
		"ideal", d.Ideal.ID,
		"selected", d.Selected.ID,
		"trigger", d.Trigger,
		"queueSize", d.QueueSize,
	}

	switch d.Decision {
	case evaluator.DecisionUpgrade, evaluator.DecisionUpgradeDiscard, evaluator.DecisionDowngrade:
		o.logger.Info("variant switch", attrs...)
	default:
		o.logger.Debug("evaluation", attrs...)
	}
}

// Info is the state shown in the debug text block.
type Info struct {
	Position time.Duration
	// Variant is nil before the first selection
	Variant  *variant.Variant
	Estimate bandwidth.Estimate
	Buffered time.Duration
}

// Render formats info as a multi-line debug block.
func Render(info Info) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Position: %d ms\n", info.Position.Milliseconds())
	fmt.Fprintf(&b, "Buffered: %d ms\n", info.Buffered.Milliseconds())

	if info.Variant == nil {
		b.WriteString("Format: id:? br:? h:?\n")
	} else {
		fmt.Fprintf(&b, "Format: id:%s br:%d h:%d\n", info.Variant.ID, info.Variant.Bitrate, info.Variant.Height)
	}

	if bps, ok := info.Estimate.BitsPerSecond(); ok {
		fmt.Fprintf(&b, "Bandwidth (kbps): %d\n", bps/1000)
	} else {
		b.WriteString("Bandwidth (kbps): ?\n")
	}

	return b.String()
}

func usToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
