package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/variant"
)

func TestRender(t *testing.T) {
	sd := variant.Variant{ID: "sd", Bitrate: 3000000, Width: 1280, Height: 720}

	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "before first selection",
			info: Info{Position: 0},
			want: "Position: 0 ms\nBuffered: 0 ms\nFormat: id:? br:? h:?\nBandwidth (kbps): ?\n",
		},
		{
			name: "playing",
			info: Info{
				Position: 1500 * time.Millisecond,
				Variant:  &sd,
				Estimate: bandwidth.Known(4200000),
				Buffered: 12 * time.Second,
			},
			want: "Position: 1500 ms\nBuffered: 12000 ms\nFormat: id:sd br:3000000 h:720\nBandwidth (kbps): 4200\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.info); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewLogObserver(logger)

	obs.Observe(evaluator.Diagnostics{Decision: evaluator.DecisionHold})
	if buf.Len() != 0 {
		t.Errorf("hold should log at debug level, got %q", buf.String())
	}

	obs.Observe(evaluator.Diagnostics{
		Decision:           evaluator.DecisionUpgradeDiscard,
		BufferedDurationUs: 30_000_000,
		Selected:           variant.Variant{ID: "sd"},
		QueueSize:          2,
	})

	out := buf.String()
	for _, want := range []string{"variant switch", "decision=upgrade-discard", "selected=sd", "buffered=30s", "queueSize=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
