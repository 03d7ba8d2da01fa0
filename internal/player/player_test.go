package player

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/segment"
	"github.com/agleyzer/abrsim/internal/variant"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func makeVariant(id string, bitrate int64, width, height int) variant.Variant {
	segs := make([]segment.Segment, 10)
	for i := range segs {
		segs[i] = segment.Segment{
			URL:      fmt.Sprintf("https://example.com/%s/seg%d.ts", id, i),
			Duration: 10.0,
			Sequence: i,
		}
	}
	return variant.Variant{ID: id, Bitrate: bitrate, Width: width, Height: height, Segments: segs, TargetDuration: 10}
}

func createTestCatalog() []variant.Variant {
	return []variant.Variant{
		makeVariant("hd", 6000000, 1920, 1080),
		makeVariant("sd", 3000000, 1280, 720),
		makeVariant("low", 1200000, 854, 480),
	}
}

func createTestPlayer(t *testing.T, meter *bandwidth.AtomicMeter) *Player {
	t.Helper()

	cfg := evaluator.DefaultConfig()
	cfg.BandwidthFraction = 0.75
	ev, err := evaluator.NewAdaptive(meter, cfg, nil)
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}

	p, err := New(ev, meter, createTestCatalog(), 60*time.Second, createTestLogger())
	if err != nil {
		t.Fatalf("failed to create player: %v", err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	meter := bandwidth.NewAtomicMeter(bandwidth.Unknown())
	logger := createTestLogger()
	noSegments := createTestCatalog()
	noSegments[1].Segments = nil

	tests := []struct {
		name      string
		ev        evaluator.Evaluator
		variants  []variant.Variant
		maxBuffer time.Duration
		wantErr   bool
	}{
		{"valid", evaluator.Fixed{}, createTestCatalog(), time.Minute, false},
		{"nil evaluator", nil, createTestCatalog(), time.Minute, true},
		{"empty catalog", evaluator.Fixed{}, nil, time.Minute, true},
		{"unsorted catalog", evaluator.Fixed{}, []variant.Variant{makeVariant("a", 1, 1, 1), makeVariant("b", 2, 1, 1)}, time.Minute, true},
		{"variant without segments", evaluator.Fixed{}, noSegments, time.Minute, true},
		{"zero max buffer", evaluator.Fixed{}, createTestCatalog(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.ev, meter, tt.variants, tt.maxBuffer, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlayer_FirstTickSelectsAndFetches(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Unknown()))

	p.Tick(0)

	s := p.Snapshot()
	if s.Variant == nil || s.Variant.ID != "low" {
		t.Fatalf("Variant = %v, want low", s.Variant)
	}
	if s.Trigger != evaluator.TriggerInitial {
		t.Errorf("Trigger = %v, want initial", s.Trigger)
	}

	buf := p.Buffered()
	if len(buf) != 1 {
		t.Fatalf("queue length = %d, want 1", len(buf))
	}
	if buf[0].StartTimeUs != 0 || buf[0].EndTimeUs != 10_000_000 {
		t.Errorf("segment span = [%d, %d], want [0, 10000000]", buf[0].StartTimeUs, buf[0].EndTimeUs)
	}
	if buf[0].URL != "https://example.com/low/seg0.ts" {
		t.Errorf("segment URL = %s", buf[0].URL)
	}
}

func TestPlayer_BufferFillsToMax(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Unknown()))

	for i := 0; i < 10; i++ {
		p.Tick(0)
	}

	s := p.Snapshot()
	if s.QueueLength != 6 {
		t.Errorf("QueueLength = %d, want 6", s.QueueLength)
	}
	if s.BufferedUs != 60_000_000 {
		t.Errorf("BufferedUs = %d, want 60000000", s.BufferedUs)
	}
	if s.Evaluations != 10 {
		t.Errorf("Evaluations = %d, want 10", s.Evaluations)
	}
}

func TestPlayer_PlaybackConsumesQueue(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Unknown()))
	for i := 0; i < 3; i++ {
		p.Tick(0)
	}

	p.Tick(15 * time.Second)

	s := p.Snapshot()
	if s.PositionUs != 15_000_000 {
		t.Errorf("PositionUs = %d, want 15000000", s.PositionUs)
	}
	// seg0 played out, seg1 and seg2 remain, one more fetched
	buf := p.Buffered()
	if len(buf) != 3 || buf[0].Sequence != 1 || buf[2].Sequence != 3 {
		t.Errorf("unexpected queue after playback: %+v", buf)
	}
}

func TestPlayer_StallAndResume(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Unknown()))

	// Nothing buffered yet: waiting for the first segment is not a rebuffer.
	p.Tick(5 * time.Second)
	if s := p.Snapshot(); s.Stalls != 0 {
		t.Fatalf("Stalls = %d before playback started, want 0", s.Stalls)
	}
	p.Tick(0)

	p.Tick(30 * time.Second) // buffer holds 20s, runs dry

	s := p.Snapshot()
	if s.Stalls != 1 {
		t.Errorf("Stalls = %d, want 1", s.Stalls)
	}
	if s.PositionUs != 20_000_000 {
		t.Errorf("PositionUs = %d, want 20000000 (end of buffer)", s.PositionUs)
	}
	if s.Stalled {
		t.Error("expected playback to resume once a segment is fetched")
	}
	if s.QueueLength != 1 {
		t.Errorf("QueueLength = %d, want 1", s.QueueLength)
	}
}

func TestPlayer_UpgradeDiscardsLowQualitySegments(t *testing.T) {
	meter := bandwidth.NewAtomicMeter(bandwidth.Unknown())
	p := createTestPlayer(t, meter)
	for i := 0; i < 6; i++ {
		p.Tick(0)
	}

	meter.Set(bandwidth.Known(10000000)) // budget 7.5M -> hd
	p.Tick(0)

	s := p.Snapshot()
	if s.Variant == nil || s.Variant.ID != "hd" {
		t.Fatalf("Variant = %v, want hd", s.Variant)
	}
	if s.Trigger != evaluator.TriggerAdaptive {
		t.Errorf("Trigger = %v, want adaptive", s.Trigger)
	}
	if s.Switches != 1 {
		t.Errorf("Switches = %d, want 1", s.Switches)
	}
	if s.Discarded != 3 {
		t.Errorf("Discarded = %d, want 3", s.Discarded)
	}

	buf := p.Buffered()
	if len(buf) != 4 {
		t.Fatalf("queue length = %d, want 4", len(buf))
	}
	last := buf[3]
	if last.Variant.ID != "hd" || last.Sequence != 3 || last.StartTimeUs != 30_000_000 {
		t.Errorf("refetched segment = %+v, want hd seq 3 at 30s", last)
	}
	for i := 1; i < len(buf); i++ {
		if buf[i].StartTimeUs != buf[i-1].EndTimeUs {
			t.Errorf("queue not contiguous at %d", i)
		}
	}
}

func TestPlayer_LoopsSourceSegments(t *testing.T) {
	meter := bandwidth.NewAtomicMeter(bandwidth.Unknown())
	p, err := New(evaluator.Fixed{}, meter, createTestCatalog(), 200*time.Second, createTestLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 12; i++ {
		p.Tick(0)
	}

	buf := p.Buffered()
	if got := buf[11].URL; got != "https://example.com/hd/seg1.ts" {
		t.Errorf("segment 11 URL = %s, want wrap to seg1", got)
	}
	if buf[11].StartTimeUs != 110_000_000 {
		t.Errorf("segment 11 start = %d, want 110000000", buf[11].StartTimeUs)
	}
}

func TestPlayer_GetStats(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Known(2000000)))
	p.Tick(0)

	stats := p.GetStats()

	if stats["trigger"] != "initial" {
		t.Errorf("trigger = %v, want initial", stats["trigger"])
	}
	if stats["estimate"] != "2000000bps" {
		t.Errorf("estimate = %v", stats["estimate"])
	}
	v, ok := stats["variant"].(map[string]interface{})
	if !ok {
		t.Fatal("variant stats missing")
	}
	if v["id"] != "low" || v["resolution"] != "854x480" {
		t.Errorf("variant stats = %v", v)
	}

	info := p.DebugInfo()
	if info.Buffered != 10*time.Second {
		t.Errorf("DebugInfo().Buffered = %v, want 10s", info.Buffered)
	}
}

func TestPlayer_Run(t *testing.T) {
	p := createTestPlayer(t, bandwidth.NewAtomicMeter(bandwidth.Unknown()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if s := p.Snapshot(); s.Evaluations == 0 {
		t.Error("expected at least one evaluation")
	}
}
