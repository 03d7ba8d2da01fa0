// Package integration provides end-to-end tests for ABRSim: an origin serving HLS
// playlists, the parser, the playback loop and the HTTP surface, all in process.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/diag"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/parser"
	"github.com/agleyzer/abrsim/internal/player"
	"github.com/agleyzer/abrsim/internal/server"
	"github.com/agleyzer/abrsim/internal/variant"
)

// SimOptions configures a simulator instance.
type SimOptions struct {
	Config    evaluator.Config
	MaxBuffer time.Duration
	Tick      time.Duration
	Filter    string
	// Meter defaults to a local AtomicMeter holding an unknown estimate.
	Meter interface {
		bandwidth.Meter
		server.Publisher
	}
}

// DefaultSimOptions returns thresholds scaled for one-second segments.
func DefaultSimOptions() SimOptions {
	return SimOptions{
		Config: evaluator.Config{
			MaxInitialBitrate:               800000,
			MinDurationForQualityIncrease:   2 * time.Second,
			MaxDurationForQualityDecrease:   5 * time.Second,
			MinDurationToRetainAfterDiscard: 3 * time.Second,
			BandwidthFraction:               1.0,
		},
		MaxBuffer: 4 * time.Second,
		Tick:      50 * time.Millisecond,
	}
}

// Simulator is a running player with its HTTP surface.
type Simulator struct {
	Player *player.Player
	Server *httptest.Server
	cancel context.CancelFunc
}

// TestHarness manages the test environment for integration tests.
type TestHarness struct {
	t          *testing.T
	origin     *httptest.Server
	mu         sync.RWMutex
	playlists  map[string]string
	simulators []*Simulator
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:         t,
		playlists: make(map[string]string),
	}
}

// StartOrigin starts an HTTP server serving test playlists.
func (h *TestHarness) StartOrigin() {
	h.t.Helper()

	h.origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		content, ok := h.playlists[strings.TrimPrefix(r.URL.Path, "/")]
		h.mu.RUnlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		io.WriteString(w, content)
	}))
	h.t.Logf("origin server started at %s", h.origin.URL)
}

// AddPlaylist makes content available on the origin under name.
func (h *TestHarness) AddPlaylist(content string, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.playlists[name] = content
}

// OriginURL returns the origin URL of a playlist.
func (h *TestHarness) OriginURL(name string) string {
	return h.origin.URL + "/" + name
}

// StartSimulator loads the catalog from the origin and starts a playback loop and HTTP server.
func (h *TestHarness) StartSimulator(playlistName string, opts SimOptions) *Simulator {
	h.t.Helper()

	info, err := parser.ParsePlaylist(h.OriginURL(playlistName))
	if err != nil {
		h.t.Fatalf("failed to parse playlist: %v", err)
	}

	variants, err := variant.Filter(info.Variants, opts.Filter)
	if err != nil {
		h.t.Fatalf("failed to filter variants: %v", err)
	}

	meter := opts.Meter
	if meter == nil {
		meter = bandwidth.NewAtomicMeter(bandwidth.Unknown())
	}

	logger := createTestLogger()
	ev, err := evaluator.NewAdaptive(meter, opts.Config, diag.NewLogObserver(logger))
	if err != nil {
		h.t.Fatalf("failed to create evaluator: %v", err)
	}

	p, err := player.New(ev, meter, variants, opts.MaxBuffer, logger)
	if err != nil {
		h.t.Fatalf("failed to create player: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, opts.Tick)

	sim := &Simulator{
		Player: p,
		Server: httptest.NewServer(server.New(p, meter, 0, logger).Handler()),
		cancel: cancel,
	}
	h.simulators = append(h.simulators, sim)
	return sim
}

// FetchPlaylist fetches the simulator's buffered playlist.
func (s *Simulator) FetchPlaylist(t *testing.T) string {
	t.Helper()
	return fetch(t, s.Server.URL+"/playlist.m3u8")
}

// FetchMaster fetches the simulator's master playlist.
func (s *Simulator) FetchMaster(t *testing.T) string {
	t.Helper()
	return fetch(t, s.Server.URL+"/master.m3u8")
}

// FetchDebug fetches the debug text block.
func (s *Simulator) FetchDebug(t *testing.T) string {
	t.Helper()
	return fetch(t, s.Server.URL+"/debug")
}

// FetchHealth fetches and decodes the health endpoint.
func (s *Simulator) FetchHealth(t *testing.T) map[string]any {
	t.Helper()

	var health map[string]any
	if err := json.Unmarshal([]byte(fetch(t, s.Server.URL+"/health")), &health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	return health
}

// CurrentVariant returns the selected variant ID reported by /health, or "".
func (s *Simulator) CurrentVariant(t *testing.T) string {
	t.Helper()

	stats, _ := s.FetchHealth(t)["stats"].(map[string]any)
	v, _ := stats["variant"].(map[string]any)
	id, _ := v["id"].(string)
	return id
}

// PostBandwidth posts a new estimate and returns the response status.
func (s *Simulator) PostBandwidth(t *testing.T, value string) int {
	t.Helper()

	resp, err := http.PostForm(s.Server.URL+"/bandwidth", url.Values{"bps": {value}})
	if err != nil {
		t.Fatalf("failed to post bandwidth: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

// Stop stops the playback loop and HTTP server.
func (s *Simulator) Stop() {
	s.cancel()
	s.Server.Close()
}

// Cleanup stops all processes and cleans up resources.
func (h *TestHarness) Cleanup() {
	for _, sim := range h.simulators {
		sim.Stop()
	}
	if h.origin != nil {
		h.origin.Close()
	}
}

func fetch(t *testing.T, target string) string {
	t.Helper()

	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("failed to fetch %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code for %s: %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read %s: %v", target, err)
	}
	return string(body)
}

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// ParsedPlaylist represents a parsed HLS media playlist.
type ParsedPlaylist struct {
	Version        int
	TargetDuration int
	MediaSequence  int
	Segments       []PlaylistSegment
	HasEndList     bool
}

// PlaylistSegment represents a segment in a playlist.
type PlaylistSegment struct {
	Duration      float64
	URL           string
	Discontinuity bool
}

// ParsePlaylist parses an HLS playlist into a structured format.
func ParsePlaylist(content string) *ParsedPlaylist {
	playlist := &ParsedPlaylist{
		Segments: []PlaylistSegment{},
	}

	lines := strings.Split(content, "\n")
	var currentSegment *PlaylistSegment
	var nextSegmentHasDiscontinuity bool

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			fmt.Sscanf(line, "#EXT-X-VERSION:%d", &playlist.Version)

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			fmt.Sscanf(line, "#EXT-X-TARGETDURATION:%d", &playlist.TargetDuration)

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			fmt.Sscanf(line, "#EXT-X-MEDIA-SEQUENCE:%d", &playlist.MediaSequence)

		case line == "#EXT-X-ENDLIST":
			playlist.HasEndList = true

		case line == "#EXT-X-DISCONTINUITY":
			// Mark that the next segment should have discontinuity flag
			nextSegmentHasDiscontinuity = true

		case strings.HasPrefix(line, "#EXTINF:"):
			currentSegment = &PlaylistSegment{}
			fmt.Sscanf(line, "#EXTINF:%f,", &currentSegment.Duration)
			if nextSegmentHasDiscontinuity {
				currentSegment.Discontinuity = true
				nextSegmentHasDiscontinuity = false
			}

		case !strings.HasPrefix(line, "#"):
			// This is a segment URL
			if currentSegment != nil {
				currentSegment.URL = line
				playlist.Segments = append(playlist.Segments, *currentSegment)
				currentSegment = nil
			}
		}
	}

	return playlist
}

// WaitForCondition polls until a condition is met or timeout occurs.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, description string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for condition: %s", description)
		}
		<-ticker.C
	}
}
