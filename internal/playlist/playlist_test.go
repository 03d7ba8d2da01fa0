package playlist

import (
	"fmt"
	"strings"
	"testing"

	"github.com/agleyzer/abrsim/internal/queue"
	"github.com/agleyzer/abrsim/internal/variant"
)

var (
	hd  = variant.Variant{ID: "hd", Bitrate: 6000000, Width: 1920, Height: 1080, Codecs: "avc1.640028"}
	low = variant.Variant{ID: "low", Bitrate: 1200000, Width: 854, Height: 480}
)

// createTestQueue returns count contiguous 10s segments starting at sequence first.
func createTestQueue(first, count int, v variant.Variant) []queue.Segment {
	segs := make([]queue.Segment, count)
	for i := range segs {
		seq := first + i
		segs[i] = queue.Segment{
			Sequence:    seq,
			URL:         fmt.Sprintf("https://example.com/%s/seg%d.ts", v.ID, seq),
			StartTimeUs: int64(seq) * 10_000_000,
			EndTimeUs:   int64(seq+1) * 10_000_000,
			Variant:     v,
		}
	}
	return segs
}

func TestRenderBuffered(t *testing.T) {
	segs := append(createTestQueue(3, 2, low), createTestQueue(5, 2, hd)...)

	content, err := RenderBuffered(segs)
	if err != nil {
		t.Fatalf("RenderBuffered() error = %v", err)
	}

	for _, want := range []string{
		"#EXTM3U",
		"#EXT-X-MEDIA-SEQUENCE:3",
		"#EXT-X-TARGETDURATION:10",
		"https://example.com/low/seg3.ts",
		"https://example.com/hd/seg6.ts",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("playlist missing %q:\n%s", want, content)
		}
	}

	if got := strings.Count(content, "#EXT-X-DISCONTINUITY"); got != 1 {
		t.Errorf("discontinuities = %d, want 1", got)
	}
	if strings.Index(content, "#EXT-X-DISCONTINUITY") > strings.Index(content, "hd/seg5.ts") {
		t.Error("discontinuity should precede the first segment of the new variant")
	}
	if strings.Contains(content, "#EXT-X-ENDLIST") {
		t.Error("live playlist must not contain #EXT-X-ENDLIST")
	}
	if strings.Index(content, "seg3.ts") > strings.Index(content, "seg4.ts") {
		t.Error("segments out of order")
	}
}

func TestRenderBuffered_Empty(t *testing.T) {
	content, err := RenderBuffered(nil)
	if err != nil {
		t.Fatalf("RenderBuffered() error = %v", err)
	}
	if !strings.HasPrefix(content, "#EXTM3U") {
		t.Errorf("expected playlist header, got %q", content)
	}
	if strings.Contains(content, "#EXTINF") {
		t.Error("empty queue should not list segments")
	}
}

func TestRenderMaster(t *testing.T) {
	low := low
	low.PlaylistURL = "https://example.com/low.m3u8"

	content, err := RenderMaster([]variant.Variant{hd, low})
	if err != nil {
		t.Fatalf("RenderMaster() error = %v", err)
	}

	for _, want := range []string{
		"BANDWIDTH=6000000",
		"RESOLUTION=1920x1080",
		`CODECS="avc1.640028"`,
		"/variant0/playlist.m3u8",
		"BANDWIDTH=1200000",
		"https://example.com/low.m3u8",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("master playlist missing %q:\n%s", want, content)
		}
	}

	if _, err := RenderMaster(nil); err == nil {
		t.Error("expected error for empty catalog")
	}
}
