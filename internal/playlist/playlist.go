// Package playlist renders player state as HLS playlists.
package playlist

import (
	"fmt"
	"math"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/abrsim/internal/queue"
	"github.com/agleyzer/abrsim/internal/variant"
)

// RenderBuffered creates a live HLS media playlist listing the buffered segments.
// The media sequence starts at the first buffered segment, and a discontinuity is
// marked wherever the variant changes between consecutive segments.
func RenderBuffered(segs []queue.Segment) (string, error) {
	capacity := uint(len(segs))
	if capacity == 0 {
		capacity = 1
	}

	p, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return "", fmt.Errorf("create media playlist: %w", err)
	}

	if len(segs) > 0 {
		p.SeqNo = uint64(segs[0].Sequence)
	}

	maxDuration := 0.0
	for i, seg := range segs {
		duration := float64(seg.DurationUs()) / 1e6
		if err := p.Append(seg.URL, duration, ""); err != nil {
			return "", fmt.Errorf("append segment %d: %w", seg.Sequence, err)
		}

		// Variant switch
		if i > 0 && !seg.Variant.Same(segs[i-1].Variant) {
			if err := p.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("mark discontinuity at segment %d: %w", seg.Sequence, err)
			}
		}

		maxDuration = math.Max(maxDuration, duration)
	}
	p.TargetDuration = math.Ceil(maxDuration)

	// NOTE: no #EXT-X-ENDLIST, the queue keeps growing while playback runs

	return p.String(), nil
}

// RenderMaster creates an HLS master playlist advertising the variant catalog.
func RenderMaster(variants []variant.Variant) (string, error) {
	if len(variants) == 0 {
		return "", fmt.Errorf("cannot create master playlist with zero variants")
	}

	p := m3u8.NewMasterPlaylist()
	for i, v := range variants {
		uri := v.PlaylistURL
		if uri == "" {
			uri = fmt.Sprintf("/variant%d/playlist.m3u8", i)
		}

		p.Append(uri, nil, m3u8.VariantParams{
			Bandwidth:  uint32(v.Bitrate),
			Resolution: v.Resolution(),
			Codecs:     v.Codecs,
			FrameRate:  v.FrameRate,
		})
	}

	return p.String(), nil
}
