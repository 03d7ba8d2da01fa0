// Package parser loads a variant catalog from an HLS playlist.
package parser

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/abrsim/internal/segment"
	"github.com/agleyzer/abrsim/internal/variant"
)

// PlaylistInfo contains the parsed playlist information.
type PlaylistInfo struct {
	// IsMaster indicates whether the source was a master playlist
	IsMaster bool

	// Variants is the catalog ordered by strictly decreasing bitrate.
	// A media playlist yields a single variant.
	Variants []variant.Variant

	// TargetDuration is the maximum segment duration in seconds across all variants
	TargetDuration int
}

var client = &http.Client{
	Timeout: 30 * time.Second,
}

// ParsePlaylist fetches and parses an HLS playlist from a URL.
//
// For a master playlist every variant's media playlist is fetched as well.
// Variants are sorted by decreasing bandwidth; variants repeating a bandwidth
// already in the catalog are dropped.
func ParsePlaylist(playlistURL string) (*PlaylistInfo, error) {
	playlist, listType, err := fetchPlaylist(playlistURL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MASTER {
		masterPlaylist, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type")
		}
		return parseMasterPlaylist(masterPlaylist, playlistURL)
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	segments, targetDuration, err := extractSegments(mediaPlaylist, playlistURL, 0)
	if err != nil {
		return nil, err
	}

	return &PlaylistInfo{
		IsMaster: false,
		Variants: []variant.Variant{{
			ID:             "0",
			PlaylistURL:    playlistURL,
			Segments:       segments,
			TargetDuration: targetDuration,
		}},
		TargetDuration: targetDuration,
	}, nil
}

// parseMasterPlaylist extracts variant information and fetches each variant's media playlist.
func parseMasterPlaylist(masterPlaylist *m3u8.MasterPlaylist, masterURL string) (*PlaylistInfo, error) {
	var variants []variant.Variant
	maxTargetDuration := 0

	for variantIndex, v := range masterPlaylist.Variants {
		if v == nil || v.Iframe {
			continue
		}

		variantURL, err := resolveURL(masterURL, v.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve variant URL: %w", err)
		}

		var width, height int
		if v.Resolution != "" {
			width, height, err = variant.ParseResolution(v.Resolution)
			if err != nil {
				return nil, fmt.Errorf("variant %d: %w", variantIndex, err)
			}
		}

		id := v.Name
		if id == "" {
			id = strconv.Itoa(variantIndex)
		}

		segments, targetDuration, err := parseMediaPlaylistFromURL(variantURL, variantIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to parse variant %d media playlist: %w", variantIndex, err)
		}

		if targetDuration > maxTargetDuration {
			maxTargetDuration = targetDuration
		}

		variants = append(variants, variant.Variant{
			ID:             id,
			Bitrate:        int64(v.Bandwidth),
			Width:          width,
			Height:         height,
			FrameRate:      v.FrameRate,
			Codecs:         v.Codecs,
			PlaylistURL:    variantURL,
			Segments:       segments,
			TargetDuration: targetDuration,
		})
	}

	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist contains no variants")
	}

	variant.SortByBitrate(variants)
	variants = variant.Dedupe(variants)

	return &PlaylistInfo{
		IsMaster:       true,
		Variants:       variants,
		TargetDuration: maxTargetDuration,
	}, nil
}

// parseMediaPlaylistFromURL fetches and parses a variant's media playlist.
func parseMediaPlaylistFromURL(playlistURL string, variantIndex int) ([]segment.Segment, int, error) {
	playlist, listType, err := fetchPlaylist(playlistURL)
	if err != nil {
		return nil, 0, err
	}

	if listType != m3u8.MEDIA {
		return nil, 0, fmt.Errorf("expected media playlist, got master playlist")
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected playlist type")
	}

	return extractSegments(mediaPlaylist, playlistURL, variantIndex)
}

// extractSegments returns the segments of a media playlist with absolute URLs and its target duration.
func extractSegments(mediaPlaylist *m3u8.MediaPlaylist, playlistURL string, variantIndex int) ([]segment.Segment, int, error) {
	var segments []segment.Segment
	for i, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}

		segmentURL, err := resolveURL(playlistURL, seg.URI)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to resolve segment URL: %w", err)
		}

		segments = append(segments, segment.Segment{
			URL:          segmentURL,
			Duration:     seg.Duration,
			Sequence:     i,
			VariantIndex: variantIndex,
		})
	}

	if len(segments) == 0 {
		return nil, 0, fmt.Errorf("playlist contains no segments")
	}

	targetDuration := int(mediaPlaylist.TargetDuration)
	if targetDuration == 0 {
		// If target duration is not set, use the max segment duration
		maxDuration := 0.0
		for _, seg := range segments {
			if seg.Duration > maxDuration {
				maxDuration = seg.Duration
			}
		}
		targetDuration = int(maxDuration) + 1
	}

	return segments, targetDuration, nil
}

// fetchPlaylist downloads and decodes a playlist.
func fetchPlaylist(playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	resp, err := client.Get(playlistURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("failed to fetch playlist: HTTP %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse playlist: %w", err)
	}

	return playlist, listType, nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}
