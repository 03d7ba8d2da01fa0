// Package segment defines data structures for HLS media playlist segments.
package segment

import "time"

// Segment represents a single segment listed in a variant's media playlist.
type Segment struct {
	// URL is the absolute segment URL resolved against the media playlist
	URL string

	// Duration is the segment duration in seconds (#EXTINF)
	Duration float64

	// Sequence is the position in the source media playlist
	Sequence int

	// VariantIndex is the index of the owning variant in the master playlist
	// (0 for single media playlists)
	VariantIndex int
}

// DurationUs returns the segment duration in microseconds.
func (s Segment) DurationUs() int64 {
	return int64(s.Duration * float64(time.Second/time.Microsecond))
}
