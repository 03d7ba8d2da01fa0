// Package queue models the buffered, not-yet-played segment queue of a player.
package queue

import (
	"github.com/agleyzer/abrsim/internal/variant"
)

// Segment is a media segment that has been fetched and is queued for playback.
type Segment struct {
	// Sequence is the session-wide segment number
	Sequence int
	// URL is the location the segment was fetched from
	URL string
	// StartTimeUs is the presentation start time in microseconds
	StartTimeUs int64
	// EndTimeUs is the presentation end time in microseconds
	EndTimeUs int64
	// Variant is the variant the segment was encoded at
	Variant variant.Variant
}

// DurationUs returns the segment duration in microseconds.
func (s Segment) DurationUs() int64 {
	return s.EndTimeUs - s.StartTimeUs
}

// BufferedDurationUs returns how much queued media remains ahead of the play cursor.
// An empty queue has no buffered media.
func BufferedDurationUs(segs []Segment, playbackPositionUs int64) int64 {
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].EndTimeUs - playbackPositionUs
}

// Queue holds buffered segments ordered by increasing start time.
// It is not safe for concurrent use; the owning player serializes access.
type Queue struct {
	segments []Segment
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Append adds a segment to the end of the queue.
func (q *Queue) Append(s Segment) {
	q.segments = append(q.segments, s)
}

// Segments returns a read-only copy of the queued segments.
func (q *Queue) Segments() []Segment {
	out := make([]Segment, len(q.segments))
	copy(out, q.segments)
	return out
}

// Len returns the number of queued segments.
func (q *Queue) Len() int {
	return len(q.segments)
}

// EndTimeUs returns the end time of the last queued segment and whether the queue is non-empty.
func (q *Queue) EndTimeUs() (int64, bool) {
	if len(q.segments) == 0 {
		return 0, false
	}
	return q.segments[len(q.segments)-1].EndTimeUs, true
}

// BufferedDurationUs returns the queued media ahead of playbackPositionUs.
func (q *Queue) BufferedDurationUs(playbackPositionUs int64) int64 {
	return BufferedDurationUs(q.segments, playbackPositionUs)
}

// TruncateTo keeps the first n segments and returns the discarded remainder.
// n outside [0, Len] is clamped.
func (q *Queue) TruncateTo(n int) []Segment {
	if n < 0 {
		n = 0
	}
	if n >= len(q.segments) {
		return nil
	}

	discarded := make([]Segment, len(q.segments)-n)
	copy(discarded, q.segments[n:])
	q.segments = q.segments[:n]
	return discarded
}

// DropPlayed removes segments that end at or before playbackPositionUs
// and returns how many were removed.
func (q *Queue) DropPlayed(playbackPositionUs int64) int {
	n := 0
	for n < len(q.segments) && q.segments[n].EndTimeUs <= playbackPositionUs {
		n++
	}
	if n > 0 {
		q.segments = append(q.segments[:0], q.segments[n:]...)
	}
	return n
}
