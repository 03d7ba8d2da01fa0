// Package variant defines the encoded quality variants an adaptive player chooses between.
package variant

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agleyzer/abrsim/internal/segment"
)

var (
	// ErrEmptyCatalog is returned when a variant catalog has no entries.
	ErrEmptyCatalog = errors.New("variant catalog is empty")
	// ErrUnsortedCatalog is returned when a catalog is not ordered by strictly decreasing bitrate.
	ErrUnsortedCatalog = errors.New("variant catalog is not sorted by strictly decreasing bitrate")
)

// Variant is one fixed-bitrate, fixed-resolution encoding of the content.
// Variants are immutable once loaded into a catalog.
type Variant struct {
	// ID identifies the variant; two variants with the same ID are the same variant
	ID string

	// Bitrate is the peak bitrate in bits per second
	Bitrate int64

	// Width is the pixel width (0 if unknown)
	Width int

	// Height is the pixel height (0 if unknown)
	Height int

	// FrameRate is the frames per second (0 if unknown)
	FrameRate float64

	// Codecs is the codec string (e.g., "avc1.4d401f,mp4a.40.2")
	Codecs string

	// PlaylistURL is the URL of the variant's media playlist
	PlaylistURL string

	// Segments contains all segments from this variant's media playlist
	Segments []segment.Segment

	// TargetDuration is the maximum segment duration in seconds
	TargetDuration int
}

// Same reports whether v and o denote the same variant.
func (v Variant) Same(o Variant) bool {
	return v.ID == o.ID
}

// Resolution returns the resolution in WIDTHxHEIGHT form, or "" if unknown.
func (v Variant) Resolution() string {
	if v.Width == 0 || v.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// String returns a compact description used in logs.
func (v Variant) String() string {
	return fmt.Sprintf("%s(%dbps %dx%d)", v.ID, v.Bitrate, v.Width, v.Height)
}

// ParseResolution parses an HLS RESOLUTION attribute such as "1280x720".
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid resolution %q", s)
	}

	width, err = strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q: %w", s, err)
	}
	height, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q: %w", s, err)
	}

	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q", s)
	}

	return width, height, nil
}

// SortByBitrate orders variants by decreasing bitrate in place.
// Variants sharing a bitrate keep their relative order.
func SortByBitrate(variants []Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bitrate > variants[j].Bitrate
	})
}

// ValidateCatalog checks that variants is non-empty and ordered by strictly decreasing bitrate.
func ValidateCatalog(variants []Variant) error {
	if len(variants) == 0 {
		return ErrEmptyCatalog
	}

	for i := 1; i < len(variants); i++ {
		if variants[i].Bitrate >= variants[i-1].Bitrate {
			return fmt.Errorf("%w: index %d (%d bps) follows %d bps",
				ErrUnsortedCatalog, i, variants[i].Bitrate, variants[i-1].Bitrate)
		}
	}

	return nil
}

// Dedupe drops variants whose bitrate repeats an earlier entry of a sorted catalog,
// so the result satisfies ValidateCatalog.
func Dedupe(variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if len(out) > 0 && out[len(out)-1].Bitrate == v.Bitrate {
			continue
		}
		out = append(out, v)
	}
	return out
}
