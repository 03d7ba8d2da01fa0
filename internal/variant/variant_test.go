package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []Variant {
	return []Variant{
		{ID: "hd", Bitrate: 6000000, Width: 1920, Height: 1080, FrameRate: 30},
		{ID: "sd", Bitrate: 3000000, Width: 1280, Height: 720, FrameRate: 30},
		{ID: "low", Bitrate: 1200000, Width: 854, Height: 480, FrameRate: 25},
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		wantW   int
		wantH   int
		wantErr bool
	}{
		{"1280x720", 1280, 720, false},
		{" 854x480 ", 854, 480, false},
		{"1280", 0, 0, true},
		{"axb", 0, 0, true},
		{"0x720", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseResolution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestSortByBitrate(t *testing.T) {
	variants := []Variant{
		{ID: "low", Bitrate: 1200000},
		{ID: "hd", Bitrate: 6000000},
		{ID: "sd", Bitrate: 3000000},
	}

	SortByBitrate(variants)

	assert.Equal(t, "hd", variants[0].ID)
	assert.Equal(t, "sd", variants[1].ID)
	assert.Equal(t, "low", variants[2].ID)
	assert.NoError(t, ValidateCatalog(variants))
}

func TestValidateCatalog(t *testing.T) {
	assert.ErrorIs(t, ValidateCatalog(nil), ErrEmptyCatalog)
	assert.NoError(t, ValidateCatalog(testCatalog()))

	unsorted := []Variant{{ID: "a", Bitrate: 100}, {ID: "b", Bitrate: 200}}
	assert.ErrorIs(t, ValidateCatalog(unsorted), ErrUnsortedCatalog)

	duplicate := []Variant{{ID: "a", Bitrate: 200}, {ID: "b", Bitrate: 200}}
	assert.ErrorIs(t, ValidateCatalog(duplicate), ErrUnsortedCatalog)
	assert.NoError(t, ValidateCatalog(Dedupe(duplicate)))
}

func TestSame(t *testing.T) {
	a := Variant{ID: "sd", Bitrate: 3000000}
	b := Variant{ID: "sd", Bitrate: 3000000, Codecs: "avc1"}
	c := Variant{ID: "other", Bitrate: 3000000}

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
	assert.Equal(t, "1280x720", testCatalog()[1].Resolution())
	assert.Equal(t, "", a.Resolution())
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantIDs []string
		wantErr bool
	}{
		{name: "empty keeps all", expr: "", wantIDs: []string{"hd", "sd", "low"}},
		{name: "height cap", expr: "h <= 720", wantIDs: []string{"sd", "low"}},
		{name: "bitrate range", expr: "br >= 1500000 && br < 7000000", wantIDs: []string{"hd", "sd"}},
		{name: "frame rate", expr: "fps < 30", wantIDs: []string{"low"}},
		{name: "by id", expr: `id == "sd"`, wantIDs: []string{"sd"}},
		{name: "no match", expr: "h > 2160", wantErr: true},
		{name: "syntax error", expr: "h <=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(testCatalog(), tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, len(got))
			for i, v := range got {
				ids[i] = v.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
