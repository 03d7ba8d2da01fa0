package bandwidth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	var zero Estimate
	assert.False(t, zero.IsKnown())
	assert.Equal(t, "unknown", Unknown().String())

	bps, ok := Known(3000000).BitsPerSecond()
	assert.True(t, ok)
	assert.Equal(t, int64(3000000), bps)

	bps, ok = Known(-5).BitsPerSecond()
	assert.True(t, ok)
	assert.Equal(t, int64(0), bps)
}

func TestAtomicMeter(t *testing.T) {
	var m AtomicMeter
	assert.False(t, m.Estimate().IsKnown())

	m.Set(Known(0))
	assert.Equal(t, Known(0), m.Estimate())

	require.NoError(t, m.Publish(Known(800000)))
	assert.Equal(t, Known(800000), m.Estimate())

	m.Set(Unknown())
	assert.Equal(t, Unknown(), m.Estimate())

	assert.Equal(t, Known(42), NewAtomicMeter(Known(42)).Estimate())
}

func TestAtomicMeterConcurrent(t *testing.T) {
	m := NewAtomicMeter(Unknown())

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(bps int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set(Known(bps))
				_ = m.Estimate()
			}
		}(int64(i) * 1000)
	}
	wg.Wait()

	bps, ok := m.Estimate().BitsPerSecond()
	assert.True(t, ok)
	assert.Equal(t, int64(0), bps%1000)
}

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		in      string
		want    Estimate
		wantErr bool
	}{
		{"", Unknown(), false},
		{"unknown", Unknown(), false},
		{"UNKNOWN", Unknown(), false},
		{"1200000", Known(1200000), false},
		{"800k", Known(800000), false},
		{"3M", Known(3000000), false},
		{"1.5m", Known(1500000), false},
		{"1G", Known(1000000000), false},
		{"fast", Unknown(), true},
		{"-1", Unknown(), true},
		{"9e18", Known(9000000000000000000), false},
		{"1e20", Unknown(), true},
		{"9999999999999G", Unknown(), true},
		{"9223372036854775807", Unknown(), true},
		{"inf", Unknown(), true},
		{"-Inf", Unknown(), true},
		{"NaN", Unknown(), true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEstimate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
