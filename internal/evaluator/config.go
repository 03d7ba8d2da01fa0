package evaluator

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultMaxInitialBitrate               = 800000
	DefaultMinDurationForQualityIncrease   = 10 * time.Second
	DefaultMaxDurationForQualityDecrease   = 25 * time.Second
	DefaultMinDurationToRetainAfterDiscard = 25 * time.Second
	DefaultBandwidthFraction               = 0.1
)

// Buffered segments at or above either HD dimension are never discarded.
const (
	hdHeight = 720
	hdWidth  = 1280
)

var (
	// ErrInvalidInitialBitrate is returned when MaxInitialBitrate is not positive.
	ErrInvalidInitialBitrate = errors.New("max initial bitrate must be positive")
	// ErrNegativeDuration is returned when a buffer threshold is negative.
	ErrNegativeDuration = errors.New("buffer duration thresholds must not be negative")
	// ErrInvalidBandwidthFraction is returned when BandwidthFraction is not positive.
	ErrInvalidBandwidthFraction = errors.New("bandwidth fraction must be positive")
)

// Config holds the tunables of the adaptive evaluator.
type Config struct {
	// MaxInitialBitrate is the bitrate in bits per second assumed while no estimate exists.
	MaxInitialBitrate int64
	// MinDurationForQualityIncrease is the buffered media required before switching up.
	MinDurationForQualityIncrease time.Duration
	// MaxDurationForQualityDecrease is the buffered media above which switching down is deferred.
	MaxDurationForQualityDecrease time.Duration
	// MinDurationToRetainAfterDiscard is the media that must be kept at the old quality
	// when buffered segments are discarded to switch up faster.
	MinDurationToRetainAfterDiscard time.Duration
	// BandwidthFraction is the share of the estimate treated as usable.
	BandwidthFraction float64
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		MaxInitialBitrate:               DefaultMaxInitialBitrate,
		MinDurationForQualityIncrease:   DefaultMinDurationForQualityIncrease,
		MaxDurationForQualityDecrease:   DefaultMaxDurationForQualityDecrease,
		MinDurationToRetainAfterDiscard: DefaultMinDurationToRetainAfterDiscard,
		BandwidthFraction:               DefaultBandwidthFraction,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxInitialBitrate <= 0 {
		return ErrInvalidInitialBitrate
	}

	for name, d := range map[string]time.Duration{
		"min-increase": c.MinDurationForQualityIncrease,
		"max-decrease": c.MaxDurationForQualityDecrease,
		"min-retain":   c.MinDurationToRetainAfterDiscard,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is %s", ErrNegativeDuration, name, d)
		}
	}

	if !(c.BandwidthFraction > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidBandwidthFraction, c.BandwidthFraction)
	}

	return nil
}
