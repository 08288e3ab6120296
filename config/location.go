package config

import "fmt"

// LocationConfig tunes the throttling controller and the interpolation
// engine.
type LocationConfig struct {
	// MinWriteDistanceM is the distance gate for durable writes.
	MinWriteDistanceM float64 `json:"min_write_distance_m"`
	// WriteIntervalMS is the minimum spacing between durable writes.
	WriteIntervalMS int `json:"write_interval_ms"`
	// UIIntervalMS is the minimum spacing between UI-rate samples.
	UIIntervalMS int `json:"ui_interval_ms"`
	// WriteTimeoutMS bounds each durable write.
	WriteTimeoutMS int `json:"write_timeout_ms"`

	// InterpMinDistanceM: moves below this snap instead of animating.
	InterpMinDistanceM float64 `json:"interp_min_distance_m"`
	// InterpMaxDistanceM: moves above this snap instead of animating.
	InterpMaxDistanceM float64 `json:"interp_max_distance_m"`
	// InterpDurationMS is the animation duration.
	InterpDurationMS int `json:"interp_duration_ms"`
}

// SetDefaults applies sane defaults.
func (c *LocationConfig) SetDefaults() {
	if c.MinWriteDistanceM <= 0 {
		c.MinWriteDistanceM = 10
	}
	if c.WriteIntervalMS <= 0 {
		c.WriteIntervalMS = 5000
	}
	if c.UIIntervalMS <= 0 {
		c.UIIntervalMS = 500
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 5000
	}
	if c.InterpMinDistanceM <= 0 {
		c.InterpMinDistanceM = 5
	}
	if c.InterpMaxDistanceM <= 0 {
		c.InterpMaxDistanceM = 200
	}
	if c.InterpDurationMS <= 0 {
		c.InterpDurationMS = 2000
	}
}

// Validate checks threshold coherence.
func (c LocationConfig) Validate() error {
	if c.InterpMinDistanceM >= c.InterpMaxDistanceM {
		return fmt.Errorf("interp_min_distance_m must be below interp_max_distance_m")
	}
	if c.UIIntervalMS > c.WriteIntervalMS {
		return fmt.Errorf("ui_interval_ms must not exceed write_interval_ms")
	}
	return nil
}
