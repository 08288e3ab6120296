package config

// DispatchConfig tunes the assignment engine.
type DispatchConfig struct {
	// PreferZone restricts candidates to the trip's zone when any are
	// available there.
	PreferZone bool `json:"prefer_zone"`
	// AckTimeoutMS bounds the wait for offer acknowledgments.
	AckTimeoutMS int `json:"ack_timeout_ms"`
	// CandidateLimit caps how many workers the geo index may return.
	CandidateLimit int `json:"candidate_limit"`
}

// SetDefaults applies sane defaults.
func (c *DispatchConfig) SetDefaults() {
	if c.AckTimeoutMS <= 0 {
		c.AckTimeoutMS = 5000
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 25
	}
}

// AvailabilityConfig tunes the toggle controller.
type AvailabilityConfig struct {
	WriteTimeoutMS   int `json:"write_timeout_ms"`
	SuppressWindowMS int `json:"suppress_window_ms"`
	WatchdogMS       int `json:"watchdog_ms"`
}

// SetDefaults applies sane defaults.
func (c *AvailabilityConfig) SetDefaults() {
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 5000
	}
	if c.SuppressWindowMS <= 0 {
		c.SuppressWindowMS = 1500
	}
	if c.WatchdogMS <= 0 {
		c.WatchdogMS = 10000
	}
}

// ClaimsConfig tunes the claim race resolver.
type ClaimsConfig struct {
	// DismissAfterMS is how long taken/withdrawn offers stay on screen.
	DismissAfterMS int `json:"dismiss_after_ms"`
}

// SetDefaults applies sane defaults.
func (c *ClaimsConfig) SetDefaults() {
	if c.DismissAfterMS <= 0 {
		c.DismissAfterMS = 2000
	}
}
