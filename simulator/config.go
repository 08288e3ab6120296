package main

import (
	"fmt"
	"strings"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	FleetSize    int
	StationID    string
	Zones        string
	CenterLat    float64
	CenterLng    float64
	SpreadM      float64
	SpeedMPS     float64
	Tick         time.Duration
	TripInterval time.Duration
	OfflineRate  float64
	AckLatency   time.Duration
	DropRate     float64
	Verbose      bool
}

// Validate rejects parameter combinations the loops cannot run with.
func (c *Config) Validate() error {
	if c.FleetSize <= 0 {
		return fmt.Errorf("fleet size must be positive")
	}
	if c.StationID == "" {
		return fmt.Errorf("station id is required")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	if c.TripInterval <= 0 {
		return fmt.Errorf("trip interval must be positive")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate must be within [0,1]")
	}
	if c.OfflineRate < 0 || c.OfflineRate > 1 {
		return fmt.Errorf("offline rate must be within [0,1]")
	}
	return nil
}

// ZoneList splits the comma-separated zone flag. An empty flag means the
// fleet roams without zone bindings.
func (c *Config) ZoneList() []string {
	if c.Zones == "" {
		return nil
	}
	parts := strings.Split(c.Zones, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
