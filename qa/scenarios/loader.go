// Package scenarios runs YAML-described assignment scenarios against the
// dispatch engine with a mock delivery channel.
package scenarios

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetwise/fleetcore/core/model"
)

type WorkerDef struct {
	ID       string  `yaml:"id"`
	ZoneID   string  `yaml:"zone_id,omitempty"`
	Online   bool    `yaml:"online"`
	Approved bool    `yaml:"approved"`
	Busy     bool    `yaml:"busy,omitempty"`
	Lat      float64 `yaml:"lat"`
	Lng      float64 `yaml:"lng"`
}

func (w WorkerDef) ToModel(stationID string) model.WorkerState {
	pos := model.LatLng{Lat: w.Lat, Lng: w.Lng}
	return model.WorkerState{
		ID:        w.ID,
		StationID: stationID,
		ZoneID:    w.ZoneID,
		Online:    w.Online,
		Approved:  w.Approved,
		Busy:      w.Busy,
		Position:  &pos,
	}
}

type TripDef struct {
	ID     string  `yaml:"id"`
	ZoneID string  `yaml:"zone_id,omitempty"`
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
}

func (t TripDef) ToModel(stationID string) model.TripRequest {
	return model.TripRequest{
		ID:        t.ID,
		StationID: stationID,
		ZoneID:    t.ZoneID,
		Pickup:    model.LatLng{Lat: t.Lat, Lng: t.Lng},
		CreatedAt: time.Now(),
	}
}

type Expected struct {
	Assigned int               `yaml:"assigned"`
	NoDriver int               `yaml:"no_driver"`
	Winners  map[string]string `yaml:"winners,omitempty"`
}

type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	StationID   string      `yaml:"station_id"`
	PreferZone  bool        `yaml:"prefer_zone,omitempty"`
	Workers     []WorkerDef `yaml:"workers"`
	Trips       []TripDef   `yaml:"trips"`
	FailWorkers []string    `yaml:"fail_workers,omitempty"`
	Expected    Expected    `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.StationID == "" {
		sc.StationID = "st1"
	}
	return &sc, nil
}
