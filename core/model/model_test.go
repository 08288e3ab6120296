package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatLngValid(t *testing.T) {
	cases := []struct {
		name string
		p    LatLng
		ok   bool
	}{
		{"haifa", LatLng{32.9270, 35.0830}, true},
		{"null island", LatLng{0, 0}, false},
		{"lat out of range", LatLng{91, 10}, false},
		{"lng out of range", LatLng{10, -181}, false},
		{"negative valid", LatLng{-33.86, 151.20}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.ok, c.p.Valid())
		})
	}
}

func TestWorkerValidate(t *testing.T) {
	w := WorkerState{ID: "w1", StationID: "s1", Busy: true}
	assert.Error(t, w.Validate(), "busy while offline must be rejected")

	w.Online = true
	assert.NoError(t, w.Validate())
}

func TestWorkerDispatchable(t *testing.T) {
	pos := &LatLng{32.9, 35.0}
	w := WorkerState{ID: "w1", StationID: "s1", Online: true, Approved: true, Position: pos}
	assert.True(t, w.Dispatchable())

	w.Busy = true
	assert.False(t, w.Dispatchable())

	w.Busy = false
	w.Position = nil
	assert.False(t, w.Dispatchable())

	w.Position = &LatLng{0, 0}
	assert.False(t, w.Dispatchable())
}

func TestTripValidate(t *testing.T) {
	tr := TripRequest{ID: "t1", StationID: "s1"}
	assert.Error(t, tr.Validate(), "missing pickup must be rejected before querying")

	tr.Pickup = LatLng{32.9, 35.0}
	assert.NoError(t, tr.Validate())

	tr.AssignedWorkerID = "w1"
	assert.Error(t, tr.Validate(), "pending trip must not carry a binding")

	tr.Status = TripActive
	assert.NoError(t, tr.Validate())

	tr.AssignedWorkerID = ""
	assert.Error(t, tr.Validate(), "active trip must carry a binding")
}

func TestTripStatusString(t *testing.T) {
	assert.Equal(t, "pending", TripPending.String())
	assert.Equal(t, "active", TripActive.String())
	assert.Equal(t, "completed", TripCompleted.String())
	assert.Equal(t, "cancelled", TripCancelled.String())
	assert.True(t, TripPending.Open())
	assert.False(t, TripCompleted.Open())
}
