package workerstatus

import (
	"context"
	"testing"
	"time"

	"github.com/fleetwise/fleetcore/core/events"
	"github.com/fleetwise/fleetcore/core/model"
	"github.com/fleetwise/fleetcore/core/store"
	"github.com/fleetwise/fleetcore/internal/eventbus"
)

func TestMemoryStore_Filter(t *testing.T) {
	s := NewMemoryStore()
	s.Set(Status{WorkerID: "w1", StationID: "s1", ZoneID: "north", Online: true})
	s.Set(Status{WorkerID: "w2", StationID: "s2", ZoneID: "south"})
	out := s.List(Filter{StationID: "s1"})
	if len(out) != 1 || out[0].WorkerID != "w1" {
		t.Fatalf("station filter failed: %#v", out)
	}
	out = s.List(Filter{OnlineOnly: true})
	if len(out) != 1 || out[0].WorkerID != "w1" {
		t.Fatalf("online filter failed: %#v", out)
	}
}

func TestMemoryStore_RecordAssignment(t *testing.T) {
	s := NewMemoryStore()
	s.Set(Status{WorkerID: "w1"})
	s.RecordAssignment("w1", LastAssignment{TripID: "t1", Outcome: "assigned", DistanceM: 120})
	out := s.List(Filter{})
	if out[0].LastAssignment.TripID != "t1" {
		t.Fatalf("assignment not recorded: %#v", out[0])
	}
}

func TestMemoryStore_RecordAssignmentNew(t *testing.T) {
	s := NewMemoryStore()
	s.RecordAssignment("w3", LastAssignment{TripID: "t9", Outcome: "assigned"})
	out := s.List(Filter{})
	if len(out) != 1 || out[0].WorkerID != "w3" {
		t.Fatalf("auto create failed %#v", out)
	}
}

func TestMemoryStore_SetKeepsAssignment(t *testing.T) {
	s := NewMemoryStore()
	s.RecordAssignment("w1", LastAssignment{TripID: "t1", Outcome: "assigned"})
	s.Set(Status{WorkerID: "w1", Online: true})
	out := s.List(Filter{})
	if out[0].LastAssignment.TripID != "t1" {
		t.Fatalf("state refresh erased assignment: %#v", out[0])
	}
}

func TestFollowProjectsChangesAndEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proj := NewMemoryStore()
	bus := eventbus.New()
	defer bus.Close()
	changes := make(chan store.WorkerChange, 4)

	go Follow(ctx, proj, changes, bus)

	pos := model.LatLng{Lat: 48.85, Lng: 2.29}
	changes <- store.WorkerChange{Kind: store.ChangeInsert, Worker: model.WorkerState{
		ID: "w1", StationID: "s1", Online: true, Position: &pos,
	}}

	deadline := time.Now().Add(time.Second)
	for {
		if out := proj.List(Filter{}); len(out) == 1 && out[0].Online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker change never projected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.AssignmentEvent{TripID: "t1", WorkerID: "w1", Outcome: "assigned", DistanceM: 80})
	for {
		if out := proj.List(Filter{}); out[0].LastAssignment.TripID == "t1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("assignment event never projected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
