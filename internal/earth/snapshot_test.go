package earth

import (
	"reflect"
	"strings"
	"testing"
)

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := NewStandardEarth()
	runTicks(t, s, NewPipeline(DefaultConstants(), 1, nil), 5, 2)
	snap := s.Snapshot()

	data, err := EncodeSnapshotJSON(snap)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"inner_core"`) {
		t.Errorf("Expected layer kinds encoded by name, got %s", data)
	}

	decoded, err := DecodeSnapshotJSON(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, snap) {
		t.Error("Expected the decoded snapshot to equal the original")
	}

	if _, err := DecodeSnapshotJSON([]byte(`{"layers": [{"kind": "mantle_of_cheese"}]}`)); err == nil {
		t.Error("Expected error decoding an unknown layer kind")
	}
}

func TestSnapshot_StateRoundTrip(t *testing.T) {
	s := NewStandardEarth()
	p := NewPipeline(DefaultConstants(), 1, nil)
	runTicks(t, s, p, 3, 1)
	snap := s.Snapshot()

	restored := snap.State()
	if restored.Events.Len() != 0 {
		t.Errorf("Expected a fresh event log, got %d events", restored.Events.Len())
	}

	// Both continue identically from the same state.
	a, err := s.Tick(1, DefaultClimate(), p)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	b, err := restored.Tick(1, DefaultClimate(), p)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	a.Snapshot.EventCount, b.Snapshot.EventCount = 0, 0
	if !reflect.DeepEqual(a.Snapshot, b.Snapshot) {
		t.Error("Expected a restored state to evolve like the original")
	}

	restored.Layers[0].Composition[Iron] = 0
	if snap.Layers[0].Composition[Iron] == 0 {
		t.Error("Expected State to copy layer compositions")
	}
}

func TestSnapshot_Lookup(t *testing.T) {
	snap := NewStandardEarth().Snapshot()

	oc, ok := snap.Layer(OuterCore)
	if !ok || oc.Kind != OuterCore {
		t.Errorf("Expected outer core, got %+v", oc)
	}
	oc.Composition[Iron] = 0
	if again, _ := snap.Layer(OuterCore); again.Composition[Iron] == 0 {
		t.Error("Expected Layer to return a copy")
	}

	if _, ok := snap.Plate(1); !ok {
		t.Error("Expected plate 1")
	}
	if _, ok := snap.Plate(42); ok {
		t.Error("Expected no plate 42")
	}
}

func TestValidateSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EarthStateSnapshot)
		wantErr string
	}{
		{"no layers", func(s *EarthStateSnapshot) { s.Layers = nil }, "no layers"},
		{"duplicate layer", func(s *EarthStateSnapshot) { s.Layers[1] = s.Layers[0].Clone() }, "duplicate layer"},
		{"out of order", func(s *EarthStateSnapshot) { s.Layers[0], s.Layers[1] = s.Layers[1], s.Layers[0] }, "depth order"},
		{"negative thickness", func(s *EarthStateSnapshot) { s.Layers[2].ThicknessKm = -1 }, "thickness"},
		{"unnormalized composition", func(s *EarthStateSnapshot) {
			s.Layers[0].Composition = Composition{Iron: 0.5, Nickel: 0.2}
		}, "sums to"},
		{"missing surface column", func(s *EarthStateSnapshot) { s.Surface = nil }, "no surface column"},
		{"duplicate plate", func(s *EarthStateSnapshot) { s.Plates[1].ID = s.Plates[0].ID }, "duplicate plate"},
		{"negative area", func(s *EarthStateSnapshot) { s.Plates[0].AreaKm2 = -5 }, "area"},
		{"unknown boundary plate", func(s *EarthStateSnapshot) { s.Boundaries[0].PlateB = 99 }, "unknown plate"},
		{"unknown hotspot plate", func(s *EarthStateSnapshot) { s.Hotspots[0].PlateID = 99 }, "unknown plate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewStandardEarth().Snapshot()
			tt.mutate(&snap)
			err := ValidateSnapshot(snap)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
