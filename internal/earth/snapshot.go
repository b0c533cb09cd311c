package earth

import (
	"encoding/json"
	"fmt"
	"slices"
)

// EarthStateSnapshot is an immutable, fully materialized copy of the state at a tick
// boundary. Its field set is the serialization contract for anything that stores or
// renders simulation output.
type EarthStateSnapshot struct {
	Tick                  uint64          `json:"tick"`
	TimeMy                float64         `json:"time_my"`
	Layers                []PhysicalLayer `json:"layers"`
	Plates                []TectonicPlate `json:"plates"`
	Boundaries            []PlateBoundary `json:"boundaries"`
	Hotspots              []Hotspot       `json:"hotspots"`
	Surface               []CrustSurface  `json:"surface"`
	TransitKm             float64         `json:"transit_km"`
	Flow                  MantleFlow      `json:"flow"`
	PendingSubductionHeat float64         `json:"pending_subduction_heat"`
	SlabInputKm2          float64         `json:"slab_input_km2"`
	Soil                  SoilComposition `json:"soil"`
	EventCount            int             `json:"event_count"`
}

// Snapshot captures the current state.
func (s *EarthState) Snapshot() EarthStateSnapshot {
	c := s.cloneWithoutLog()
	snap := EarthStateSnapshot{
		Tick:                  c.TickCount,
		TimeMy:                c.TimeMy,
		Layers:                c.Layers,
		Plates:                c.Plates,
		Boundaries:            c.Boundaries,
		Hotspots:              c.Hotspots,
		Surface:               c.Surface,
		TransitKm:             c.TransitKm,
		Flow:                  c.Flow,
		PendingSubductionHeat: c.PendingSubductionHeat,
		SlabInputKm2:          c.SlabInputKm2,
		Soil:                  c.Soil,
	}
	if s.Events != nil {
		snap.EventCount = s.Events.Len()
	}
	return snap
}

// Layer returns the layer of the given kind.
func (snap EarthStateSnapshot) Layer(kind LayerKind) (PhysicalLayer, bool) {
	if l := findLayer(snap.Layers, kind); l != nil {
		return l.Clone(), true
	}
	return PhysicalLayer{}, false
}

// Plate returns the plate with the given id.
func (snap EarthStateSnapshot) Plate(id int) (TectonicPlate, bool) {
	for _, p := range snap.Plates {
		if p.ID == id {
			return p, true
		}
	}
	return TectonicPlate{}, false
}

// State rebuilds a mutable state from the snapshot, with an empty event log.
func (snap EarthStateSnapshot) State() *EarthState {
	s := &EarthState{
		TimeMy:                snap.TimeMy,
		TickCount:             snap.Tick,
		Layers:                make([]PhysicalLayer, len(snap.Layers)),
		Plates:                slices.Clone(snap.Plates),
		Boundaries:            slices.Clone(snap.Boundaries),
		Hotspots:              slices.Clone(snap.Hotspots),
		Surface:               slices.Clone(snap.Surface),
		TransitKm:             snap.TransitKm,
		Flow:                  snap.Flow,
		PendingSubductionHeat: snap.PendingSubductionHeat,
		SlabInputKm2:          snap.SlabInputKm2,
		Soil:                  snap.Soil.Clone(),
		Events:                NewEventLog(),
	}
	for i, l := range snap.Layers {
		s.Layers[i] = l.Clone()
	}
	return s
}

// ValidateSnapshot checks that a snapshot can seed a simulation:
//   - layers are known, unique and ordered deepest first
//   - thicknesses are non-negative and compositions normalized
//   - plate ids are unique, areas non-negative
//   - boundaries and hotspots reference existing plates
//   - every crust layer has a surface column
func ValidateSnapshot(snap EarthStateSnapshot) error {
	if len(snap.Layers) == 0 {
		return fmt.Errorf("snapshot has no layers")
	}

	seenKinds := make(map[LayerKind]struct{})
	lastShell := -1
	for i, l := range snap.Layers {
		if !l.Kind.Valid() {
			return fmt.Errorf("layer at index %d has unknown kind %d", i, int(l.Kind))
		}
		if _, dup := seenKinds[l.Kind]; dup {
			return fmt.Errorf("duplicate layer: %s", l.Kind)
		}
		seenKinds[l.Kind] = struct{}{}

		if l.Kind.Shell() < lastShell {
			return fmt.Errorf("layer %s is out of depth order", l.Kind)
		}
		lastShell = l.Kind.Shell()

		if !(l.ThicknessKm >= 0) {
			return fmt.Errorf("layer %s has thickness %v", l.Kind, l.ThicknessKm)
		}
		if err := l.Composition.Validate(l.Kind); err != nil {
			return err
		}
		if !l.Composition.IsNormalized() {
			return fmt.Errorf("layer %s composition sums to %v", l.Kind, l.Composition.Sum())
		}
		if l.Kind.IsCrust() && columnFor(snap.Surface, l.Kind) == nil {
			return fmt.Errorf("crust layer %s has no surface column", l.Kind)
		}
	}

	plateIDs := make(map[int]struct{})
	for _, p := range snap.Plates {
		if _, dup := plateIDs[p.ID]; dup {
			return fmt.Errorf("duplicate plate ID: %d", p.ID)
		}
		plateIDs[p.ID] = struct{}{}
		if !(p.AreaKm2 >= 0) {
			return fmt.Errorf("plate %d has area %v", p.ID, p.AreaKm2)
		}
		if !p.CrustKind.IsCrust() {
			return fmt.Errorf("plate %d has non-crust kind %s", p.ID, p.CrustKind)
		}
	}
	for _, b := range snap.Boundaries {
		_, okA := plateIDs[b.PlateA]
		_, okB := plateIDs[b.PlateB]
		if !okA || !okB {
			return fmt.Errorf("boundary %d references unknown plate", b.ID)
		}
		if b.PlateA == b.PlateB {
			return fmt.Errorf("boundary %d links plate %d to itself", b.ID, b.PlateA)
		}
	}
	for _, h := range snap.Hotspots {
		if _, ok := plateIDs[h.PlateID]; !ok {
			return fmt.Errorf("hotspot %d references unknown plate %d", h.ID, h.PlateID)
		}
	}
	return nil
}

// EncodeSnapshotJSON encodes a snapshot to JSON format.
func EncodeSnapshotJSON(snap EarthStateSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON format.
func DecodeSnapshotJSON(data []byte) (EarthStateSnapshot, error) {
	var snap EarthStateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return EarthStateSnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
