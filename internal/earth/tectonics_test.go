package earth

import (
	"math"
	"reflect"
	"testing"
)

func TestSplitSpreading(t *testing.T) {
	a, b := splitSpreading(10000, 1000, 1000)
	if a != 5000 || b != 5000 {
		t.Errorf("Expected an even split of equal plates, got %v and %v", a, b)
	}

	a, b = splitSpreading(10000, 0, 0)
	if a != 5000 || b != 5000 {
		t.Errorf("Expected an even split of empty plates, got %v and %v", a, b)
	}

	a, b = splitSpreading(900, 2000, 1000)
	if !almostEqual(a, 600) || !almostEqual(b, 300) {
		t.Errorf("Expected 600/300 by area share, got %v and %v", a, b)
	}
}

func TestSubductingPlate(t *testing.T) {
	tests := []struct {
		name     string
		a, b     TectonicPlate
		wantDown int
	}{
		{
			name:     "oceanic under continental",
			a:        TectonicPlate{ID: 1, CrustKind: ContinentalCrust, AgeMy: 500},
			b:        TectonicPlate{ID: 2, CrustKind: OceanicCrust, AgeMy: 5},
			wantDown: 2,
		},
		{
			name:     "older oceanic goes down",
			a:        TectonicPlate{ID: 1, CrustKind: OceanicCrust, AgeMy: 150},
			b:        TectonicPlate{ID: 2, CrustKind: OceanicCrust, AgeMy: 20},
			wantDown: 1,
		},
		{
			name:     "equal age falls back to higher id",
			a:        TectonicPlate{ID: 7, CrustKind: ContinentalCrust, AgeMy: 50},
			b:        TectonicPlate{ID: 3, CrustKind: ContinentalCrust, AgeMy: 50},
			wantDown: 7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.a, tt.b
			down, up := subductingPlate(&a, &b)
			if down.ID != tt.wantDown {
				t.Errorf("Expected plate %d to subduct, got %d", tt.wantDown, down.ID)
			}
			if up.ID == down.ID {
				t.Error("Expected distinct plates")
			}
		})
	}
}

func quietPlates() []TectonicPlate {
	return []TectonicPlate{
		{ID: 1, AreaKm2: 1000, AgeMy: 10, CrustKind: OceanicCrust},
		{ID: 2, AreaKm2: 1000, AgeMy: 10, CrustKind: OceanicCrust},
	}
}

func TestAdvance_DivergentSplitsEvenly(t *testing.T) {
	e := NewTectonicEngine(DefaultConstants(), nil)

	out, err := e.Advance(1, 1, TectonicInput{
		Plates:     quietPlates(),
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 2, Type: Divergent, RateKm2PerMy: 10000}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, p := range out.Plates {
		if p.AreaKm2 != 6000 {
			t.Errorf("Expected plate %d area 6000, got %v", p.ID, p.AreaKm2)
		}
		// Fresh crust dilutes the mean age after ageing by one My.
		if !almostEqual(p.AgeMy, 11.0*1000/6000) {
			t.Errorf("Expected plate %d age %v, got %v", p.ID, 11.0*1000/6000, p.AgeMy)
		}
	}
	if len(out.Events) != 2 {
		t.Fatalf("Expected 2 spreading events, got %d", len(out.Events))
	}
	for i, ev := range out.Events {
		if ev.Kind != Spreading || ev.Magnitude != 5000 || ev.PlateID != i+1 {
			t.Errorf("Unexpected event %d: %+v", i, ev)
		}
	}
}

func TestAdvance_ConvergentSubductsOceanicPlate(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)
	plates := []TectonicPlate{
		{ID: 1, AreaKm2: 50e6, AgeMy: 30, CrustKind: ContinentalCrust},
		{ID: 2, AreaKm2: 20e6, AgeMy: 160, CrustKind: OceanicCrust},
	}

	out, err := e.Advance(2, 2, TectonicInput{
		Plates:     plates,
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 2, Type: Convergent}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	consumed := 20e6 * (1 - math.Exp(-k.SubductionRatePerMy*2))
	if !almostEqual(out.Plates[1].AreaKm2, 20e6-consumed) {
		t.Errorf("Expected oceanic area %v, got %v", 20e6-consumed, out.Plates[1].AreaKm2)
	}
	if out.Plates[0].AreaKm2 != 50e6 {
		t.Errorf("Expected continental area unchanged, got %v", out.Plates[0].AreaKm2)
	}
	if !almostEqual(out.SlabKm2, consumed) {
		t.Errorf("Expected slab input %v, got %v", consumed, out.SlabKm2)
	}
	if !almostEqual(out.SubductionHeat, consumed*k.SubductionHeatPerKm2) {
		t.Errorf("Expected subduction heat %v, got %v", consumed*k.SubductionHeatPerKm2, out.SubductionHeat)
	}
	for _, p := range out.Plates {
		if p.StressMPa != k.ConvergentStressMPaPerMy*2 {
			t.Errorf("Expected plate %d stress %v, got %v", p.ID, k.ConvergentStressMPaPerMy*2, p.StressMPa)
		}
	}
	if !out.Plates[1].Subducting {
		t.Error("Expected the old oceanic plate to be flagged as subducting")
	}
	if len(out.Events) != 1 || out.Events[0].Kind != Subduction || out.Events[0].PlateID != 2 {
		t.Errorf("Expected one subduction event on plate 2, got %+v", out.Events)
	}
	if _, ok := out.CrustGrowthKm[ContinentalCrust]; ok {
		t.Error("Expected no collision thickening for an ocean-continent margin")
	}
}

func TestAdvance_YoungPlateDoesNotSubduct(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)
	plates := []TectonicPlate{
		{ID: 1, AreaKm2: 1e6, AgeMy: 5, CrustKind: ContinentalCrust},
		{ID: 2, AreaKm2: 1e6, AgeMy: 5, CrustKind: OceanicCrust},
	}

	out, err := e.Advance(1, 1, TectonicInput{
		Plates:     plates,
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 2, Type: Convergent}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if out.Plates[1].Subducting {
		t.Error("Expected a 6 My plate below the onset age")
	}
	if out.Plates[1].AreaKm2 != 1e6 || out.SlabKm2 != 0 || out.SubductionHeat != 0 {
		t.Errorf("Expected no consumption, got area %v slab %v heat %v",
			out.Plates[1].AreaKm2, out.SlabKm2, out.SubductionHeat)
	}
	if len(out.Events) != 0 {
		t.Errorf("Expected no subduction event, got %+v", out.Events)
	}
	if out.Plates[1].StressMPa != k.ConvergentStressMPaPerMy {
		t.Errorf("Expected convergent stress %v, got %v", k.ConvergentStressMPaPerMy, out.Plates[1].StressMPa)
	}
}

func TestAdvance_BoundaryTypeFollowsBoundaries(t *testing.T) {
	e := NewTectonicEngine(DefaultConstants(), nil)
	s := NewStandardEarth()
	for i := range s.Plates {
		s.Plates[i].BoundaryType = Transform
	}

	out, err := e.Advance(1, 1, TectonicInput{Plates: s.Plates, Boundaries: s.Boundaries, Layers: s.Layers})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := map[int]BoundaryType{1: Convergent, 2: Divergent, 3: Convergent}
	for _, p := range out.Plates {
		if p.BoundaryType != want[p.ID] {
			t.Errorf("Expected plate %d %s, got %s", p.ID, want[p.ID], p.BoundaryType)
		}
	}

	lone := []TectonicPlate{{ID: 5, AreaKm2: 10, BoundaryType: Divergent, CrustKind: OceanicCrust}}
	out, err = e.Advance(1, 1, TectonicInput{Plates: lone})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Plates[0].BoundaryType != Divergent {
		t.Errorf("Expected a plate without boundaries to keep its type, got %s", out.Plates[0].BoundaryType)
	}
}

func TestAdvance_ContinentalCollisionThickensCrust(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)
	plates := []TectonicPlate{
		{ID: 1, AreaKm2: 50e6, AgeMy: 30, CrustKind: ContinentalCrust},
		{ID: 2, AreaKm2: 40e6, AgeMy: 40, CrustKind: ContinentalCrust},
	}

	out, err := e.Advance(4, 4, TectonicInput{
		Plates:     plates,
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 2, Type: Convergent}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(out.CrustGrowthKm[ContinentalCrust], k.CollisionThickeningKmPerMy*4) {
		t.Errorf("Expected thickening %v, got %v", k.CollisionThickeningKmPerMy*4, out.CrustGrowthKm[ContinentalCrust])
	}
}

func TestAdvance_TransformStressReleasesEarthquake(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)

	// 50 MPa per My over 7 My loads 350 MPa; one 300 MPa quake leaves 50.
	out, err := e.Advance(7, 7, TectonicInput{
		Plates:     quietPlates(),
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 2, Type: Transform}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, p := range out.Plates {
		if !almostEqual(p.StressMPa, 50) {
			t.Errorf("Expected residual stress 50 on plate %d, got %v", p.ID, p.StressMPa)
		}
	}
	if len(out.Events) != 2 {
		t.Fatalf("Expected 2 earthquakes, got %+v", out.Events)
	}
	for _, ev := range out.Events {
		if ev.Kind != Earthquake || ev.Magnitude != k.EarthquakeThresholdMPa {
			t.Errorf("Unexpected event: %+v", ev)
		}
	}
	if !almostEqual(out.LithosphereStressMPa, 50) {
		t.Errorf("Expected mean lithosphere stress 50, got %v", out.LithosphereStressMPa)
	}
}

func TestAdvance_EruptionAtThreshold(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)
	plates := []TectonicPlate{{ID: 4, AreaKm2: 1000, CrustKind: ContinentalCrust, VolcanicActivity: 1}}

	out, err := e.Advance(10, 10, TectonicInput{Plates: plates})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(out.Events) != 1 || out.Events[0].Kind != Eruption || out.Events[0].Magnitude != 1 {
		t.Fatalf("Expected one eruption, got %+v", out.Events)
	}
	if out.Plates[0].EruptionPotential != 0 {
		t.Errorf("Expected potential reset to 0, got %v", out.Plates[0].EruptionPotential)
	}
	if out.CrustGrowthKm[ContinentalCrust] != k.EruptionCrustKm {
		t.Errorf("Expected crust growth %v, got %v", k.EruptionCrustKm, out.CrustGrowthKm[ContinentalCrust])
	}

	// Below threshold nothing happens.
	out, err = e.Advance(5, 5, TectonicInput{Plates: plates})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Events) != 0 || out.Plates[0].EruptionPotential != 50 {
		t.Errorf("Expected no eruption and potential 50, got %+v / %v", out.Events, out.Plates[0].EruptionPotential)
	}
}

func TestAdvance_HotspotEruptsAndMigrates(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)
	layers := []PhysicalLayer{
		{Kind: DPrimePrime, TemperatureC: 3000},
		{Kind: LowerMantle, TemperatureC: 2500},
	}

	out, err := e.Advance(10, 10, TectonicInput{
		Plates:   quietPlates(),
		Hotspots: []Hotspot{{ID: 9, LatDeg: 0, LonDeg: 179.5, PlateID: 2, Intensity: 1}},
		Flow:     MantleFlow{RateCmYr: 1, DirectionDeg: 0},
		Layers:   layers,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(out.Events) != 1 {
		t.Fatalf("Expected one hotspot eruption, got %+v", out.Events)
	}
	ev := out.Events[0]
	if ev.Kind != Eruption || ev.Entity != (EntityRef{Type: EntityHotspot, ID: 9}) || ev.PlateID != 2 {
		t.Errorf("Unexpected event: %+v", ev)
	}
	if out.CrustGrowthKm[OceanicCrust] != k.EruptionCrustKm {
		t.Errorf("Expected oceanic crust growth %v, got %v", k.EruptionCrustKm, out.CrustGrowthKm[OceanicCrust])
	}

	h := out.Hotspots[0]
	if !almostEqual(h.LonDeg, -179.5) {
		t.Errorf("Expected longitude to wrap to -179.5, got %v", h.LonDeg)
	}
	if h.SurfaceAgeMy != 10 {
		t.Errorf("Expected surface age 10, got %v", h.SurfaceAgeMy)
	}
}

func TestAdvance_VelocityIsClamped(t *testing.T) {
	k := DefaultConstants()
	e := NewTectonicEngine(k, nil)

	out, err := e.Advance(1, 1, TectonicInput{
		Plates: quietPlates(),
		Flow:   MantleFlow{RateCmYr: 50, DirectionDeg: 30},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, p := range out.Plates {
		if !almostEqual(p.Velocity.Length(), k.MaxPlateVelocityCmYr) {
			t.Errorf("Expected plate %d speed %v, got %v", p.ID, k.MaxPlateVelocityCmYr, p.Velocity.Length())
		}
	}
	if len(out.Warnings) != 2 || out.Warnings[0].Code != WarningVelocityClamped {
		t.Errorf("Expected 2 velocity warnings, got %+v", out.Warnings)
	}
}

func TestAdvance_UnknownPlateFails(t *testing.T) {
	e := NewTectonicEngine(DefaultConstants(), nil)
	_, err := e.Advance(1, 1, TectonicInput{
		Plates:     quietPlates(),
		Boundaries: []PlateBoundary{{ID: 1, PlateA: 1, PlateB: 99, Type: Transform}},
	})
	if err == nil {
		t.Error("Expected error for a boundary to an unknown plate")
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	e := NewTectonicEngine(DefaultConstants(), nil)
	s := NewStandardEarth()
	before := s.Snapshot()

	_, err := e.Advance(1, 1, TectonicInput{
		Plates:     s.Plates,
		Boundaries: s.Boundaries,
		Hotspots:   s.Hotspots,
		Flow:       s.Flow,
		Layers:     s.Layers,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Error("Expected Advance to leave its input untouched")
	}
}

func TestAdvance_EventsOrderedAndDeterministic(t *testing.T) {
	e := NewTectonicEngine(DefaultConstants(), nil)
	run := func() TectonicOutcome {
		s := NewStandardEarth()
		out, err := e.Advance(30, 30, TectonicInput{
			Plates:     s.Plates,
			Boundaries: s.Boundaries,
			Hotspots:   s.Hotspots,
			Flow:       s.Flow,
			Layers:     s.Layers,
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return out
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical outcomes for identical inputs")
	}
	if len(first.Events) == 0 {
		t.Fatal("Expected events from a 30 My step of the preset")
	}
	for i := 1; i < len(first.Events); i++ {
		a, b := first.Events[i-1], first.Events[i]
		if a.PlateID > b.PlateID || (a.PlateID == b.PlateID && a.Kind > b.Kind) {
			t.Errorf("Events %d and %d out of order: %+v then %+v", i-1, i, a, b)
		}
	}
}
