package earth

import (
	"math"
	"testing"
)

func TestExchange_HeatFlowsOutward(t *testing.T) {
	k := DefaultConstants()
	c := NewHeatTransferCoupler(k, nil)
	layers := []PhysicalLayer{
		{Kind: LowerMantle, TemperatureC: 2500, Convection: 0.5},
		{Kind: TransitionZone, TemperatureC: 1600},
	}

	res := c.Exchange(2, layers, 0)

	equalizing := 900.0 * 400 * 60 / 460
	want := equalizing * (1 - math.Exp(-k.ConductivityPerMy*1.5*2))
	if !almostEqual(res.Deltas[TransitionZone], want) {
		t.Errorf("Expected transition zone to gain %v, got %v", want, res.Deltas[TransitionZone])
	}
	if !almostEqual(res.Deltas[LowerMantle], -want) {
		t.Errorf("Expected lower mantle to lose %v, got %v", want, res.Deltas[LowerMantle])
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
}

func TestExchange_NeverOvershoots(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)
	layers := []PhysicalLayer{
		{Kind: LowerMantle, TemperatureC: 2500, Convection: 1},
		{Kind: TransitionZone, TemperatureC: 1600},
	}

	res := c.Exchange(1e9, layers, 0)

	deep := 2500 + res.Deltas[LowerMantle]/400
	shallow := 1600 + res.Deltas[TransitionZone]/60
	if deep < shallow-1e-6 {
		t.Errorf("Expected a huge step to equalize at most, got deep %v shallow %v", deep, shallow)
	}
	if !almostEqual(deep, shallow) {
		t.Errorf("Expected temperatures to meet, got deep %v shallow %v", deep, shallow)
	}
}

func TestExchange_ThermalInversionSkipsPair(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)
	layers := []PhysicalLayer{
		{Kind: DPrimePrime, TemperatureC: 2000},
		{Kind: LowerMantle, TemperatureC: 2500},
	}

	res := c.Exchange(1, layers, 0)

	if res.Deltas[DPrimePrime] != 0 || res.Deltas[LowerMantle] != 0 {
		t.Errorf("Expected no transfer across an inversion, got %v", res.Deltas)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(res.Warnings))
	}
	if res.Warnings[0].Code != WarningThermalInversion || res.Warnings[0].Layer != DPrimePrime {
		t.Errorf("Unexpected warning: %+v", res.Warnings[0])
	}
}

func TestExchange_DeepLayerSplitsAcrossCrusts(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)
	layers := []PhysicalLayer{
		{Kind: Lithosphere, TemperatureC: 500},
		{Kind: ContinentalCrust, TemperatureC: 150},
		{Kind: OceanicCrust, TemperatureC: 150},
	}

	res := c.Exchange(1, layers, 0)

	if res.Deltas[ContinentalCrust] <= 0 {
		t.Fatalf("Expected crust to gain heat, got %v", res.Deltas[ContinentalCrust])
	}
	if res.Deltas[ContinentalCrust] != res.Deltas[OceanicCrust] {
		t.Errorf("Expected equal split, got %v and %v", res.Deltas[ContinentalCrust], res.Deltas[OceanicCrust])
	}
	total := res.Deltas[Lithosphere] + res.Deltas[ContinentalCrust] + res.Deltas[OceanicCrust]
	if math.Abs(total) > testTolerance {
		t.Errorf("Expected exchange to conserve heat, net %v", total)
	}
}

func TestExchange_ConservesHeatOnStandardEarth(t *testing.T) {
	s := NewStandardEarth()
	c := NewHeatTransferCoupler(DefaultConstants(), nil)

	res := c.Exchange(5, s.Layers, 0)

	total := 0.0
	for _, l := range s.Layers {
		total += res.Deltas[l.Kind]
	}
	if math.Abs(total) > 1e-6 {
		t.Errorf("Expected net zero exchange, got %v", total)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no inversions in the preset, got %v", res.Warnings)
	}
}

func TestExchange_SubductionHeatGoesToAsthenosphere(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)
	layers := []PhysicalLayer{
		{Kind: Asthenosphere, TemperatureC: 1300},
		{Kind: Lithosphere, TemperatureC: 1300},
	}

	res := c.Exchange(1, layers, 42)

	if res.Deltas[Asthenosphere] != 42 {
		t.Errorf("Expected 42 heat units queued in the asthenosphere, got %v", res.Deltas[Asthenosphere])
	}
	if res.Deltas[Lithosphere] != 0 {
		t.Errorf("Expected no transfer between equal temperatures, got %v", res.Deltas[Lithosphere])
	}
}

func TestRefreshConvection_OuterCoreTracksInnerCore(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)

	layers := []PhysicalLayer{
		{Kind: InnerCore, TemperatureC: 5300},
		{Kind: OuterCore, Composition: Composition{Iron: 0.9, LightElements: 0.1}},
	}
	c.RefreshConvection(1, layers, 0, MantleFlow{})
	if !almostEqual(layers[1].Convection, 0.5) {
		t.Errorf("Expected outer core convection 0.5, got %v", layers[1].Convection)
	}

	layers[1].Composition = Composition{Iron: 0.65, LightElements: 0.35}
	c.RefreshConvection(1, layers, 0, MantleFlow{})
	if !almostEqual(layers[1].Convection, 0.475) {
		t.Errorf("Expected enriched outer core convection 0.475, got %v", layers[1].Convection)
	}

	layers[0].TemperatureC = 4000
	c.RefreshConvection(1, layers, 0, MantleFlow{})
	if layers[1].Convection != 0 {
		t.Errorf("Expected convection clamped at 0 below the adiabat, got %v", layers[1].Convection)
	}
}

func TestRefreshConvection_DrivesMantleFlow(t *testing.T) {
	k := DefaultConstants()
	c := NewHeatTransferCoupler(k, nil)
	layers := []PhysicalLayer{
		{Kind: LowerMantle, Convection: 0.6},
		{Kind: Asthenosphere},
	}

	flow := c.RefreshConvection(1, layers, 0, MantleFlow{RateCmYr: 1, DirectionDeg: 358})

	if !almostEqual(layers[0].Convection, 0.6) {
		t.Errorf("Expected lower mantle to stay at baseline 0.6, got %v", layers[0].Convection)
	}
	if layers[1].Convection != layers[0].Convection {
		t.Errorf("Expected asthenosphere to follow the lower mantle, got %v", layers[1].Convection)
	}
	if !almostEqual(flow.RateCmYr, 6) {
		t.Errorf("Expected flow rate 6 cm/yr, got %v", flow.RateCmYr)
	}
	if !almostEqual(flow.DirectionDeg, 1) {
		t.Errorf("Expected direction to wrap to 1 degree, got %v", flow.DirectionDeg)
	}
}

func TestRefreshConvection_SlabInputStrengthensLowerMantle(t *testing.T) {
	c := NewHeatTransferCoupler(DefaultConstants(), nil)
	layers := []PhysicalLayer{{Kind: LowerMantle, Convection: 0.6}}

	c.RefreshConvection(10, layers, 1e7, MantleFlow{})

	if layers[0].Convection <= 0.6 || layers[0].Convection >= 0.7 {
		t.Errorf("Expected convection between 0.6 and the 0.7 target, got %v", layers[0].Convection)
	}
}
