package earth

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
)

// EarthState is the aggregate root of a simulation. It exclusively owns every layer, plate
// and surface value; phases receive copies and hand back outcomes that the state commits.
type EarthState struct {
	TimeMy     float64
	TickCount  uint64
	Layers     []PhysicalLayer // deepest first
	Plates     []TectonicPlate
	Boundaries []PlateBoundary
	Hotspots   []Hotspot
	Surface    []CrustSurface
	TransitKm  float64
	Flow       MantleFlow
	// Feedback queued by tectonics for the next tick.
	PendingSubductionHeat float64
	SlabInputKm2          float64
	Soil                  SoilComposition
	Events                *EventLog
}

// Pipeline bundles the engines run by a tick in their fixed order.
type Pipeline struct {
	Constants Constants
	Coupler   *HeatTransferCoupler
	Tectonics *TectonicEngine
	Surface   *SurfaceProcessEngine
	// Workers > 1 partitions the layer phase; the heat exchange waits for every partition.
	Workers int
	Logger  Logger
}

// NewPipeline wires the engines with a shared calibration and logger.
func NewPipeline(k Constants, workers int, logger Logger) *Pipeline {
	logger = loggerOrNoOp(logger)
	return &Pipeline{
		Constants: k,
		Coupler:   NewHeatTransferCoupler(k, logger),
		Tectonics: NewTectonicEngine(k, logger),
		Surface:   NewSurfaceProcessEngine(k),
		Workers:   workers,
		Logger:    logger,
	}
}

// TickResult is the committed outcome of one tick.
type TickResult struct {
	Snapshot EarthStateSnapshot `json:"snapshot"`
	Events   []GeologicalEvent  `json:"events"`
	Warnings []Warning          `json:"warnings"`
}

// NewStandardEarth builds the present-day preset.
func NewStandardEarth() *EarthState {
	layers := []PhysicalLayer{
		{Kind: InnerCore, TemperatureC: 5400, ThicknessKm: 1221.0, Composition: Composition{Iron: 0.8, Nickel: 0.2}},
		{Kind: OuterCore, TemperatureC: 4500, ThicknessKm: 2200, Convection: 0.55,
			Composition: Composition{Iron: 0.85, Nickel: 0.05, LightElements: 0.10}},
		{Kind: DPrimePrime, TemperatureC: 3000, ThicknessKm: 200,
			Composition: Composition{Bridgmanite: 0.5, Ferropericlase: 0.3, Iron: 0.2}},
		{Kind: LowerMantle, TemperatureC: 2500, ThicknessKm: 2200, Convection: 0.6,
			Composition: Composition{Bridgmanite: 0.8, Ferropericlase: 0.2}},
		{Kind: TransitionZone, TemperatureC: 1600, ThicknessKm: 250,
			Composition: Composition{Wadsleyite: 0.4, Ringwoodite: 0.3, Garnet: 0.3}},
		{Kind: Asthenosphere, TemperatureC: 1300, ThicknessKm: 600, Convection: 0.6,
			Composition: Composition{Olivine: 0.6, Pyroxene: 0.3, Garnet: 0.1}},
		{Kind: Lithosphere, TemperatureC: 500, ThicknessKm: 100, StressMPa: 50,
			Composition: Composition{Olivine: 0.6, Pyroxene: 0.3, Garnet: 0.1}},
		{Kind: ContinentalCrust, TemperatureC: 200, ThicknessKm: 35,
			Composition: Composition{Feldspar: 0.5, Quartz: 0.3, Mica: 0.1, Pyroxene: 0.1}},
		{Kind: OceanicCrust, TemperatureC: 150, ThicknessKm: 7,
			Composition: Composition{Plagioclase: 0.5, Pyroxene: 0.4, Olivine: 0.1}},
	}

	plates := []TectonicPlate{
		{ID: 1, AreaKm2: 100e6, Velocity: VectorFromHeading(5, 90), BoundaryType: Convergent, AgeMy: 50,
			CrustKind: ContinentalCrust, VolcanicActivity: 0.7, BackArcRateKm2PerMy: 2000},
		{ID: 2, AreaKm2: 60e6, Velocity: VectorFromHeading(3, 45), BoundaryType: Divergent, AgeMy: 10,
			CrustKind: OceanicCrust, VolcanicActivity: 0.3},
		{ID: 3, AreaKm2: 40e6, Velocity: VectorFromHeading(4, 200), BoundaryType: Convergent, AgeMy: 120,
			CrustKind: OceanicCrust, VolcanicActivity: 0.5, Subducting: true},
	}

	boundaries := []PlateBoundary{
		{ID: 1, PlateA: 2, PlateB: 3, Type: Divergent, RateKm2PerMy: 10000},
		{ID: 2, PlateA: 1, PlateB: 3, Type: Convergent},
		{ID: 3, PlateA: 1, PlateB: 2, Type: Transform},
	}

	hotspots := []Hotspot{
		{ID: 1, LatDeg: 19.4, LonDeg: -155.3, PlateID: 2, Intensity: 1.0},
		{ID: 2, LatDeg: 64.0, LonDeg: -17.0, PlateID: 1, Intensity: 0.6},
	}

	s := &EarthState{
		Layers:     layers,
		Plates:     plates,
		Boundaries: boundaries,
		Hotspots:   hotspots,
		Surface: []CrustSurface{
			{Kind: ContinentalCrust},
			{Kind: OceanicCrust},
		},
		Flow:   MantleFlow{RateCmYr: 6, DirectionDeg: 90},
		Events: NewEventLog(),
	}
	soil, err := NewSurfaceProcessEngine(DefaultConstants()).Soil(s.crustLayers(), s.Surface, 0, DefaultClimate())
	if err != nil {
		panic(fmt.Sprintf("standard earth preset: %v", err))
	}
	s.Soil = soil
	return s
}

// Clone returns a deep copy of the state, event log included.
func (s *EarthState) Clone() *EarthState {
	c := s.cloneWithoutLog()
	if s.Events != nil {
		c.Events = s.Events.clone()
	}
	return c
}

// cloneWithoutLog copies every value except the event log, which only grows at commit.
func (s *EarthState) cloneWithoutLog() *EarthState {
	c := *s
	c.Layers = make([]PhysicalLayer, len(s.Layers))
	for i, l := range s.Layers {
		c.Layers[i] = l.Clone()
	}
	c.Plates = slices.Clone(s.Plates)
	c.Boundaries = slices.Clone(s.Boundaries)
	c.Hotspots = slices.Clone(s.Hotspots)
	c.Surface = slices.Clone(s.Surface)
	c.Soil = s.Soil.Clone()
	c.Events = nil
	return &c
}

// Layer returns a copy of the layer of the given kind.
func (s *EarthState) Layer(kind LayerKind) (PhysicalLayer, bool) {
	if l := findLayer(s.Layers, kind); l != nil {
		return l.Clone(), true
	}
	return PhysicalLayer{}, false
}

// SurfaceMassKm is the crust plus loose material total, in km of crust equivalent.
func (s *EarthState) SurfaceMassKm() float64 {
	return SurfaceMassKm(s.crustLayers(), s.Surface, s.TransitKm)
}

func (s *EarthState) crustLayers() []PhysicalLayer {
	out := make([]PhysicalLayer, 0, 2)
	for _, l := range s.Layers {
		if l.Kind.IsCrust() {
			out = append(out, l.Clone())
		}
	}
	return out
}

// Tick advances the state by dtMy. All phases run on a working copy which replaces the state
// only when every phase succeeded; on error the state is untouched and a *TickError is returned.
func (s *EarthState) Tick(dtMy float64, climate ClimateInputs, p *Pipeline) (TickResult, error) {
	tick := s.TickCount + 1
	logger := loggerOrNoOp(p.Logger)
	fail := func(phase string, err error) (TickResult, error) {
		logger.Errorf("tick %d rolled back in %s phase: %v", tick, phase, err)
		return TickResult{}, &TickError{Tick: tick, Phase: phase, Err: err}
	}
	if !(dtMy > 0) || math.IsInf(dtMy, 0) {
		return fail("setup", fmt.Errorf("dt %v: %w", dtMy, ErrNonPositiveStep))
	}
	if s.Events == nil {
		s.Events = NewEventLog()
	}

	work := s.cloneWithoutLog()
	work.TickCount = tick
	work.TimeMy = s.TimeMy + dtMy
	k := p.Constants
	var warnings []Warning

	// 1. Layer steps
	stepWarnings, err := stepLayers(work.Layers, dtMy, k, p.Workers, logger)
	if err != nil {
		return fail("layers", err)
	}
	warnings = append(warnings, stepWarnings...)

	// 2. Heat exchange
	exchange := p.Coupler.Exchange(dtMy, work.Layers, work.PendingSubductionHeat)
	for i := range work.Layers {
		work.Layers[i].PendingHeat = exchange.Deltas[work.Layers[i].Kind]
	}
	warnings = append(warnings, exchange.Warnings...)
	work.Flow = p.Coupler.RefreshConvection(dtMy, work.Layers, work.SlabInputKm2, work.Flow)
	work.PendingSubductionHeat = 0
	work.SlabInputKm2 = 0

	// 3. Tectonics
	tect, err := p.Tectonics.Advance(dtMy, work.TimeMy, TectonicInput{
		Plates:     work.Plates,
		Boundaries: work.Boundaries,
		Hotspots:   work.Hotspots,
		Flow:       work.Flow,
		Layers:     work.Layers,
	})
	if err != nil {
		return fail("tectonics", err)
	}
	work.Plates = tect.Plates
	work.Hotspots = tect.Hotspots
	work.PendingSubductionHeat = tect.SubductionHeat
	work.SlabInputKm2 = tect.SlabKm2
	warnings = append(warnings, tect.Warnings...)
	if lith := findLayer(work.Layers, Lithosphere); lith != nil && len(work.Plates) > 0 {
		lith.StressMPa = tect.LithosphereStressMPa
	}
	for _, kind := range []LayerKind{ContinentalCrust, OceanicCrust} {
		growth := tect.CrustGrowthKm[kind]
		if l := findLayer(work.Layers, kind); l != nil && growth > 0 {
			l.ThicknessKm = math.Min(l.ThicknessKm+growth, math.Max(l.ThicknessKm, k.MaxCrustKm))
		}
	}

	// 4. Surface processes and 5. soil
	surf, err := p.Surface.Process(dtMy, SurfaceInput{
		Crust:     work.crustLayers(),
		Columns:   work.Surface,
		TransitKm: work.TransitKm,
	}, climate)
	if err != nil {
		return fail("surface", err)
	}
	for _, l := range surf.Crust {
		if dst := findLayer(work.Layers, l.Kind); dst != nil {
			dst.ThicknessKm = l.ThicknessKm
		}
	}
	work.Surface = surf.Columns
	work.TransitKm = surf.TransitKm
	work.Soil = surf.Soil

	if err := work.checkInvariants(); err != nil {
		return fail("commit", err)
	}

	// 6. Events
	events := append(tect.Events, surf.Events...)
	sortEvents(events)
	for i := range events {
		events[i].Tick = tick
		events[i].TimestampMy = work.TimeMy
	}

	for _, w := range warnings {
		logger.Warnf("tick %d: %s: %s", tick, w.Code, w.Message)
	}

	work.Events = s.Events
	*s = *work
	stored := s.Events.Append(events...)
	return TickResult{Snapshot: s.Snapshot(), Events: stored, Warnings: warnings}, nil
}

// stepLayers steps every layer with its pending heat. Invalid layer states are clamped and
// reported as warnings. With workers > 1 the layers are stepped in parallel partitions; every
// partition writes only its own indices and the results are folded in index order.
func stepLayers(layers []PhysicalLayer, dtMy float64, k Constants, workers int, logger Logger) ([]Warning, error) {
	effects := make([]OutboundEffects, len(layers))
	errs := make([]error, len(layers))

	step := func(i int) {
		inbound := layers[i].PendingHeat
		layers[i].PendingHeat = 0
		effects[i], errs[i] = layers[i].Step(dtMy, inbound, k)
	}

	if workers > 1 && len(layers) > 1 {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range layers {
			g.Go(func() error {
				step(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range layers {
			step(i)
		}
	}

	var warnings []Warning
	for i, err := range errs {
		if err == nil {
			continue
		}
		var lse *LayerStateError
		if !errors.As(err, &lse) {
			return nil, err
		}
		if rerr := layers[i].repair(); rerr != nil {
			return nil, fmt.Errorf("%s cannot be repaired: %w", layers[i].Kind, rerr)
		}
		logger.Warnf("%v; clamped", err)
		warnings = append(warnings, warningFromError(err))
	}

	// Crystallization moves mass from the outer core to the inner core and leaves the light
	// elements behind in the liquid.
	inner, outer := findLayer(layers, InnerCore), findLayer(layers, OuterCore)
	if inner != nil && outer != nil {
		for i := range layers {
			if layers[i].Kind != InnerCore || effects[i].GrowthKm <= 0 {
				continue
			}
			growth := effects[i].GrowthKm
			if growth > outer.ThicknessKm {
				// The solid cannot outgrow the liquid that feeds it.
				excess := growth - outer.ThicknessKm
				layers[i].ThicknessKm -= excess
				growth = outer.ThicknessKm
				err := &LayerStateError{Kind: OuterCore,
					Issue: fmt.Sprintf("crystallization capped at %.3f km, outer core exhausted", growth)}
				logger.Warnf("%v", err)
				warnings = append(warnings, warningFromError(err))
			}
			if growth <= 0 {
				continue
			}
			outer.ThicknessKm -= growth
			outer.Composition[LightElements] += growth * k.LightElementsPerKm
			if err := outer.Composition.Normalize(); err != nil {
				return nil, fmt.Errorf("outer core: %w", err)
			}
		}
	}
	return warnings, nil
}

// checkInvariants verifies the conditions a committed state must hold.
func (s *EarthState) checkInvariants() error {
	for _, l := range s.Layers {
		if math.IsNaN(l.TemperatureC) || math.IsInf(l.TemperatureC, 0) {
			return fmt.Errorf("%s temperature is %v", l.Kind, l.TemperatureC)
		}
		if !(l.ThicknessKm >= 0) {
			return fmt.Errorf("%s thickness is %v", l.Kind, l.ThicknessKm)
		}
		if !l.Composition.IsNormalized() {
			return fmt.Errorf("%s composition sums to %v", l.Kind, l.Composition.Sum())
		}
	}
	for _, p := range s.Plates {
		if !(p.AreaKm2 >= 0) {
			return fmt.Errorf("plate %d area is %v", p.ID, p.AreaKm2)
		}
	}
	if len(s.Soil.MineralDistribution) > 0 && !s.Soil.MineralDistribution.IsNormalized() {
		return fmt.Errorf("soil minerals sum to %v", s.Soil.MineralDistribution.Sum())
	}
	return nil
}
