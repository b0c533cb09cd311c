package earth

import (
	"fmt"
	"math"
)

// ClimateInputs drive the surface processes at a given simulated time.
type ClimateInputs struct {
	TemperatureC       float64 `json:"temperature_c"`
	PrecipitationProxy float64 `json:"precipitation_proxy"`
	// VegetationCoverage is an external placeholder parameter in [0,1].
	VegetationCoverage float64 `json:"vegetation_coverage"`
}

// DefaultClimate is a present-day reference climate.
func DefaultClimate() ClimateInputs {
	return ClimateInputs{TemperatureC: 15, PrecipitationProxy: 1.0, VegetationCoverage: 0.5}
}

// CrustSurface tracks the loose material on top of one crust kind, in km of crust equivalent.
type CrustSurface struct {
	Kind       LayerKind `json:"kind"`
	RegolithKm float64   `json:"regolith_km"`
	SedimentKm float64   `json:"sediment_km"`
	// IsostasyKm is the subsidence under the sediment load. It displaces, it does not add mass.
	IsostasyKm float64 `json:"isostasy_km"`
}

// SoilComposition is derived from crust and climate every tick and never stored on its own.
type SoilComposition struct {
	MineralDistribution Composition `json:"mineral_distribution"`
	SedimentThicknessKm float64     `json:"sediment_thickness_km"`
	SurfaceTemperatureC float64     `json:"surface_temperature_c"`
	VegetationCoverage  float64     `json:"vegetation_coverage"`
}

func (s SoilComposition) Clone() SoilComposition {
	s.MineralDistribution = s.MineralDistribution.Clone()
	return s
}

// SurfaceInput is the crust view handed to the surface phase. Crust and Columns are matched
// by kind.
type SurfaceInput struct {
	Crust     []PhysicalLayer
	Columns   []CrustSurface
	TransitKm float64
}

// SurfaceOutcome carries the updated crust and loose material back to the state.
type SurfaceOutcome struct {
	Crust     []PhysicalLayer
	Columns   []CrustSurface
	TransitKm float64
	Soil      SoilComposition
	Events    []GeologicalEvent
	// WeatheredKm is the crust turned into regolith per kind during the step.
	WeatheredKm map[LayerKind]float64
}

// SurfaceMassKm is the total of crust and loose material, the quantity the surface phase
// conserves.
func SurfaceMassKm(crust []PhysicalLayer, columns []CrustSurface, transitKm float64) float64 {
	total := transitKm
	for _, l := range crust {
		total += l.ThicknessKm
	}
	for _, c := range columns {
		total += c.RegolithKm + c.SedimentKm
	}
	return total
}

// SurfaceProcessEngine applies weathering, erosion, deposition and soil formation.
type SurfaceProcessEngine struct {
	k Constants
}

// NewSurfaceProcessEngine creates a surface engine with the given calibration.
func NewSurfaceProcessEngine(k Constants) *SurfaceProcessEngine {
	return &SurfaceProcessEngine{k: k}
}

func (e *SurfaceProcessEngine) weatheringRate(kind LayerKind) float64 {
	if kind == OceanicCrust {
		return e.k.OceanicWeatheringKmPerMy
	}
	return e.k.ContinentalWeatheringKmPerMy
}

// climateFactor scales weathering with temperature and precipitation. Reference climate is 1.
func (e *SurfaceProcessEngine) climateFactor(c ClimateInputs) float64 {
	thermal := math.Max(0, 1+e.k.ClimateTempSensitivity*(c.TemperatureC-e.k.ReferenceTemperatureC))
	return thermal * math.Max(0, c.PrecipitationProxy) / e.k.ReferencePrecipitation
}

// Process runs the surface phase for dtMy million years.
//
// Crust weathers into regolith, regolith erodes into the transit load, and the transit load
// settles as sediment, mostly on the oceanic column. Material only moves between these
// reservoirs, so the total returned by SurfaceMassKm is unchanged; a drift beyond rounding
// is an error and the tick must not commit.
func (e *SurfaceProcessEngine) Process(dtMy float64, in SurfaceInput, climate ClimateInputs) (SurfaceOutcome, error) {
	if !(dtMy > 0) {
		return SurfaceOutcome{}, fmt.Errorf("surface step %v: %w", dtMy, ErrNonPositiveStep)
	}
	before := SurfaceMassKm(in.Crust, in.Columns, in.TransitKm)

	out := SurfaceOutcome{
		Crust:       make([]PhysicalLayer, len(in.Crust)),
		Columns:     make([]CrustSurface, len(in.Columns)),
		TransitKm:   in.TransitKm,
		WeatheredKm: make(map[LayerKind]float64, len(in.Crust)),
	}
	for i, l := range in.Crust {
		out.Crust[i] = l.Clone()
	}
	copy(out.Columns, in.Columns)

	factor := e.climateFactor(climate)
	for i := range out.Crust {
		l := &out.Crust[i]
		col := columnFor(out.Columns, l.Kind)
		if col == nil {
			return SurfaceOutcome{}, fmt.Errorf("no surface column for %s", l.Kind)
		}

		// Weathering, floored at the minimum crust thickness.
		w := e.weatheringRate(l.Kind) * factor * dtMy
		w = math.Min(w, math.Max(0, l.ThicknessKm-e.k.MinCrustKm))
		l.ThicknessKm -= w
		col.RegolithKm += w
		out.WeatheredKm[l.Kind] = w

		// Erosion
		rate := e.k.ErosionRatePerMy
		if col.SedimentKm > e.k.SedimentFeedbackKm {
			rate *= e.k.SedimentFeedbackFactor
		}
		eroded := col.RegolithKm * (1 - math.Exp(-rate*dtMy))
		col.RegolithKm -= eroded
		out.TransitKm += eroded

		if w > e.k.ErosionPulseKm {
			out.Events = append(out.Events, GeologicalEvent{
				Kind:      ErosionPulse,
				Magnitude: w,
				Entity:    EntityRef{Type: EntityLayer, ID: int(l.Kind)},
				PlateID:   NoPlate,
			})
		}
	}

	// Deposition
	deposited := out.TransitKm * (1 - math.Exp(-e.k.DepositionRatePerMy*dtMy))
	out.TransitKm -= deposited
	e.deposit(out.Columns, deposited)

	for i := range out.Columns {
		out.Columns[i].IsostasyKm = e.k.IsostasyFactor * out.Columns[i].SedimentKm
	}

	after := SurfaceMassKm(out.Crust, out.Columns, out.TransitKm)
	if diff := math.Abs(after - before); diff > 1e-9*math.Max(1, before) || math.IsNaN(after) {
		return SurfaceOutcome{}, fmt.Errorf("surface mass not conserved: before %.12f km, after %.12f km", before, after)
	}
	for _, col := range out.Columns {
		if col.RegolithKm < 0 || col.SedimentKm < 0 {
			return SurfaceOutcome{}, fmt.Errorf("negative loose material on %s", col.Kind)
		}
	}

	soil, err := e.Soil(out.Crust, out.Columns, out.TransitKm, climate)
	if err != nil {
		return SurfaceOutcome{}, err
	}
	out.Soil = soil
	return out, nil
}

// deposit spreads settled load over the columns, the oceanic column taking its share first.
func (e *SurfaceProcessEngine) deposit(columns []CrustSurface, amount float64) {
	if amount <= 0 || len(columns) == 0 {
		return
	}
	ocean := columnFor(columns, OceanicCrust)
	land := columnFor(columns, ContinentalCrust)
	switch {
	case ocean != nil && land != nil:
		toOcean := amount * e.k.OceanicDepositionShare
		ocean.SedimentKm += toOcean
		land.SedimentKm += amount - toOcean
	case ocean != nil:
		ocean.SedimentKm += amount
	case land != nil:
		land.SedimentKm += amount
	default:
		columns[0].SedimentKm += amount
	}
}

// Soil derives the soil summary from the crust, its loose material and the climate.
func (e *SurfaceProcessEngine) Soil(crust []PhysicalLayer, columns []CrustSurface, transitKm float64, climate ClimateInputs) (SoilComposition, error) {
	soil := SoilComposition{
		MineralDistribution: make(Composition),
		SedimentThicknessKm: transitKm,
		SurfaceTemperatureC: climate.TemperatureC,
		VegetationCoverage:  clamp01(climate.VegetationCoverage),
	}

	// Surface material weights each crust's minerals; bare crust weighs in evenly.
	weights := make([]float64, len(crust))
	totalWeight := 0.0
	for i, l := range crust {
		if col := columnFor(columns, l.Kind); col != nil {
			weights[i] = col.RegolithKm + col.SedimentKm
			soil.SedimentThicknessKm += weights[i]
		}
		totalWeight += weights[i]
	}
	for i, l := range crust {
		w := 1.0
		if totalWeight > 0 {
			w = weights[i]
		}
		for _, m := range l.Composition.Minerals() {
			soil.MineralDistribution[m] += w * l.Composition[m]
		}
	}
	if len(soil.MineralDistribution) == 0 {
		return soil, nil
	}
	if err := soil.MineralDistribution.Normalize(); err != nil {
		return SoilComposition{}, fmt.Errorf("soil minerals: %w", err)
	}

	// Chemical weathering turns silicates into clay.
	conversion := clamp01(e.k.ClayConversion * e.climateFactor(climate))
	for _, m := range []Mineral{Feldspar, Mica, Plagioclase} {
		if f, ok := soil.MineralDistribution[m]; ok {
			moved := f * conversion
			soil.MineralDistribution[m] -= moved
			soil.MineralDistribution[Clay] += moved
		}
	}
	if err := soil.MineralDistribution.Normalize(); err != nil {
		return SoilComposition{}, fmt.Errorf("soil minerals: %w", err)
	}

	organic := e.k.OrganicMaxFraction * soil.VegetationCoverage
	if organic > 0 {
		for _, m := range soil.MineralDistribution.Minerals() {
			soil.MineralDistribution[m] *= 1 - organic
		}
		soil.MineralDistribution[OrganicMatter] += organic
		if err := soil.MineralDistribution.Normalize(); err != nil {
			return SoilComposition{}, fmt.Errorf("soil minerals: %w", err)
		}
	}
	return soil, nil
}

func columnFor(columns []CrustSurface, kind LayerKind) *CrustSurface {
	for i := range columns {
		if columns[i].Kind == kind {
			return &columns[i]
		}
	}
	return nil
}
