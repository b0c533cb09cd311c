package earth

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// NoPlate is the PlateID of events that are not tied to a plate.
const NoPlate = -1

// TectonicInput is the read view of the state handed to the tectonic phase.
type TectonicInput struct {
	Plates     []TectonicPlate
	Boundaries []PlateBoundary
	Hotspots   []Hotspot
	Flow       MantleFlow
	// Layers is the post heat-exchange layer stack, deepest first.
	Layers []PhysicalLayer
}

// TectonicOutcome is what the tectonic phase hands back to the state.
type TectonicOutcome struct {
	Plates   []TectonicPlate
	Hotspots []Hotspot
	Events   []GeologicalEvent
	// SubductionHeat is queued for the next tick's heat exchange.
	SubductionHeat float64
	// SlabKm2 is the subducted area feeding lower mantle convection next tick.
	SlabKm2 float64
	// CrustGrowthKm is the volcanic or collisional thickening per crust kind.
	CrustGrowthKm        map[LayerKind]float64
	LithosphereStressMPa float64
	Warnings             []Warning
}

// TectonicEngine advances plate motion, spreading, subduction, faulting and volcanism.
// Every trigger is a threshold over accumulated state, so identical inputs always produce
// identical events.
type TectonicEngine struct {
	k      Constants
	logger Logger
}

// NewTectonicEngine creates a tectonic engine with the given calibration.
func NewTectonicEngine(k Constants, logger Logger) *TectonicEngine {
	return &TectonicEngine{k: k, logger: loggerOrNoOp(logger)}
}

// Advance moves the plates forward by dtMy million years. nowMy stamps the emitted events.
func (e *TectonicEngine) Advance(dtMy, nowMy float64, in TectonicInput) (TectonicOutcome, error) {
	out := TectonicOutcome{
		Plates:        slices.Clone(in.Plates),
		Hotspots:      slices.Clone(in.Hotspots),
		CrustGrowthKm: make(map[LayerKind]float64),
	}
	slices.SortFunc(out.Plates, func(a, b TectonicPlate) int { return cmp.Compare(a.ID, b.ID) })

	index := make(map[int]int, len(out.Plates))
	for i, p := range out.Plates {
		index[p.ID] = i
	}

	emit := func(kind EventKind, magnitude float64, entity EntityRef, plateID int) {
		out.Events = append(out.Events, GeologicalEvent{
			TimestampMy: nowMy,
			Kind:        kind,
			Magnitude:   magnitude,
			Entity:      entity,
			PlateID:     plateID,
		})
	}

	// Motion and ageing
	flowVelocity := VectorFromHeading(in.Flow.RateCmYr, in.Flow.DirectionDeg)
	for i := range out.Plates {
		p := &out.Plates[i]
		v := flowVelocity.Add(p.Velocity.Scale(e.k.VelocityMemory))
		if speed := v.Length(); speed > e.k.MaxPlateVelocityCmYr {
			v = v.Scale(e.k.MaxPlateVelocityCmYr / speed)
			out.Warnings = append(out.Warnings, Warning{
				Code:    WarningVelocityClamped,
				Layer:   Lithosphere,
				Message: fmt.Sprintf("plate %d speed %.3f cm/yr clamped to %.3f", p.ID, speed, e.k.MaxPlateVelocityCmYr),
			})
			e.logger.Warnf("plate %d speed %.3f cm/yr clamped", p.ID, speed)
		}
		p.Velocity = v
		p.AgeMy += dtMy
		p.Subducting = p.AgeMy > e.k.SubductionOnsetAgeMy

		if p.BackArcRateKm2PerMy > 0 {
			gain := p.BackArcRateKm2PerMy * dtMy
			p.AgeMy = dilutedAge(p.AgeMy, p.AreaKm2, gain)
			p.AreaKm2 += gain
			emit(Spreading, gain, EntityRef{Type: EntityPlate, ID: p.ID}, p.ID)
		}
	}

	boundaries := slices.Clone(in.Boundaries)
	slices.SortFunc(boundaries, func(a, b PlateBoundary) int { return cmp.Compare(a.ID, b.ID) })

	for i := range out.Plates {
		out.Plates[i].BoundaryType = dominantBoundary(out.Plates[i], boundaries)
	}

	for _, b := range boundaries {
		ia, okA := index[b.PlateA]
		ib, okB := index[b.PlateB]
		if !okA || !okB {
			return TectonicOutcome{}, fmt.Errorf("boundary %d references unknown plate", b.ID)
		}
		pa, pb := &out.Plates[ia], &out.Plates[ib]

		switch b.Type {
		case Divergent:
			gainA, gainB := splitSpreading(b.RateKm2PerMy*dtMy, pa.AreaKm2, pb.AreaKm2)
			for _, g := range []struct {
				p    *TectonicPlate
				gain float64
			}{{pa, gainA}, {pb, gainB}} {
				if g.gain <= 0 {
					continue
				}
				g.p.AgeMy = dilutedAge(g.p.AgeMy, g.p.AreaKm2, g.gain)
				g.p.AreaKm2 += g.gain
				emit(Spreading, g.gain, EntityRef{Type: EntityPlate, ID: g.p.ID}, g.p.ID)
			}

		case Convergent:
			down, up := subductingPlate(pa, pb)
			// A slab younger than the onset age is too buoyant to sink.
			consumed := 0.0
			if down.Subducting {
				consumed = down.AreaKm2 * (1 - math.Exp(-e.k.SubductionRatePerMy*dtMy))
			}
			down.AreaKm2 -= consumed
			if consumed > 0 {
				out.SubductionHeat += consumed * e.k.SubductionHeatPerKm2
				out.SlabKm2 += consumed
				emit(Subduction, consumed, EntityRef{Type: EntityPlate, ID: down.ID}, down.ID)
			}
			stress := e.k.ConvergentStressMPaPerMy * dtMy
			down.StressMPa += stress
			up.StressMPa += stress
			if down.CrustKind == ContinentalCrust && up.CrustKind == ContinentalCrust {
				out.CrustGrowthKm[ContinentalCrust] += e.k.CollisionThickeningKmPerMy * dtMy
			}

		case Transform:
			stress := e.k.TransformStressMPaPerMy * dtMy
			pa.StressMPa += stress
			pb.StressMPa += stress

		default:
			return TectonicOutcome{}, fmt.Errorf("boundary %d has unknown type %d", b.ID, int(b.Type))
		}
	}

	// Eruptions first, so accumulated stress feeds volcanism before faults release it.
	totalStress := 0.0
	for i := range out.Plates {
		p := &out.Plates[i]
		p.EruptionPotential += p.VolcanicActivity * e.k.EruptionRatePerMy * dtMy *
			(1 + p.StressMPa/e.k.EarthquakeThresholdMPa)
		if n := math.Floor(p.EruptionPotential / e.k.EruptionThreshold); n >= 1 {
			p.EruptionPotential -= n * e.k.EruptionThreshold
			out.CrustGrowthKm[p.CrustKind] += n * e.k.EruptionCrustKm
			emit(Eruption, n, EntityRef{Type: EntityPlate, ID: p.ID}, p.ID)
		}

		if n := math.Floor(p.StressMPa / e.k.EarthquakeThresholdMPa); n >= 1 {
			released := n * e.k.EarthquakeThresholdMPa
			p.StressMPa -= released
			emit(Earthquake, released, EntityRef{Type: EntityPlate, ID: p.ID}, p.ID)
		}
		totalStress += p.StressMPa
	}
	if len(out.Plates) > 0 {
		out.LithosphereStressMPa = totalStress / float64(len(out.Plates))
	}

	plume := e.plumeForcing(in.Layers)
	for i := range out.Hotspots {
		h := &out.Hotspots[i]
		h.PlumeHeat += e.k.PlumeHeatPerMy * h.Intensity * plume * dtMy
		if n := math.Floor(h.PlumeHeat / e.k.EruptionThreshold); n >= 1 {
			h.PlumeHeat -= n * e.k.EruptionThreshold
			plateID := NoPlate
			if pi, ok := index[h.PlateID]; ok {
				plateID = h.PlateID
				out.CrustGrowthKm[out.Plates[pi].CrustKind] += n * e.k.EruptionCrustKm
			}
			emit(Eruption, n, EntityRef{Type: EntityHotspot, ID: h.ID}, plateID)
		}
		h.migrate(in.Flow.RateCmYr, in.Flow.DirectionDeg, dtMy, e.k.HotspotDriftDegPerCm)
	}

	for _, p := range out.Plates {
		if math.IsNaN(p.AreaKm2) || p.AreaKm2 < 0 {
			return TectonicOutcome{}, fmt.Errorf("plate %d area %v out of bounds", p.ID, p.AreaKm2)
		}
	}

	sortEvents(out.Events)
	return out, nil
}

// plumeForcing is the normalized temperature contrast across the base of the mantle.
func (e *TectonicEngine) plumeForcing(layers []PhysicalLayer) float64 {
	dpp := findLayer(layers, DPrimePrime)
	lower := findLayer(layers, LowerMantle)
	if dpp == nil || lower == nil {
		return 0
	}
	return math.Max(0, (dpp.TemperatureC-lower.TemperatureC)/1000)
}

// splitSpreading partitions new area by pre-event area share. Equal areas, including two
// empty plates, split evenly.
func splitSpreading(total, areaA, areaB float64) (float64, float64) {
	if areaA == areaB {
		return total / 2, total / 2
	}
	gainA := total * areaA / (areaA + areaB)
	return gainA, total - gainA
}

// subductingPlate picks the plate that goes down: oceanic under continental, otherwise the
// older plate, otherwise the higher id.
func subductingPlate(a, b *TectonicPlate) (down, up *TectonicPlate) {
	aOcean, bOcean := a.CrustKind == OceanicCrust, b.CrustKind == OceanicCrust
	switch {
	case aOcean && !bOcean:
		return a, b
	case bOcean && !aOcean:
		return b, a
	case a.AgeMy > b.AgeMy:
		return a, b
	case b.AgeMy > a.AgeMy:
		return b, a
	case a.ID > b.ID:
		return a, b
	default:
		return b, a
	}
}

// boundaryRank orders boundary types by how strongly they shape a plate.
var boundaryRank = [...]int{Transform: 0, Divergent: 1, Convergent: 2}

// dominantBoundary is the strongest type among the boundaries touching p: convergent over
// divergent over transform. A plate without boundaries keeps its type.
func dominantBoundary(p TectonicPlate, boundaries []PlateBoundary) BoundaryType {
	best, found := p.BoundaryType, false
	for _, b := range boundaries {
		if b.PlateA != p.ID && b.PlateB != p.ID {
			continue
		}
		if b.Type < Divergent || b.Type > Transform {
			continue
		}
		if !found || boundaryRank[b.Type] > boundaryRank[best] {
			best, found = b.Type, true
		}
	}
	return best
}

// dilutedAge mixes fresh zero-age crust into a plate's mean age.
func dilutedAge(ageMy, areaKm2, gainKm2 float64) float64 {
	if areaKm2+gainKm2 <= 0 {
		return 0
	}
	return ageMy * areaKm2 / (areaKm2 + gainKm2)
}
