package earth

import (
	"math"
)

// MantleFlow is the lateral asthenosphere flow that drags plates and hotspots.
type MantleFlow struct {
	RateCmYr     float64 `json:"rate_cm_yr"`
	DirectionDeg float64 `json:"direction_deg"`
}

// HeatTransferCoupler computes the heat exchanged between adjacent depth shells.
type HeatTransferCoupler struct {
	k      Constants
	logger Logger
}

// NewHeatTransferCoupler creates a coupler with the given calibration.
func NewHeatTransferCoupler(k Constants, logger Logger) *HeatTransferCoupler {
	return &HeatTransferCoupler{k: k, logger: loggerOrNoOp(logger)}
}

// ExchangeResult holds the net heat delta per layer kind. Deltas are applied to the layers
// on the following step, never within the tick that computed them.
type ExchangeResult struct {
	Deltas   map[LayerKind]float64
	Warnings []Warning
}

// Exchange computes the net heat delta of every layer. layers must be ordered deepest first.
//
// Every member of a shell is paired with every member of the next shell outward. For a pair the
// transfer approaches the amount that would equalize both temperatures, so no step length can
// overshoot. A deeper layer colder than its shallow partner is reported as a thermal
// inversion and the pair exchanges nothing. subductionHeat is queued into the asthenosphere.
func (c *HeatTransferCoupler) Exchange(dtMy float64, layers []PhysicalLayer, subductionHeat float64) ExchangeResult {
	res := ExchangeResult{Deltas: make(map[LayerKind]float64, len(layers))}
	for _, l := range layers {
		res.Deltas[l.Kind] = 0
	}

	shells := groupShells(layers)
	for i := 0; i+1 < len(shells); i++ {
		deep, shallow := shells[i], shells[i+1]
		// A deep layer with several shallow partners splits its exchange between them.
		share := 1 / float64(len(shallow))
		for _, di := range deep {
			for _, si := range shallow {
				d, s := layers[di], layers[si]
				gradient := d.TemperatureC - s.TemperatureC
				if gradient < 0 {
					inv := &ThermalInversionError{Deep: d.Kind, Shallow: s.Kind, DeepC: d.TemperatureC, ShallowC: s.TemperatureC}
					c.logger.Warnf("%v", inv)
					res.Warnings = append(res.Warnings, warningFromError(inv))
					continue
				}
				cd, cs := layerTable[d.Kind].heatCapacity, layerTable[s.Kind].heatCapacity
				equalizing := gradient * cd * cs / (cd + cs)
				rate := c.k.ConductivityPerMy * (1 + d.Convection)
				q := share * equalizing * (1 - math.Exp(-rate*dtMy))
				res.Deltas[d.Kind] -= q
				res.Deltas[s.Kind] += q
			}
		}
	}

	if subductionHeat != 0 {
		if _, ok := res.Deltas[Asthenosphere]; ok {
			res.Deltas[Asthenosphere] += subductionHeat
		}
	}
	return res
}

// groupShells returns the layer indices grouped by shell, deepest shell first.
func groupShells(layers []PhysicalLayer) [][]int {
	var shells [][]int
	last := -1
	for i, l := range layers {
		if shell := l.Kind.Shell(); shell != last {
			shells = append(shells, []int{i})
			last = shell
			continue
		}
		shells[len(shells)-1] = append(shells[len(shells)-1], i)
	}
	return shells
}

// RefreshConvection updates the convective vigour of the core and mantle after a step and
// returns the new asthenosphere flow. slabKm2 is the area subducted during the previous tick.
func (c *HeatTransferCoupler) RefreshConvection(dtMy float64, layers []PhysicalLayer, slabKm2 float64, flow MantleFlow) MantleFlow {
	inner := findLayer(layers, InnerCore)
	outer := findLayer(layers, OuterCore)
	if inner != nil && outer != nil {
		conv := clamp01((inner.TemperatureC - c.k.CoreAdiabatC) / c.k.ConvectionGradientC)
		if outer.Composition[LightElements] > c.k.EnrichmentSlowdownAbove {
			conv *= c.k.EnrichmentSlowdownFactor
		}
		outer.Convection = conv
	}

	lower := findLayer(layers, LowerMantle)
	if lower == nil {
		return flow
	}
	target := clamp01(c.k.DeepConvectionBaseline + c.k.SlabConvectionPerKm2*slabKm2)
	lower.Convection = target + (lower.Convection-target)*math.Exp(-dtMy/c.k.DeepConvectionRelaxMy)

	if asth := findLayer(layers, Asthenosphere); asth != nil {
		asth.Convection = lower.Convection
	}

	flow.RateCmYr = math.Min(lower.Convection*c.k.FlowVelocityPerConvection, c.k.MaxPlateVelocityCmYr)
	flow.DirectionDeg = math.Mod(flow.DirectionDeg+c.k.FlowTurnDegPerMy*lower.Convection*dtMy, 360)
	return flow
}

func findLayer(layers []PhysicalLayer, kind LayerKind) *PhysicalLayer {
	for i := range layers {
		if layers[i].Kind == kind {
			return &layers[i]
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
