package earth

import (
	"fmt"
	"math"
	"slices"
)

// LayerKind identifies one structural shell of the Earth model.
type LayerKind int

const (
	InnerCore LayerKind = iota
	OuterCore
	Lithosphere
	Asthenosphere
	TransitionZone
	LowerMantle
	DPrimePrime
	ContinentalCrust
	OceanicCrust
)

// depthOrder lists every kind from the deepest shell outward.
var depthOrder = []LayerKind{
	InnerCore, OuterCore, DPrimePrime, LowerMantle, TransitionZone,
	Asthenosphere, Lithosphere, ContinentalCrust, OceanicCrust,
}

// LayerKindsByDepth returns all layer kinds ordered deepest first.
func LayerKindsByDepth() []LayerKind {
	return slices.Clone(depthOrder)
}

func (k LayerKind) Valid() bool {
	return k >= InnerCore && k <= OceanicCrust
}

func (k LayerKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("layer(%d)", int(k))
	}
	return layerTable[k].name
}

// Shell returns the depth rank of the kind, 0 being the innermost shell.
func (k LayerKind) Shell() int {
	return layerTable[k].shell
}

func (k LayerKind) IsCrust() bool {
	return k == ContinentalCrust || k == OceanicCrust
}

func (k LayerKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown layer kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *LayerKind) UnmarshalText(b []byte) error {
	parsed, err := ParseLayerKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLayerKind resolves a layer kind from its snake_case name.
func ParseLayerKind(name string) (LayerKind, error) {
	for k := range layerTable {
		if layerTable[k].name == name {
			return LayerKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown layer kind %q", name)
}

// Mineral names a constituent of a layer or soil composition.
type Mineral string

const (
	Iron           Mineral = "iron"
	Nickel         Mineral = "nickel"
	LightElements  Mineral = "light_elements"
	Bridgmanite    Mineral = "bridgmanite"
	Ferropericlase Mineral = "ferropericlase"
	Wadsleyite     Mineral = "wadsleyite"
	Ringwoodite    Mineral = "ringwoodite"
	Garnet         Mineral = "garnet"
	Olivine        Mineral = "olivine"
	Pyroxene       Mineral = "pyroxene"
	Quartz         Mineral = "quartz"
	Feldspar       Mineral = "feldspar"
	Plagioclase    Mineral = "plagioclase"
	Mica           Mineral = "mica"
	Clay           Mineral = "clay"
	OrganicMatter  Mineral = "organic_matter"
)

// compositionEpsilon is the tolerance on the fraction sum of a normalized composition.
const compositionEpsilon = 1e-9

// Composition maps minerals to mass fractions. Every arithmetic pass walks the minerals in
// sorted order so results do not depend on map iteration order.
type Composition map[Mineral]float64

// Minerals returns the minerals of the composition in sorted order.
func (c Composition) Minerals() []Mineral {
	out := make([]Mineral, 0, len(c))
	for m := range c {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Sum returns the total of all fractions.
func (c Composition) Sum() float64 {
	total := 0.0
	for _, m := range c.Minerals() {
		total += c[m]
	}
	return total
}

// Clone returns a deep copy of the composition.
func (c Composition) Clone() Composition {
	if c == nil {
		return nil
	}
	out := make(Composition, len(c))
	for m, f := range c {
		out[m] = f
	}
	return out
}

// Validate reports the first fraction outside [0,1].
func (c Composition) Validate(kind LayerKind) error {
	for _, m := range c.Minerals() {
		f := c[m]
		if math.IsNaN(f) || f < 0 || f > 1 {
			return &LayerStateError{Kind: kind, Issue: fmt.Sprintf("fraction of %s is %v", m, f)}
		}
	}
	return nil
}

// Clamp forces every fraction into [0,1]; NaN becomes 0.
func (c Composition) Clamp() {
	for m, f := range c {
		switch {
		case math.IsNaN(f), f < 0:
			c[m] = 0
		case f > 1:
			c[m] = 1
		}
	}
}

// Normalize rescales the fractions so they sum to 1.
func (c Composition) Normalize() error {
	total := c.Sum()
	if !(total > 0) || math.IsInf(total, 0) {
		return fmt.Errorf("cannot normalize composition with total %v", total)
	}
	for _, m := range c.Minerals() {
		c[m] /= total
	}
	return nil
}

// IsNormalized reports whether the fractions sum to 1 within tolerance.
func (c Composition) IsNormalized() bool {
	return math.Abs(c.Sum()-1) <= compositionEpsilon
}

// PhysicalLayer is a single Earth layer. For the inner core ThicknessKm is the radius.
type PhysicalLayer struct {
	Kind         LayerKind   `json:"kind"`
	TemperatureC float64     `json:"temperature_c"`
	ThicknessKm  float64     `json:"thickness_km"`
	Composition  Composition `json:"composition"`
	StressMPa    float64     `json:"stress_mpa"`
	// Convection is the normalized convective vigour (0..1) of fluid or ductile layers.
	Convection float64 `json:"convection"`
	// PendingHeat is the net heat delta computed by the last exchange, applied on the next step.
	PendingHeat float64 `json:"pending_heat"`
}

// OutboundEffects is what a layer step hands back to its neighbours and to the state.
type OutboundEffects struct {
	// RadiatedHeat is the heat released by thermal relaxation, positive when cooling.
	RadiatedHeat float64
	// CoolingC is the net temperature drop over the step, inbound heat included.
	CoolingC float64
	// GrowthKm is the change of thickness (radius for the inner core).
	GrowthKm float64
}

// Clone returns a deep copy of the layer.
func (l PhysicalLayer) Clone() PhysicalLayer {
	l.Composition = l.Composition.Clone()
	return l
}

// Step advances the layer by dtMy million years after absorbing inboundHeat.
//
// The temperature relaxes exponentially toward the equilibrium of the layer kind, which is
// stable for any step length. The inner core crystallizes in proportion to its heat loss.
// Negative steps are rejected: going back in time is only possible by restoring a snapshot.
//
// A *LayerStateError is returned alongside valid effects when the composition or thickness
// left physical bounds; the caller is expected to clamp and report it.
func (l *PhysicalLayer) Step(dtMy, inboundHeat float64, k Constants) (OutboundEffects, error) {
	if !(dtMy > 0) || math.IsInf(dtMy, 0) {
		return OutboundEffects{}, fmt.Errorf("%s step %v: %w", l.Kind, dtMy, ErrNonPositiveStep)
	}
	if !l.Kind.Valid() {
		return OutboundEffects{}, &LayerStateError{Kind: l.Kind, Issue: "unknown layer kind"}
	}
	p := layerTable[l.Kind]

	before := l.TemperatureC
	heated := before + inboundHeat/p.heatCapacity
	relaxed := p.equilibriumC + (heated-p.equilibriumC)*math.Exp(-dtMy/p.relaxationMy)
	l.TemperatureC = relaxed

	growth := p.growthKmPerMy * dtMy
	if l.Kind == InnerCore {
		growth += k.CrystallizationKmPerC * math.Max(0, before-relaxed)
	}
	l.ThicknessKm += growth

	out := OutboundEffects{
		RadiatedHeat: p.heatCapacity * (heated - relaxed),
		CoolingC:     before - relaxed,
		GrowthKm:     growth,
	}

	if l.ThicknessKm < 0 {
		l.ThicknessKm = 0
		return out, &LayerStateError{Kind: l.Kind, Issue: "thickness below zero"}
	}
	return out, l.Composition.Validate(l.Kind)
}

// repair clamps and renormalizes the composition after a reported LayerStateError.
func (l *PhysicalLayer) repair() error {
	if l.ThicknessKm < 0 {
		l.ThicknessKm = 0
	}
	l.Composition.Clamp()
	return l.Composition.Normalize()
}
