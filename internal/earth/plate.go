package earth

import (
	"fmt"
	"math"
)

// Vector is a surface velocity in cm/yr, East and North components.
type Vector struct {
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (v Vector) Add(o Vector) Vector {
	return Vector{East: v.East + o.East, North: v.North + o.North}
}

func (v Vector) Scale(f float64) Vector {
	return Vector{East: v.East * f, North: v.North * f}
}

func (v Vector) Length() float64 {
	return math.Hypot(v.East, v.North)
}

// VectorFromHeading builds a velocity from a speed and a compass-free heading in degrees
// (0 = east, 90 = north).
func VectorFromHeading(speed, headingDeg float64) Vector {
	rad := headingDeg * math.Pi / 180
	return Vector{East: speed * math.Cos(rad), North: speed * math.Sin(rad)}
}

// BoundaryType classifies the relative motion at a plate boundary.
type BoundaryType int

const (
	Divergent BoundaryType = iota
	Convergent
	Transform
)

var boundaryNames = [...]string{Divergent: "divergent", Convergent: "convergent", Transform: "transform"}

func (b BoundaryType) String() string {
	if b < Divergent || b > Transform {
		return fmt.Sprintf("boundary(%d)", int(b))
	}
	return boundaryNames[b]
}

func (b BoundaryType) MarshalText() ([]byte, error) {
	if b < Divergent || b > Transform {
		return nil, fmt.Errorf("unknown boundary type %d", int(b))
	}
	return []byte(b.String()), nil
}

func (b *BoundaryType) UnmarshalText(text []byte) error {
	for i, name := range boundaryNames {
		if name == string(text) {
			*b = BoundaryType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown boundary type %q", string(text))
}

// TectonicPlate is a lithospheric plate.
type TectonicPlate struct {
	ID           int          `json:"id"`
	AreaKm2      float64      `json:"area_km2"`
	Velocity     Vector       `json:"velocity"`
	// BoundaryType is the dominant type among the plate's boundaries, refreshed every tick.
	BoundaryType BoundaryType `json:"boundary_type"`
	AgeMy        float64      `json:"age_my"`
	// CrustKind is the crust layer that volcanism on this plate builds up.
	CrustKind           LayerKind `json:"crust_kind"`
	StressMPa           float64   `json:"stress_mpa"`
	VolcanicActivity    float64   `json:"volcanic_activity"`
	EruptionPotential   float64   `json:"eruption_potential"`
	// Subducting is set once the plate is older than the onset age; only then can it sink
	// at a convergent boundary.
	Subducting          bool      `json:"subducting"`
	BackArcRateKm2PerMy float64   `json:"back_arc_rate_km2_per_my"`
}

// PlateBoundary links two plates.
type PlateBoundary struct {
	ID     int          `json:"id"`
	PlateA int          `json:"plate_a"`
	PlateB int          `json:"plate_b"`
	Type   BoundaryType `json:"type"`
	// RateKm2PerMy is the spreading rate for divergent boundaries.
	RateKm2PerMy float64 `json:"rate_km2_per_my"`
}

// Hotspot is a mantle plume anchored below the plates.
type Hotspot struct {
	ID           int     `json:"id"`
	LatDeg       float64 `json:"lat_deg"`
	LonDeg       float64 `json:"lon_deg"`
	SurfaceAgeMy float64 `json:"surface_age_my"`
	PlateID      int     `json:"plate_id"`
	Intensity    float64 `json:"intensity"`
	PlumeHeat    float64 `json:"plume_heat"`
}

// migrate moves the hotspot with the asthenosphere flow and wraps longitude.
func (h *Hotspot) migrate(rateCmYr, directionDeg, dtMy, degPerCm float64) {
	rad := directionDeg * math.Pi / 180
	h.LatDeg += rateCmYr * degPerCm * math.Sin(rad) * dtMy
	h.LonDeg += rateCmYr * degPerCm * math.Cos(rad) * dtMy

	h.LatDeg = math.Max(-90, math.Min(90, h.LatDeg))
	h.LonDeg = math.Mod(h.LonDeg+180, 360)
	if h.LonDeg < 0 {
		h.LonDeg += 360
	}
	h.LonDeg -= 180
	h.SurfaceAgeMy += dtMy
}
