package earth

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid config: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return "invalid config: " + e.Issues[0]
	}
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Is makes every ValidationError match ErrInvalidConfig.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateRunConfig performs validation of a RunConfig document
func ValidateRunConfig(rc RunConfig) error {
	err := &ValidationError{}

	if !(rc.TimeStepMy > 0) || !finite(rc.TimeStepMy) {
		err.Add(fmt.Sprintf("time_step_my must be positive, got %v", rc.TimeStepMy))
	}
	if rc.TotalDurationMy < 0 || !finite(rc.TotalDurationMy) {
		err.Add(fmt.Sprintf("total_duration_my must be non-negative, got %v", rc.TotalDurationMy))
	}
	if rc.CheckpointIntervalTicks < 0 {
		err.Add(fmt.Sprintf("checkpoint_interval_ticks must be at least 1, got %d", rc.CheckpointIntervalTicks))
	}
	if rc.Workers < 0 {
		err.Add(fmt.Sprintf("workers must not be negative, got %d", rc.Workers))
	}
	if rc.MinYearMy != nil && rc.MaxYearMy != nil && *rc.MinYearMy >= *rc.MaxYearMy {
		err.Add("min_year_my must be below max_year_my")
	}

	seenTimes := make(map[float64]bool)
	for i, kf := range rc.Climate {
		prefix := fmt.Sprintf("climate keyframe at index %d", i)
		if !finite(kf.TimeMy) {
			err.Add(prefix + ": time_my must be finite")
		} else if seenTimes[kf.TimeMy] {
			err.Add(prefix + fmt.Sprintf(": duplicate time_my %v", kf.TimeMy))
		}
		seenTimes[kf.TimeMy] = true
		validateClimate(kf.inputs(), prefix, err)
	}

	for i, id := range rc.Notifiers {
		if id == "" {
			err.Add(fmt.Sprintf("notifier at index %d: id is required", i))
		}
	}

	if rc.InitialState != nil {
		if serr := ValidateSnapshot(*rc.InitialState); serr != nil {
			err.Add("initial_state: " + serr.Error())
		}
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

func validateClimate(c ClimateInputs, prefix string, err *ValidationError) {
	if !finite(c.TemperatureC) {
		err.Add(prefix + ": temperature_c must be finite")
	}
	if !(c.PrecipitationProxy >= 0) || !finite(c.PrecipitationProxy) {
		err.Add(prefix + fmt.Sprintf(": precipitation_proxy must be non-negative, got %v", c.PrecipitationProxy))
	}
	if !(c.VegetationCoverage >= 0 && c.VegetationCoverage <= 1) {
		err.Add(prefix + fmt.Sprintf(": vegetation_coverage must be within [0,1], got %v", c.VegetationCoverage))
	}
}

// ValidateSimulationConfig checks a configuration before a clock is started. The climate
// function is sampled at the start, middle and end of the run.
func ValidateSimulationConfig(cfg SimulationConfig) error {
	err := &ValidationError{}

	if !(cfg.TimeStepMy > 0) || !finite(cfg.TimeStepMy) {
		err.Add(fmt.Sprintf("time step must be positive, got %v", cfg.TimeStepMy))
	}
	if cfg.TotalDurationMy < 0 || !finite(cfg.TotalDurationMy) {
		err.Add(fmt.Sprintf("total duration must be non-negative, got %v", cfg.TotalDurationMy))
	}
	if cfg.CheckpointIntervalTicks < 1 {
		err.Add(fmt.Sprintf("checkpoint interval must be at least 1 tick, got %d", cfg.CheckpointIntervalTicks))
	}
	if cfg.Workers < 0 {
		err.Add(fmt.Sprintf("workers must not be negative, got %d", cfg.Workers))
	}
	if !(cfg.MinYearMy < cfg.MaxYearMy) {
		err.Add(fmt.Sprintf("min year %v must be below max year %v", cfg.MinYearMy, cfg.MaxYearMy))
	}

	start := 0.0
	if cfg.InitialState != nil {
		start = cfg.InitialState.TimeMy
		if serr := ValidateSnapshot(cfg.InitialState.Snapshot()); serr != nil {
			err.Add("initial state: " + serr.Error())
		}
	}
	if start < cfg.MinYearMy || start > cfg.MaxYearMy {
		err.Add(fmt.Sprintf("initial time %v outside [%v, %v]", start, cfg.MinYearMy, cfg.MaxYearMy))
	}

	if cfg.Climate == nil {
		err.Add("climate function is required")
	} else {
		for _, t := range []float64{start, start + cfg.TotalDurationMy/2, start + cfg.TotalDurationMy} {
			validateClimate(cfg.Climate(t), fmt.Sprintf("climate at %v My", t), err)
		}
	}

	validateConstants(cfg.Constants, err)

	if err.HasIssues() {
		return err
	}
	return nil
}

func validateConstants(k Constants, err *ValidationError) {
	positive := map[string]float64{
		"earthquake_threshold_mpa": k.EarthquakeThresholdMPa,
		"eruption_threshold":       k.EruptionThreshold,
		"max_plate_velocity_cm_yr": k.MaxPlateVelocityCmYr,
		"convection_gradient_c":    k.ConvectionGradientC,
		"deep_convection_relax_my": k.DeepConvectionRelaxMy,
		"reference_precipitation":  k.ReferencePrecipitation,
	}
	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if v := positive[name]; !(v > 0) || !finite(v) {
			err.Add(fmt.Sprintf("constant %s must be positive, got %v", name, v))
		}
	}
	if k.ConductivityPerMy < 0 {
		err.Add("constant conductivity_per_my must not be negative")
	}
	if k.MinCrustKm < 0 || k.MinCrustKm >= k.MaxCrustKm {
		err.Add(fmt.Sprintf("crust bounds [%v, %v] are invalid", k.MinCrustKm, k.MaxCrustKm))
	}
	if k.OrganicMaxFraction < 0 || k.OrganicMaxFraction >= 1 {
		err.Add("constant organic_max_fraction must be within [0,1)")
	}
	if k.OceanicDepositionShare < 0 || k.OceanicDepositionShare > 1 {
		err.Add("constant oceanic_deposition_share must be within [0,1]")
	}
}
