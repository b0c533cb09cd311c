package earth

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ClimateFunc returns the climate at a simulated time in My.
type ClimateFunc func(timeMy float64) ClimateInputs

// ConstantClimate returns a climate function that never changes.
func ConstantClimate(c ClimateInputs) ClimateFunc {
	return func(float64) ClimateInputs { return c }
}

// SimulationConfig configures a SimulationClock.
type SimulationConfig struct {
	// InitialState defaults to NewStandardEarth when nil. The clock takes a deep copy.
	InitialState            *EarthState
	TimeStepMy              float64
	TotalDurationMy         float64
	CheckpointIntervalTicks int
	Climate                 ClimateFunc
	// MinYearMy and MaxYearMy bound simulated time in both directions.
	MinYearMy float64
	MaxYearMy float64
	// ExactRewind replays the tick journal from the checkpoint to the exact rewind target.
	// When false a rewind returns the checkpoint itself.
	ExactRewind bool
	Workers     int
	Constants   Constants
	Logger      Logger
}

// DefaultSimulationConfig returns the configuration of a standard run: 1 My steps over
// 100 My, a checkpoint every 10 ticks and a constant present-day climate.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		TimeStepMy:              1,
		TotalDurationMy:         100,
		CheckpointIntervalTicks: 10,
		Climate:                 ConstantClimate(DefaultClimate()),
		MinYearMy:               -4600,
		MaxYearMy:               10000,
		ExactRewind:             true,
		Workers:                 1,
		Constants:               DefaultConstants(),
	}
}

// ClimateKeyframe pins the climate at a simulated time.
type ClimateKeyframe struct {
	TimeMy             float64 `json:"time_my"`
	TemperatureC       float64 `json:"temperature_c"`
	PrecipitationProxy float64 `json:"precipitation_proxy"`
	VegetationCoverage float64 `json:"vegetation_coverage"`
}

func (k ClimateKeyframe) inputs() ClimateInputs {
	return ClimateInputs{
		TemperatureC:       k.TemperatureC,
		PrecipitationProxy: k.PrecipitationProxy,
		VegetationCoverage: k.VegetationCoverage,
	}
}

// KeyframeClimate interpolates linearly between keyframes sorted by time and holds the first
// and last values outside their range.
func KeyframeClimate(frames []ClimateKeyframe) ClimateFunc {
	frames = slices.Clone(frames)
	slices.SortStableFunc(frames, func(a, b ClimateKeyframe) int {
		switch {
		case a.TimeMy < b.TimeMy:
			return -1
		case a.TimeMy > b.TimeMy:
			return 1
		}
		return 0
	})
	return func(t float64) ClimateInputs {
		if len(frames) == 0 {
			return DefaultClimate()
		}
		if t <= frames[0].TimeMy {
			return frames[0].inputs()
		}
		for i := 1; i < len(frames); i++ {
			a, b := frames[i-1], frames[i]
			if t > b.TimeMy {
				continue
			}
			f := (t - a.TimeMy) / (b.TimeMy - a.TimeMy)
			return ClimateInputs{
				TemperatureC:       a.TemperatureC + f*(b.TemperatureC-a.TemperatureC),
				PrecipitationProxy: a.PrecipitationProxy + f*(b.PrecipitationProxy-a.PrecipitationProxy),
				VegetationCoverage: a.VegetationCoverage + f*(b.VegetationCoverage-a.VegetationCoverage),
			}
		}
		return frames[len(frames)-1].inputs()
	}
}

// RunConfig is the JSON document describing a run. Zero values fall back to the defaults.
type RunConfig struct {
	TimeStepMy              float64            `json:"time_step_my"`
	TotalDurationMy         float64            `json:"total_duration_my"`
	CheckpointIntervalTicks int                `json:"checkpoint_interval_ticks,omitempty"`
	MinYearMy               *float64           `json:"min_year_my,omitempty"`
	MaxYearMy               *float64           `json:"max_year_my,omitempty"`
	ExactRewind             *bool              `json:"exact_rewind,omitempty"`
	Workers                 int                `json:"workers,omitempty"`
	Climate                 []ClimateKeyframe  `json:"climate,omitempty"`
	Constants               map[string]float64 `json:"constants,omitempty"`
	Notifiers               []string           `json:"notifiers,omitempty"`
	// InitialState seeds the run instead of the standard preset.
	InitialState *EarthStateSnapshot `json:"initial_state,omitempty"`
}

// applyConstantOverrides overlays overrides, keyed by their JSON name, on base.
func applyConstantOverrides(base Constants, overrides map[string]float64) (Constants, error) {
	if len(overrides) == 0 {
		return base, nil
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return Constants{}, err
	}
	fields := make(map[string]float64)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Constants{}, err
	}
	for name, v := range overrides {
		if _, ok := fields[name]; !ok {
			return Constants{}, fmt.Errorf("unknown constant %q", name)
		}
		fields[name] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return Constants{}, err
	}
	var out Constants
	if err := json.Unmarshal(raw, &out); err != nil {
		return Constants{}, err
	}
	return out, nil
}

// BuildSimulationConfig validates a RunConfig and turns it into a SimulationConfig.
func BuildSimulationConfig(rc RunConfig, logger Logger) (SimulationConfig, error) {
	if err := ValidateRunConfig(rc); err != nil {
		return SimulationConfig{}, err
	}

	cfg := DefaultSimulationConfig()
	cfg.Logger = logger
	cfg.TimeStepMy = rc.TimeStepMy
	cfg.TotalDurationMy = rc.TotalDurationMy
	if rc.CheckpointIntervalTicks > 0 {
		cfg.CheckpointIntervalTicks = rc.CheckpointIntervalTicks
	}
	if rc.MinYearMy != nil {
		cfg.MinYearMy = *rc.MinYearMy
	}
	if rc.MaxYearMy != nil {
		cfg.MaxYearMy = *rc.MaxYearMy
	}
	if rc.ExactRewind != nil {
		cfg.ExactRewind = *rc.ExactRewind
	}
	if rc.Workers > 0 {
		cfg.Workers = rc.Workers
	}
	if len(rc.Climate) > 0 {
		cfg.Climate = KeyframeClimate(rc.Climate)
	}
	if rc.InitialState != nil {
		cfg.InitialState = rc.InitialState.State()
	}

	k, err := applyConstantOverrides(cfg.Constants, rc.Constants)
	if err != nil {
		return SimulationConfig{}, &ValidationError{Issues: []string{err.Error()}}
	}
	cfg.Constants = k

	if err := ValidateSimulationConfig(cfg); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}
