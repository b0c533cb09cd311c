package earth

// Constants holds the calibration points of the model. None of the values are scientific
// commitments; they are chosen so the standard preset evolves smoothly across steps from
// a thousand years up to tens of millions of years.
type Constants struct {
	// Heat transfer
	ConductivityPerMy        float64 `json:"conductivity_per_my"`
	CoreAdiabatC             float64 `json:"core_adiabat_c"`
	ConvectionGradientC      float64 `json:"convection_gradient_c"`
	CrystallizationKmPerC    float64 `json:"crystallization_km_per_c"`
	LightElementsPerKm       float64 `json:"light_elements_per_km"`
	EnrichmentSlowdownAbove  float64 `json:"enrichment_slowdown_above"`
	EnrichmentSlowdownFactor float64 `json:"enrichment_slowdown_factor"`
	DeepConvectionBaseline   float64 `json:"deep_convection_baseline"`
	DeepConvectionRelaxMy    float64 `json:"deep_convection_relax_my"`
	SlabConvectionPerKm2     float64 `json:"slab_convection_per_km2"`
	SubductionHeatPerKm2     float64 `json:"subduction_heat_per_km2"`

	// Plates
	FlowVelocityPerConvection  float64 `json:"flow_velocity_per_convection"`
	FlowTurnDegPerMy           float64 `json:"flow_turn_deg_per_my"`
	MaxPlateVelocityCmYr       float64 `json:"max_plate_velocity_cm_yr"`
	VelocityMemory             float64 `json:"velocity_memory"`
	SubductionRatePerMy        float64 `json:"subduction_rate_per_my"`
	SubductionOnsetAgeMy       float64 `json:"subduction_onset_age_my"`
	TransformStressMPaPerMy    float64 `json:"transform_stress_mpa_per_my"`
	ConvergentStressMPaPerMy   float64 `json:"convergent_stress_mpa_per_my"`
	EarthquakeThresholdMPa     float64 `json:"earthquake_threshold_mpa"`
	EruptionRatePerMy          float64 `json:"eruption_rate_per_my"`
	EruptionThreshold          float64 `json:"eruption_threshold"`
	EruptionCrustKm            float64 `json:"eruption_crust_km"`
	CollisionThickeningKmPerMy float64 `json:"collision_thickening_km_per_my"`
	HotspotDriftDegPerCm       float64 `json:"hotspot_drift_deg_per_cm"`
	PlumeHeatPerMy             float64 `json:"plume_heat_per_my"`

	// Crust and surface
	MinCrustKm                   float64 `json:"min_crust_km"`
	MaxCrustKm                   float64 `json:"max_crust_km"`
	ContinentalWeatheringKmPerMy float64 `json:"continental_weathering_km_per_my"`
	OceanicWeatheringKmPerMy     float64 `json:"oceanic_weathering_km_per_my"`
	ClimateTempSensitivity       float64 `json:"climate_temp_sensitivity"`
	ReferenceTemperatureC        float64 `json:"reference_temperature_c"`
	ReferencePrecipitation       float64 `json:"reference_precipitation"`
	ErosionRatePerMy             float64 `json:"erosion_rate_per_my"`
	DepositionRatePerMy          float64 `json:"deposition_rate_per_my"`
	OceanicDepositionShare       float64 `json:"oceanic_deposition_share"`
	SedimentFeedbackKm           float64 `json:"sediment_feedback_km"`
	SedimentFeedbackFactor       float64 `json:"sediment_feedback_factor"`
	IsostasyFactor               float64 `json:"isostasy_factor"`
	ClayConversion               float64 `json:"clay_conversion"`
	OrganicMaxFraction           float64 `json:"organic_max_fraction"`
	ErosionPulseKm               float64 `json:"erosion_pulse_km"`
}

// DefaultConstants returns the calibration used by the standard Earth preset.
func DefaultConstants() Constants {
	return Constants{
		ConductivityPerMy:        0.002,
		CoreAdiabatC:             4300,
		ConvectionGradientC:      2000,
		CrystallizationKmPerC:    5.0,
		LightElementsPerKm:       0.0005,
		EnrichmentSlowdownAbove:  0.30,
		EnrichmentSlowdownFactor: 0.95,
		DeepConvectionBaseline:   0.6,
		DeepConvectionRelaxMy:    200,
		SlabConvectionPerKm2:     1e-8,
		SubductionHeatPerKm2:     1e-6,

		FlowVelocityPerConvection:  10,
		FlowTurnDegPerMy:           5,
		MaxPlateVelocityCmYr:       20,
		VelocityMemory:             0.1,
		SubductionRatePerMy:        0.01,
		SubductionOnsetAgeMy:       100,
		TransformStressMPaPerMy:    50,
		ConvergentStressMPaPerMy:   2,
		EarthquakeThresholdMPa:     300,
		EruptionRatePerMy:          10,
		EruptionThreshold:          100,
		EruptionCrustKm:            0.0005,
		CollisionThickeningKmPerMy: 0.05,
		HotspotDriftDegPerCm:       0.1,
		PlumeHeatPerMy:             20,

		MinCrustKm:                   5,
		MaxCrustKm:                   70,
		ContinentalWeatheringKmPerMy: 0.1,
		OceanicWeatheringKmPerMy:     0.05,
		ClimateTempSensitivity:       0.02,
		ReferenceTemperatureC:        15,
		ReferencePrecipitation:       1.0,
		ErosionRatePerMy:             0.5,
		DepositionRatePerMy:          0.5,
		OceanicDepositionShare:       0.7,
		SedimentFeedbackKm:           5,
		SedimentFeedbackFactor:       1.2,
		IsostasyFactor:               0.1,
		ClayConversion:               0.3,
		OrganicMaxFraction:           0.1,
		ErosionPulseKm:               0.5,
	}
}

// layerParams are the per-kind constants of the tagged layer variant.
type layerParams struct {
	name          string
	shell         int // depth rank, 0 = deepest; crust kinds share the outermost shell
	equilibriumC  float64
	relaxationMy  float64
	heatCapacity  float64 // heat units per degree C
	growthKmPerMy float64
}

var layerTable = [...]layerParams{
	InnerCore:        {name: "inner_core", shell: 0, equilibriumC: 5300, relaxationMy: 500, heatCapacity: 100},
	OuterCore:        {name: "outer_core", shell: 1, equilibriumC: 4400, relaxationMy: 500, heatCapacity: 300},
	DPrimePrime:      {name: "d_prime_prime", shell: 2, equilibriumC: 3000, relaxationMy: 300, heatCapacity: 30},
	LowerMantle:      {name: "lower_mantle", shell: 3, equilibriumC: 2500, relaxationMy: 800, heatCapacity: 400},
	TransitionZone:   {name: "transition_zone", shell: 4, equilibriumC: 1600, relaxationMy: 400, heatCapacity: 60},
	Asthenosphere:    {name: "asthenosphere", shell: 5, equilibriumC: 1300, relaxationMy: 200, heatCapacity: 120, growthKmPerMy: -0.01},
	Lithosphere:      {name: "lithosphere", shell: 6, equilibriumC: 500, relaxationMy: 100, heatCapacity: 30, growthKmPerMy: 0.01},
	ContinentalCrust: {name: "continental_crust", shell: 7, equilibriumC: 200, relaxationMy: 50, heatCapacity: 5},
	OceanicCrust:     {name: "oceanic_crust", shell: 7, equilibriumC: 150, relaxationMy: 50, heatCapacity: 5},
}
