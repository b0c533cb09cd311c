package earth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLayerState indicates composition or thickness outside physical bounds.
	// Non-fatal: the layer is clamped and a warning is reported.
	ErrInvalidLayerState = errors.New("invalid layer state")
	// ErrThermalInversion indicates a deeper layer colder than its shallower neighbour.
	// Non-fatal: the transfer for that pair is clamped to zero.
	ErrThermalInversion = errors.New("thermal inversion detected")
	// ErrInvalidConfig indicates a configuration the simulation refuses to start with.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrTickFailure indicates a tick that did not commit.
	ErrTickFailure = errors.New("tick failure")
	// ErrNonPositiveStep is returned when a layer is stepped with dt <= 0.
	ErrNonPositiveStep = errors.New("time step must be positive")
	// ErrOutOfTimeBounds indicates a tick or rewind outside the configured year range.
	ErrOutOfTimeBounds = errors.New("simulated time out of bounds")
	// ErrNoCheckpoint indicates no checkpoint exists at or before the requested time.
	ErrNoCheckpoint = errors.New("no checkpoint at or before target")
	// ErrInvalidRange indicates a malformed time range query.
	ErrInvalidRange = errors.New("invalid time range")
)

// LayerStateError describes a layer whose state drifted outside physical bounds.
type LayerStateError struct {
	Kind  LayerKind
	Issue string
}

func (e *LayerStateError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidLayerState, e.Kind, e.Issue)
}

func (e *LayerStateError) Unwrap() error {
	return ErrInvalidLayerState
}

// ThermalInversionError reports a deeper layer absorbing net heat from a shallower one.
type ThermalInversionError struct {
	Deep     LayerKind
	Shallow  LayerKind
	DeepC    float64
	ShallowC float64
}

func (e *ThermalInversionError) Error() string {
	return fmt.Sprintf("%s: %s (%.2f C) colder than %s (%.2f C)",
		ErrThermalInversion, e.Deep, e.DeepC, e.Shallow, e.ShallowC)
}

func (e *ThermalInversionError) Unwrap() error {
	return ErrThermalInversion
}

// TickError reports a tick that was rolled back. The state stays at its pre-tick snapshot.
type TickError struct {
	Tick  uint64
	Phase string
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("%s: tick %d phase %s: %v", ErrTickFailure, e.Tick, e.Phase, e.Err)
}

func (e *TickError) Unwrap() []error {
	return []error{ErrTickFailure, e.Err}
}

// Warning is a non-fatal condition raised during a tick. Warnings are always logged and
// returned with the tick result, even when the offending value was clamped.
type Warning struct {
	Code    string    `json:"code"`
	Layer   LayerKind `json:"layer"`
	Message string    `json:"message"`
}

const (
	WarningInvalidLayerState = "invalid_layer_state"
	WarningThermalInversion  = "thermal_inversion"
	WarningVelocityClamped   = "velocity_clamped"
)

func warningFromError(err error) Warning {
	var lse *LayerStateError
	if errors.As(err, &lse) {
		return Warning{Code: WarningInvalidLayerState, Layer: lse.Kind, Message: err.Error()}
	}
	var tie *ThermalInversionError
	if errors.As(err, &tie) {
		return Warning{Code: WarningThermalInversion, Layer: tie.Deep, Message: err.Error()}
	}
	return Warning{Code: "unknown", Message: err.Error()}
}
