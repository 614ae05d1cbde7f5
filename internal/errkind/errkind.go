// Package errkind defines the failure classes of trip processing and maps
// arbitrary errors onto them.
package errkind

import "errors"

// Kind names a class of trip-processing failure.
type Kind string

const (
	NoGPSData       Kind = "no_gps_data"
	NoSpeedData     Kind = "no_speed_data"
	MalformedInput  Kind = "malformed_input"
	PlottingFailure Kind = "plotting_failure"
	DecodeFailure   Kind = "decode_failure"
	Unclassified    Kind = "unclassified"
)

var (
	// ErrNoGPSData is returned for trips recorded without a GPS sensor file.
	ErrNoGPSData = errors.New("no GPS data")
	// ErrNoSpeedData is returned when the GPS speed column is empty or only
	// holds sentinel/negative values.
	ErrNoSpeedData = errors.New("no speed data")
	// ErrMalformedInput is returned when a mask or table cannot be reconciled
	// with the table being segmented.
	ErrMalformedInput = errors.New("malformed input")
	// ErrPlotting wraps every failure of the diagnostic renderer.
	ErrPlotting = errors.New("plotting failed")
	// ErrDecode is returned when a raw sensor file holds malformed bytes.
	ErrDecode = errors.New("decode failed")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNoGPSData, NoGPSData},
	{ErrNoSpeedData, NoSpeedData},
	{ErrMalformedInput, MalformedInput},
	{ErrPlotting, PlottingFailure},
	{ErrDecode, DecodeFailure},
}

// Classify returns the Kind of err, or Unclassified.
func Classify(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return Unclassified
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range kinds {
		if string(k.kind) == s {
			return k.kind, true
		}
	}
	if s == string(Unclassified) {
		return Unclassified, true
	}
	return "", false
}
