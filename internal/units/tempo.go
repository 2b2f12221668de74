// Package units provides shared constants and conversions for tempo units.
package units

import "math"

// Unit constants
const (
	BPM  = "bpm"  // beats per minute
	Hz   = "hz"   // cycles per second
	RadS = "rads" // angular frequency in radians per second
)

// ValidUnits contains all valid tempo unit values
var ValidUnits = []string{BPM, Hz, RadS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "bpm, hz, rads"
}

// BPMFromAngularFreq converts an angular frequency in radians per second to
// beats per minute. The absolute value is taken because the sinusoid fit can
// converge to either sign of frequency; tempo has no sign.
func BPMFromAngularFreq(radPerSec float64) float64 {
	return math.Abs(radPerSec) / (2 * math.Pi) * 60
}

// AngularFreqFromBPM converts beats per minute to radians per second.
func AngularFreqFromBPM(bpm float64) float64 {
	return bpm / 60 * 2 * math.Pi
}

// AngularFreqFromHz converts cycles per second to radians per second.
func AngularFreqFromHz(hz float64) float64 {
	return 2 * math.Pi * hz
}

// HzFromBPM converts beats per minute to cycles per second.
func HzFromBPM(bpm float64) float64 {
	return bpm / 60
}

// BPMFromHz converts cycles per second to beats per minute.
func BPMFromHz(hz float64) float64 {
	return hz * 60
}

// ConvertTempo converts a tempo from beats per minute to the target units.
// Estimates are stored and reported in BPM internally.
func ConvertTempo(bpm float64, targetUnits string) float64 {
	switch targetUnits {
	case BPM:
		return bpm
	case Hz:
		return bpm / 60
	case RadS:
		return bpm / 60 * 2 * math.Pi
	default:
		return bpm
	}
}
