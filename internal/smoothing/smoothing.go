// Package smoothing provides the noise-reduction strategies applied to
// position and velocity series before curve fitting.
package smoothing

// Smoother reduces noise in a series. Implementations return a new series of
// the same length as the input, leave the input unmodified, and carry no
// state between calls (each call smooths an independent series).
type Smoother interface {
	Smooth(series []float64) []float64
}

// DoubleExponential is Holt's double exponential smoother: a level term
// tracking the series and a trend term tracking its slope. Tracking the
// trend keeps the smoothed series from lagging a drifting signal the way a
// plain exponential average does, which matters when the estimator fits
// oscillations rather than levels.
type DoubleExponential struct {
	Alpha float64 // level gain in (0, 1]; higher follows the input more closely
	Beta  float64 // trend gain in (0, 1]
}

// NewDoubleExponential returns the smoother with the service defaults.
func NewDoubleExponential() *DoubleExponential {
	return &DoubleExponential{Alpha: 0.5, Beta: 0.3}
}

// Smooth applies the filter in a single forward pass.
func (s *DoubleExponential) Smooth(series []float64) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	out[0] = series[0]
	if len(series) == 1 {
		return out
	}

	level := series[0]
	trend := series[1] - series[0]
	for i := 1; i < len(series); i++ {
		prevLevel := level
		level = s.Alpha*series[i] + (1-s.Alpha)*(level+trend)
		trend = s.Beta*(level-prevLevel) + (1-s.Beta)*trend
		out[i] = level
	}
	return out
}

// Passthrough returns the series unchanged. Used in tests that need exact
// series values and for feeds already filtered upstream.
type Passthrough struct{}

// Smooth copies the input.
func (Passthrough) Smooth(series []float64) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	return out
}
