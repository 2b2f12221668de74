package smoothing

// LowPass is a single-pole exponential low-pass filter. It smooths harder
// than the double exponential but lags trending input; useful when the feed
// is dominated by jitter rather than drift.
type LowPass struct {
	Alpha float64 // gain in (0, 1]; lower smooths harder
}

// NewLowPass returns a low-pass smoother with the service default gain.
func NewLowPass() *LowPass {
	return &LowPass{Alpha: 0.3}
}

// Smooth applies the filter in a single forward pass.
func (s *LowPass) Smooth(series []float64) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	out[0] = series[0]
	acc := series[0]
	for i := 1; i < len(series); i++ {
		acc = s.Alpha*series[i] + (1-s.Alpha)*acc
		out[i] = acc
	}
	return out
}
