package bop

import (
	"math"

	"github.com/banshee-data/boptrack/internal/smoothing"
)

// derivative numerically differentiates positions with respect to time:
// central differences over the interior, one-sided differences at the ends.
// Handles irregular sample spacing; repeated timestamps produce non-finite
// entries that cleaning removes later.
func derivative(times []float64, points []Point) []Point {
	n := len(points)
	out := make([]Point, n)
	if n < 2 {
		return out
	}
	for i := 0; i < n; i++ {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		dt := times[hi] - times[lo]
		out[i] = Point{
			X: (points[hi].X - points[lo].X) / dt,
			Y: (points[hi].Y - points[lo].Y) / dt,
		}
	}
	return out
}

// cleanSeries drops entries whose value is NaN or infinite, keeping the
// timestamps aligned with the surviving values.
func cleanSeries(times, series []float64) (ts, vs []float64) {
	ts = make([]float64, 0, len(series))
	vs = make([]float64, 0, len(series))
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		ts = append(ts, times[i])
		vs = append(vs, v)
	}
	return ts, vs
}

// smoothPoints smooths the X and Y coordinate columns independently.
func smoothPoints(s smoothing.Smoother, points []Point) []Point {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	xs = s.Smooth(xs)
	ys = s.Smooth(ys)
	out := make([]Point, len(points))
	for i := range out {
		out[i] = Point{X: xs[i], Y: ys[i]}
	}
	return out
}
