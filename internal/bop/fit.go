package bop

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/boptrack/internal/curvefit"
	"github.com/banshee-data/boptrack/internal/monitoring"
)

// optimumFit draws random contiguous chunks from the buffer, fits each one,
// and returns the fit with the lowest error. Chunks are drawn with
// replacement, so overlaps and repeats are possible. Returns false when
// every chunk fails to produce a converged fit.
func (e *Estimator) optimumFit(times []float64, points []Point) (Fit, bool) {
	guess := initialGuess
	if e.best != nil {
		guess = e.best.Params
	}

	size, draws := chunkSize, chunkDraws
	if len(times) < chunkSize {
		size, draws = len(times), 1
	}

	var best Fit
	found := false
	for i := 0; i < draws; i++ {
		start := e.cfg.Rand.Intn(len(times) - size + 1)
		chunkTimes := times[start : start+size]
		chunkPoints := smoothPoints(e.cfg.Smoother, points[start:start+size])

		fit, err := e.findFit(chunkTimes, chunkPoints, guess)
		if err != nil {
			monitoring.Debugf("bop: chunk [%d:%d): %v", start, start+size, err)
			continue
		}
		if !found || fit.Error < best.Error {
			best = fit
			found = true
		}
	}
	return best, found
}

// findFit fits both candidate velocity signals of one chunk and returns the
// better fit. The positions are expected to be smoothed already. Both
// candidates must converge for the chunk to count; the bop-axis candidate
// wins only when its angular-frequency variance strictly improves on the raw
// vertical one, so ties keep the simpler raw signal.
func (e *Estimator) findFit(times []float64, points []Point, guess SineParams) (Fit, error) {
	vel := derivative(times, points)

	axis := bopAxis(points)
	bopTimes, bopVel := cleanSeries(times, projectVelocities(vel, axis))

	vert := make([]float64, len(vel))
	for i, v := range vel {
		vert[i] = v.Y
	}
	rawTimes, rawVel := cleanSeries(times, vert)

	bopRes, err := e.fitSine(bopTimes, bopVel, guess)
	if err != nil {
		return Fit{}, fmt.Errorf("bop-axis fit: %w", err)
	}
	rawRes, err := e.fitSine(rawTimes, rawVel, guess)
	if err != nil {
		return Fit{}, fmt.Errorf("raw vertical fit: %w", err)
	}

	fit := Fit{
		Params:     sineParamsFromVector(rawRes.Params),
		Error:      rawRes.Variance(1),
		TimeSample: slices.Clone(times),
		DataSample: rawVel,
	}
	if bopRes.Variance(1) < fit.Error {
		fit.Params = sineParamsFromVector(bopRes.Params)
		fit.Error = bopRes.Variance(1)
		fit.DataSample = bopVel
	}
	return fit, nil
}

// fitSine smooths one velocity series and fits the sinusoid over its
// interior, excluding the first and last entries where the derivative is
// one-sided and least reliable.
func (e *Estimator) fitSine(times, series []float64, guess SineParams) (*curvefit.Result, error) {
	if len(series) < 3 {
		return nil, fmt.Errorf("%d usable samples, need at least 3", len(series))
	}
	smoothed := e.cfg.Smoother.Smooth(series)
	ts := times[1 : len(times)-1]
	ys := smoothed[1 : len(smoothed)-1]
	return curvefit.Fit(sineModel, ts, ys, guess.vector(), e.cfg.Optimizer)
}

func sineModel(t float64, p []float64) float64 {
	return p[0]*math.Sin(p[1]*t+p[2]) + p[3]
}

// bopAxis derives the dominant motion axis of a chunk: a least-squares line
// through the positions, returned as a unit vector oriented so that motion
// with a positive vertical component projects positively. A chunk with no
// horizontal spread degenerates to a NaN axis, which poisons the projected
// series and fails that candidate downstream.
func bopAxis(points []Point) [2]float64 {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	mag := math.Sqrt(1 + slope*slope)
	return [2]float64{sign(slope) / mag, math.Abs(slope) / mag}
}

// projectVelocities projects each velocity vector onto the axis, scaled by
// the axis magnitude. A zero axis (slope exactly zero) yields NaN entries
// rather than zeros; cleaning drops them.
func projectVelocities(vel []Point, axis [2]float64) []float64 {
	norm := math.Hypot(axis[0], axis[1])
	out := make([]float64, len(vel))
	for i, v := range vel {
		out[i] = (v.X*axis[0] + v.Y*axis[1]) / norm
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
