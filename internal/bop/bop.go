// Package bop estimates the tempo of a periodic motion from a noisy,
// irregularly-timestamped stream of 2D positions (head position during
// rhythmic bobbing, typically).
//
// The pipeline:
//
//  1. Positions are buffered incrementally alongside their timestamps,
//     dropping samples that repeat the previous timestamp.
//  2. At estimation time the buffer is capped to a sliding window, random
//     contiguous chunks are drawn from it, and each chunk's positions are
//     smoothed and differentiated into velocity.
//  3. Two candidate velocity signals are fit to a sinusoid per chunk: the
//     velocity projected onto the chunk's dominant motion axis (the "bop
//     axis") and the raw vertical velocity. The candidate with the lower
//     angular-frequency variance wins the chunk.
//  4. The best chunk fit competes with the best fit from previous calls;
//     the tempo reported is the best fit's angular frequency converted to
//     beats per minute.
//
// An Estimator is not safe for concurrent use. Callers serialize all calls
// or wrap it (the service session provides a locked wrapper).
package bop

import (
	"errors"
	"math/rand"
	"time"

	"github.com/banshee-data/boptrack/internal/curvefit"
	"github.com/banshee-data/boptrack/internal/smoothing"
	"github.com/banshee-data/boptrack/internal/units"
)

// Point is a 2D position sample. X is horizontal, Y vertical; the units are
// caller-defined but must be consistent across the stream.
type Point struct {
	X float64
	Y float64
}

// SineParams are the parameters of the fitted model A·sin(ωt+φ)+c. The
// angular frequency is the quantity of interest; the others make the model
// fit well but are not otherwise consumed.
type SineParams struct {
	Amplitude   float64
	AngularFreq float64
	Phase       float64
	Offset      float64
}

func (p SineParams) vector() []float64 {
	return []float64{p.Amplitude, p.AngularFreq, p.Phase, p.Offset}
}

func sineParamsFromVector(v []float64) SineParams {
	return SineParams{Amplitude: v[0], AngularFreq: v[1], Phase: v[2], Offset: v[3]}
}

// Fit is one successful sinusoid fit: its parameters, the variance of the
// angular-frequency estimate (lower is better; the selection metric both
// within a call and across calls), and the chunk it was fit against.
type Fit struct {
	Params     SineParams
	Error      float64   // variance of the angular-frequency estimate
	TimeSample []float64 // chunk timestamps
	DataSample []float64 // winning velocity series (cleaned, unsmoothed)
}

// ErrNoFit is returned by SetFrequency when no fit exists to override.
var ErrNoFit = errors.New("bop: no fit yet")

// Chunk sampling constants. Once the buffer exceeds chunkSize samples, each
// estimate draws chunkDraws random chunks of exactly chunkSize samples;
// below that a single chunk covers the whole buffer.
const (
	chunkSize  = 50
	chunkDraws = 10
)

// initialGuess seeds the first optimizer run. 116 BPM is a generic
// music-tempo prior; once a fit exists its parameters seed later runs
// instead.
var initialGuess = SineParams{
	Amplitude:   50,
	AngularFreq: units.AngularFreqFromBPM(116),
	Phase:       1,
	Offset:      0,
}

// Config carries the estimator settings. Start from DefaultConfig; zero
// fields are normalized to the defaults at construction.
type Config struct {
	// MinPoints is the minimum buffered samples before estimation is
	// attempted.
	MinPoints int

	// MaxPoints caps the buffer as a sliding window, applied lazily at
	// estimation time (oldest samples dropped first).
	MaxPoints int

	// Smoother reduces noise in position columns and velocity series.
	Smoother smoothing.Smoother

	// Rand drives chunk sampling. Seed it for reproducible estimation;
	// nil seeds from the clock.
	Rand *rand.Rand

	// Optimizer configures the nonlinear least-squares solver.
	Optimizer curvefit.Config
}

// DefaultConfig returns the estimator settings used in production.
func DefaultConfig() Config {
	return Config{
		MinPoints: 10,
		MaxPoints: 5000,
		Smoother:  smoothing.NewDoubleExponential(),
		Optimizer: curvefit.DefaultConfig(),
	}
}

func (c *Config) normalize() {
	if c.MinPoints <= 0 {
		c.MinPoints = 10
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = 5000
	}
	if c.Smoother == nil {
		c.Smoother = smoothing.NewDoubleExponential()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Optimizer.MaxIterations == 0 {
		c.Optimizer = curvefit.DefaultConfig()
	}
}

// Estimator owns the sample buffers and the best fit found so far. Construct
// with NewEstimator; the zero value is not usable.
type Estimator struct {
	cfg    Config
	times  []float64
	points []Point
	best   *Fit
}

// NewEstimator creates an empty estimator session.
func NewEstimator(cfg Config) *Estimator {
	cfg.normalize()
	return &Estimator{cfg: cfg}
}

// Append records one sample. A sample whose timestamp equals the most
// recently stored one is dropped silently; no other validation is applied
// (producers are trusted to deliver well-formed, ordered samples). Appending
// never fails and never triggers estimation work.
func (e *Estimator) Append(t float64, p Point) {
	if len(e.times) > 0 && e.times[len(e.times)-1] == t {
		return
	}
	e.times = append(e.times, t)
	e.points = append(e.points, p)
}

// Len returns the number of buffered samples.
func (e *Estimator) Len() int {
	return len(e.times)
}

// Reset clears the buffers and discards the best fit, returning the
// estimator to its initial state.
func (e *Estimator) Reset() {
	e.times = nil
	e.points = nil
	e.best = nil
}

// EstimateBPM runs one estimation pass and reports the tempo of the best fit
// known so far. The second return is false while no estimate is available:
// either the buffer is still below MinPoints, or no chunk has ever produced
// a converged fit. A call whose chunks all fail to converge falls back to
// the previous best fit rather than erroring.
func (e *Estimator) EstimateBPM() (float64, bool) {
	if len(e.times) < e.cfg.MinPoints {
		return 0, false
	}

	if excess := len(e.times) - e.cfg.MaxPoints; excess > 0 {
		e.times = e.times[excess:]
		e.points = e.points[excess:]
	}

	if cand, ok := e.optimumFit(e.times, e.points); ok {
		if e.best == nil || cand.Error < e.best.Error {
			e.best = &cand
		}
	}

	if e.best == nil {
		return 0, false
	}
	return units.BPMFromAngularFreq(e.best.Params.AngularFreq), true
}

// BestFit returns the current best fit. The slices inside are owned by the
// estimator; treat them as read-only.
func (e *Estimator) BestFit() (Fit, bool) {
	if e.best == nil {
		return Fit{}, false
	}
	return *e.best, true
}

// SetFrequency overrides the best fit's angular frequency with the given
// frequency in Hz, leaving amplitude, phase, offset and the stored error
// untouched. Used to correct a drifted estimate from an external reference
// such as tap tempo. Returns ErrNoFit when no fit exists yet.
func (e *Estimator) SetFrequency(hz float64) error {
	if e.best == nil {
		return ErrNoFit
	}
	e.best.Params.AngularFreq = units.AngularFreqFromHz(hz)
	return nil
}
