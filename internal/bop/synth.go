package bop

import (
	"math"
	"math/rand"

	"github.com/banshee-data/boptrack/internal/units"
)

// SynthConfig shapes the synthetic bobbing stream. Distances share whatever
// unit CentreX/CentreY use; millimetres in the fixtures.
type SynthConfig struct {
	BPM        float64 // tempo of the bob
	Amplitude  float64 // vertical bob amplitude
	Lean       float64 // horizontal motion per unit of vertical motion
	CentreX    float64
	CentreY    float64
	SampleRate float64 // nominal samples per second
	Jitter     float64 // timestamp perturbation as a fraction of the interval, <1 keeps time monotonic
	Noise      float64 // stddev of Gaussian noise added to each coordinate
	Seed       int64
}

// DefaultSynthConfig is a 120 BPM bob with a slight lean, sampled at 30 Hz
// with mild noise and timing jitter.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		BPM:        120,
		Amplitude:  25,
		Lean:       0.35,
		CentreX:    180,
		CentreY:    420,
		SampleRate: 30,
		Jitter:     0.2,
		Noise:      0.5,
		Seed:       1,
	}
}

// Synth produces a deterministic synthetic bobbing stream: a sinusoidal
// vertical motion with a proportional horizontal lean, Gaussian position
// noise and timestamp jitter. It backs dev-mode fixtures, the simulator CLI
// and tests.
type Synth struct {
	cfg  SynthConfig
	rng  *rand.Rand
	step int
}

// NewSynth creates a generator; the same config always yields the same
// stream.
func NewSynth(cfg SynthConfig) *Synth {
	return &Synth{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Next returns the next timestamped sample.
func (s *Synth) Next() (float64, Point) {
	dt := 1 / s.cfg.SampleRate
	t := float64(s.step) * dt
	if s.cfg.Jitter > 0 {
		t += (s.rng.Float64() - 0.5) * s.cfg.Jitter * dt
	}
	s.step++

	omega := units.AngularFreqFromBPM(s.cfg.BPM)
	bob := s.cfg.Amplitude * math.Sin(omega*t)
	p := Point{
		X: s.cfg.CentreX + s.cfg.Lean*bob + s.rng.NormFloat64()*s.cfg.Noise,
		Y: s.cfg.CentreY + bob + s.rng.NormFloat64()*s.cfg.Noise,
	}
	return t, p
}

// Take returns the next n samples as parallel slices.
func (s *Synth) Take(n int) ([]float64, []Point) {
	ts := make([]float64, n)
	ps := make([]Point, n)
	for i := 0; i < n; i++ {
		ts[i], ps[i] = s.Next()
	}
	return ts, ps
}
