// Package monitor renders fit diagnostics as PNG plots after an analysis
// run.
package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/security"
	"github.com/banshee-data/boptrack/internal/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// FitPlotter records fit snapshots over an analysis run for visualization.
// It captures the winning chunk and parameters of each estimation pass via
// RecordFit(), accumulating data that can be plotted after the run.
type FitPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	passIdx int
	passes  []FitSnapshot
}

// FitSnapshot represents one estimation pass: the chunk the winning fit was
// computed against, the fitted parameters, and the tempo they imply.
type FitSnapshot struct {
	PassIdx     int
	Timestamp   time.Time
	BPM         float64
	FitError    float64
	SampleCount int
	// Winning chunk: timestamps and the velocity series that was fit
	Times  []float64
	Series []float64
	Params bop.SineParams
}

// NewFitPlotter creates a plotter with recording disabled.
func NewFitPlotter() *FitPlotter {
	return &FitPlotter{}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/walk-042/20260823_101500")
func (fp *FitPlotter) Start(outputDir string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	fp.outputDir = outputDir
	fp.enabled = true
	fp.passIdx = 0
	fp.passes = nil
	return nil
}

// Stop disables recording. Call GeneratePlots() to produce output files.
func (fp *FitPlotter) Stop() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (fp *FitPlotter) IsEnabled() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.enabled
}

// RecordFit captures one estimation pass. The chunk slices are copied so the
// estimator can keep mutating its buffers.
func (fp *FitPlotter) RecordFit(fit bop.Fit, sampleCount int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if !fp.enabled {
		return
	}

	fp.passIdx++
	snap := FitSnapshot{
		PassIdx:     fp.passIdx,
		Timestamp:   time.Now(),
		BPM:         units.BPMFromAngularFreq(fit.Params.AngularFreq),
		FitError:    fit.Error,
		SampleCount: sampleCount,
		Times:       append([]float64(nil), fit.TimeSample...),
		Series:      append([]float64(nil), fit.DataSample...),
		Params:      fit.Params,
	}
	fp.passes = append(fp.passes, snap)
}

// PassCount returns the number of recorded passes.
func (fp *FitPlotter) PassCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.passes)
}

// GetOutputDir returns the current output directory for plots.
func (fp *FitPlotter) GetOutputDir() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.outputDir
}

// GeneratePlots creates PNG files: one fit plot per pass, a tempo track
// across passes, and an overview of the winning chunks. Returns the number
// of plots generated and any error.
func (fp *FitPlotter) GeneratePlots() (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	if len(fp.passes) == 0 {
		return 0, nil
	}

	plotCount := 0
	for _, snap := range fp.passes {
		if len(snap.Times) == 0 {
			continue
		}
		if err := fp.generateFitPlot(snap); err != nil {
			return plotCount, fmt.Errorf("pass %d: %w", snap.PassIdx, err)
		}
		plotCount++
	}

	if err := fp.generateTempoTrack(); err != nil {
		return plotCount, err
	}
	plotCount++

	if err := fp.generateChunkOverview(); err != nil {
		return plotCount, err
	}
	plotCount++

	return plotCount, nil
}

// generateFitPlot plots one pass: the observed velocity series of the
// winning chunk and the fitted sinusoid sampled densely across it.
func (fp *FitPlotter) generateFitPlot(snap FitSnapshot) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pass %d - Velocity Fit (%.1f BPM)", snap.PassIdx, snap.BPM)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Velocity"

	obsPts := make(plotter.XYs, 0, len(snap.Times))
	for i := range snap.Times {
		obsPts = append(obsPts, plotter.XY{X: snap.Times[i], Y: snap.Series[i]})
	}
	obsLine, err := plotter.NewLine(obsPts)
	if err != nil {
		return err
	}
	obsLine.Color = color.RGBA{R: 110, G: 110, B: 110, A: 255}
	obsLine.Width = vg.Points(1)
	p.Add(obsLine)
	p.Legend.Add("observed velocity", obsLine)

	t0, t1 := snap.Times[0], snap.Times[len(snap.Times)-1]
	const steps = 200
	modelPts := make(plotter.XYs, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := t0 + (t1-t0)*float64(i)/steps
		modelPts = append(modelPts, plotter.XY{X: t, Y: sineEval(snap.Params, t)})
	}
	modelLine, err := plotter.NewLine(modelPts)
	if err != nil {
		return err
	}
	modelLine.Color = color.RGBA{R: 220, G: 60, B: 60, A: 255}
	modelLine.Width = vg.Points(1)
	p.Add(modelLine)
	p.Legend.Add(fmt.Sprintf("fit %.2f rad/s", snap.Params.AngularFreq), modelLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(fp.outputDir, fmt.Sprintf("pass_%02d_fit.png", snap.PassIdx))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save fit plot: %w", err)
	}

	return nil
}

// generateTempoTrack plots the estimated tempo across passes.
func (fp *FitPlotter) generateTempoTrack() error {
	p := plot.New()
	p.Title.Text = "Estimated Tempo by Pass"
	p.X.Label.Text = "Pass"
	p.Y.Label.Text = "Tempo (BPM)"

	pts := make(plotter.XYs, 0, len(fp.passes))
	for _, snap := range fp.passes {
		pts = append(pts, plotter.XY{X: float64(snap.PassIdx), Y: snap.BPM})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	file := filepath.Join(fp.outputDir, "tempo_track.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save tempo track: %w", err)
	}

	return nil
}

// generateChunkOverview overlays every pass's winning chunk on one plot,
// showing which windows of the stream the estimator selected.
func (fp *FitPlotter) generateChunkOverview() error {
	p := plot.New()
	p.Title.Text = "Winning Chunks by Pass"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Velocity"

	colors := generateColors(len(fp.passes))

	for i, snap := range fp.passes {
		if len(snap.Times) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(snap.Times))
		for j := range snap.Times {
			pts = append(pts, plotter.XY{X: snap.Times[j], Y: snap.Series[j]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("pass %d", snap.PassIdx), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(fp.outputDir, "chunks.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save chunk overview: %w", err)
	}

	return nil
}

// sineEval evaluates the fitted model A·sin(ωt+φ)+c at time t.
func sineEval(p bop.SineParams, t float64) float64 {
	return p.Amplitude*math.Sin(p.AngularFreq*t+p.Phase) + p.Offset
}

// generateColors creates a palette of distinct colors for per-pass lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
// For replayed fixture files: plots/<fixture_basename>/<timestamp>
// For live data: plots/live_<timestamp>
func MakePlotOutputDir(baseDir, fixtureFile string) string {
	ts := FormatTimestamp(time.Now())
	if fixtureFile != "" {
		// Use fixture basename without extension
		base := filepath.Base(fixtureFile)
		ext := filepath.Ext(base)
		name := security.SanitizeFilename(base[:len(base)-len(ext)])
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
