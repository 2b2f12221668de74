// Command bop-analyse replays a recorded sample stream through the tempo
// estimator and cross-checks the result against wavelet envelope peak
// detection. It can render per-pass fit diagnostics as PNG plots.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/config"
	"github.com/banshee-data/boptrack/internal/monitor"
	"github.com/banshee-data/boptrack/samplemux"
	"github.com/goccmack/godsp"
	"github.com/goccmack/godsp/dwt"
	"github.com/goccmack/godsp/peaks"
)

// Envelope pipeline parameters. The velocity series is interpolated onto a
// uniform grid before the wavelet transform; the envelope then runs at
// envelopeResampleHz / envelopeScale samples per second.
const (
	envelopeResampleHz = 480.0
	envelopeDWTLevel   = 3
	envelopeScale      = 1 << envelopeDWTLevel
)

// Config holds configuration for an analysis run.
type Config struct {
	FixtureFile   string
	TuningFile    string
	EstimateEvery int
	PeakSepMs     int
	PlotDir       string
	Plots         bool
	OutputJSON    string
	Verbose       bool
}

// AnalysisResult holds the outcome of a replay.
type AnalysisResult struct {
	FixtureFile      string       `json:"fixture_file"`
	SampleCount      int          `json:"sample_count"`
	DurationSecs     float64      `json:"duration_secs"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Passes           []PassResult `json:"passes"`
	FitBPM           float64      `json:"fit_bpm"`
	FitOK            bool         `json:"fit_ok"`
	EnvelopeBPM      float64      `json:"envelope_bpm"`
	EnvelopePeaks    int          `json:"envelope_peaks"`
	AgreementPct     float64      `json:"agreement_pct"`

	envelope []float64
}

// PassResult holds one estimation pass over the growing buffer.
type PassResult struct {
	Pass        int     `json:"pass"`
	SampleCount int     `json:"sample_count"`
	BPM         float64 `json:"bpm"`
	FitError    float64 `json:"fit_error"`
}

func main() {
	cfg := parseFlags()

	if cfg.FixtureFile == "" {
		log.Fatal("fixture file is required (-fixture)")
	}
	if _, err := os.Stat(cfg.FixtureFile); os.IsNotExist(err) {
		log.Fatalf("fixture file not found: %s", cfg.FixtureFile)
	}

	tuning := loadTuning(cfg.TuningFile)

	plotter := monitor.NewFitPlotter()
	plotDir := ""
	if cfg.Plots {
		plotDir = monitor.MakePlotOutputDir(cfg.PlotDir, cfg.FixtureFile)
		if err := plotter.Start(plotDir); err != nil {
			log.Fatalf("Failed to create plot directory: %v", err)
		}
	}

	result, err := runAnalysis(cfg, tuning.EstimatorConfig(), plotter)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	printResults(result)

	if cfg.Plots {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Printf("Warning: plot generation failed: %v", err)
		} else {
			log.Printf("✓ Generated %d plots in %s", n, plotDir)
		}
		if len(result.envelope) > 0 {
			godsp.WriteDataFile(result.envelope, filepath.Join(plotDir, "envelope.txt"))
		}
	}

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.FixtureFile, "fixture", "", "Path to recorded sample stream to replay")
	flag.StringVar(&cfg.TuningFile, "tuning", "", "Optional tuning config JSON")
	flag.IntVar(&cfg.EstimateEvery, "every", 60, "Samples between estimation passes")
	flag.IntVar(&cfg.PeakSepMs, "sep", 120, "Minimum envelope peak separation in milliseconds")
	flag.StringVar(&cfg.PlotDir, "plot-dir", "plots", "Base directory for plot output")
	flag.BoolVar(&cfg.Plots, "plot", false, "Render fit diagnostics as PNG plots")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON path (e.g., results.json)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log every estimation pass")

	flag.Parse()

	return cfg
}

func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		return config.EmptyTuningConfig()
	}
	tc, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	return tc
}

func runAnalysis(cfg Config, estCfg bop.Config, plotter *monitor.FitPlotter) (*AnalysisResult, error) {
	if cfg.EstimateEvery < 1 {
		cfg.EstimateEvery = 1
	}

	samples, err := readFixture(cfg.FixtureFile)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample lines in %s", cfg.FixtureFile)
	}

	log.Printf("Replaying %d samples from %s", len(samples), cfg.FixtureFile)
	start := time.Now()

	result := &AnalysisResult{
		FixtureFile:  cfg.FixtureFile,
		SampleCount:  len(samples),
		DurationSecs: samples[len(samples)-1].T - samples[0].T,
	}

	est := bop.NewEstimator(estCfg)
	pass := func() {
		bpm, ok := est.EstimateBPM()
		if !ok {
			if cfg.Verbose {
				log.Printf("pass at %d samples: no fit", est.Len())
			}
			return
		}
		fit, _ := est.BestFit()
		result.Passes = append(result.Passes, PassResult{
			Pass:        len(result.Passes) + 1,
			SampleCount: est.Len(),
			BPM:         bpm,
			FitError:    fit.Error,
		})
		plotter.RecordFit(fit, est.Len())
		result.FitBPM = bpm
		result.FitOK = true
		if cfg.Verbose {
			log.Printf("pass %d: %.1f BPM over %d samples", len(result.Passes), bpm, est.Len())
		}
	}

	for i, s := range samples {
		est.Append(s.T, bop.Point{X: s.X, Y: s.Y})
		if (i+1)%cfg.EstimateEvery == 0 {
			pass()
		}
	}
	if len(samples)%cfg.EstimateEvery != 0 {
		pass()
	}

	times, vel := verticalVelocity(samples)
	result.EnvelopeBPM, result.EnvelopePeaks, result.envelope = envelopeTempo(times, vel, cfg.PeakSepMs)

	if result.FitOK && result.EnvelopeBPM > 0 {
		diff := math.Abs(result.FitBPM-result.EnvelopeBPM) / result.FitBPM
		result.AgreementPct = math.Max(0, 100*(1-diff))
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// readFixture loads the sample lines of a recorded stream, skipping comment
// and status lines the way the live feed does.
func readFixture(path string) ([]samplemux.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []samplemux.Sample
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if samplemux.ClassifyLine(line) != samplemux.LineTypeSample {
			continue
		}
		s, err := samplemux.ParseSample(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// verticalVelocity differentiates the vertical coordinate with central
// differences, skipping entries where time does not advance. It deliberately
// shares no code with the estimator so the envelope check stays independent.
func verticalVelocity(samples []samplemux.Sample) (times, vel []float64) {
	n := len(samples)
	if n < 3 {
		return nil, nil
	}
	times = make([]float64, 0, n)
	vel = make([]float64, 0, n)
	for i := 1; i < n-1; i++ {
		dt := samples[i+1].T - samples[i-1].T
		if dt <= 0 {
			continue
		}
		times = append(times, samples[i].T)
		vel = append(vel, (samples[i+1].Y-samples[i-1].Y)/dt)
	}
	return times, vel
}

// envelopeTempo estimates tempo from peak spacing in a wavelet energy
// envelope: the velocity series is resampled onto a uniform grid, decomposed
// with a Daubechies-4 DWT, and the absolute coefficients are downsampled and
// summed into one envelope. The rectified envelope often beats at twice the
// bob rate, so octave errors are folded back into a plausible tempo range.
func envelopeTempo(times, vel []float64, sepMs int) (bpm float64, peakCount int, envelope []float64) {
	if len(times) < 2 {
		return 0, 0, nil
	}
	uniform := resampleUniform(times, vel, envelopeResampleHz)
	if len(uniform) < 4*envelopeScale {
		return 0, 0, nil
	}

	transform := dwt.Daubechies4(uniform, envelopeDWTLevel)
	absX := godsp.AbsAll(transform.GetCoefficients())
	envelope = godsp.SumVectors(godsp.DownSampleAll(absX))
	if avg := godsp.Average(envelope); avg > 0 {
		envelope = godsp.DivS(envelope, avg)
	}

	fss := envelopeResampleHz / envelopeScale
	sep := int(float64(sepMs) / 1000 * fss)
	if sep < 1 {
		sep = 1
	}
	pks := peaks.Get(envelope, sep)
	if len(pks) < 2 {
		return 0, len(pks), envelope
	}

	meanInterval := float64(pks[len(pks)-1]-pks[0]) / float64(len(pks)-1)
	bpm = 60 * fss / meanInterval
	for bpm > 200 {
		bpm /= 2
	}
	for bpm > 0 && bpm < 50 {
		bpm *= 2
	}
	return bpm, len(pks), envelope
}

// resampleUniform linearly interpolates an irregularly sampled series onto a
// uniform grid at rateHz.
func resampleUniform(times, values []float64, rateHz float64) []float64 {
	span := times[len(times)-1] - times[0]
	if span <= 0 {
		return nil
	}
	n := int(span*rateHz) + 1
	out := make([]float64, n)
	j := 0
	for i := 0; i < n; i++ {
		t := times[0] + float64(i)/rateHz
		for j+1 < len(times)-1 && times[j+1] < t {
			j++
		}
		t0, t1 := times[j], times[j+1]
		v := values[j]
		if t1 > t0 {
			frac := (t - t0) / (t1 - t0)
			if frac < 0 {
				frac = 0
			} else if frac > 1 {
				frac = 1
			}
			v = values[j] + frac*(values[j+1]-values[j])
		}
		out[i] = v
	}
	return out
}

func printResults(result *AnalysisResult) {
	fmt.Println("\n=== Tempo Analysis Results ===")
	fmt.Printf("Fixture: %s\n", result.FixtureFile)
	fmt.Printf("Samples: %d spanning %.1fs\n", result.SampleCount, result.DurationSecs)
	fmt.Printf("Processing Time: %dms\n", result.ProcessingTimeMs)

	fmt.Println("\n--- Estimation Passes ---")
	if len(result.Passes) == 0 {
		fmt.Println("none (not enough samples)")
	}
	for _, p := range result.Passes {
		fmt.Printf("pass %2d: %6.1f BPM (err %.3f, %d samples)\n", p.Pass, p.BPM, p.FitError, p.SampleCount)
	}

	fmt.Println("\n--- Final Tempo ---")
	if result.FitOK {
		fmt.Printf("Sinusoid fit: %.1f BPM\n", result.FitBPM)
	} else {
		fmt.Println("Sinusoid fit: no convergence")
	}
	if result.EnvelopeBPM > 0 {
		fmt.Printf("Wavelet envelope: %.1f BPM (%d peaks)\n", result.EnvelopeBPM, result.EnvelopePeaks)
	} else {
		fmt.Println("Wavelet envelope: insufficient peaks")
	}
	if result.FitOK && result.EnvelopeBPM > 0 {
		fmt.Printf("Agreement: %.1f%%\n", result.AgreementPct)
	}
}

func exportJSON(result *AnalysisResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
