package monitor

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/boptrack/internal/bop"
)

// testFit builds a plausible successful fit for plotter tests.
func testFit() bop.Fit {
	times := make([]float64, 50)
	series := make([]float64, 50)
	params := bop.SineParams{Amplitude: 40, AngularFreq: 12.57, Phase: 1, Offset: 0}
	for i := range times {
		times[i] = float64(i) / 30
		series[i] = sineEval(params, times[i])
	}
	return bop.Fit{Params: params, Error: 0.25, TimeSample: times, DataSample: series}
}

func TestNewFitPlotter(t *testing.T) {
	fp := NewFitPlotter()

	if fp == nil {
		t.Fatal("NewFitPlotter returned nil")
	}

	if fp.enabled {
		t.Error("expected enabled to be false initially")
	}

	if fp.PassCount() != 0 {
		t.Errorf("expected 0 passes initially, got %d", fp.PassCount())
	}
}

func TestFitPlotter_StartStop(t *testing.T) {
	fp := NewFitPlotter()
	outputDir := t.TempDir()

	// Start should succeed
	err := fp.Start(outputDir)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !fp.IsEnabled() {
		t.Error("expected plotter to be enabled after Start")
	}

	if fp.GetOutputDir() != outputDir {
		t.Errorf("expected outputDir '%s', got '%s'", outputDir, fp.GetOutputDir())
	}

	// Stop should disable
	fp.Stop()

	if fp.IsEnabled() {
		t.Error("expected plotter to be disabled after Stop")
	}
}

func TestFitPlotter_StartCreatesDirectory(t *testing.T) {
	fp := NewFitPlotter()
	tempBase := t.TempDir()
	nestedDir := filepath.Join(tempBase, "nested", "plots")

	err := fp.Start(nestedDir)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fp.Stop()

	// Check directory was created
	info, err := os.Stat(nestedDir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}

	if !info.IsDir() {
		t.Error("expected directory, got file")
	}
}

func TestFitPlotter_RecordFit_Disabled(t *testing.T) {
	fp := NewFitPlotter()
	// Don't call Start - plotter is disabled

	fp.RecordFit(testFit(), 300)

	if fp.PassCount() != 0 {
		t.Errorf("expected 0 passes when disabled, got %d", fp.PassCount())
	}
}

func TestFitPlotter_RecordFit(t *testing.T) {
	fp := NewFitPlotter()
	err := fp.Start(t.TempDir())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fp.Stop()

	fp.RecordFit(testFit(), 300)
	fp.RecordFit(testFit(), 350)

	if fp.PassCount() != 2 {
		t.Fatalf("expected 2 passes, got %d", fp.PassCount())
	}

	fp.mu.Lock()
	first := fp.passes[0]
	fp.mu.Unlock()

	if first.PassIdx != 1 {
		t.Errorf("expected pass index 1, got %d", first.PassIdx)
	}
	if first.SampleCount != 300 {
		t.Errorf("expected sample count 300, got %d", first.SampleCount)
	}
	// 12.57 rad/s is almost exactly 2 Hz, i.e. 120 BPM
	if first.BPM < 119 || first.BPM > 121 {
		t.Errorf("expected ~120 BPM, got %f", first.BPM)
	}
	if first.Timestamp.IsZero() {
		t.Error("expected a recorded timestamp")
	}
}

func TestFitPlotter_RecordFitCopiesChunk(t *testing.T) {
	fp := NewFitPlotter()
	err := fp.Start(t.TempDir())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fp.Stop()

	fit := testFit()
	fp.RecordFit(fit, 300)

	// Mutating the source slices must not affect the recorded snapshot
	fit.TimeSample[0] = -999
	fit.DataSample[0] = -999

	fp.mu.Lock()
	snap := fp.passes[0]
	fp.mu.Unlock()

	if snap.Times[0] == -999 || snap.Series[0] == -999 {
		t.Error("expected the recorded chunk to be a copy")
	}
}

func TestFitPlotter_GeneratePlots_NoOutputDir(t *testing.T) {
	fp := NewFitPlotter()
	// Don't call Start - no output directory

	count, err := fp.GeneratePlots()
	if err == nil {
		t.Error("expected error when no output directory configured")
	}

	if count != 0 {
		t.Errorf("expected 0 plots, got %d", count)
	}
}

func TestFitPlotter_GeneratePlots_NoPasses(t *testing.T) {
	fp := NewFitPlotter()
	err := fp.Start(t.TempDir())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fp.Stop()

	// No passes recorded
	count, err := fp.GeneratePlots()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if count != 0 {
		t.Errorf("expected 0 plots with no passes, got %d", count)
	}
}

func TestFitPlotter_GeneratePlots(t *testing.T) {
	fp := NewFitPlotter()
	outputDir := t.TempDir()
	err := fp.Start(outputDir)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fp.RecordFit(testFit(), 300)
	fp.RecordFit(testFit(), 350)
	fp.Stop()

	// Two fit plots plus the tempo track and chunk overview
	count, err := fp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 plots, got %d", count)
	}

	for _, name := range []string{"pass_01_fit.png", "pass_02_fit.png", "tempo_track.png", "chunks.png"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("expected plot file %s: %v", name, err)
		}
	}
}

func TestFitPlotter_StartResetsState(t *testing.T) {
	fp := NewFitPlotter()

	// First run
	err := fp.Start(t.TempDir())
	if err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	fp.RecordFit(testFit(), 300)
	fp.Stop()

	// Second run should reset state
	err = fp.Start(t.TempDir())
	if err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	defer fp.Stop()

	if fp.PassCount() != 0 {
		t.Error("expected passes to be reset on Start")
	}

	fp.mu.Lock()
	passIdx := fp.passIdx
	fp.mu.Unlock()

	if passIdx != 0 {
		t.Errorf("expected passIdx to be reset to 0, got %d", passIdx)
	}
}

func TestFormatTimestamp(t *testing.T) {
	// Test a known time
	ts := time.Date(2026, 1, 30, 14, 35, 22, 0, time.UTC)
	result := FormatTimestamp(ts)

	expected := "20260130_143522"
	if result != expected {
		t.Errorf("expected '%s', got '%s'", expected, result)
	}
}

func TestMakePlotOutputDir_WithFixtureFile(t *testing.T) {
	baseDir := "/tmp/plots"
	fixtureFile := "/data/walks/walk-042.csv"

	result := MakePlotOutputDir(baseDir, fixtureFile)

	// Should contain base dir, fixture name (without extension), and timestamp
	if !filepath.IsAbs(result) || result == "" {
		t.Errorf("unexpected result: %s", result)
	}

	// Check structure
	if filepath.Dir(filepath.Dir(result)) != baseDir {
		t.Errorf("expected base dir '%s' in path, got '%s'", baseDir, result)
	}

	parent := filepath.Base(filepath.Dir(result))
	if parent != "walk-042" {
		t.Errorf("expected parent 'walk-042', got '%s'", parent)
	}
}

func TestMakePlotOutputDir_WithoutFixtureFile(t *testing.T) {
	baseDir := "/tmp/plots"

	result := MakePlotOutputDir(baseDir, "")

	// Should start with "live_"
	base := filepath.Base(result)
	if len(base) < 5 || base[:5] != "live_" {
		t.Errorf("expected path to contain 'live_', got '%s'", result)
	}
}

func TestGenerateColors(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{0, 0},
		{1, 1},
		{5, 5},
		{10, 10},
	}

	for _, tt := range tests {
		colors := generateColors(tt.n)
		if len(colors) != tt.expected {
			t.Errorf("generateColors(%d): expected %d colours, got %d", tt.n, tt.expected, len(colors))
		}
	}

	// Verify colours are valid RGBA
	colors := generateColors(5)
	for i, c := range colors {
		rgba, ok := c.(color.RGBA)
		if !ok {
			t.Errorf("colour %d: expected color.RGBA, got %T", i, c)
			continue
		}
		if rgba.A != 255 {
			t.Errorf("colour %d: expected alpha 255, got %d", i, rgba.A)
		}
	}
}

func TestGenerateColors_Distinct(t *testing.T) {
	// Check that generated colours are distinct (different hues)
	colors := generateColors(6)
	if len(colors) != 6 {
		t.Fatalf("expected 6 colours, got %d", len(colors))
	}

	seen := make(map[uint32]bool)
	for _, c := range colors {
		rgba := c.(color.RGBA)
		key := uint32(rgba.R)<<16 | uint32(rgba.G)<<8 | uint32(rgba.B)
		if seen[key] {
			t.Error("duplicate colour found in generated palette")
		}
		seen[key] = true
	}
}

func TestHslToRGB(t *testing.T) {
	tests := []struct {
		h, s, l   float64
		expectedR uint8
		expectedG uint8
		expectedB uint8
	}{
		// Red (hue 0)
		{0.0, 1.0, 0.5, 255, 0, 0},
		// Green (hue 1/3)
		{1.0 / 3.0, 1.0, 0.5, 0, 255, 0},
		// Blue (hue 2/3)
		{2.0 / 3.0, 1.0, 0.5, 0, 0, 255},
		// White (lightness 1)
		{0.0, 0.0, 1.0, 255, 255, 255},
		// Black (lightness 0)
		{0.0, 0.0, 0.0, 0, 0, 0},
		// Grey (saturation 0)
		{0.0, 0.0, 0.5, 127, 127, 127},
	}

	for _, tt := range tests {
		r, g, b := hslToRGB(tt.h, tt.s, tt.l)

		// Allow small tolerance for floating point
		if abs(int(r)-int(tt.expectedR)) > 1 ||
			abs(int(g)-int(tt.expectedG)) > 1 ||
			abs(int(b)-int(tt.expectedB)) > 1 {
			t.Errorf("hslToRGB(%f, %f, %f): expected (%d, %d, %d), got (%d, %d, %d)",
				tt.h, tt.s, tt.l, tt.expectedR, tt.expectedG, tt.expectedB, r, g, b)
		}
	}
}

func TestSineEval(t *testing.T) {
	p := bop.SineParams{Amplitude: 2, AngularFreq: 1, Phase: 0, Offset: 3}

	// sin(0) = 0, so the offset carries the value
	if got := sineEval(p, 0); got != 3 {
		t.Errorf("sineEval at t=0: expected 3, got %f", got)
	}

	// sin(pi/2) = 1
	if got := sineEval(p, 1.5707963267948966); got < 4.999 || got > 5.001 {
		t.Errorf("sineEval at t=pi/2: expected ~5, got %f", got)
	}
}

// Helper function
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
