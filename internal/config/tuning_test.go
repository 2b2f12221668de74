package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/banshee-data/boptrack/internal/smoothing"
)

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "minimum_points": 20,
  "maximum_points": 2000,
  "random_seed": 7,
  "smoother": "lowpass",
  "smoothing_level": 0.25,
  "max_iterations": 100,
  "estimate_interval": "500ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.MinimumPoints == nil || *cfg.MinimumPoints != 20 {
		t.Errorf("Expected MinimumPoints 20, got %v", cfg.MinimumPoints)
	}
	if cfg.MaximumPoints == nil || *cfg.MaximumPoints != 2000 {
		t.Errorf("Expected MaximumPoints 2000, got %v", cfg.MaximumPoints)
	}
	if cfg.RandomSeed == nil || *cfg.RandomSeed != 7 {
		t.Errorf("Expected RandomSeed 7, got %v", cfg.RandomSeed)
	}
	if cfg.Smoother == nil || *cfg.Smoother != "lowpass" {
		t.Errorf("Expected Smoother 'lowpass', got %v", cfg.Smoother)
	}
	if cfg.SmoothingLevel == nil || *cfg.SmoothingLevel != 0.25 {
		t.Errorf("Expected SmoothingLevel 0.25, got %v", cfg.SmoothingLevel)
	}
	if cfg.MaxIterations == nil || *cfg.MaxIterations != 100 {
		t.Errorf("Expected MaxIterations 100, got %v", cfg.MaxIterations)
	}
	if cfg.EstimateInterval == nil || *cfg.EstimateInterval != "500ms" {
		t.Errorf("Expected EstimateInterval '500ms', got %v", cfg.EstimateInterval)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "minimum_points": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "full config is valid",
			cfg: &TuningConfig{
				MinimumPoints:    ptrInt(10),
				MaximumPoints:    ptrInt(5000),
				RandomSeed:       ptrInt64(42),
				Smoother:         ptrString(SmootherDoubleExponential),
				SmoothingLevel:   ptrFloat64(0.5),
				SmoothingTrend:   ptrFloat64(0.3),
				MaxIterations:    ptrInt(200),
				EstimateInterval: ptrString("2s"),
			},
			wantErr: false,
		},
		{
			name: "minimum points too low",
			cfg: &TuningConfig{
				MinimumPoints: ptrInt(1),
			},
			wantErr: true,
		},
		{
			name: "maximum below minimum",
			cfg: &TuningConfig{
				MinimumPoints: ptrInt(100),
				MaximumPoints: ptrInt(50),
			},
			wantErr: true,
		},
		{
			name: "unknown smoother",
			cfg: &TuningConfig{
				Smoother: ptrString("kalman"),
			},
			wantErr: true,
		},
		{
			name: "smoothing level zero",
			cfg: &TuningConfig{
				SmoothingLevel: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "smoothing level too high",
			cfg: &TuningConfig{
				SmoothingLevel: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "smoothing trend negative",
			cfg: &TuningConfig{
				SmoothingTrend: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "max iterations zero",
			cfg: &TuningConfig{
				MaxIterations: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "invalid estimate interval",
			cfg: &TuningConfig{
				EstimateInterval: ptrString("invalid"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEstimateInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "2 seconds",
			cfg: &TuningConfig{
				EstimateInterval: ptrString("2s"),
			},
			want: 2 * time.Second,
		},
		{
			name: "250 milliseconds",
			cfg: &TuningConfig{
				EstimateInterval: ptrString("250ms"),
			},
			want: 250 * time.Millisecond,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: 2 * time.Second,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				EstimateInterval: ptrString(""),
			},
			want: 2 * time.Second,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				EstimateInterval: ptrString("invalid"),
			},
			want: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetEstimateInterval()
			if got != tt.want {
				t.Errorf("GetEstimateInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := &TuningConfig{} // empty config

	if cfg.GetMinimumPoints() != 10 {
		t.Errorf("GetMinimumPoints() = %d, want 10", cfg.GetMinimumPoints())
	}
	if cfg.GetMaximumPoints() != 5000 {
		t.Errorf("GetMaximumPoints() = %d, want 5000", cfg.GetMaximumPoints())
	}
	if cfg.GetRandomSeed() != 0 {
		t.Errorf("GetRandomSeed() = %d, want 0", cfg.GetRandomSeed())
	}
	if cfg.GetSmootherName() != SmootherDoubleExponential {
		t.Errorf("GetSmootherName() = %q, want %q", cfg.GetSmootherName(), SmootherDoubleExponential)
	}
	if cfg.GetSmoothingLevel() != 0.5 {
		t.Errorf("GetSmoothingLevel() = %f, want 0.5", cfg.GetSmoothingLevel())
	}
	if cfg.GetSmoothingTrend() != 0.3 {
		t.Errorf("GetSmoothingTrend() = %f, want 0.3", cfg.GetSmoothingTrend())
	}
	if cfg.GetMaxIterations() != 200 {
		t.Errorf("GetMaxIterations() = %d, want 200", cfg.GetMaxIterations())
	}
	if cfg.GetEstimateInterval() != 2*time.Second {
		t.Errorf("GetEstimateInterval() = %v, want 2s", cfg.GetEstimateInterval())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override minimum_points; everything else should
	// keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "minimum_points": 25
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetMinimumPoints() != 25 {
		t.Errorf("Expected overridden MinimumPoints 25, got %d", cfg.GetMinimumPoints())
	}
	// Default values should be preserved
	if cfg.GetMaximumPoints() != 5000 {
		t.Errorf("Expected default MaximumPoints 5000, got %d", cfg.GetMaximumPoints())
	}
	if cfg.GetSmootherName() != SmootherDoubleExponential {
		t.Errorf("Expected default smoother, got %q", cfg.GetSmootherName())
	}
	if cfg.GetEstimateInterval() != 2*time.Second {
		t.Errorf("Expected default EstimateInterval 2s, got %v", cfg.GetEstimateInterval())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetMinimumPoints() != 10 {
		t.Errorf("Expected 10, got %d", cfg.GetMinimumPoints())
	}
	if cfg.GetSmootherName() != SmootherDoubleExponential {
		t.Errorf("Expected %q, got %q", SmootherDoubleExponential, cfg.GetSmootherName())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetMinimumPoints() != 20 {
		t.Errorf("Expected 20, got %d", cfg.GetMinimumPoints())
	}
	if cfg.GetSmootherName() != SmootherLowPass {
		t.Errorf("Expected %q, got %q", SmootherLowPass, cfg.GetSmootherName())
	}
}

func TestBuildSmoother(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want smoothing.Smoother
	}{
		{
			name: "default double exponential",
			cfg:  &TuningConfig{},
			want: &smoothing.DoubleExponential{Alpha: 0.5, Beta: 0.3},
		},
		{
			name: "tuned double exponential",
			cfg: &TuningConfig{
				Smoother:       ptrString(SmootherDoubleExponential),
				SmoothingLevel: ptrFloat64(0.8),
				SmoothingTrend: ptrFloat64(0.1),
			},
			want: &smoothing.DoubleExponential{Alpha: 0.8, Beta: 0.1},
		},
		{
			name: "lowpass",
			cfg: &TuningConfig{
				Smoother:       ptrString(SmootherLowPass),
				SmoothingLevel: ptrFloat64(0.25),
			},
			want: &smoothing.LowPass{Alpha: 0.25},
		},
		{
			name: "none",
			cfg: &TuningConfig{
				Smoother: ptrString(SmootherNone),
			},
			want: smoothing.Passthrough{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.BuildSmoother()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildSmoother() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEstimatorConfig(t *testing.T) {
	cfg := &TuningConfig{
		MinimumPoints: ptrInt(15),
		MaximumPoints: ptrInt(300),
		MaxIterations: ptrInt(50),
		RandomSeed:    ptrInt64(42),
	}

	est := cfg.EstimatorConfig()
	if est.MinPoints != 15 {
		t.Errorf("MinPoints = %d, want 15", est.MinPoints)
	}
	if est.MaxPoints != 300 {
		t.Errorf("MaxPoints = %d, want 300", est.MaxPoints)
	}
	if est.Optimizer.MaxIterations != 50 {
		t.Errorf("Optimizer.MaxIterations = %d, want 50", est.Optimizer.MaxIterations)
	}
	if est.Rand == nil {
		t.Error("Expected seeded Rand for random_seed 42, got nil")
	}
	if est.Smoother == nil {
		t.Error("Expected a smoother, got nil")
	}

	// Without a seed the estimator seeds itself from the clock.
	unseeded := (&TuningConfig{}).EstimatorConfig()
	if unseeded.Rand != nil {
		t.Error("Expected nil Rand without random_seed, got one")
	}
}
