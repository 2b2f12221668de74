package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/curvefit"
	"github.com/banshee-data/boptrack/internal/smoothing"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Smoother names accepted by the "smoother" field.
const (
	SmootherDoubleExponential = "double_exponential"
	SmootherLowPass           = "lowpass"
	SmootherNone              = "none"
)

// TuningConfig represents the root configuration for tuning parameters.
// Every field is optional; the Get accessors fall back to the built-in
// defaults for fields the JSON omits.
type TuningConfig struct {
	// Estimator params
	MinimumPoints *int   `json:"minimum_points,omitempty"`
	MaximumPoints *int   `json:"maximum_points,omitempty"`
	RandomSeed    *int64 `json:"random_seed,omitempty"` // omitted or 0 seeds from the clock

	// Smoother params
	Smoother       *string  `json:"smoother,omitempty"`
	SmoothingLevel *float64 `json:"smoothing_level,omitempty"` // alpha
	SmoothingTrend *float64 `json:"smoothing_trend,omitempty"` // beta, double_exponential only

	// Fit params
	MaxIterations *int `json:"max_iterations,omitempty"`

	// Session params
	EstimateInterval *string `json:"estimate_interval,omitempty"` // duration string like "2s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinimumPoints != nil {
		if *c.MinimumPoints < 2 {
			return fmt.Errorf("minimum_points must be at least 2, got %d", *c.MinimumPoints)
		}
	}

	if c.MaximumPoints != nil {
		if *c.MaximumPoints < 1 {
			return fmt.Errorf("maximum_points must be positive, got %d", *c.MaximumPoints)
		}
		if c.MinimumPoints != nil && *c.MaximumPoints < *c.MinimumPoints {
			return fmt.Errorf("maximum_points (%d) must not be below minimum_points (%d)",
				*c.MaximumPoints, *c.MinimumPoints)
		}
	}

	if c.Smoother != nil {
		switch *c.Smoother {
		case SmootherDoubleExponential, SmootherLowPass, SmootherNone:
		default:
			return fmt.Errorf("unknown smoother %q", *c.Smoother)
		}
	}

	if c.SmoothingLevel != nil {
		if *c.SmoothingLevel <= 0 || *c.SmoothingLevel > 1 {
			return fmt.Errorf("smoothing_level must be in (0, 1], got %f", *c.SmoothingLevel)
		}
	}

	if c.SmoothingTrend != nil {
		if *c.SmoothingTrend <= 0 || *c.SmoothingTrend > 1 {
			return fmt.Errorf("smoothing_trend must be in (0, 1], got %f", *c.SmoothingTrend)
		}
	}

	if c.MaxIterations != nil {
		if *c.MaxIterations < 1 {
			return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
		}
	}

	// Validate EstimateInterval can be parsed if set
	if c.EstimateInterval != nil && *c.EstimateInterval != "" {
		if _, err := time.ParseDuration(*c.EstimateInterval); err != nil {
			return fmt.Errorf("invalid estimate_interval '%s': %w", *c.EstimateInterval, err)
		}
	}

	return nil
}

// GetMinimumPoints returns the minimum_points value or the default.
func (c *TuningConfig) GetMinimumPoints() int {
	if c.MinimumPoints == nil {
		return 10 // default
	}
	return *c.MinimumPoints
}

// GetMaximumPoints returns the maximum_points value or the default.
func (c *TuningConfig) GetMaximumPoints() int {
	if c.MaximumPoints == nil {
		return 5000 // default
	}
	return *c.MaximumPoints
}

// GetRandomSeed returns the random_seed value or 0, meaning seed from the clock.
func (c *TuningConfig) GetRandomSeed() int64 {
	if c.RandomSeed == nil {
		return 0
	}
	return *c.RandomSeed
}

// GetSmootherName returns the smoother value or the default.
func (c *TuningConfig) GetSmootherName() string {
	if c.Smoother == nil || *c.Smoother == "" {
		return SmootherDoubleExponential // default
	}
	return *c.Smoother
}

// GetSmoothingLevel returns the smoothing_level value or the default.
func (c *TuningConfig) GetSmoothingLevel() float64 {
	if c.SmoothingLevel == nil {
		return 0.5
	}
	return *c.SmoothingLevel
}

// GetSmoothingTrend returns the smoothing_trend value or the default.
func (c *TuningConfig) GetSmoothingTrend() float64 {
	if c.SmoothingTrend == nil {
		return 0.3
	}
	return *c.SmoothingTrend
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 200
	}
	return *c.MaxIterations
}

// GetEstimateInterval parses and returns the EstimateInterval as a time.Duration.
func (c *TuningConfig) GetEstimateInterval() time.Duration {
	if c.EstimateInterval == nil || *c.EstimateInterval == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.EstimateInterval)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// BuildSmoother constructs the configured smoother implementation.
func (c *TuningConfig) BuildSmoother() smoothing.Smoother {
	switch c.GetSmootherName() {
	case SmootherLowPass:
		return &smoothing.LowPass{Alpha: c.GetSmoothingLevel()}
	case SmootherNone:
		return smoothing.Passthrough{}
	default:
		return &smoothing.DoubleExponential{
			Alpha: c.GetSmoothingLevel(),
			Beta:  c.GetSmoothingTrend(),
		}
	}
}

// EstimatorConfig assembles the estimator settings from the tuning values.
func (c *TuningConfig) EstimatorConfig() bop.Config {
	cfg := bop.Config{
		MinPoints: c.GetMinimumPoints(),
		MaxPoints: c.GetMaximumPoints(),
		Smoother:  c.BuildSmoother(),
		Optimizer: curvefit.DefaultConfig(),
	}
	cfg.Optimizer.MaxIterations = c.GetMaxIterations()
	if seed := c.GetRandomSeed(); seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(seed))
	}
	return cfg
}
