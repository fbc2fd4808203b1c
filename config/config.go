// Package config defines synthcore's external configuration surface: a
// plain Go struct decoded from YAML via sigs.k8s.io/yaml's "unmarshal
// YAML into JSON tags" idiom, the same approach the teacher's db
// package uses for its schema definitions.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// SynthesisMode selects how synthetic records are generated.
type SynthesisMode string

const (
	ModeRowSeeded       SynthesisMode = "row-seeded"
	ModeUnseeded        SynthesisMode = "unseeded"
	ModeValueSeeded     SynthesisMode = "value-seeded"
	ModeAggregateSeeded SynthesisMode = "aggregate-seeded"
)

// ThresholdType selects the noise-aggregator's per-level suppression
// threshold policy.
type ThresholdType string

const (
	ThresholdTypeFixed          ThresholdType = "fixed"
	ThresholdTypeAdaptive       ThresholdType = "adaptive"
	ThresholdTypeMaxFabrication ThresholdType = "max-fabrication"
)

// Config is synthcore's full set of run parameters (spec.md §6).
type Config struct {
	// Resolution is k in k-anonymity rounding and the suppression
	// phase's minimum-count floor.
	Resolution int `json:"resolution"`
	// SensitivityThreshold is T, the aggregator's per-record
	// sensitivity cutoff used by the record-attribute selector: a record
	// whose number of length-1..L combinations exceeds T has attributes
	// dropped until it fits. 0 means no cutoff. Distinct from
	// Resolution: T bounds how many combinations a single record may
	// contribute, while Resolution bounds how small a combination's
	// count may get before rounding/suppression.
	SensitivityThreshold int `json:"sensitivityThreshold"`
	// ReportingLength is the maximum combination length tracked; 0
	// means "every column".
	ReportingLength int `json:"reportingLength"`
	// RecordLimit takes only the first N input records; 0 means all.
	RecordLimit int `json:"recordLimit"`
	// UseColumns whitelists input columns by name; empty means all.
	UseColumns []string `json:"useColumns,omitempty"`
	// SensitiveZeros lists columns in which the literal value "0" is
	// retained rather than treated as an absent attribute.
	SensitiveZeros []string `json:"sensitiveZeros,omitempty"`
	// CacheMaxSize is the row-intersection LRU cache's capacity, used
	// during row-seeded synthesis.
	CacheMaxSize int `json:"cacheMaxSize"`

	SynthesisMode SynthesisMode `json:"synthesisMode"`

	OversamplingRatio  float64 `json:"oversamplingRatio"`
	OversamplingTries  int     `json:"oversamplingTries"`
	UseSyntheticCounts bool    `json:"useSyntheticCounts"`

	Epsilon                        float64 `json:"epsilon"`
	Delta                          float64 `json:"delta"`
	PercentilePercentage           float64 `json:"percentilePercentage"`
	PercentileEpsilonProportion    float64 `json:"percentileEpsilonProportion"`
	SigmaProportions               []float64 `json:"sigmaProportions,omitempty"`
	NumberOfRecordsEpsilonProportion float64 `json:"numberOfRecordsEpsilonProportion"`

	ThresholdType  ThresholdType `json:"thresholdType"`
	ThresholdValue float64       `json:"thresholdValue"`
}

// Default returns the configuration synthcore falls back to when a
// caller omits a value: aggregate-seeded synthesis, a fixed threshold
// of 0, and no per-length sigma-proportion override (even split).
func Default() Config {
	return Config{
		Resolution:            5,
		CacheMaxSize:          4096,
		SynthesisMode:         ModeAggregateSeeded,
		OversamplingTries:     3,
		PercentilePercentage:  50,
		ThresholdType:         ThresholdTypeFixed,
	}
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks cfg for the Configuration error class of spec.md §7:
// invalid parameters are surfaced as fatal errors before any ingestion
// or DP work begins.
func (c Config) Validate() error {
	if c.Resolution < 0 {
		return fmt.Errorf("config: resolution must be >= 0, got %d", c.Resolution)
	}
	if c.SensitivityThreshold < 0 {
		return fmt.Errorf("config: sensitivityThreshold must be >= 0, got %d", c.SensitivityThreshold)
	}
	if c.ReportingLength < 0 {
		return fmt.Errorf("config: reportingLength must be >= 0, got %d", c.ReportingLength)
	}
	if c.RecordLimit < 0 {
		return fmt.Errorf("config: recordLimit must be >= 0, got %d", c.RecordLimit)
	}
	if c.CacheMaxSize < 0 {
		return fmt.Errorf("config: cacheMaxSize must be >= 0, got %d", c.CacheMaxSize)
	}
	switch c.SynthesisMode {
	case ModeRowSeeded, ModeUnseeded, ModeValueSeeded, ModeAggregateSeeded, "":
	default:
		return fmt.Errorf("config: unknown synthesisMode %q", c.SynthesisMode)
	}
	switch c.ThresholdType {
	case ThresholdTypeFixed, ThresholdTypeAdaptive, ThresholdTypeMaxFabrication, "":
	default:
		return fmt.Errorf("config: unknown thresholdType %q", c.ThresholdType)
	}
	if c.OversamplingRatio < 0 {
		return fmt.Errorf("config: oversamplingRatio must be >= 0, got %g", c.OversamplingRatio)
	}
	if c.OversamplingTries < 0 {
		return fmt.Errorf("config: oversamplingTries must be >= 0, got %d", c.OversamplingTries)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("config: epsilon must be >= 0, got %g", c.Epsilon)
	}
	if c.Delta < 0 || c.Delta >= 1 {
		return fmt.Errorf("config: delta must be in [0, 1), got %g", c.Delta)
	}
	if c.PercentilePercentage < 0 || c.PercentilePercentage > 100 {
		return fmt.Errorf("config: percentilePercentage must be in [0, 100], got %g", c.PercentilePercentage)
	}
	if c.PercentileEpsilonProportion < 0 || c.PercentileEpsilonProportion > 1 {
		return fmt.Errorf("config: percentileEpsilonProportion must be in [0, 1], got %g", c.PercentileEpsilonProportion)
	}
	if c.NumberOfRecordsEpsilonProportion < 0 || c.NumberOfRecordsEpsilonProportion >= 1 {
		return fmt.Errorf("config: numberOfRecordsEpsilonProportion must be in [0, 1), got %g", c.NumberOfRecordsEpsilonProportion)
	}
	if len(c.SigmaProportions) > 0 && c.ReportingLength > 0 && len(c.SigmaProportions) != c.ReportingLength {
		return fmt.Errorf("config: sigmaProportions has %d entries, want %d (reportingLength)", len(c.SigmaProportions), c.ReportingLength)
	}
	return nil
}
