package config

import (
	"path/filepath"
	"testing"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synthcore.yaml")

	cfg := Default()
	cfg.Epsilon = 1.5
	cfg.Delta = 1e-6
	cfg.ReportingLength = 3
	cfg.SigmaProportions = []float64{0.3, 0.3, 0.4}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Epsilon != cfg.Epsilon || got.Delta != cfg.Delta || got.ReportingLength != cfg.ReportingLength {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, cfg)
	}
	if len(got.SigmaProportions) != 3 {
		t.Errorf("sigmaProportions round trip: got %v", got.SigmaProportions)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []Config{
		{Resolution: -1},
		{SensitivityThreshold: -1},
		{ReportingLength: -1},
		{RecordLimit: -1},
		{CacheMaxSize: -1},
		{SynthesisMode: "bogus"},
		{ThresholdType: "bogus"},
		{OversamplingRatio: -0.1},
		{Epsilon: -1},
		{Delta: 1},
		{PercentilePercentage: 101},
		{NumberOfRecordsEpsilonProportion: 1},
		{ReportingLength: 2, SigmaProportions: []float64{0.5, 0.3, 0.2}},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: Validate() = nil, want error for %+v", i, c)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}
