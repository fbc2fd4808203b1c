package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arborix/synthcore/config"
	"github.com/arborix/synthcore/dp"
	"github.com/arborix/synthcore/persist"
)

func runProtect(args []string) error {
	fs := flag.NewFlagSet("protect", flag.ExitOnError)
	in := fs.String("in", "", "input aggregate artifact path")
	out := fs.String("out", "", "output protected artifact path")
	configPath := fs.String("config", "", "synthcore config YAML (optional)")
	kanon := fs.Bool("kanon", false, "apply k-anonymity rounding before DP noise")
	noNoise := fs.Bool("no-noise", false, "skip the analytic-Gaussian noise aggregator")
	seed := fs.Int64("seed", 0, "RNG seed (0 = random)")
	fs.Parse(args)

	if *in == "" || *out == "" {
		return fmt.Errorf("protect: -in and -out are required")
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("protect: opening %s: %w", *in, err)
	}
	data, _, err := persist.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("protect: decoding artifact: %w", err)
	}

	logger := log.New(os.Stderr, "synthcore: ", log.LstdFlags)
	rng := newRNG(*seed)

	if *kanon {
		data.ProtectWithKAnonymity(cfg.Resolution)
		logger.Printf("k-anonymity rounding (k=%d): %d combinations remain", cfg.Resolution, data.Len())
	}

	if !*noNoise {
		n := data.Block.NumRecords()
		delta := cfg.Delta
		recordsEps, marginalsEps := cfg.Epsilon, cfg.Epsilon
		if cfg.NumberOfRecordsEpsilonProportion > 0 {
			var err error
			recordsEps, marginalsEps, err = dp.SplitRecordsBudget(cfg.Epsilon, cfg.NumberOfRecordsEpsilonProportion)
			if err != nil {
				return fmt.Errorf("protect: %w", err)
			}
			protected, err := dp.ProtectRecordCount(n, recordsEps, rng)
			if err != nil {
				return fmt.Errorf("protect: %w", err)
			}
			data.ProtectedRecordCount = &protected
			n = protected
		}
		if delta <= 0 {
			var err error
			delta, err = dp.DefaultDelta(n)
			if err != nil {
				return fmt.Errorf("protect: %w", err)
			}
		}

		var filter *dp.FilterParams
		if cfg.PercentileEpsilonProportion > 0 {
			filter = &dp.FilterParams{
				Percentage: cfg.PercentilePercentage,
				Epsilon:    marginalsEps * cfg.PercentileEpsilonProportion,
			}
			marginalsEps -= filter.Epsilon
		}

		policy := dp.ThresholdFixed
		switch cfg.ThresholdType {
		case config.ThresholdTypeAdaptive:
			policy = dp.ThresholdAdaptive
		case config.ThresholdTypeMaxFabrication:
			policy = dp.ThresholdMaxFabrication
		}

		dp.MakeAggregatesNoisy(data, dp.NoiseParams{
			Epsilon:          marginalsEps,
			Delta:            delta,
			SigmaProportions: cfg.SigmaProportions,
			ThresholdPolicy:  policy,
			ThresholdValue:   cfg.ThresholdValue,
			Filter:           filter,
		}, rng)
		logger.Printf("noise addition complete: %d combinations survive", data.Len())
	}

	out2, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("protect: creating %s: %w", *out, err)
	}
	defer out2.Close()
	runID, err := persist.Encode(data, out2)
	if err != nil {
		return fmt.Errorf("protect: encoding artifact: %w", err)
	}
	logger.Printf("wrote protected artifact (run %s)", runID)
	return nil
}
