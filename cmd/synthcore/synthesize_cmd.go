package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arborix/synthcore/config"
	"github.com/arborix/synthcore/internal/lrucache"
	"github.com/arborix/synthcore/persist"
	"github.com/arborix/synthcore/progress"
	"github.com/arborix/synthcore/synth"
)

func runSynthesize(args []string) error {
	fs := flag.NewFlagSet("synthesize", flag.ExitOnError)
	in := fs.String("in", "", "input (protected) aggregate artifact path")
	out := fs.String("out", "", "output synthetic CSV path")
	configPath := fs.String("config", "", "synthcore config YAML (optional)")
	target := fs.Int("count", 0, "target synthesized record count (0 = until residuals exhaust once)")
	emptyValue := fs.String("empty", "", "placeholder for columns with no attribute")
	seed := fs.Int64("seed", 0, "RNG seed (0 = random)")
	fs.Parse(args)

	if *in == "" || *out == "" {
		return fmt.Errorf("synthesize: -in and -out are required")
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
		return fmt.Errorf("synthesize: opening %s: %w", *in, err)
	}
	data, _, err := persist.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("synthesize: decoding artifact: %w", err)
	}

	logger := log.New(os.Stderr, "synthcore: ", log.LstdFlags)
	reporter := progress.Func(func(frac float64) progress.Signal {
		logger.Printf("synthesizing: %.1f%%", frac)
		return progress.Continue
	})
	rng := newRNG(*seed)

	s := &synth.Synthesizer{
		UseSyntheticCounts: cfg.UseSyntheticCounts,
		OversamplingRatio:  cfg.OversamplingRatio,
		OversamplingTries:  cfg.OversamplingTries,
		Resolution:         cfg.Resolution,
	}

	var records []synth.Record
	var cancelled bool
	switch cfg.SynthesisMode {
	case config.ModeRowSeeded:
		cache := lrucache.New(cfg.CacheMaxSize)
		records, cancelled = s.SynthesizeRowSeeded(data, cache, *target, rng, reporter)
	default:
		records, cancelled = s.Synthesize(data, *target, rng, reporter)
	}
	if cancelled {
		logger.Printf("synthesis cancelled")
		return nil
	}

	headers := data.Block.Headers()
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.ToRow(headers, *emptyValue)
	}
	if err := writeCSV(*out, headers, rows); err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	logger.Printf("wrote %d synthetic records", len(records))
	return nil
}
