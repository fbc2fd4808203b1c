package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/config"
	"github.com/arborix/synthcore/persist"
	"github.com/arborix/synthcore/progress"
)

func runAggregate(args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	in := fs.String("in", "", "input CSV path")
	out := fs.String("out", "", "output aggregate artifact path")
	configPath := fs.String("config", "", "synthcore config YAML (optional)")
	workers := fs.Int("workers", 0, "aggregator worker count (0 = NumCPU)")
	fs.Parse(args)

	if *in == "" || *out == "" {
		return fmt.Errorf("aggregate: -in and -out are required")
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

	block, err := readCSV(*in, cfg)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "synthcore: ", log.LstdFlags)
	reporter := progress.Func(func(frac float64) progress.Signal {
		logger.Printf("aggregating: %.1f%%", frac)
		return progress.Continue
	})

	agg := &aggregate.Aggregator{Workers: *workers, SensitivityThreshold: cfg.SensitivityThreshold}
	data, cancelled, err := agg.Aggregate(block, cfg.ReportingLength, reporter)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}
	if cancelled {
		logger.Printf("aggregation cancelled")
		return nil
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("aggregate: creating %s: %w", *out, err)
	}
	defer f.Close()
	runID, err := persist.Encode(data, f)
	if err != nil {
		return fmt.Errorf("aggregate: encoding artifact: %w", err)
	}
	logger.Printf("wrote %d combinations (run %s)", data.Len(), runID)

	summary := aggregate.Summarize(data, cfg.Resolution)
	logger.Printf("risk summary: %d record(s) touch a combination below resolution %d",
		summary.RecordsWithRareCombinations, cfg.Resolution)
	for l := 1; l <= data.ReportingLength; l++ {
		logger.Printf("  length %d: %d combination(s), total count %d",
			l, summary.CombinationsByLength[l], summary.TotalCountByLength[l])
	}
	return nil
}
