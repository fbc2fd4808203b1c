// Command synthcore is the CLI front end for the synthcore library:
// three subcommands covering the data flow of spec.md §2 — aggregate
// raw CSV into a persisted artifact, protect that artifact with the DP
// pipeline, and synthesize CSV output from a (usually DP-protected)
// artifact.
//
// Flat CSV reading here is the thinnest possible adapter over the core
// library, not a reimplementation of the multi-value-column CSV
// joining spec.md §1 excludes from scope.
package main

import (
	"fmt"
	"math/rand"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		exitf("usage: synthcore <aggregate|protect|synthesize> [flags]")
	}
	var err error
	switch os.Args[1] {
	case "aggregate":
		err = runAggregate(os.Args[2:])
	case "protect":
		err = runProtect(os.Args[2:])
	case "synthesize":
		err = runSynthesize(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printHelp()
		return
	default:
		exitf("unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		exit(err)
	}
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "usage: synthcore <aggregate|protect|synthesize> [flags]")
	fmt.Fprintln(os.Stderr, "  aggregate   -in data.csv -out aggregates.bin -config synthcore.yaml")
	fmt.Fprintln(os.Stderr, "  protect     -in aggregates.bin -out protected.bin -config synthcore.yaml")
	fmt.Fprintln(os.Stderr, "  synthesize  -in protected.bin -out synthetic.csv -config synthcore.yaml")
}

func exitf(f string, args ...any) {
	exit(fmt.Errorf(f, args...))
}

// exit prints a single-line diagnostic and exits non-zero, matching
// spec.md §6's exit-condition contract.
func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(rand.Int63()))
	}
	return rand.New(rand.NewSource(seed))
}
