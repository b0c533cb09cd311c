package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/daniacca/geosim/internal/earth"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("geosim-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		runConfigFile = fs.String("run-config", "", "path to run config JSON file (optional, defaults to the standard run)")
		ticks         = fs.Int("ticks", 0, "number of ticks to run (0 runs the configured duration)")
		printEvents   = fs.Bool("events", false, "print every geological event")
		snapshotOut   = fs.String("snapshot-out", "", "write the final snapshot as JSON to this path")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *ticks < 0 {
		fmt.Fprintf(stderr, "error: --ticks must not be negative\n")
		return 2
	}

	rc := earth.RunConfig{TimeStepMy: 1, TotalDurationMy: 100}
	if *runConfigFile != "" {
		var err error
		if rc, err = loadRunConfigFromFile(*runConfigFile); err != nil {
			fmt.Fprintf(stderr, "error loading run config: %v\n", err)
			return 1
		}
	}

	cfg, err := earth.BuildSimulationConfig(rc, nil)
	if err != nil {
		fmt.Fprintf(stderr, "error building simulation: %v\n", err)
		return 1
	}
	clock, err := earth.NewSimulationClock(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error creating clock: %v\n", err)
		return 1
	}

	var snap earth.EarthStateSnapshot
	if *ticks == 0 {
		snap, err = clock.RunToCompletion()
	} else {
		for i := 0; i < *ticks; i++ {
			if _, err = clock.Tick(cfg.TimeStepMy); err != nil {
				break
			}
		}
		snap = clock.Snapshot()
	}
	if err != nil {
		fmt.Fprintf(stderr, "simulation stopped: %v\n", err)
		return 1
	}

	events, err := clock.ReplayEvents(cfg.MinYearMy, snap.TimeMy)
	if err != nil {
		fmt.Fprintf(stderr, "error reading events: %v\n", err)
		return 1
	}
	if *printEvents {
		for _, ev := range events {
			fmt.Fprintf(stdout, "%10.3f My  %-14s %-12s magnitude=%.3f\n", ev.TimestampMy, ev.Kind, ev.Entity, ev.Magnitude)
		}
	}

	if *snapshotOut != "" {
		data, err := earth.EncodeSnapshotJSON(snap)
		if err != nil {
			fmt.Fprintf(stderr, "error encoding snapshot: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*snapshotOut, data, 0o644); err != nil {
			fmt.Fprintf(stderr, "error writing snapshot: %v\n", err)
			return 1
		}
	}

	printSummary(stdout, snap, events)
	return 0
}

func loadRunConfigFromFile(path string) (earth.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return earth.RunConfig{}, fmt.Errorf("reading run config file: %w", err)
	}

	var rc earth.RunConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return earth.RunConfig{}, fmt.Errorf("parsing run config JSON: %w", err)
	}
	return rc, nil
}

func printSummary(w io.Writer, snap earth.EarthStateSnapshot, events []earth.GeologicalEvent) {
	fmt.Fprintf(w, "Simulation finished (ticks=%d, time=%.3f My)\n", snap.Tick, snap.TimeMy)

	fmt.Fprintln(w, "Layers:")
	for _, l := range snap.Layers {
		fmt.Fprintf(w, "  %-18s %8.1f C %9.2f km\n", l.Kind, l.TemperatureC, l.ThicknessKm)
	}

	counts := make(map[earth.EventKind]int)
	for _, ev := range events {
		counts[ev.Kind]++
	}
	fmt.Fprintln(w, "Event counts:")
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %s: %d\n", kind, counts[kind])
	}

	fmt.Fprintln(w, "Soil:")
	for _, m := range slices.Sorted(maps.Keys(snap.Soil.MineralDistribution)) {
		fmt.Fprintf(w, "  %s: %.3f\n", m, snap.Soil.MineralDistribution[m])
	}
}
