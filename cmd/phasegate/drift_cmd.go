package main

import (
	"flag"
	"fmt"

	"phasegate/pkg/drift"
)

func cmdDrift(args []string) int {
	if len(args) < 1 {
		return usageError("drift requires a subcommand")
	}

	switch args[0] {
	case "check":
		return driftCheck(args[1:])
	case "auto-fix":
		return driftAutoFix(args[1:])
	default:
		return usageError("unknown drift subcommand %q", args[0])
	}
}

func driftCheck(args []string) int {
	var (
		root     string
		wave     int
		phaseArg string
	)
	fs := flag.NewFlagSet("drift check", flag.ContinueOnError)
	fs.StringVar(&root, "root", ".", "Workspace root directory")
	fs.IntVar(&wave, "wave", -1, "Wave number")
	fs.StringVar(&phaseArg, "phase", "", "Check a single phase instead of all")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if wave < 0 {
		return usageError("drift check requires --wave")
	}

	d, err := bootstrap(root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	detector := drift.NewDetector(d.root, d.graph, d.store, d.provider)

	if phaseArg != "" {
		ph, err := parsePhaseFlag(phaseArg)
		if err != nil {
			return usageError("%v", err)
		}
		result, err := detector.Check(wave, ph)
		if err != nil {
			return fail("drift check failed: %v", err)
		}
		fmt.Printf("%s: %s\n", ph, result)
		if result == drift.Drifted {
			return exitFailure
		}
		return exitOK
	}

	results, err := detector.CheckAll(wave)
	if err != nil {
		return fail("drift check failed: %v", err)
	}

	drifted := false
	for _, ph := range d.graph.Phases() {
		result, ok := results[ph]
		if !ok {
			continue
		}
		fmt.Printf("%-16s %s\n", ph, result)
		if result == drift.Drifted {
			drifted = true
		}
	}
	if drifted {
		return exitFailure
	}
	return exitOK
}

func driftAutoFix(args []string) int {
	var (
		root string
		wave int
	)
	fs := flag.NewFlagSet("drift auto-fix", flag.ContinueOnError)
	fs.StringVar(&root, "root", ".", "Workspace root directory")
	fs.IntVar(&wave, "wave", -1, "Wave number")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if wave < 0 {
		return usageError("drift auto-fix requires --wave")
	}

	d, err := bootstrap(root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	report, err := drift.NewDetector(d.root, d.graph, d.store, d.provider).AutoFix(wave)
	if err != nil {
		return fail("auto-fix failed: %v", err)
	}

	if report.Fixed == nil {
		fmt.Println("No drift detected")
		return exitOK
	}
	fmt.Printf("Drift at phase %s: invalidated %d lock(s)\n", *report.Fixed, report.Invalidated)
	fmt.Println("Re-run drift auto-fix to check for further drift, or orchestrate to re-validate")
	return exitOK
}
