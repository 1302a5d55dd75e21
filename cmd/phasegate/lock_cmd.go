package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"phasegate/pkg/lock"
	"phasegate/pkg/phase"
)

func cmdLock(args []string) int {
	if len(args) < 1 {
		return usageError("lock requires a subcommand")
	}

	switch args[0] {
	case "create":
		return lockCreate(args[1:])
	case "validate":
		return lockValidate(args[1:])
	case "invalidate":
		return lockInvalidate(args[1:])
	case "status":
		return lockStatus(args[1:])
	default:
		return usageError("unknown lock subcommand %q", args[0])
	}
}

// lockFlags are the flags shared by the lock subcommands.
type lockFlags struct {
	root    string
	wave    int
	phase   string
	reason  string
	cascade bool
	asJSON  bool
}

func newLockFlagSet(name string, lf *lockFlags, withPhase bool) *flag.FlagSet {
	fs := flag.NewFlagSet("lock "+name, flag.ContinueOnError)
	fs.StringVar(&lf.root, "root", ".", "Workspace root directory")
	fs.IntVar(&lf.wave, "wave", -1, "Wave number")
	if withPhase {
		fs.StringVar(&lf.phase, "phase", "", "Phase name or number")
	}
	return fs
}

func lockCreate(args []string) int {
	var lf lockFlags
	var checksJSON string
	fs := newLockFlagSet("create", &lf, true)
	fs.StringVar(&checksJSON, "checks", "", "Check payload to record, as a JSON object")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if lf.wave < 0 || lf.phase == "" {
		return usageError("lock create requires --wave and --phase")
	}
	ph, err := parsePhaseFlag(lf.phase)
	if err != nil {
		return usageError("%v", err)
	}

	var checks map[string]any
	if checksJSON != "" {
		if err := json.Unmarshal([]byte(checksJSON), &checks); err != nil {
			return usageError("invalid --checks payload: %v", err)
		}
	}

	d, err := bootstrap(lf.root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	sum, err := d.provider.Compute(lf.wave, ph, d.root)
	if err != nil {
		return fail("checksum failed: %v", err)
	}

	prevSum := ""
	if pred, ok := d.graph.PredecessorOf(ph); ok {
		if predLock, err := d.store.Read(lf.wave, pred); err == nil {
			prevSum = predLock.Checksum
		}
	}

	lk, err := d.store.Create(lf.wave, ph, sum, prevSum, checks)
	if err != nil {
		return fail("failed to create lock: %v", err)
	}
	fmt.Printf("Created lock: wave %d, phase %s, checksum %s\n", lf.wave, ph, lk.Checksum)
	return exitOK
}

func lockValidate(args []string) int {
	var lf lockFlags
	fs := newLockFlagSet("validate", &lf, true)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if lf.wave < 0 || lf.phase == "" {
		return usageError("lock validate requires --wave and --phase")
	}
	ph, err := parsePhaseFlag(lf.phase)
	if err != nil {
		return usageError("%v", err)
	}

	d, err := bootstrap(lf.root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	valid, reason := d.store.Validate(lf.wave, ph)
	if valid {
		fmt.Printf("VALID: wave %d, phase %s\n", lf.wave, ph)
		return exitOK
	}
	fmt.Printf("INVALID: wave %d, phase %s: %s\n", lf.wave, ph, reason)
	return exitFailure
}

func lockInvalidate(args []string) int {
	var lf lockFlags
	fs := newLockFlagSet("invalidate", &lf, true)
	fs.StringVar(&lf.reason, "reason", "operator request", "Reason recorded on the lock")
	fs.BoolVar(&lf.cascade, "cascade", false, "Also invalidate downstream phases")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if lf.wave < 0 || lf.phase == "" {
		return usageError("lock invalidate requires --wave and --phase")
	}
	if lf.reason == "" {
		lf.reason = "operator request"
	}
	ph, err := parsePhaseFlag(lf.phase)
	if err != nil {
		return usageError("%v", err)
	}

	d, err := bootstrap(lf.root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	count, err := d.store.Invalidate(lf.wave, ph, lf.reason, lf.cascade)
	if err != nil {
		return fail("invalidation failed: %v", err)
	}
	// Invalidating an absent or already-invalid lock is a successful no-op.
	fmt.Printf("Invalidated %d lock(s)\n", count)
	return exitOK
}

func lockStatus(args []string) int {
	var lf lockFlags
	fs := newLockFlagSet("status", &lf, false)
	fs.BoolVar(&lf.asJSON, "json", false, "Machine-readable output")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	d, err := bootstrap(lf.root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	if lf.wave < 0 {
		return listWaves(d, lf.asJSON)
	}

	locks := d.store.List(lf.wave)
	if lf.asJSON {
		return printJSON(map[string]any{"wave": lf.wave, "locks": locksByName(locks)})
	}

	fmt.Printf("Wave %d:\n", lf.wave)
	for _, ph := range d.graph.Phases() {
		lk, ok := locks[ph]
		switch {
		case !ok:
			fmt.Printf("  %-16s no lock\n", ph)
		case lk.Status == lock.StatusPassed:
			fmt.Printf("  %-16s PASSED at %s\n", ph, lk.Timestamp.Format("2006-01-02 15:04:05 MST"))
		default:
			fmt.Printf("  %-16s INVALIDATED (%s)\n", ph, lk.InvalidatedReason)
		}
	}
	return exitOK
}

func listWaves(d *deps, asJSON bool) int {
	waves, err := d.store.Waves()
	if err != nil {
		return fail("failed to list waves: %v", err)
	}
	if asJSON {
		if waves == nil {
			waves = []int{}
		}
		return printJSON(map[string]any{"waves": waves})
	}
	if len(waves) == 0 {
		fmt.Println("No waves have lock state yet")
		return exitOK
	}
	sort.Ints(waves)
	fmt.Println("Waves with lock state:")
	for _, w := range waves {
		fmt.Printf("  wave %d\n", w)
	}
	return exitOK
}

func locksByName(locks map[phase.Phase]*lock.Lock) map[string]*lock.Lock {
	out := make(map[string]*lock.Lock, len(locks))
	for ph, lk := range locks {
		out[ph.String()] = lk
	}
	return out
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail("failed to encode output: %v", err)
	}
	return exitOK
}
