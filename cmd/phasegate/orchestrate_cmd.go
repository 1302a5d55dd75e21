package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"phasegate/pkg/build"
	"phasegate/pkg/circuit"
	"phasegate/pkg/config"
	"phasegate/pkg/dashboard"
	"phasegate/pkg/drift"
	"phasegate/pkg/notify"
	"phasegate/pkg/orch"
	"phasegate/pkg/validator"
)

func cmdOrchestrate(args []string) int {
	var (
		root       string
		wave       int
		runAll     bool
		upTo       string
		from       string
		single     string
		dryRun     bool
		force      bool
		statusAddr string
	)
	fs := flag.NewFlagSet("orchestrate", flag.ContinueOnError)
	fs.StringVar(&root, "root", ".", "Workspace root directory")
	fs.IntVar(&wave, "wave", -1, "Wave number")
	fs.BoolVar(&runAll, "run-all", false, "Run every active phase")
	fs.StringVar(&upTo, "up-to", "", "Run from the first phase up to and including P")
	fs.StringVar(&from, "from", "", "Run from P to the last phase")
	fs.StringVar(&single, "phase", "", "Run a single phase")
	fs.BoolVar(&dryRun, "dry-run", false, "Run checks without writing locks")
	fs.BoolVar(&force, "force", false, "Pre-invalidate selected phases so they all re-run")
	fs.StringVar(&statusAddr, "status-addr", "", "Serve the status dashboard on this address during the run")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if wave < 0 {
		return usageError("orchestrate requires --wave")
	}
	selections := 0
	for _, set := range []bool{runAll, upTo != "", from != "", single != ""} {
		if set {
			selections++
		}
	}
	if selections != 1 {
		return usageError("orchestrate requires exactly one of --run-all, --up-to, --from, --phase")
	}

	d, err := bootstrap(root, true)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	fromPh, toPh := d.graph.First(), d.graph.Last()
	switch {
	case upTo != "":
		ph, err := parsePhaseFlag(upTo)
		if err != nil {
			return usageError("%v", err)
		}
		toPh = ph
	case from != "":
		ph, err := parsePhaseFlag(from)
		if err != nil {
			return usageError("%v", err)
		}
		fromPh = ph
	case single != "":
		ph, err := parsePhaseFlag(single)
		if err != nil {
			return usageError("%v", err)
		}
		fromPh, toPh = ph, ph
	}

	breaker, err := circuit.Load(breakerPath(d.root), breakerConfig())
	if err != nil {
		return fail("failed to load circuit breaker state: %v", err)
	}

	runner := validator.NewRunner(d.root, d.graph, d.store, d.provider)
	runner.SetExecutor(build.NewHostExecutor())

	orchestrator := orch.New(d.graph, d.store, runner, breaker)
	orchestrator.SetStopSource(orch.NewFileStopSource(d.root))
	if cfg, err := config.Get(); err == nil && cfg.Notify != nil && cfg.Notify.WebhookURL != "" {
		orchestrator.SetNotifier(notify.NewWebhook(cfg.Notify.WebhookURL))
	}

	if statusAddr != "" {
		detector := drift.NewDetector(d.root, d.graph, d.store, d.provider)
		server := dashboard.NewServer(d.graph, d.store, detector)
		if err := server.Start(statusAddr); err != nil {
			return fail("failed to start status server: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	}

	summary, err := orchestrator.Run(context.Background(), orch.Options{
		Wave:   wave,
		From:   fromPh,
		To:     toPh,
		DryRun: dryRun,
		Force:  force,
	})
	if err != nil {
		return fail("orchestration failed: %v", err)
	}

	// Breaker state persists across runs.
	if saveErr := circuit.Save(breakerPath(d.root), breaker); saveErr != nil {
		d.logger.Warn("failed to persist circuit breaker state: %v", saveErr)
	}

	printSummary(summary)
	if summary.Success {
		return exitOK
	}
	return exitFailure
}

func breakerConfig() circuit.Config {
	cfg, err := config.Get()
	if err != nil || cfg.Breaker == nil {
		return circuit.DefaultConfig
	}
	return circuit.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
	}
}

func printSummary(summary *orch.RunSummary) {
	fmt.Printf("Run %s (wave %d) finished in %s\n", summary.RunID, summary.Wave, summary.Elapsed.Round(time.Millisecond))
	for _, p := range summary.Phases {
		line := fmt.Sprintf("  %-16s %s", p.Phase, p.Outcome)
		if p.Reason != "" {
			line += ": " + p.Reason
		}
		fmt.Println(line)
	}
	if summary.Success {
		fmt.Println("Result: PASSED")
	} else {
		fmt.Println("Result: FAILED")
	}
}
