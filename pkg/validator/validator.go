// Package validator runs the per-phase validation pipeline: prerequisite
// gate, concurrent checks, aggregation, and lock creation.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phasegate/pkg/build"
	"phasegate/pkg/checksum"
	"phasegate/pkg/lock"
	"phasegate/pkg/logx"
	"phasegate/pkg/metrics"
	"phasegate/pkg/phase"
)

// ErrPrerequisiteInvalid is returned when a phase's predecessor chain does
// not validate. The phase's own checks are never run in that case.
var ErrPrerequisiteInvalid = errors.New("prerequisite phase invalid")

// Status is a single check's outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// defaultCheckTimeout bounds checks that do not declare their own.
const defaultCheckTimeout = 30 * time.Second

// Check is one independently runnable validation step within a phase.
type Check struct {
	Name string

	// Critical checks may not be skipped: a Skip from a critical check is
	// aggregated as a failure.
	Critical bool

	// Timeout overrides defaultCheckTimeout when positive.
	Timeout time.Duration

	Run func(ctx context.Context) (Status, string)
}

// Result is the recorded outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes one phase validation run.
type Report struct {
	Wave    int
	Phase   phase.Phase
	Passed  bool
	DryRun  bool
	Results []Result
	// Lock is the created lock, nil on failure or dry-run.
	Lock    *lock.Lock
	Elapsed time.Duration
}

// Runner executes phase validations against a workspace.
type Runner struct {
	root     string
	graph    *phase.Graph
	store    *lock.Store
	provider *checksum.Provider
	registry *build.Registry
	exec     build.Executor
	logger   *logx.Logger
}

// NewRunner creates a phase validation runner.
func NewRunner(root string, graph *phase.Graph, store *lock.Store, provider *checksum.Provider) *Runner {
	return &Runner{
		root:     root,
		graph:    graph,
		store:    store,
		provider: provider,
		registry: build.NewRegistry(),
		exec:     build.NewHostExecutor(),
		logger:   logx.NewLogger("validator"),
	}
}

// SetExecutor overrides the command executor, for tests.
func (r *Runner) SetExecutor(exec build.Executor) {
	r.exec = exec
}

// RunPhase validates one phase for one wave. The prerequisite chain is
// checked first; if it fails, no checks run and ErrPrerequisiteInvalid is
// returned alongside a report explaining why. On success (and not dry-run)
// the phase checksum is computed and a Passed lock written.
func (r *Runner) RunPhase(ctx context.Context, wave int, ph phase.Phase, dryRun bool) (*Report, error) {
	start := time.Now()
	report := &Report{Wave: wave, Phase: ph, DryRun: dryRun}

	if pred, ok := r.graph.PredecessorOf(ph); ok {
		if valid, reason := r.store.Validate(wave, pred); !valid {
			report.Elapsed = time.Since(start)
			metrics.RecordPhaseRun(ph.String(), "prerequisite_invalid", report.Elapsed)
			return report, fmt.Errorf("%w: %s", ErrPrerequisiteInvalid, reason)
		}
	}

	checks := r.checksFor(wave, ph)
	report.Results = r.runChecks(ctx, checks)
	report.Passed = aggregate(checks, report.Results)

	for _, res := range report.Results {
		if res.Status == StatusFail {
			metrics.RecordCheckFailure(ph.String(), res.Name)
			r.logger.Warn("check failed wave=%d phase=%s check=%s: %s", wave, ph, res.Name, res.Detail)
		}
	}

	if !report.Passed {
		report.Elapsed = time.Since(start)
		metrics.RecordPhaseRun(ph.String(), "failed", report.Elapsed)
		return report, nil
	}

	if dryRun {
		report.Elapsed = time.Since(start)
		metrics.RecordPhaseRun(ph.String(), "passed_dry_run", report.Elapsed)
		r.logger.Info("phase %s passed (dry run, no lock written)", ph)
		return report, nil
	}

	sum, err := r.provider.Compute(wave, ph, r.root)
	if err != nil {
		report.Elapsed = time.Since(start)
		return report, logx.Wrap(err, fmt.Sprintf("checksum for phase %s", ph))
	}

	prevSum := ""
	if pred, ok := r.graph.PredecessorOf(ph); ok {
		if predLock, err := r.store.Read(wave, pred); err == nil {
			prevSum = predLock.Checksum
		}
	}

	lk, err := r.store.Create(wave, ph, sum, prevSum, checksPayload(report.Results))
	if err != nil {
		report.Elapsed = time.Since(start)
		return report, logx.Wrap(err, fmt.Sprintf("persist lock for phase %s", ph))
	}
	report.Lock = lk
	report.Elapsed = time.Since(start)
	metrics.RecordPhaseRun(ph.String(), "passed", report.Elapsed)
	r.logger.Info("phase %s passed for wave %d (checksum %.12s)", ph, wave, sum)
	return report, nil
}

// runChecks runs every check concurrently with its timeout and returns
// results in the original check order.
func (r *Runner) runChecks(ctx context.Context, checks []Check) []Result {
	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk Check) {
			defer wg.Done()
			results[i] = r.runOne(ctx, chk)
		}(i, chk)
	}
	wg.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, chk Check) Result {
	timeout := chk.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		status, detail := chk.Run(checkCtx)
		done <- Result{Name: chk.Name, Status: status, Detail: detail}
	}()

	select {
	case res := <-done:
		res.Duration = time.Since(start)
		return res
	case <-checkCtx.Done():
		// A stuck check is a failure, never silently skipped.
		return Result{
			Name:     chk.Name,
			Status:   StatusFail,
			Detail:   fmt.Sprintf("check timed out after %s", timeout),
			Duration: time.Since(start),
		}
	}
}

// aggregate applies the pass rule: zero failures, and Skip is acceptable
// only for non-critical checks.
func aggregate(checks []Check, results []Result) bool {
	critical := make(map[string]bool, len(checks))
	for _, chk := range checks {
		critical[chk.Name] = chk.Critical
	}
	for _, res := range results {
		switch res.Status {
		case StatusFail:
			return false
		case StatusSkip:
			if critical[res.Name] {
				return false
			}
		}
	}
	return true
}

// checksPayload flattens results into the lock's checks map.
func checksPayload(results []Result) map[string]any {
	out := make(map[string]any, len(results))
	for _, res := range results {
		entry := map[string]any{"status": string(res.Status)}
		if res.Detail != "" {
			entry["detail"] = res.Detail
		}
		out[res.Name] = entry
	}
	return out
}
