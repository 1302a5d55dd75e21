// Package orch coordinates multi-phase runs: phase ordering, the circuit
// breaker, emergency stop, and run summaries.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"phasegate/pkg/circuit"
	"phasegate/pkg/lock"
	"phasegate/pkg/logx"
	"phasegate/pkg/phase"
	"phasegate/pkg/validator"
)

// Outcome classifies how a phase ended within a run.
type Outcome string

const (
	OutcomePassed        Outcome = "passed"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeCircuitOpen   Outcome = "circuit_open"
	OutcomeEmergencyStop Outcome = "emergency_stop"
)

// ForceReason is stamped on locks pre-invalidated by a forced run.
const ForceReason = "forced re-validation"

// StopSource reports whether an operator has requested an emergency stop.
// Polled before each phase.
type StopSource interface {
	Check() (stopped bool, reason string)
}

// Notifier receives completed run summaries. Delivery must not block the
// run outcome.
type Notifier interface {
	RunCompleted(summary *RunSummary)
}

// PhaseOutcome records one phase's disposition within a run.
type PhaseOutcome struct {
	Phase   phase.Phase        `json:"phase"`
	Name    string             `json:"name"`
	Outcome Outcome            `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
	Results []validator.Result `json:"results,omitempty"`
}

// RunSummary is the full record of one orchestrator run.
type RunSummary struct {
	RunID     string         `json:"run_id"`
	Wave      int            `json:"wave"`
	From      phase.Phase    `json:"from"`
	To        phase.Phase    `json:"to"`
	DryRun    bool           `json:"dry_run"`
	Force     bool           `json:"force"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Phases    []PhaseOutcome `json:"phases"`
	// Success is true when every selected phase passed.
	Success bool `json:"success"`
}

// Options select and shape a run.
type Options struct {
	Wave   int
	From   phase.Phase
	To     phase.Phase
	DryRun bool
	// Force pre-invalidates every selected phase (non-cascading) so all of
	// them re-run even if their locks currently validate.
	Force bool
}

// Orchestrator drives phase validation runs.
type Orchestrator struct {
	graph    *phase.Graph
	store    *lock.Store
	runner   *validator.Runner
	breaker  circuit.Breaker
	stop     StopSource
	notifier Notifier
	logger   *logx.Logger
}

// New creates an orchestrator. The breaker is required; stop source and
// notifier are optional.
func New(graph *phase.Graph, store *lock.Store, runner *validator.Runner, breaker circuit.Breaker) *Orchestrator {
	return &Orchestrator{
		graph:   graph,
		store:   store,
		runner:  runner,
		breaker: breaker,
		logger:  logx.NewLogger("orchestrator"),
	}
}

// SetStopSource attaches an emergency stop source.
func (o *Orchestrator) SetStopSource(s StopSource) {
	o.stop = s
}

// SetNotifier attaches a run summary notifier.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// Run executes the selected phase range in order, stopping at the first
// failure and marking the remainder skipped. The circuit breaker and stop
// source are consulted before every phase. Returns the summary; the error is
// reserved for invalid selections and storage failures, not phase failures.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	phases, err := o.graph.ActiveInRange(opts.From, opts.To)
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("no active phases in range %s..%s", opts.From, opts.To)
	}

	summary := &RunSummary{
		RunID:     uuid.New().String(),
		Wave:      opts.Wave,
		From:      opts.From,
		To:        opts.To,
		DryRun:    opts.DryRun,
		Force:     opts.Force,
		StartedAt: time.Now().UTC(),
	}
	o.logger.Info("run %s started: wave=%d phases=%s..%s dry_run=%v force=%v",
		summary.RunID, opts.Wave, phases[0], phases[len(phases)-1], opts.DryRun, opts.Force)

	if opts.Force && !opts.DryRun {
		for _, ph := range phases {
			// Non-cascading: the loop below covers the selected phases and
			// cascading here would touch phases outside the selection.
			if _, err := o.store.Invalidate(opts.Wave, ph, ForceReason, false); err != nil {
				return nil, logx.Wrap(err, "force invalidation")
			}
		}
	}

	halted := false
	for i, ph := range phases {
		if halted {
			summary.Phases = append(summary.Phases, PhaseOutcome{
				Phase: ph, Name: ph.String(), Outcome: OutcomeSkipped,
				Reason: "earlier phase did not pass",
			})
			continue
		}

		if o.stop != nil {
			if stopped, reason := o.stop.Check(); stopped {
				o.logger.Warn("emergency stop requested: %s", reason)
				for _, rest := range phases[i:] {
					summary.Phases = append(summary.Phases, PhaseOutcome{
						Phase: rest, Name: rest.String(), Outcome: OutcomeEmergencyStop, Reason: reason,
					})
				}
				break
			}
		}

		if !o.breaker.Allow() {
			o.logger.Warn("circuit breaker is %s, refusing to run phase %s", o.breaker.GetState(), ph)
			for _, rest := range phases[i:] {
				summary.Phases = append(summary.Phases, PhaseOutcome{
					Phase: rest, Name: rest.String(), Outcome: OutcomeCircuitOpen,
					Reason: fmt.Sprintf("circuit breaker %s", o.breaker.GetState()),
				})
			}
			break
		}

		outcome := o.runPhase(ctx, opts, ph)
		summary.Phases = append(summary.Phases, outcome)
		if outcome.Outcome != OutcomePassed {
			halted = true
		}
	}

	summary.Elapsed = time.Since(summary.StartedAt)
	summary.Success = true
	for _, p := range summary.Phases {
		if p.Outcome != OutcomePassed {
			summary.Success = false
			break
		}
	}

	o.logger.Info("run %s finished: success=%v elapsed=%s", summary.RunID, summary.Success, summary.Elapsed.Round(time.Millisecond))
	if o.notifier != nil {
		o.notifier.RunCompleted(summary)
	}
	return summary, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, opts Options, ph phase.Phase) PhaseOutcome {
	report, err := o.runner.RunPhase(ctx, opts.Wave, ph, opts.DryRun)
	out := PhaseOutcome{Phase: ph, Name: ph.String()}
	if report != nil {
		out.Results = report.Results
	}

	switch {
	case errors.Is(err, validator.ErrPrerequisiteInvalid):
		out.Outcome = OutcomeFailed
		out.Reason = err.Error()
		o.breaker.Record(false)
	case err != nil:
		out.Outcome = OutcomeFailed
		out.Reason = err.Error()
		o.breaker.Record(false)
	case report.Passed:
		out.Outcome = OutcomePassed
		o.breaker.Record(true)
	default:
		out.Outcome = OutcomeFailed
		out.Reason = failureReason(report)
		o.breaker.Record(false)
	}
	return out
}

// failureReason condenses a failed report into one line.
func failureReason(report *validator.Report) string {
	for _, res := range report.Results {
		if res.Status == validator.StatusFail {
			return fmt.Sprintf("check %s failed: %s", res.Name, res.Detail)
		}
	}
	return "one or more checks did not pass"
}
