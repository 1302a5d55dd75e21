// Package drift compares the checksum stored in a phase's lock against a
// freshly computed one and repairs drifted state by cascade invalidation.
package drift

import (
	"errors"

	"phasegate/pkg/checksum"
	"phasegate/pkg/lock"
	"phasegate/pkg/logx"
	"phasegate/pkg/metrics"
	"phasegate/pkg/phase"
)

// Result is the verdict for one phase. Ephemeral, recomputed on every
// check, never persisted.
type Result string

const (
	Ok                 Result = "OK"
	Drifted            Result = "DRIFTED"
	NoLock             Result = "NO_LOCK"
	AlreadyInvalidated Result = "ALREADY_INVALIDATED"
)

// AutoFixReason is stamped on locks invalidated by AutoFix.
const AutoFixReason = "auto_drift_detected"

// Detector performs drift checks over a wave's locks.
type Detector struct {
	root     string
	graph    *phase.Graph
	store    *lock.Store
	provider *checksum.Provider
	logger   *logx.Logger
}

// NewDetector creates a drift detector.
func NewDetector(root string, graph *phase.Graph, store *lock.Store, provider *checksum.Provider) *Detector {
	return &Detector{
		root:     root,
		graph:    graph,
		store:    store,
		provider: provider,
		logger:   logx.NewLogger("drift"),
	}
}

// Check returns the drift verdict for a single phase. Absence of a lock is
// a normal pre-launch state, not an error. Drift detection is per-phase
// local: a phase whose own inputs are unchanged reports Ok even when its
// predecessor has drifted.
func (d *Detector) Check(wave int, ph phase.Phase) (Result, error) {
	lk, err := d.store.Read(wave, ph)
	if err != nil {
		if errors.Is(err, lock.ErrNotFound) {
			return NoLock, nil
		}
		return "", err
	}

	if lk.Status == lock.StatusInvalidated {
		return AlreadyInvalidated, nil
	}

	current, err := d.provider.Compute(wave, ph, d.root)
	if err != nil {
		return "", err
	}
	if current != lk.Checksum {
		d.logger.DebugDomain("drift", "wave=%d phase=%s stored=%s current=%s", wave, ph, lk.Checksum, current)
		return Drifted, nil
	}
	return Ok, nil
}

// CheckAll runs Check over every active phase independently, without
// short-circuiting on the first drift: the operator needs the full picture.
// Drift found here is counted in the metrics; plain Check is not counted,
// since the status server polls it per request.
func (d *Detector) CheckAll(wave int) (map[phase.Phase]Result, error) {
	results := make(map[phase.Phase]Result)
	for _, ph := range d.graph.Phases() {
		if !d.graph.IsActive(ph) {
			continue
		}
		result, err := d.Check(wave, ph)
		if err != nil {
			return nil, err
		}
		if result == Drifted {
			metrics.RecordDrift(ph.String())
		}
		results[ph] = result
	}
	return results, nil
}

// FixReport describes what AutoFix changed.
type FixReport struct {
	// Fixed is the drifted phase that was invalidated, nil when no drift
	// was found.
	Fixed *phase.Phase
	// Invalidated is the total number of locks invalidated, including the
	// cascade.
	Invalidated int
}

// AutoFix scans active phases in ascending order and invalidates the first
// drifted one with cascade. It stops there: the cascade already invalidated
// everything downstream, so further drift reports in this pass would be
// redundant. Re-running after a fix converges to a clean state in at most
// one pass per phase.
func (d *Detector) AutoFix(wave int) (*FixReport, error) {
	for _, ph := range d.graph.Phases() {
		if !d.graph.IsActive(ph) {
			continue
		}
		result, err := d.Check(wave, ph)
		if err != nil {
			return nil, err
		}
		if result != Drifted {
			continue
		}
		metrics.RecordDrift(ph.String())

		count, err := d.store.Invalidate(wave, ph, AutoFixReason, true)
		if err != nil {
			return nil, err
		}
		d.logger.Info("auto-fixed drift at wave=%d phase=%s (%d locks invalidated)", wave, ph, count)
		metrics.RecordCascade(count)
		p := ph
		return &FixReport{Fixed: &p, Invalidated: count}, nil
	}

	return &FixReport{}, nil
}
