package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/logx"
	"phasegate/pkg/phase"
)

// Audit action names recorded for lock transitions.
const (
	ActionCreate            = "create"
	ActionInvalidate        = "invalidate"
	ActionCascadeInvalidate = "cascade_invalidate"
)

// AuditSink receives lock transitions for the append-only history. Delivery
// is best-effort: the lock file on disk stays the source of truth and a
// failing sink never fails the lock operation.
type AuditSink interface {
	RecordTransition(wave int, ph phase.Phase, action, reason, sum string) error
}

// Store is the persistence layer for locks: one JSON file per (wave, phase)
// under <root>/.phasegate/locks/wave-N/. Writes are atomic from the
// reader's point of view (temp file + rename), so a concurrently polling
// dashboard never observes a half-written lock.
type Store struct {
	root     string
	graph    *phase.Graph
	provider *checksum.Provider
	audit    AuditSink
	logger   *logx.Logger
}

// NewStore creates a lock store rooted at the workspace directory.
func NewStore(root string, graph *phase.Graph, provider *checksum.Provider) *Store {
	return &Store{
		root:     root,
		graph:    graph,
		provider: provider,
		logger:   logx.NewLogger("lockstore"),
	}
}

// SetAuditSink attaches an audit sink for lock transitions.
func (s *Store) SetAuditSink(sink AuditSink) {
	s.audit = sink
}

// LocksDir returns the lock directory for a wave.
func (s *Store) LocksDir(wave int) string {
	return filepath.Join(s.root, config.ProjectConfigDir, "locks", fmt.Sprintf("wave-%d", wave))
}

func (s *Store) lockPath(wave int, ph phase.Phase) string {
	return filepath.Join(s.LocksDir(wave), ph.String()+".json")
}

// Create writes a new Passed lock for (wave, phase), unconditionally
// overwriting any prior record. Returns the created lock. A failure to
// persist is fatal for the caller: the phase must not be reported passed.
func (s *Store) Create(wave int, ph phase.Phase, sum, prevSum string, checks map[string]any) (*Lock, error) {
	lk := &Lock{
		Phase:                 int(ph),
		PhaseName:             ph.String(),
		Wave:                  wave,
		Status:                StatusPassed,
		Checksum:              sum,
		PreviousPhaseChecksum: prevSum,
		Checks:                checks,
		Timestamp:             time.Now().UTC(),
	}

	if err := s.write(wave, ph, lk); err != nil {
		return nil, err
	}

	s.logger.DebugDomain("lock", "created lock wave=%d phase=%s checksum=%s", wave, ph, sum)
	s.recordAudit(wave, ph, ActionCreate, "", sum)
	return lk, nil
}

// Read returns the lock for (wave, phase), ErrNotFound when absent, or a
// CorruptError when the file exists but cannot be parsed.
func (s *Store) Read(wave int, ph phase.Phase) (*Lock, error) {
	path := s.lockPath(wave, ph)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read lock file %s: %w", path, err)
	}

	var lk Lock
	if err := json.Unmarshal(data, &lk); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if lk.Status != StatusPassed && lk.Status != StatusInvalidated {
		return nil, &CorruptError{Path: path, Err: fmt.Errorf("unknown status %q", lk.Status)}
	}
	return &lk, nil
}

// Invalidate marks the (wave, phase) lock Invalidated, stamping the reason
// and timestamp. The record is mutated in place and kept for audit, never
// deleted. With cascade, every phase strictly downstream that is currently
// Passed is invalidated too, in one call. Invalidating a missing or
// already-invalidated lock is a no-op. Returns the number of locks
// invalidated.
func (s *Store) Invalidate(wave int, ph phase.Phase, reason string, cascade bool) (int, error) {
	count, err := s.invalidateOne(wave, ph, reason, ActionInvalidate)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		// Invalidating something that was never valid is vacuously done.
		return 0, nil
	}

	if cascade {
		cascadeReason := fmt.Sprintf("cascade from %s: %s", ph, reason)
		for _, downstream := range s.graph.DownstreamOf(ph) {
			n, err := s.invalidateOne(wave, downstream, cascadeReason, ActionCascadeInvalidate)
			if err != nil {
				return count, err
			}
			count += n
		}
	}

	return count, nil
}

// invalidateOne transitions a single lock to Invalidated if it is currently
// Passed. Returns 1 when a transition happened, 0 otherwise.
func (s *Store) invalidateOne(wave int, ph phase.Phase, reason, action string) (int, error) {
	lk, err := s.Read(wave, ph)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		if IsCorrupt(err) {
			// An unparseable lock is already untrusted; leave it for the
			// operator but do not fail the invalidation walk.
			s.logger.Error("skipping invalidation of unreadable lock: %v", err)
			return 0, nil
		}
		return 0, err
	}
	if lk.Status == StatusInvalidated {
		return 0, nil
	}

	now := time.Now().UTC()
	lk.Status = StatusInvalidated
	lk.InvalidatedAt = &now
	lk.InvalidatedReason = reason

	if err := s.write(wave, ph, lk); err != nil {
		return 0, err
	}

	s.logger.Info("invalidated lock wave=%d phase=%s reason=%q", wave, ph, reason)
	s.recordAudit(wave, ph, action, reason, lk.Checksum)
	return 1, nil
}

// Validate is the authoritative "is this phase currently trustworthy"
// check: the lock must exist, be Passed, match a freshly recomputed
// checksum, and the entire predecessor chain must validate the same way.
// Local validity is necessary but not sufficient. Never mutates state.
// Returns a human-readable reason when invalid.
func (s *Store) Validate(wave int, ph phase.Phase) (bool, string) {
	lk, err := s.Read(wave, ph)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, fmt.Sprintf("no lock for phase %s", ph)
		}
		// Fail closed on corrupt or unreadable locks.
		s.logger.Error("treating unreadable lock as invalid: %v", err)
		return false, fmt.Sprintf("lock for phase %s is unreadable", ph)
	}

	if lk.Status != StatusPassed {
		return false, fmt.Sprintf("lock for phase %s was invalidated: %s", ph, lk.InvalidatedReason)
	}

	current, err := s.provider.Compute(wave, ph, s.root)
	if err != nil {
		s.logger.Error("checksum recompute failed for wave=%d phase=%s: %v", wave, ph, err)
		return false, fmt.Sprintf("cannot recompute checksum for phase %s", ph)
	}
	if current != lk.Checksum {
		return false, fmt.Sprintf("phase %s has drifted (inputs changed since validation)", ph)
	}

	if pred, ok := s.graph.PredecessorOf(ph); ok {
		if ok, reason := s.Validate(wave, pred); !ok {
			return false, fmt.Sprintf("prerequisite phase %s invalid: %s", pred, reason)
		}
	}

	return true, ""
}

// List returns all readable locks for a wave, keyed by phase. Corrupt or
// missing locks are simply absent from the result.
func (s *Store) List(wave int) map[phase.Phase]*Lock {
	out := make(map[phase.Phase]*Lock)
	for _, ph := range s.graph.Phases() {
		lk, err := s.Read(wave, ph)
		if err != nil {
			continue
		}
		out[ph] = lk
	}
	return out
}

// Waves lists the wave numbers that have lock state on disk, ascending.
func (s *Store) Waves() ([]int, error) {
	locksRoot := filepath.Join(s.root, config.ProjectConfigDir, "locks")
	entries, err := os.ReadDir(locksRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read locks directory: %w", err)
	}

	var waves []int
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "wave-") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "wave-"))
		if err != nil {
			continue
		}
		waves = append(waves, n)
	}
	sort.Ints(waves)
	return waves, nil
}

// write persists a lock atomically: marshal, write to a temp file in the
// same directory, then rename over the final path. Lock files are 0600
// since check payloads may echo configuration state.
func (s *Store) write(wave int, ph phase.Phase, lk *Lock) error {
	dir := s.LocksDir(wave)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return logx.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(lk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+ph.String()+".*.tmp")
	if err != nil {
		return logx.Errorf("failed to create temp lock file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return logx.Errorf("failed to write lock file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return logx.Errorf("failed to set lock file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return logx.Errorf("failed to close temp lock file: %w", err)
	}

	if err := os.Rename(tmpPath, s.lockPath(wave, ph)); err != nil {
		_ = os.Remove(tmpPath)
		return logx.Errorf("failed to publish lock file: %w", err)
	}
	return nil
}

func (s *Store) recordAudit(wave int, ph phase.Phase, action, reason, sum string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordTransition(wave, ph, action, reason, sum); err != nil {
		s.logger.Warn("audit record failed (continuing): %v", err)
	}
}
