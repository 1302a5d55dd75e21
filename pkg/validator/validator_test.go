package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/pkg/build"
	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/lock"
	"phasegate/pkg/phase"
)

func newWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, config.ProjectConfigDir), 0700))
	writeWorkspaceFile(t, root, filepath.Join(config.ProjectConfigDir, config.ProjectConfigFilename),
		`{"schema_version": "1.0", "project_name": "demo"}`)
	return root
}

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newRunner(t *testing.T, root string) (*Runner, *lock.Store) {
	t.Helper()
	graph := phase.NewGraph()
	provider := checksum.NewProvider()
	store := lock.NewStore(root, graph, provider)
	r := NewRunner(root, graph, store, provider)
	r.SetExecutor(&build.MockExecutor{})
	config.SetConfigForTesting(&config.Config{ProjectName: "demo"})
	t.Cleanup(func() { config.SetConfigForTesting(nil) })
	return r, store
}

// passThrough runs the pipeline up to and including the given phase so later
// phases have a valid prerequisite chain.
func passThrough(t *testing.T, r *Runner, wave int, upTo phase.Phase) {
	t.Helper()
	for _, ph := range phase.All() {
		if ph > upTo {
			return
		}
		report, err := r.RunPhase(context.Background(), wave, ph, false)
		require.NoError(t, err)
		require.True(t, report.Passed, "phase %s should pass: %+v", ph, report.Results)
	}
}

func TestPreValidationPassesAndWritesLock(t *testing.T) {
	root := newWorkspace(t)
	r, store := newRunner(t, root)

	report, err := r.RunPhase(context.Background(), 1, phase.PreValidation, false)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	require.NotNil(t, report.Lock)
	assert.Equal(t, lock.StatusPassed, report.Lock.Status)
	assert.Empty(t, report.Lock.PreviousPhaseChecksum)

	onDisk, err := store.Read(1, phase.PreValidation)
	require.NoError(t, err)
	assert.Equal(t, report.Lock.Checksum, onDisk.Checksum)
}

func TestPrerequisiteGateBlocksWithoutPredecessorLock(t *testing.T) {
	root := newWorkspace(t)
	r, _ := newRunner(t, root)

	report, err := r.RunPhase(context.Background(), 1, phase.Stories, false)
	require.ErrorIs(t, err, ErrPrerequisiteInvalid)
	assert.False(t, report.Passed)
	assert.Empty(t, report.Results, "checks must not run when the gate fails")
}

func TestLockLinksPredecessorChecksum(t *testing.T) {
	root := newWorkspace(t)
	r, store := newRunner(t, root)
	writeWorkspaceFile(t, root, "stories/wave-1/S-001.yaml",
		"id: S-001\ntitle: First story\npriority: must\nacceptance_criteria:\n  - it works\n")

	passThrough(t, r, 1, phase.Stories)

	preLock, err := store.Read(1, phase.PreValidation)
	require.NoError(t, err)
	storyLock, err := store.Read(1, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, preLock.Checksum, storyLock.PreviousPhaseChecksum)
}

func TestDryRunWritesNoLock(t *testing.T) {
	root := newWorkspace(t)
	r, store := newRunner(t, root)

	report, err := r.RunPhase(context.Background(), 1, phase.PreValidation, true)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Nil(t, report.Lock)

	_, err = store.Read(1, phase.PreValidation)
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

func TestFailedCheckBlocksLockCreation(t *testing.T) {
	root := newWorkspace(t)
	r, store := newRunner(t, root)
	// Story missing required fields.
	writeWorkspaceFile(t, root, "stories/wave-1/S-001.yaml", "id: S-001\n")

	passThrough(t, r, 1, phase.PreValidation)
	report, err := r.RunPhase(context.Background(), 1, phase.Stories, false)
	require.NoError(t, err)
	assert.False(t, report.Passed)

	_, err = store.Read(1, phase.Stories)
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

func TestCheckTimeoutFails(t *testing.T) {
	r, _ := newRunner(t, newWorkspace(t))

	results := r.runChecks(context.Background(), []Check{{
		Name:    "stuck",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) (Status, string) {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return StatusPass, ""
		},
	}})

	require.Len(t, results, 1)
	assert.Equal(t, StatusFail, results[0].Status)
	assert.Contains(t, results[0].Detail, "timed out")
}

func TestAggregateSkipRules(t *testing.T) {
	checks := []Check{
		{Name: "critical", Critical: true},
		{Name: "optional"},
	}

	assert.True(t, aggregate(checks, []Result{
		{Name: "critical", Status: StatusPass},
		{Name: "optional", Status: StatusSkip},
	}), "skip on non-critical check is acceptable")

	assert.False(t, aggregate(checks, []Result{
		{Name: "critical", Status: StatusSkip},
		{Name: "optional", Status: StatusPass},
	}), "skip on critical check is a failure")

	assert.False(t, aggregate(checks, []Result{
		{Name: "critical", Status: StatusPass},
		{Name: "optional", Status: StatusFail},
	}), "any failure fails the phase")
}

func TestSmokeTestRunsBackendSteps(t *testing.T) {
	root := newWorkspace(t)
	r, _ := newRunner(t, root)
	writeWorkspaceFile(t, root, "go.mod", "module demo\n")
	writeWorkspaceFile(t, root, "stories/wave-1/S-001.yaml",
		"id: S-001\ntitle: First story\npriority: must\nacceptance_criteria:\n  - it works\n")

	mock := &build.MockExecutor{}
	r.SetExecutor(mock)

	passThrough(t, r, 1, phase.SmokeTest)

	var argv [][]string
	for _, call := range mock.Calls {
		argv = append(argv, call.Argv)
	}
	assert.Contains(t, argv, []string{"go", "build", "./..."})
	assert.Contains(t, argv, []string{"go", "vet", "./..."})
	assert.Contains(t, argv, []string{"go", "test", "./..."})
}
