package drift

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/pkg/checksum"
	"phasegate/pkg/lock"
	"phasegate/pkg/phase"
)

type fixture struct {
	root     string
	graph    *phase.Graph
	store    *lock.Store
	provider *checksum.Provider
	detector *Detector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	graph := phase.NewGraphWithInactive(phase.PreValidation)
	provider := checksum.NewProvider()
	store := lock.NewStore(root, graph, provider)
	return &fixture{
		root:     root,
		graph:    graph,
		store:    store,
		provider: provider,
		detector: NewDetector(root, graph, store, provider),
	}
}

func (f *fixture) writeStory(t *testing.T, wave int, name, content string) {
	t.Helper()
	dir := checksum.StoriesDir(f.root, wave)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func (f *fixture) lockPhases(t *testing.T, wave int, phases ...phase.Phase) {
	t.Helper()
	prev := ""
	for _, ph := range phases {
		sum, err := f.provider.Compute(wave, ph, f.root)
		require.NoError(t, err)
		_, err = f.store.Create(wave, ph, sum, prev, nil)
		require.NoError(t, err)
		prev = sum
	}
}

func TestCheckVerdicts(t *testing.T) {
	f := newFixture(t)

	// No lock yet: normal pre-launch state.
	result, err := f.detector.Check(1, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, NoLock, result)

	f.writeStory(t, 1, "s-001.yaml", "id: S-001\n")
	f.lockPhases(t, 1, phase.Stories)

	result, err = f.detector.Check(1, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, Ok, result)

	// Edit the story under the lock.
	f.writeStory(t, 1, "s-001.yaml", "id: S-001\ntitle: edited\n")
	result, err = f.detector.Check(1, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, Drifted, result)

	_, err = f.store.Invalidate(1, phase.Stories, "manual", false)
	require.NoError(t, err)
	result, err = f.detector.Check(1, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, AlreadyInvalidated, result)
}

func TestDriftCascadeScenario(t *testing.T) {
	f := newFixture(t)
	f.writeStory(t, 2, "s-001.yaml", "id: S-001\n")
	f.lockPhases(t, 2, phase.Stories, phase.Infrastructure, phase.SmokeTest)

	// Edit a story file under the Stories scope.
	f.writeStory(t, 2, "s-001.yaml", "id: S-001\ntitle: edited\n")

	// Drift is per-phase local: only Stories reports Drifted.
	results, err := f.detector.CheckAll(2)
	require.NoError(t, err)
	assert.Equal(t, Drifted, results[phase.Stories])
	assert.Equal(t, Ok, results[phase.Infrastructure])
	assert.Equal(t, Ok, results[phase.SmokeTest])
	assert.Equal(t, NoLock, results[phase.Development])

	// But the recursive validity check already rejects downstream phases.
	ok, _ := f.store.Validate(2, phase.SmokeTest)
	assert.False(t, ok)

	// AutoFix invalidates Stories with cascade: all three end Invalidated.
	report, err := f.detector.AutoFix(2)
	require.NoError(t, err)
	require.NotNil(t, report.Fixed)
	assert.Equal(t, phase.Stories, *report.Fixed)
	assert.Equal(t, 3, report.Invalidated)

	for _, ph := range []phase.Phase{phase.Stories, phase.Infrastructure, phase.SmokeTest} {
		lk, err := f.store.Read(2, ph)
		require.NoError(t, err)
		assert.Equal(t, lock.StatusInvalidated, lk.Status, "phase %s", ph)
	}

	lk, err := f.store.Read(2, phase.Stories)
	require.NoError(t, err)
	assert.Equal(t, AutoFixReason, lk.InvalidatedReason)
}

func TestAutoFixIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeStory(t, 1, "s-001.yaml", "id: S-001\n")
	f.lockPhases(t, 1, phase.Stories, phase.Infrastructure)

	f.writeStory(t, 1, "s-001.yaml", "edited\n")

	report, err := f.detector.AutoFix(1)
	require.NoError(t, err)
	require.NotNil(t, report.Fixed)
	assert.Equal(t, 2, report.Invalidated)

	// Second run finds nothing to fix.
	report, err = f.detector.AutoFix(1)
	require.NoError(t, err)
	assert.Nil(t, report.Fixed)
	assert.Equal(t, 0, report.Invalidated)
}

// driftCounter reads the drift counter for one phase from the default
// registry. Counters are process-global, so tests compare deltas.
func driftCounter(t *testing.T, phaseName string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "phasegate_drift_detected_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() == "phase" && lbl.GetValue() == phaseName {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestDriftCounterNotInflatedByPolling(t *testing.T) {
	f := newFixture(t)
	f.writeStory(t, 3, "s-001.yaml", "id: S-001\n")
	f.lockPhases(t, 3, phase.Stories)
	f.writeStory(t, 3, "s-001.yaml", "edited\n")

	base := driftCounter(t, phase.Stories.String())

	// Repeated single-phase checks, as the status server issues one per
	// request, must not move the counter.
	for i := 0; i < 5; i++ {
		result, err := f.detector.Check(3, phase.Stories)
		require.NoError(t, err)
		require.Equal(t, Drifted, result)
	}
	assert.Equal(t, base, driftCounter(t, phase.Stories.String()))

	// A full wave scan counts the drift once.
	_, err := f.detector.CheckAll(3)
	require.NoError(t, err)
	assert.Equal(t, base+1, driftCounter(t, phase.Stories.String()))

	// So does the repair path.
	_, err = f.detector.AutoFix(3)
	require.NoError(t, err)
	assert.Equal(t, base+2, driftCounter(t, phase.Stories.String()))
}

func TestCorruptLockSurfacesError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.store.LocksDir(1), 0700))
	path := filepath.Join(f.store.LocksDir(1), "stories.json")
	require.NoError(t, os.WriteFile(path, []byte("][.not json"), 0600))

	_, err := f.detector.Check(1, phase.Stories)
	require.Error(t, err)
	assert.True(t, lock.IsCorrupt(err))
}
