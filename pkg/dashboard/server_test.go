package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/drift"
	"phasegate/pkg/lock"
	"phasegate/pkg/phase"
)

func newTestServer(t *testing.T) (*Server, *lock.Store, string) {
	t.Helper()
	root := t.TempDir()
	cfgPath := config.ConfigPath(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0700))
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"project_name": "demo"}`), 0644))

	graph := phase.NewGraph()
	provider := checksum.NewProvider()
	store := lock.NewStore(root, graph, provider)
	detector := drift.NewDetector(root, graph, store, provider)
	return NewServer(graph, store, detector), store, root
}

func getStatus(t *testing.T, srv *Server, path string) (*http.Response, StatusResponse) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body StatusResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestStatusEmptyWave(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := getStatus(t, srv, "/status?wave=3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, body.Wave)
	require.Len(t, body.Phases, len(phase.All()))
	for _, row := range body.Phases {
		assert.Nil(t, row.Lock)
		assert.Equal(t, drift.NoLock, row.Drift)
	}
}

func TestStatusReflectsLocks(t *testing.T) {
	srv, store, root := newTestServer(t)

	sum, err := checksum.NewProvider().Compute(1, phase.PreValidation, root)
	require.NoError(t, err)
	_, err = store.Create(1, phase.PreValidation, sum, "", nil)
	require.NoError(t, err)

	_, body := getStatus(t, srv, "/status?wave=1")
	var row *PhaseStatus
	for i := range body.Phases {
		if body.Phases[i].Name == "prevalidation" {
			row = &body.Phases[i]
		}
	}
	require.NotNil(t, row)
	require.NotNil(t, row.Lock)
	assert.Equal(t, lock.StatusPassed, row.Lock.Status)
	assert.Equal(t, drift.Ok, row.Drift)
}

func TestStatusRejectsBadWave(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, _ := getStatus(t, srv, "/status?wave=banana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
