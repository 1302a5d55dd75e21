package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configDir := filepath.Join(dir, ProjectConfigDir)
	require.NoError(t, os.MkdirAll(configDir, 0755))
	path := filepath.Join(configDir, ProjectConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"project_name": "demo",
		"infrastructure": {
			"probes": [{"name": "api", "url": "http://localhost:8080/healthz", "critical": true}],
			"required_credentials": ["GITHUB_TOKEN"]
		}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.ProjectName)
	assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	require.Len(t, cfg.Infra.Probes, 1)
	assert.True(t, cfg.Infra.Probes[0].Critical)

	// Defaults applied.
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 600, cfg.Smoke.TimeoutSeconds)
}

func TestLoadFromFileEnvSubstitution(t *testing.T) {
	t.Setenv("PHASEGATE_TEST_URL", "http://gitea.local:3000")

	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"project_name": "demo",
		"infrastructure": {
			"probes": [{"name": "gitea", "url": "${PHASEGATE_TEST_URL}/api/v1/version"}]
		}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gitea.local:3000/api/v1/version", cfg.Infra.Probes[0].URL)
}

func TestInactivePhaseList(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"project_name": "demo", "inactive_phases": ["prevalidation", "qamerge"]}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	inactive, err := cfg.InactivePhaseList()
	require.NoError(t, err)
	require.Len(t, inactive, 2)
	assert.Equal(t, "prevalidation", inactive[0].String())
	assert.Equal(t, "qamerge", inactive[1].String())

	// Unknown phase names are rejected at load time.
	bad := writeConfig(t, t.TempDir(), `{"project_name": "demo", "inactive_phases": ["nosuchphase"]}`)
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}

func TestLoadFromFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing project name", `{}`},
		{"probe without url", `{"project_name":"x","infrastructure":{"probes":[{"name":"api"}]}}`},
		{"duplicate probe names", `{"project_name":"x","infrastructure":{"probes":[
			{"name":"api","url":"http://a"},{"name":"api","url":"http://b"}]}}`},
		{"invalid json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.content)
			_, err := LoadFromFile(path)
			assert.Error(t, err)
		})
	}
}

func TestGetRequiresLoad(t *testing.T) {
	SetConfigForTesting(nil)
	_, err := Get()
	assert.Error(t, err)

	SetConfigForTesting(&Config{ProjectName: "demo"})
	defer SetConfigForTesting(nil)

	cfg, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.ProjectName)
}
