package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/phase"
)

// The encrypted credentials file must land on the exact path the
// Infrastructure checksum scope hashes, so credential changes surface as
// drift.
func TestSecretsFileLandsOnChecksumScopedPath(t *testing.T) {
	root := t.TempDir()
	provider := checksum.NewProvider()

	before, err := provider.Compute(1, phase.Infrastructure, root)
	require.NoError(t, err)
	assert.Equal(t, checksum.NoInput, before)

	require.NoError(t, config.EncryptSecretsFile(root, "passphrase123", map[string]string{"API_KEY": "k-123"}))

	scoped := filepath.Join(root, config.ProjectConfigDir, config.SecretsFileName)
	_, err = os.Stat(scoped)
	require.NoError(t, err, "secrets file missing from the scoped path")
	assert.True(t, config.SecretsFileExists(root))

	// No stray copy one directory level deeper.
	doubled := filepath.Join(root, config.ProjectConfigDir, config.ProjectConfigDir, config.SecretsFileName)
	_, err = os.Stat(doubled)
	assert.True(t, os.IsNotExist(err))

	after, err := provider.Compute(1, phase.Infrastructure, root)
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "creating credentials must change the Infrastructure checksum")
}

func TestLoadSecretsDecryptsFromProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, config.EncryptSecretsFile(root, "passphrase123", map[string]string{"API_KEY": "k-123"}))

	t.Setenv("PHASEGATE_PASSPHRASE", "passphrase123")
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	require.NoError(t, loadSecrets(root))
	assert.True(t, config.HasSecret("API_KEY"))
	value, err := config.GetSecret("API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "k-123", value)
}
