package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provn-io/provn/pkg/config"
	"github.com/provn-io/provn/pkg/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "provn-dev", cfg.Issuer)
	assert.NotEmpty(t, cfg.TrustedSigners)
	assert.False(t, cfg.GlobalUniqueness)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 8080, cfg.APIPort)
}

func TestLoadOverridesDefaults(t *testing.T) {
	tmpDir, cleanup := testutil.CreateTempDir(t, "provn-config-test")
	defer cleanup()

	path := testutil.CreateTestFile(t, tmpDir, "config.yaml", `
issuer: studio-west
global_uniqueness: true
trusted_signers:
  - Leica Camera AG
api_port: 9090
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "studio-west", cfg.Issuer)
	assert.True(t, cfg.GlobalUniqueness)
	assert.Equal(t, []string{"Leica Camera AG"}, cfg.TrustedSigners)
	assert.Equal(t, 9090, cfg.APIPort)

	// Untouched keys keep their defaults.
	assert.Equal(t, "https://arweave.net", cfg.DataLedgerGateway)
	assert.Equal(t, 4001, cfg.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	tmpDir, cleanup := testutil.CreateTempDir(t, "provn-config-test")
	defer cleanup()

	path := testutil.CreateTestFile(t, tmpDir, "config.yaml", "issuer: [unclosed")

	_, err := config.Load(path)
	assert.Error(t, err)
}
