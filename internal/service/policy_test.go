package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicyOverridesOnlyNamedKeys(t *testing.T) {
	p, err := parsePolicy([]byte("deposit_threshold: 750000\nenforce_credit_limit: false\n"))
	require.NoError(t, err)

	assert.True(t, p.DepositThreshold.Equal(dec("750000")))
	assert.False(t, p.EnforceCreditLimit)
	assert.True(t, p.DepositFloat.Equal(dec("50000")))
	assert.True(t, p.RefillRatio.Equal(dec("0.8")))
}

func TestParsePolicyRejectsInconsistentValues(t *testing.T) {
	_, err := parsePolicy([]byte("deposit_threshold: 1000\ndeposit_float: 5000\n"))
	assert.Error(t, err)

	_, err = parsePolicy([]byte("low_stock_ratio: 0.9\nrefill_ratio: 0.5\n"))
	assert.Error(t, err)

	_, err = parsePolicy([]byte("deposit_threshold: [1, 2]\n"))
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variance_alert: 250\n"), 0o600))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.VarianceAlert.Equal(dec("250")))

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
