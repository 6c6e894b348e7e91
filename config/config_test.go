package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "civicrun.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.True(t, cfg.Security.RequireSignature)
	require.True(t, cfg.Security.RequireNonce)
	require.Equal(t, 50, cfg.RingDepth)
	require.Equal(t, int64(100000), cfg.Treasury.WeeklyBudgetCC)
	require.Equal(t, []string{"AUDIT_PAY"}, cfg.Treasury.TrackedReasons)
	require.NoError(t, ValidateConfig(*cfg))
}

func TestLoadParsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "civicrun.toml")
	contents := `StorePath = "./data/checkpoint.json"
CheckpointEvery = 10
RingDepth = 25

[Security]
RequireSignature = true
RequireKnownSigner = false
RequireNonce = true
EnforceProposerMatch = true
RequireLicense = true
AllowInlinePublicKey = true

[Policy]
CraftFeeCC = 5
[Policy.PerSettlerMintCapsCC]
ORE = 100
[Policy.GlobalMintCapsCC]
ORE = 1000

[Treasury]
WeeklyBudgetCC = 5000
TrackedReasons = ["AUDIT_PAY", "BONUS"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.RingDepth)
	require.False(t, cfg.Security.RequireKnownSigner)
	require.Equal(t, int64(5), cfg.Policy.CraftFeeCC)
	require.Equal(t, int64(100), cfg.Policy.PerSettlerMintCapsCC["ORE"])
	require.Equal(t, int64(5000), cfg.Treasury.WeeklyBudgetCC)
	require.NoError(t, ValidateConfig(*cfg))
}

func TestValidateConfigRejectsNonPositiveRingDepth(t *testing.T) {
	cfg := Config{RingDepth: 0, CheckpointEvery: 1}
	require.Error(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsNegativeTreasuryBudget(t *testing.T) {
	cfg := Config{RingDepth: 1, CheckpointEvery: 1, Treasury: TreasuryConfig{WeeklyBudgetCC: -1}}
	require.Error(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsArchiveEnabledWithoutDSN(t *testing.T) {
	cfg := Config{
		RingDepth:       1,
		CheckpointEvery: 1,
		Archive:         ArchiveConfig{Enabled: true, Driver: "sqlite", DSN: ""},
	}
	require.Error(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsUnknownArchiveDriver(t *testing.T) {
	cfg := Config{
		RingDepth:       1,
		CheckpointEvery: 1,
		Archive:         ArchiveConfig{Enabled: true, Driver: "mysql", DSN: "x"},
	}
	require.Error(t, ValidateConfig(cfg))
}
