// Package config loads civicrun's TOML runtime configuration, creating a
// conservative default file on first run the same way the teacher chain's
// node config bootstraps itself from nothing.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load loads the configuration from path, creating a default file there if
// none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault writes and returns civicrun's conservative default
// configuration: the signature, known-signer, nonce and proposer-match gates
// on, the license gate off, inline public keys disallowed, no mint caps, a modest
// treasury budget, and the archive read-model disabled.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		StorePath:       "./civicrun-data/checkpoint.json",
		CheckpointEvery: 50,
		RingDepth:       50,
		Security: SecurityConfig{
			RequireSignature:     true,
			RequireKnownSigner:   true,
			RequireNonce:         true,
			EnforceProposerMatch: true,
			RequireLicense:       false,
			AllowInlinePublicKey: false,
		},
		Policy: PolicyConfig{
			PerSettlerMintCapsCC: map[string]int64{},
			GlobalMintCapsCC:     map[string]int64{},
			CraftFeeCC:           0,
		},
		Treasury: TreasuryConfig{
			WeeklyBudgetCC: 100000,
			TrackedReasons: []string{"AUDIT_PAY"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "./civicrun-data/civicrun.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9464",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Driver:  "sqlite",
			DSN:     "./civicrun-data/archive.db",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "civicrun",
			Environment: "production",
			Endpoint:    "localhost:4318",
			Insecure:    true,
			Metrics:     false,
		},
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
