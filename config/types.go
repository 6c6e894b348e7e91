package config

// SecurityConfig mirrors security.Config in TOML form; it is translated
// into the security engine's Config type at runtime wiring time.
type SecurityConfig struct {
	RequireSignature     bool `toml:"RequireSignature"`
	RequireKnownSigner   bool `toml:"RequireKnownSigner"`
	RequireNonce         bool `toml:"RequireNonce"`
	EnforceProposerMatch bool `toml:"EnforceProposerMatch"`
	RequireLicense       bool `toml:"RequireLicense"`
	AllowInlinePublicKey bool `toml:"AllowInlinePublicKey"`
}

// PolicyConfig mirrors policy.Config in TOML form.
type PolicyConfig struct {
	PerSettlerMintCapsCC map[string]int64 `toml:"PerSettlerMintCapsCC"`
	GlobalMintCapsCC     map[string]int64 `toml:"GlobalMintCapsCC"`
	CraftFeeCC           int64            `toml:"CraftFeeCC"`
}

// TreasuryConfig mirrors treasury.Config in TOML form.
type TreasuryConfig struct {
	WeeklyBudgetCC int64    `toml:"WeeklyBudgetCC"`
	TrackedReasons []string `toml:"TrackedReasons"`
}

// LoggingConfig controls the rotating structured logger.
type LoggingConfig struct {
	Level      string `toml:"Level"`
	FilePath   string `toml:"FilePath"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled       bool   `toml:"Enabled"`
	ListenAddress string `toml:"ListenAddress"`
}

// ArchiveConfig controls the optional durable read-model mirrored off the
// ledger's append hook.
type ArchiveConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"` // "sqlite" or "postgres"
	DSN     string `toml:"DSN"`
}

// TracingConfig controls the optional OTLP/HTTP trace and metric exporters
// that the kernel.execute and maintenance.sweep spans (started in
// Runtime.Execute and Runtime.Maintain) are reported through.
type TracingConfig struct {
	Enabled     bool              `toml:"Enabled"`
	ServiceName string            `toml:"ServiceName"`
	Environment string            `toml:"Environment"`
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Metrics     bool              `toml:"Metrics"`
}

// Config is civicrun's full runtime configuration.
type Config struct {
	StorePath       string         `toml:"StorePath"`
	CheckpointEvery int            `toml:"CheckpointEvery"`
	RingDepth       int            `toml:"RingDepth"`
	Security        SecurityConfig `toml:"Security"`
	Policy          PolicyConfig   `toml:"Policy"`
	Treasury        TreasuryConfig `toml:"Treasury"`
	Logging         LoggingConfig  `toml:"Logging"`
	Metrics         MetricsConfig  `toml:"Metrics"`
	Archive         ArchiveConfig  `toml:"Archive"`
	Tracing         TracingConfig  `toml:"Tracing"`
}
