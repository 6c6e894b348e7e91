package config

import "fmt"

// ValidateConfig rejects configuration values that would let the runtime
// start in a state that violates civicrun's invariants.
func ValidateConfig(cfg Config) error {
	if cfg.RingDepth <= 0 {
		return fmt.Errorf("config: ring_depth must be positive, got %d", cfg.RingDepth)
	}
	if cfg.CheckpointEvery <= 0 {
		return fmt.Errorf("config: checkpoint_every must be positive, got %d", cfg.CheckpointEvery)
	}
	if cfg.Treasury.WeeklyBudgetCC < 0 {
		return fmt.Errorf("config: treasury.weekly_budget_cc must be non-negative, got %d", cfg.Treasury.WeeklyBudgetCC)
	}
	if cfg.Policy.CraftFeeCC < 0 {
		return fmt.Errorf("config: policy.craft_fee_cc must be non-negative, got %d", cfg.Policy.CraftFeeCC)
	}
	for tt, cap := range cfg.Policy.PerSettlerMintCapsCC {
		if cap < 0 {
			return fmt.Errorf("config: policy.per_settler_mint_caps_cc[%s] must be non-negative, got %d", tt, cap)
		}
	}
	for tt, cap := range cfg.Policy.GlobalMintCapsCC {
		if cap < 0 {
			return fmt.Errorf("config: policy.global_mint_caps_cc[%s] must be non-negative, got %d", tt, cap)
		}
	}
	if cfg.Archive.Enabled {
		switch cfg.Archive.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("config: archive.driver must be sqlite or postgres, got %q", cfg.Archive.Driver)
		}
		if cfg.Archive.DSN == "" {
			return fmt.Errorf("config: archive.dsn required when archive.enabled=true")
		}
	}
	return nil
}
