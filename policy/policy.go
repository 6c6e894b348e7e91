// Package policy enforces per-cycle mint caps and craft-fee conformance.
// It never mutates State directly; it only counts tokens already recorded
// there and reports whether a proposed mint or craft would exceed a
// configured limit.
package policy

import (
	"fmt"
	"time"

	"civicrun/cycle"
	"civicrun/state"
)

// Config holds the policy engine's per-token-type caps and the craft fee.
type Config struct {
	// PerSettlerPerCycle caps mints to a single owner within one cycle
	// window, keyed by token type.
	PerSettlerPerCycle map[state.TokenType]int
	// GlobalPerCycle caps total mints of a token type within one cycle
	// window, regardless of owner.
	GlobalPerCycle map[state.TokenType]int
	// CraftFeeCC, if non-nil, is the exact craft_fee_cc every CRAFT envelope
	// must carry.
	CraftFeeCC *int64
	// CycleProvider derives the cap window containing now; defaults to
	// cycle.DailyUTC when unset.
	CycleProvider cycle.Provider
}

// ValidationError reports a policy cap violation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func fail(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Engine enforces mint caps and craft-fee conformance.
type Engine struct {
	cfg Config
}

// New returns a policy engine with cfg. A nil CycleProvider is replaced with
// cycle.DailyUTC.
func New(cfg Config) *Engine {
	if cfg.CycleProvider == nil {
		cfg.CycleProvider = cycle.DailyUTC{}
	}
	return &Engine{cfg: cfg}
}

// CheckMintCap verifies that minting amount more tokens of tt to ownerID at
// now would not exceed the per-settler or global cap for the cycle
// containing now. st is consulted for tokens already created in that
// window; it is not mutated.
func (e *Engine) CheckMintCap(st *state.State, tt state.TokenType, ownerID string, amount int, now time.Time) error {
	window := e.cfg.CycleProvider.WindowFor(now)
	startStr := window.Start.UTC().Format(time.RFC3339)
	endStr := window.End.UTC().Format(time.RFC3339)

	if cap, ok := e.cfg.PerSettlerPerCycle[tt]; ok {
		existing := len(st.TokensCreatedInWindow(tt, ownerID, startStr, endStr))
		if existing+amount > cap {
			return fail("policy: per-settler mint cap exceeded for %s/%s: %d existing + %d requested > cap %d (cycle %s)", tt, ownerID, existing, amount, cap, window.ID)
		}
	}
	if cap, ok := e.cfg.GlobalPerCycle[tt]; ok {
		existing := len(st.TokensCreatedInWindow(tt, "", startStr, endStr))
		if existing+amount > cap {
			return fail("policy: global mint cap exceeded for %s: %d existing + %d requested > cap %d (cycle %s)", tt, existing, amount, cap, window.ID)
		}
	}
	return nil
}

// CheckCraftFee verifies feeCC matches the configured craft fee exactly,
// when one is configured.
func (e *Engine) CheckCraftFee(feeCC int64) error {
	if e.cfg.CraftFeeCC == nil {
		return nil
	}
	if feeCC != *e.cfg.CraftFeeCC {
		return fail("policy: craft_fee_cc %d does not match configured fee %d", feeCC, *e.cfg.CraftFeeCC)
	}
	return nil
}

// RecordMint is a no-op hook reserved for future telemetry; callers should
// invoke it after a mint commits so instrumentation can be added without
// touching executor call sites.
func (e *Engine) RecordMint(tt state.TokenType, ownerID string, amount int) {}
