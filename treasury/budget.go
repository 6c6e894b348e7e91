// Package treasury enforces the weekly cap on CC leaving the TREASURY
// account for a tracked set of reasons (default AUDIT_PAY). It derives
// "already spent this cycle" by scanning the ledger rather than keeping its
// own counter, so it never drifts from the source of truth.
package treasury

import (
	"fmt"
	"time"

	"civicrun/cycle"
	"civicrun/ledger"
	"civicrun/state"
)

// Config holds the treasury's weekly budget and which cc_changes reasons
// count against it.
type Config struct {
	WeeklyCC       int64
	TrackedReasons map[string]bool
	CycleProvider  cycle.Provider
}

// DefaultConfig returns a config tracking AUDIT_PAY against a weekly ISO
// cycle, capped at weeklyCC per cycle.
func DefaultConfig(weeklyCC int64) Config {
	return Config{
		WeeklyCC:       weeklyCC,
		TrackedReasons: map[string]bool{"AUDIT_PAY": true},
		CycleProvider:  cycle.WeeklyISO{},
	}
}

// ValidationError reports a treasury budget violation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Budget enforces Config against a ledger's recorded history.
type Budget struct {
	cfg Config
}

// New returns a Budget enforcing cfg. A nil CycleProvider defaults to
// cycle.WeeklyISO.
func New(cfg Config) *Budget {
	if cfg.CycleProvider == nil {
		cfg.CycleProvider = cycle.WeeklyISO{}
	}
	return &Budget{cfg: cfg}
}

// AssertCanSpend verifies that spending amount more CC out of TREASURY for a
// tracked reason at now would not push the cycle's cumulative tracked
// outflow past WeeklyCC. l is scanned, not mutated.
func (b *Budget) AssertCanSpend(l *ledger.Ledger, amount int64, now time.Time) error {
	window := b.cfg.CycleProvider.WindowFor(now)
	startStr := window.Start.UTC().Format(time.RFC3339)
	endStr := window.End.UTC().Format(time.RFC3339)

	var spent int64
	for _, ev := range l.EventsSince(startStr, endStr) {
		for _, chg := range ev.CCChanges {
			if chg.AccountID != state.TreasuryAccountID || chg.Delta >= 0 {
				continue
			}
			if !b.cfg.TrackedReasons[chg.Reason] {
				continue
			}
			spent += -chg.Delta
		}
	}
	if spent+amount > b.cfg.WeeklyCC {
		return &ValidationError{Reason: fmt.Sprintf("treasury: weekly budget exceeded: spent %d + requested %d > cap %d (cycle %s)", spent, amount, b.cfg.WeeklyCC, window.ID)}
	}
	return nil
}
