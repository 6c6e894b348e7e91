package treasury

import (
	"testing"
	"time"

	"civicrun/ledger"
)

func appendSpend(t *testing.T, l *ledger.Ledger, ts string, amount int64, reason string) {
	t.Helper()
	meta := l.NextMeta()
	_, err := l.Append(ledger.Event{
		ID:        "ev-" + ts,
		Sequence:  meta.Sequence,
		Timestamp: ts,
		Type:      ledger.EventSpend,
		ActorID:   "system",
		PrevHash:  meta.PrevHash,
		CCChanges: []ledger.CCChange{{AccountID: "TREASURY", Delta: -amount, Reason: reason}},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestAssertCanSpendEnforcesWeeklyCap(t *testing.T) {
	l := ledger.New()
	appendSpend(t, l, "2026-03-03T00:00:00Z", 6, "AUDIT_PAY") // Tuesday, same ISO week as 2026-03-05

	budget := New(DefaultConfig(10))
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	if err := budget.AssertCanSpend(l, 6, now); err == nil {
		t.Fatal("expected second 6 CC spend to exceed weekly cap of 10")
	}
	if err := budget.AssertCanSpend(l, 4, now); err != nil {
		t.Fatalf("expected 4 CC spend to fit remaining budget, got %v", err)
	}
}

func TestAssertCanSpendResetsNextWeek(t *testing.T) {
	l := ledger.New()
	appendSpend(t, l, "2026-03-03T00:00:00Z", 6, "AUDIT_PAY")

	budget := New(DefaultConfig(10))
	nextMonday := time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC)

	if err := budget.AssertCanSpend(l, 6, nextMonday); err != nil {
		t.Fatalf("expected budget to reset on new ISO week, got %v", err)
	}
}

func TestAssertCanSpendIgnoresUntrackedReasons(t *testing.T) {
	l := ledger.New()
	appendSpend(t, l, "2026-03-03T00:00:00Z", 500, "ADMIN_FEE")

	budget := New(DefaultConfig(10))
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	if err := budget.AssertCanSpend(l, 10, now); err != nil {
		t.Fatalf("expected untracked-reason outflow to not count against budget, got %v", err)
	}
}
