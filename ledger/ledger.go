// Package ledger implements the hash-chained, append-only event log that
// backs every state transition civicrun commits. Each event's hash binds it
// to its predecessor, so a single verify_integrity pass over the sequence
// detects any tampering or reordering.
package ledger

import (
	"fmt"
	"log/slog"

	"civicrun/canon"
)

// EventType enumerates the kinds of event the ledger records.
type EventType string

const (
	EventMint       EventType = "MINT"
	EventBlueprint  EventType = "BLUEPRINT_EXEC"
	EventEscrowLock EventType = "ESCROW_LOCK"
	EventEscrowRel  EventType = "ESCROW_RELEASE"
	EventStakeLock  EventType = "STAKE_LOCK"
	EventStakeRel   EventType = "STAKE_RELEASE"
	EventTransfer   EventType = "TRANSFER"
	EventBurn       EventType = "BURN"
	EventSpend      EventType = "SPEND"
)

// GenesisHash is the sentinel prev_hash for the first event in a ledger.
const GenesisHash = "GENESIS"

// CCChange is the canonical-JSON-visible shape of one CC balance change
// folded into an event.
type CCChange struct {
	AccountID string `json:"account_id"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
}

// Event is one append-only ledger record. EventHash is computed over every
// other field; PrevHash links it to the previous event (or GenesisHash).
type Event struct {
	ID               string     `json:"id"`
	Sequence         int        `json:"sequence"`
	Timestamp        string     `json:"timestamp"`
	Type             EventType  `json:"type"`
	ActorID          string     `json:"actor_id"`
	BlueprintID      string     `json:"blueprint_id,omitempty"`
	TokensMinted     []string   `json:"tokens_minted,omitempty"`
	TokensBurned     []string   `json:"tokens_burned,omitempty"`
	TokensTransferred []string  `json:"tokens_transferred,omitempty"`
	CCChanges        []CCChange `json:"cc_changes,omitempty"`
	PrevHash         string     `json:"prev_hash"`
	EventHash        string     `json:"event_hash"`
}

// hashableCopy returns a copy of e with EventHash cleared, ready to be
// canonically hashed.
func (e Event) hashableCopy() Event {
	e.EventHash = ""
	return e
}

// Meta is the append-position information executors must obtain before
// deriving a content-addressed event id.
type Meta struct {
	PrevHash string
	Sequence int
}

// AppendHook is invoked, best-effort, after an event is durably appended.
// civicrun's archive read-model registers one of these to mirror events into
// a queryable store without the core ledger depending on it; a hook's error
// is logged by Append but never unwinds the append.
type AppendHook func(Event) error

// Ledger is a single-writer, hash-chained append-only sequence of events.
// It is not safe for concurrent use; the kernel serializes all access.
type Ledger struct {
	events []Event
	hooks  []AppendHook
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// NextMeta returns the append position a new event must use: the hash of
// the latest event (or GenesisHash if the ledger is empty) and the sequence
// number the new event will occupy.
func (l *Ledger) NextMeta() Meta {
	if len(l.events) == 0 {
		return Meta{PrevHash: GenesisHash, Sequence: 0}
	}
	last := l.events[len(l.events)-1]
	return Meta{PrevHash: last.EventHash, Sequence: len(l.events)}
}

// OnAppend registers a hook to run after every successful Append.
func (l *Ledger) OnAppend(hook AppendHook) {
	l.hooks = append(l.hooks, hook)
}

// Append computes ev's EventHash from its PrevHash and every other field,
// validates ev.PrevHash/ev.Sequence against NextMeta(), stores it, and fires
// any registered append hooks. ev must already carry the PrevHash and
// Sequence obtained from a preceding NextMeta() call.
func (l *Ledger) Append(ev Event) (Event, error) {
	meta := l.NextMeta()
	if ev.PrevHash != meta.PrevHash {
		return Event{}, fmt.Errorf("ledger: prev_hash mismatch: event has %q, expected %q", ev.PrevHash, meta.PrevHash)
	}
	if ev.Sequence != meta.Sequence {
		return Event{}, fmt.Errorf("ledger: sequence mismatch: event has %d, expected %d", ev.Sequence, meta.Sequence)
	}
	hash, err := canon.HashValue(ev.hashableCopy())
	if err != nil {
		return Event{}, fmt.Errorf("ledger: hash event: %w", err)
	}
	ev.EventHash = hash
	l.events = append(l.events, ev)
	for _, hook := range l.hooks {
		if err := hook(ev); err != nil {
			// Hooks feed best-effort read models; a failure there must never
			// unwind a durably appended core event.
			slog.Warn("ledger: append hook failed", "event_id", ev.ID, "error", err)
		}
	}
	return ev, nil
}

// Events returns every event in append order. The returned slice is a copy;
// mutating it does not affect the ledger.
func (l *Ledger) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events currently appended.
func (l *Ledger) Len() int {
	return len(l.events)
}

// EventsSince returns every event with Timestamp in [start, end).
func (l *Ledger) EventsSince(start, end string) []Event {
	var out []Event
	for _, ev := range l.events {
		if ev.Timestamp >= start && ev.Timestamp < end {
			out = append(out, ev)
		}
	}
	return out
}

// VerifyIntegrity walks the chain checking that each event's PrevHash
// matches its predecessor's EventHash (or GenesisHash for the first event)
// and that its EventHash matches a fresh recomputation. It returns whether
// the chain is intact and every discrepancy found.
func (l *Ledger) VerifyIntegrity() (bool, []string) {
	var errs []string
	prev := GenesisHash
	for i, ev := range l.events {
		if ev.PrevHash != prev {
			errs = append(errs, fmt.Sprintf("event %d (%s): prev_hash = %s, expected %s", i, ev.ID, ev.PrevHash, prev))
		}
		recomputed, err := canon.HashValue(ev.hashableCopy())
		if err != nil {
			errs = append(errs, fmt.Sprintf("event %d (%s): failed to hash: %v", i, ev.ID, err))
		} else if recomputed != ev.EventHash {
			errs = append(errs, fmt.Sprintf("event %d (%s): event_hash = %s, recomputed %s", i, ev.ID, ev.EventHash, recomputed))
		}
		prev = ev.EventHash
	}
	return len(errs) == 0, errs
}

// DeriveEventID computes the content-addressed event id for an envelope
// about to be appended at meta, per H({prev_hash, sequence, blueprint_id,
// kind, proposer_id}).
func DeriveEventID(meta Meta, blueprintID, kind, proposerID string) (string, error) {
	return canon.HashValue(map[string]any{
		"prev_hash":    meta.PrevHash,
		"sequence":     meta.Sequence,
		"blueprint_id": blueprintID,
		"kind":         kind,
		"proposer_id":  proposerID,
	})
}

// DeriveTokenID computes the content-addressed token id for the index-th
// token minted by eventID, per H({event_id, index, token_type,
// token_template}).
func DeriveTokenID(eventID string, index int, tokenType, template string) (string, error) {
	return canon.HashValue(map[string]any{
		"event_id":       eventID,
		"index":          index,
		"token_type":     tokenType,
		"token_template": template,
	})
}
