// Package kernel is the single-threaded transactional core: it validates an
// envelope's shape, snapshots state, delegates to the security and policy
// engines, dispatches to a kind-specific executor, and restores the
// snapshot on any failure so every envelope is all-or-nothing.
package kernel

import (
	"encoding/json"
	"fmt"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/policy"
	"civicrun/security"
	"civicrun/state"
	"civicrun/treasury"
)

// Clock returns the current instant used for created_at/timestamp fields
// and cycle resolution. Production code uses time.Now; tests supply a fixed
// or stepped clock for determinism.
type Clock func() time.Time

// Kernel owns the rollback ring and the ledger append cursor. It is not
// safe for concurrent use; callers needing parallelism must serialize calls
// to Execute and Rollback, and any maintenance sweep over the same State and
// Ledger, externally.
type Kernel struct {
	State    *state.State
	Ledger   *ledger.Ledger
	Security *security.Engine
	Policy   *policy.Engine
	Treasury *treasury.Budget
	Clock    Clock

	ring *snapshotRing
}

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithRingDepth overrides the default snapshot ring depth.
func WithRingDepth(depth int) Option {
	return func(k *Kernel) { k.ring = newSnapshotRing(depth) }
}

// WithClock overrides the default time.Now clock.
func WithClock(c Clock) Option {
	return func(k *Kernel) { k.Clock = c }
}

// New wires a Kernel from its components. st, l, sec, pol, and treas must be
// non-nil; treas may be a Budget with a zero WeeklyCC if no audits are
// expected.
func New(st *state.State, l *ledger.Ledger, sec *security.Engine, pol *policy.Engine, treas *treasury.Budget, opts ...Option) *Kernel {
	k := &Kernel{
		State:    st,
		Ledger:   l,
		Security: sec,
		Policy:   pol,
		Treasury: treas,
		Clock:    time.Now,
		ring:     newSnapshotRing(DefaultRingDepth),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// nowString formats the kernel clock as RFC3339 UTC, the timestamp format
// used throughout civic state and the ledger.
func (k *Kernel) nowString() string {
	return k.Clock().UTC().Format(time.RFC3339)
}

// Execute validates, snapshots, and dispatches env, returning the ledger
// event it produced. On any failure the pre-execution snapshot is restored
// before the error is returned, leaving State and Ledger untouched.
func (k *Kernel) Execute(env envelope.Envelope) (ledger.Event, error) {
	if err := validateShape(env); err != nil {
		return ledger.Event{}, newValidationError("INVALID_ENVELOPE", err)
	}

	snap := k.State.Snapshot()
	k.ring.push(snap)

	ev, err := k.executeUnsafe(env)
	if err != nil {
		restored := k.ring.popLast()
		k.State.Restore(restored)
		return ledger.Event{}, err
	}
	return ev, nil
}

func (k *Kernel) executeUnsafe(env envelope.Envelope) (ledger.Event, error) {
	now := k.Clock()

	var proposer *state.Account
	if acct, err := k.State.GetAccount(env.ProposerID); err == nil {
		proposer = acct
	}
	if err := k.Security.Validate(env, k.State, proposer); err != nil {
		return ledger.Event{}, newValidationError("SECURITY_REJECTED", err)
	}

	executor, ok := executors[env.Kind]
	if !ok {
		return ledger.Event{}, newValidationError("UNKNOWN_KIND", fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind))
	}
	return executor(k, env, now)
}

func validateShape(env envelope.Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEnvelope)
	}
	if env.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEnvelope)
	}
	if env.CreatedAt == "" {
		return fmt.Errorf("%w: missing created_at", ErrInvalidEnvelope)
	}
	if env.ProposerID == "" {
		return fmt.Errorf("%w: missing proposer_id", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
	}
	return nil
}

// executorFunc is implemented by each envelope kind's handler.
type executorFunc func(k *Kernel, env envelope.Envelope, now time.Time) (ledger.Event, error)

var executors = map[envelope.Kind]executorFunc{
	envelope.KindQuestContract:     (*Kernel).execQuestContract,
	envelope.KindWorkSubmission:    (*Kernel).execWorkSubmission,
	envelope.KindVerificationJob:   (*Kernel).execVerificationJobAccept,
	envelope.KindVerificationStamp: (*Kernel).execVerificationStamp,
	envelope.KindMint:              (*Kernel).execMint,
	envelope.KindCraft:             (*Kernel).execCraft,
	envelope.KindSanction:          (*Kernel).execSanction,
	envelope.KindAppeal:            (*Kernel).execAppeal,
}

// eventDraft carries the meta/id an executor derived up front (before any
// token ids that depend on the event id are computed) through to the final
// append call, so the two always agree on sequence/prev_hash/id.
type eventDraft struct {
	meta ledger.Meta
	id   string
}

// beginEvent derives the append position and content-addressed id this
// envelope's event will use. Executors that mint tokens must call this
// before deriving token ids (which embed the event id), then pass the same
// draft to appendEvent.
func (k *Kernel) beginEvent(env envelope.Envelope) (eventDraft, error) {
	meta := k.Ledger.NextMeta()
	id, err := ledger.DeriveEventID(meta, env.ID, string(env.Kind), env.ProposerID)
	if err != nil {
		return eventDraft{}, newExecutionError("HASH_FAILURE", err)
	}
	return eventDraft{meta: meta, id: id}, nil
}

// appendParams gathers everything an executor must supply to append an
// event, besides the id/sequence/prev_hash already fixed by its eventDraft.
type appendParams struct {
	BlueprintID       string
	ActorID           string
	Type              ledger.EventType
	TokensMinted      []string
	TokensBurned      []string
	TokensTransferred []string
	CCChanges         []state.CCChange
}

// appendEvent finalizes and appends the event for draft.
func (k *Kernel) appendEvent(draft eventDraft, p appendParams, now time.Time) (ledger.Event, error) {
	meta := draft.meta
	ccChanges := make([]ledger.CCChange, 0, len(p.CCChanges))
	for _, c := range p.CCChanges {
		ccChanges = append(ccChanges, ledger.CCChange{AccountID: c.AccountID, Delta: c.Delta, Reason: c.Reason})
	}
	ev := ledger.Event{
		ID:                draft.id,
		Sequence:          meta.Sequence,
		Timestamp:         now.UTC().Format(time.RFC3339),
		Type:              p.Type,
		ActorID:           p.ActorID,
		BlueprintID:       p.BlueprintID,
		TokensMinted:      p.TokensMinted,
		TokensBurned:      p.TokensBurned,
		TokensTransferred: p.TokensTransferred,
		CCChanges:         ccChanges,
		PrevHash:          meta.PrevHash,
	}
	appended, err := k.Ledger.Append(ev)
	if err != nil {
		return ledger.Event{}, newExecutionError("LEDGER_APPEND_FAILURE", err)
	}
	return appended, nil
}

// decodePayload unmarshals env.Payload into dst, wrapping any error as a
// ValidationError since a malformed payload makes the envelope inadmissible.
func decodePayload(env envelope.Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return newValidationError("MALFORMED_PAYLOAD", fmt.Errorf("%w: %v", ErrInvalidEnvelope, err))
	}
	return nil
}

// Export returns the snapshot ring's contents for checkpoint persistence.
func (k *Kernel) Export() []*state.Snapshot {
	return k.ring.export()
}

// RestoreRing replaces the kernel's snapshot ring, e.g. after loading a
// checkpoint.
func (k *Kernel) RestoreRing(snaps []*state.Snapshot) {
	k.ring.restoreRing(snaps)
}

// Rollback discards the most recent steps snapshots from the ring and
// restores State to the snapshot that many envelopes back.
func (k *Kernel) Rollback(steps int) error {
	snap := k.ring.rollback(steps)
	if snap == nil {
		return fmt.Errorf("kernel: cannot roll back %d steps: ring holds %d snapshots", steps, k.ring.len())
	}
	k.State.Restore(snap)
	return nil
}
