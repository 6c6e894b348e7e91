package state

import (
	"encoding/json"
	"sort"
)

// Snapshot is a value-independent deep copy of the entire state, taken
// before an envelope begins execution. Restoring a snapshot discards every
// mutation the envelope made, including partial ones, which is what lets the
// kernel offer all-or-nothing execution without a redo log.
type Snapshot struct {
	accounts    map[string]*Account
	tokens      map[string]*Token
	escrows     map[string]*Escrow
	stakes      map[string]*Stake
	contracts   map[string]*Contract
	submissions map[string]*Submission
	jobs        map[string]*VerificationJob
	stamps      map[string]*Stamp
	sanctions   map[string]*Sanction
	appeals     map[string]*Appeal
	nonces      map[string]map[string]struct{}
}

// Snapshot deep-clones the current state. The returned value shares no
// pointers or backing arrays with s, so later mutation of either side is
// invisible to the other.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		accounts:    make(map[string]*Account, len(s.accounts)),
		tokens:      make(map[string]*Token, len(s.tokens)),
		escrows:     make(map[string]*Escrow, len(s.escrows)),
		stakes:      make(map[string]*Stake, len(s.stakes)),
		contracts:   make(map[string]*Contract, len(s.contracts)),
		submissions: make(map[string]*Submission, len(s.submissions)),
		jobs:        make(map[string]*VerificationJob, len(s.jobs)),
		stamps:      make(map[string]*Stamp, len(s.stamps)),
		sanctions:   make(map[string]*Sanction, len(s.sanctions)),
		appeals:     make(map[string]*Appeal, len(s.appeals)),
		nonces:      make(map[string]map[string]struct{}, len(s.nonces)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v.Clone()
	}
	for k, v := range s.tokens {
		snap.tokens[k] = v.Clone()
	}
	for k, v := range s.escrows {
		snap.escrows[k] = v.Clone()
	}
	for k, v := range s.stakes {
		snap.stakes[k] = v.Clone()
	}
	for k, v := range s.contracts {
		snap.contracts[k] = v.Clone()
	}
	for k, v := range s.submissions {
		snap.submissions[k] = v.Clone()
	}
	for k, v := range s.jobs {
		snap.jobs[k] = v.Clone()
	}
	for k, v := range s.stamps {
		snap.stamps[k] = v.Clone()
	}
	for k, v := range s.sanctions {
		snap.sanctions[k] = v.Clone()
	}
	for k, v := range s.appeals {
		snap.appeals[k] = v.Clone()
	}
	for signer, set := range s.nonces {
		clone := make(map[string]struct{}, len(set))
		for n := range set {
			clone[n] = struct{}{}
		}
		snap.nonces[signer] = clone
	}
	return snap
}

// Restore replaces every entity map in s with the ones held by snap. snap is
// consumed in place: the caller must not restore the same *Snapshot twice
// after further mutation of s, since the maps handed back are snap's own
// (already-cloned) maps, not a fresh copy of them.
func (s *State) Restore(snap *Snapshot) {
	s.accounts = snap.accounts
	s.tokens = snap.tokens
	s.escrows = snap.escrows
	s.stakes = snap.stakes
	s.contracts = snap.contracts
	s.submissions = snap.submissions
	s.jobs = snap.jobs
	s.stamps = snap.stamps
	s.sanctions = snap.sanctions
	s.appeals = snap.appeals
	s.nonces = snap.nonces
}

// snapshotWire is the JSON-visible shape of a Snapshot, used only by
// MarshalJSON/UnmarshalJSON so checkpoint persistence does not need access
// to Snapshot's unexported fields. Nonces marshal as signer -> [nonce, ...]
// rather than signer -> {nonce: {}}, matching the checkpoint's documented
// wire contract.
type snapshotWire struct {
	Accounts    map[string]*Account         `json:"accounts"`
	Tokens      map[string]*Token           `json:"tokens"`
	Escrows     map[string]*Escrow          `json:"escrows"`
	Stakes      map[string]*Stake           `json:"stakes"`
	Contracts   map[string]*Contract        `json:"contracts"`
	Submissions map[string]*Submission      `json:"submissions"`
	Jobs        map[string]*VerificationJob `json:"jobs"`
	Stamps      map[string]*Stamp           `json:"stamps"`
	Sanctions   map[string]*Sanction        `json:"sanctions"`
	Appeals     map[string]*Appeal          `json:"appeals"`
	Nonces      map[string][]string         `json:"nonces"`
}

// MarshalJSON renders the snapshot's entity maps directly; unset maps
// marshal as null rather than {} since Restore treats either the same way.
func (snap *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotWire{
		Accounts:    snap.accounts,
		Tokens:      snap.tokens,
		Escrows:     snap.escrows,
		Stakes:      snap.stakes,
		Contracts:   snap.contracts,
		Submissions: snap.submissions,
		Jobs:        snap.jobs,
		Stamps:      snap.stamps,
		Sanctions:   snap.sanctions,
		Appeals:     snap.appeals,
		Nonces:      nonceSetsToWire(snap.nonces),
	})
}

// UnmarshalJSON populates the snapshot's entity maps from their wire form.
func (snap *Snapshot) UnmarshalJSON(data []byte) error {
	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	snap.accounts = wire.Accounts
	snap.tokens = wire.Tokens
	snap.escrows = wire.Escrows
	snap.stakes = wire.Stakes
	snap.contracts = wire.Contracts
	snap.submissions = wire.Submissions
	snap.jobs = wire.Jobs
	snap.stamps = wire.Stamps
	snap.sanctions = wire.Sanctions
	snap.appeals = wire.Appeals
	snap.nonces = nonceSetsFromWire(wire.Nonces)
	return nil
}

// nonceSetsToWire flattens each signer's nonce set into a sorted slice for
// a stable, array-shaped wire representation.
func nonceSetsToWire(sets map[string]map[string]struct{}) map[string][]string {
	if sets == nil {
		return nil
	}
	out := make(map[string][]string, len(sets))
	for signer, set := range sets {
		nonces := make([]string, 0, len(set))
		for n := range set {
			nonces = append(nonces, n)
		}
		sort.Strings(nonces)
		out[signer] = nonces
	}
	return out
}

// nonceSetsFromWire rebuilds each signer's nonce set from its wire slice.
func nonceSetsFromWire(wire map[string][]string) map[string]map[string]struct{} {
	if wire == nil {
		return nil
	}
	out := make(map[string]map[string]struct{}, len(wire))
	for signer, nonces := range wire {
		set := make(map[string]struct{}, len(nonces))
		for _, n := range nonces {
			set[n] = struct{}{}
		}
		out[signer] = set
	}
	return out
}
