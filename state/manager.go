package state

import "fmt"

// ErrNotFound is returned by update_* and get_* accessors when the requested
// record does not exist.
var ErrNotFound = fmt.Errorf("state: not found")

// ErrAlreadyExists is returned by add_* accessors when a record with the
// same id is already present.
var ErrAlreadyExists = fmt.Errorf("state: already exists")

// CCChange records one delta applied to an account's balance within a single
// envelope's execution. The order changes are appended in is preserved and
// is part of the ledger event's canonical hash.
type CCChange struct {
	AccountID string
	Delta     int64
	Reason    string
}

// State holds every civic entity map described in the data model. It is
// owned exclusively by the kernel; executors reach it only through the
// typed accessors below so that every mutation funnels through the
// bookkeeping (timestamps, invariant checks) those accessors perform.
type State struct {
	accounts     map[string]*Account
	tokens       map[string]*Token
	escrows      map[string]*Escrow
	stakes       map[string]*Stake
	contracts    map[string]*Contract
	submissions  map[string]*Submission
	jobs         map[string]*VerificationJob
	stamps       map[string]*Stamp
	sanctions    map[string]*Sanction
	appeals      map[string]*Appeal
	nonces       map[string]map[string]struct{} // signer_id -> set of nonces
}

// New returns an empty State with the TREASURY account pre-created at a
// zero balance, matching the well-known-account invariant in the data model.
func New() *State {
	s := &State{
		accounts:    make(map[string]*Account),
		tokens:      make(map[string]*Token),
		escrows:     make(map[string]*Escrow),
		stakes:      make(map[string]*Stake),
		contracts:   make(map[string]*Contract),
		submissions: make(map[string]*Submission),
		jobs:        make(map[string]*VerificationJob),
		stamps:      make(map[string]*Stamp),
		sanctions:   make(map[string]*Sanction),
		appeals:     make(map[string]*Appeal),
		nonces:      make(map[string]map[string]struct{}),
	}
	s.accounts[TreasuryAccountID] = &Account{ID: TreasuryAccountID, CCBalance: 0}
	return s
}

// --- Accounts ---

func (s *State) GetAccount(id string) (*Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (s *State) AddAccount(a *Account) error {
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, ErrAlreadyExists)
	}
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *State) UpdateAccount(a *Account) error {
	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("account %s: %w", a.ID, ErrNotFound)
	}
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *State) ensureAccount(id, now string) *Account {
	if a, ok := s.accounts[id]; ok {
		return a
	}
	a := &Account{ID: id, CreatedAt: now, LastActiveAt: now}
	s.accounts[id] = a
	return a
}

// --- Tokens ---

func (s *State) GetToken(id string) (*Token, error) {
	t, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *State) AddToken(t *Token) error {
	if _, ok := s.tokens[t.ID]; ok {
		return fmt.Errorf("token %s: %w", t.ID, ErrAlreadyExists)
	}
	s.tokens[t.ID] = t.Clone()
	return nil
}

func (s *State) UpdateToken(t *Token) error {
	if _, ok := s.tokens[t.ID]; !ok {
		return fmt.Errorf("token %s: %w", t.ID, ErrNotFound)
	}
	s.tokens[t.ID] = t.Clone()
	return nil
}

// TokensByOwner returns every token owned by ownerID, in map-iteration
// order; callers that need a stable order should sort by ID.
func (s *State) TokensByOwner(ownerID string) []*Token {
	var out []*Token
	for _, t := range s.tokens {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TokensCreatedInWindow returns tokens of the given type whose CreatedAt
// falls within [startRFC3339, endRFC3339) and, if ownerID is non-empty,
// restricted to that owner.
func (s *State) TokensCreatedInWindow(tt TokenType, ownerID, start, end string) []*Token {
	var out []*Token
	for _, t := range s.tokens {
		if t.Type != tt {
			continue
		}
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		if t.CreatedAt >= start && t.CreatedAt < end {
			out = append(out, t.Clone())
		}
	}
	return out
}

// --- Escrows ---

func (s *State) GetEscrow(id string) (*Escrow, error) {
	e, ok := s.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *State) AddEscrow(e *Escrow) error {
	if _, ok := s.escrows[e.ID]; ok {
		return fmt.Errorf("escrow %s: %w", e.ID, ErrAlreadyExists)
	}
	s.escrows[e.ID] = e.Clone()
	return nil
}

func (s *State) UpdateEscrow(e *Escrow) error {
	if _, ok := s.escrows[e.ID]; !ok {
		return fmt.Errorf("escrow %s: %w", e.ID, ErrNotFound)
	}
	s.escrows[e.ID] = e.Clone()
	return nil
}

// --- Stakes ---

func (s *State) GetStake(id string) (*Stake, error) {
	st, ok := s.stakes[id]
	if !ok {
		return nil, fmt.Errorf("stake %s: %w", id, ErrNotFound)
	}
	return st.Clone(), nil
}

func (s *State) AddStake(st *Stake) error {
	if _, ok := s.stakes[st.ID]; ok {
		return fmt.Errorf("stake %s: %w", st.ID, ErrAlreadyExists)
	}
	s.stakes[st.ID] = st.Clone()
	return nil
}

func (s *State) UpdateStake(st *Stake) error {
	if _, ok := s.stakes[st.ID]; !ok {
		return fmt.Errorf("stake %s: %w", st.ID, ErrNotFound)
	}
	s.stakes[st.ID] = st.Clone()
	return nil
}

// StakesByJob returns every stake recorded against jobID.
func (s *State) StakesByJob(jobID string) []*Stake {
	var out []*Stake
	for _, st := range s.stakes {
		if st.JobID == jobID {
			out = append(out, st.Clone())
		}
	}
	return out
}

// --- Contracts ---

func (s *State) GetContract(id string) (*Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *State) AddContract(c *Contract) error {
	if _, ok := s.contracts[c.ID]; ok {
		return fmt.Errorf("contract %s: %w", c.ID, ErrAlreadyExists)
	}
	s.contracts[c.ID] = c.Clone()
	return nil
}

// --- Submissions ---

func (s *State) GetSubmission(id string) (*Submission, error) {
	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return sub.Clone(), nil
}

func (s *State) AddSubmission(sub *Submission) error {
	if _, ok := s.submissions[sub.ID]; ok {
		return fmt.Errorf("submission %s: %w", sub.ID, ErrAlreadyExists)
	}
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

func (s *State) UpdateSubmission(sub *Submission) error {
	if _, ok := s.submissions[sub.ID]; !ok {
		return fmt.Errorf("submission %s: %w", sub.ID, ErrNotFound)
	}
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// SubmissionsByContract returns submissions filed against contractID.
func (s *State) SubmissionsByContract(contractID string) []*Submission {
	var out []*Submission
	for _, sub := range s.submissions {
		if sub.ContractID == contractID {
			out = append(out, sub.Clone())
		}
	}
	return out
}

// --- Verification jobs ---

func (s *State) GetJob(id string) (*VerificationJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j.Clone(), nil
}

func (s *State) AddJob(j *VerificationJob) error {
	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("job %s: %w", j.ID, ErrAlreadyExists)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *State) UpdateJob(j *VerificationJob) error {
	if _, ok := s.jobs[j.ID]; !ok {
		return fmt.Errorf("job %s: %w", j.ID, ErrNotFound)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// JobsBySubmission returns every verification job created for submissionID.
func (s *State) JobsBySubmission(submissionID string) []*VerificationJob {
	var out []*VerificationJob
	for _, j := range s.jobs {
		if j.SubmissionID == submissionID {
			out = append(out, j.Clone())
		}
	}
	return out
}

// AllOpenOrAssignedJobs returns every job not yet in a terminal status, used
// by the maintenance sweep.
func (s *State) AllOpenOrAssignedJobs() []*VerificationJob {
	var out []*VerificationJob
	for _, j := range s.jobs {
		if j.Status == JobOpen || j.Status == JobAssigned {
			out = append(out, j.Clone())
		}
	}
	return out
}

// --- Stamps ---

func (s *State) GetStamp(id string) (*Stamp, error) {
	st, ok := s.stamps[id]
	if !ok {
		return nil, fmt.Errorf("stamp %s: %w", id, ErrNotFound)
	}
	return st.Clone(), nil
}

func (s *State) AddStamp(st *Stamp) error {
	if _, ok := s.stamps[st.ID]; ok {
		return fmt.Errorf("stamp %s: %w", st.ID, ErrAlreadyExists)
	}
	s.stamps[st.ID] = st.Clone()
	return nil
}

// StampsBySubmission returns stamps recorded against submissionID.
func (s *State) StampsBySubmission(submissionID string) []*Stamp {
	var out []*Stamp
	for _, st := range s.stamps {
		if st.SubmissionID == submissionID {
			out = append(out, st.Clone())
		}
	}
	return out
}

// --- Sanctions ---

func (s *State) GetSanction(id string) (*Sanction, error) {
	sc, ok := s.sanctions[id]
	if !ok {
		return nil, fmt.Errorf("sanction %s: %w", id, ErrNotFound)
	}
	return sc.Clone(), nil
}

func (s *State) AddSanction(sc *Sanction) error {
	if _, ok := s.sanctions[sc.ID]; ok {
		return fmt.Errorf("sanction %s: %w", sc.ID, ErrAlreadyExists)
	}
	s.sanctions[sc.ID] = sc.Clone()
	return nil
}

func (s *State) UpdateSanction(sc *Sanction) error {
	if _, ok := s.sanctions[sc.ID]; !ok {
		return fmt.Errorf("sanction %s: %w", sc.ID, ErrNotFound)
	}
	s.sanctions[sc.ID] = sc.Clone()
	return nil
}

// --- Appeals ---

func (s *State) GetAppeal(id string) (*Appeal, error) {
	ap, ok := s.appeals[id]
	if !ok {
		return nil, fmt.Errorf("appeal %s: %w", id, ErrNotFound)
	}
	return ap.Clone(), nil
}

func (s *State) AddAppeal(ap *Appeal) error {
	if _, ok := s.appeals[ap.ID]; ok {
		return fmt.Errorf("appeal %s: %w", ap.ID, ErrAlreadyExists)
	}
	s.appeals[ap.ID] = ap.Clone()
	return nil
}

// --- Nonces ---

// RegisterNonce records nonce as used by signer, failing if already present.
func (s *State) RegisterNonce(signer, nonce string) error {
	set, ok := s.nonces[signer]
	if !ok {
		set = make(map[string]struct{})
		s.nonces[signer] = set
	}
	if _, used := set[nonce]; used {
		return fmt.Errorf("nonce %s for signer %s: %w", nonce, signer, ErrAlreadyExists)
	}
	set[nonce] = struct{}{}
	return nil
}

// Counts returns the number of records held in each entity map, for the CLI
// state summary and the archive's sanity checks.
type Counts struct {
	Accounts    int
	Tokens      int
	Escrows     int
	Stakes      int
	Contracts   int
	Submissions int
	Jobs        int
	Stamps      int
	Sanctions   int
	Appeals     int
}

func (s *State) Counts() Counts {
	return Counts{
		Accounts:    len(s.accounts),
		Tokens:      len(s.tokens),
		Escrows:     len(s.escrows),
		Stakes:      len(s.stakes),
		Contracts:   len(s.contracts),
		Submissions: len(s.submissions),
		Jobs:        len(s.jobs),
		Stamps:      len(s.stamps),
		Sanctions:   len(s.sanctions),
		Appeals:     len(s.appeals),
	}
}
