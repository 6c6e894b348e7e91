package state

import "fmt"

// ErrInsufficientBalance is returned when a debit would drive an account's
// CC balance negative. Balances are never allowed below zero; CC has no
// notion of overdraft.
var ErrInsufficientBalance = fmt.Errorf("state: insufficient balance")

// ApplyCCChange adjusts accountID's balance by delta (positive credits,
// negative debits), creating the account on first touch if it does not yet
// exist (this is how synthetic ESCROW:/STAKE:/TREASURY accounts come into
// being). now stamps CreatedAt when the account is created and LastActiveAt
// on every change. The change record is
// returned so the caller can fold it into the ledger event body.
func (s *State) ApplyCCChange(accountID string, delta int64, reason, now string) (CCChange, error) {
	acct := s.ensureAccount(accountID, now)
	if delta < 0 && acct.CCBalance+delta < 0 {
		return CCChange{}, fmt.Errorf("account %s balance %d, delta %d: %w", accountID, acct.CCBalance, delta, ErrInsufficientBalance)
	}
	acct.CCBalance += delta
	acct.LastActiveAt = now
	return CCChange{AccountID: accountID, Delta: delta, Reason: reason}, nil
}

// TransferCC moves amount (must be >= 0) from fromID to toID atomically with
// respect to the caller: on insufficient balance neither side is touched.
// Returns the two CCChange records in debit-then-credit order.
func (s *State) TransferCC(fromID, toID string, amount int64, reason, now string) ([]CCChange, error) {
	if amount < 0 {
		return nil, fmt.Errorf("state: transfer amount %d must be non-negative", amount)
	}
	from := s.ensureAccount(fromID, now)
	if from.CCBalance < amount {
		return nil, fmt.Errorf("account %s balance %d, transfer %d: %w", fromID, from.CCBalance, amount, ErrInsufficientBalance)
	}
	debit, err := s.ApplyCCChange(fromID, -amount, reason, now)
	if err != nil {
		return nil, err
	}
	credit, err := s.ApplyCCChange(toID, amount, reason, now)
	if err != nil {
		// amount was already validated against from's balance above, so this
		// branch is unreachable in practice; undo the debit defensively.
		s.ApplyCCChange(fromID, amount, reason+":rollback", now)
		return nil, err
	}
	return []CCChange{debit, credit}, nil
}

// LockEscrow opens (or tops up) the escrow account for contractID, debiting
// sponsorID's balance and recording an OPEN escrow.
func (s *State) LockEscrow(contractID, sponsorID string, amountCC int64, now string) ([]CCChange, error) {
	escrowAcct := EscrowAccountID(contractID)
	changes, err := s.TransferCC(sponsorID, escrowAcct, amountCC, "ESCROW_LOCK:"+contractID, now)
	if err != nil {
		return nil, err
	}
	if existing, ok := s.escrows[contractID]; ok {
		existing.BalanceCC += amountCC
		existing.UpdatedAt = now
		return changes, nil
	}
	s.escrows[contractID] = &Escrow{
		ID:        contractID,
		AccountID: escrowAcct,
		SponsorID: sponsorID,
		BalanceCC: amountCC,
		Status:    EscrowOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return changes, nil
}

// ReleaseEscrow pays amountCC out of contractID's escrow to recipientID. If
// the escrow balance reaches zero it is closed.
func (s *State) ReleaseEscrow(contractID, recipientID string, amountCC int64, reason, now string) ([]CCChange, error) {
	esc, ok := s.escrows[contractID]
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", contractID, ErrNotFound)
	}
	if esc.BalanceCC < amountCC {
		return nil, fmt.Errorf("escrow %s balance %d, release %d: %w", contractID, esc.BalanceCC, amountCC, ErrInsufficientBalance)
	}
	changes, err := s.TransferCC(esc.AccountID, recipientID, amountCC, reason, now)
	if err != nil {
		return nil, err
	}
	esc.BalanceCC -= amountCC
	esc.UpdatedAt = now
	if esc.BalanceCC == 0 {
		esc.Status = EscrowClosed
	}
	return changes, nil
}

// LockStake debits verifierID's balance into the stake account for
// jobID/verifierID and records a LOCKED stake.
func (s *State) LockStake(jobID, verifierID string, amountCC int64, now string) (*Stake, []CCChange, error) {
	stakeAcct := StakeAccountID(jobID, verifierID)
	changes, err := s.TransferCC(verifierID, stakeAcct, amountCC, "STAKE_LOCK:"+jobID, now)
	if err != nil {
		return nil, nil, err
	}
	st := &Stake{
		ID:         StakeID(jobID, verifierID),
		JobID:      jobID,
		VerifierID: verifierID,
		AccountID:  stakeAcct,
		BalanceCC:  amountCC,
		Status:     StakeLocked,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.stakes[st.ID] = st
	return st.Clone(), changes, nil
}

// ReleaseStake returns a locked stake's balance to its verifier and marks it
// RELEASED.
func (s *State) ReleaseStake(stakeID, now string) ([]CCChange, error) {
	st, ok := s.stakes[stakeID]
	if !ok {
		return nil, fmt.Errorf("stake %s: %w", stakeID, ErrNotFound)
	}
	if st.Status != StakeLocked {
		return nil, fmt.Errorf("stake %s status %s: cannot release", stakeID, st.Status)
	}
	changes, err := s.TransferCC(st.AccountID, st.VerifierID, st.BalanceCC, "STAKE_RELEASE:"+st.JobID, now)
	if err != nil {
		return nil, err
	}
	st.Status = StakeReleased
	st.UpdatedAt = now
	return changes, nil
}

// SlashStake pays a locked stake's balance to recipientID and marks it
// SLASHED instead of returning it to the verifier.
func (s *State) SlashStake(stakeID, recipientID, reason, now string) ([]CCChange, error) {
	st, ok := s.stakes[stakeID]
	if !ok {
		return nil, fmt.Errorf("stake %s: %w", stakeID, ErrNotFound)
	}
	if st.Status != StakeLocked {
		return nil, fmt.Errorf("stake %s status %s: cannot slash", stakeID, st.Status)
	}
	changes, err := s.TransferCC(st.AccountID, recipientID, st.BalanceCC, reason, now)
	if err != nil {
		return nil, err
	}
	st.Status = StakeSlashed
	st.UpdatedAt = now
	return changes, nil
}
