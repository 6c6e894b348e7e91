package kernel

import (
	"fmt"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/state"
)

// execSanction handles SANCTION: SLASH (against a stake), REJECT (against a
// submission), or FLAG (against an account).
func (k *Kernel) execSanction(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.SanctionPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}
	nowStr := now.UTC().Format(time.RFC3339)

	action := state.SanctionAction(payload.Action)
	targetType := state.SanctionTargetType(payload.TargetType)
	var ccChanges []state.CCChange

	switch action {
	case state.SanctionSlash:
		if targetType != state.SanctionTargetStake {
			return ledger.Event{}, newValidationError("TARGET_TYPE_MISMATCH", fmt.Errorf("%w: SLASH requires target_type=STAKE", ErrInvalidEnvelope))
		}
		recipient := payload.RecipientID
		if recipient == "" {
			recipient = state.TreasuryAccountID
		}
		changes, err := k.slashStake(payload.TargetID, recipient, payload.AmountCC, nowStr)
		if err != nil {
			return ledger.Event{}, err
		}
		ccChanges = changes

	case state.SanctionReject:
		if targetType != state.SanctionTargetSubmission {
			return ledger.Event{}, newValidationError("TARGET_TYPE_MISMATCH", fmt.Errorf("%w: REJECT requires target_type=SUBMISSION", ErrInvalidEnvelope))
		}
		submission, err := k.State.GetSubmission(payload.TargetID)
		if err != nil {
			return ledger.Event{}, newExecutionError("SUBMISSION_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
		}
		contract, err := k.State.GetContract(submission.ContractID)
		if err != nil {
			return ledger.Event{}, newExecutionError("CONTRACT_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
		}
		changes, err := k.rejectSubmission(submission, contract, nowStr)
		if err != nil {
			return ledger.Event{}, err
		}
		ccChanges = changes

	case state.SanctionFlag:
		if targetType != state.SanctionTargetAccount {
			return ledger.Event{}, newValidationError("TARGET_TYPE_MISMATCH", fmt.Errorf("%w: FLAG requires target_type=ACCOUNT", ErrInvalidEnvelope))
		}
		acct, err := k.State.GetAccount(payload.TargetID)
		if err != nil {
			return ledger.Event{}, newExecutionError("ACCOUNT_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
		}
		acct.IncidentCount++
		if err := k.State.UpdateAccount(acct); err != nil {
			return ledger.Event{}, newExecutionError("ACCOUNT_UPDATE_FAILED", err)
		}

	default:
		return ledger.Event{}, newValidationError("UNKNOWN_ACTION", fmt.Errorf("%w: unknown sanction action %q", ErrInvalidEnvelope, payload.Action))
	}

	sanction := &state.Sanction{
		ID:          env.ID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    payload.TargetID,
		Reason:      payload.Reason,
		AmountCC:    payload.AmountCC,
		RecipientID: payload.RecipientID,
		Status:      state.SanctionApplied,
		CreatedAt:   nowStr,
		UpdatedAt:   nowStr,
	}
	if err := k.State.AddSanction(sanction); err != nil {
		return ledger.Event{}, newExecutionError("SANCTION_EXISTS", err)
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID: env.ID,
		ActorID:     env.ProposerID,
		Type:        ledger.EventBlueprint,
		CCChanges:   ccChanges,
	}, now)
}

// slashStake slashes up to amountCC (or the full balance, if amountCC is 0)
// from the stake identified by targetID ("<job_id>:<verifier_id>") to
// recipient.
func (k *Kernel) slashStake(stakeID, recipient string, amountCC int64, nowStr string) ([]state.CCChange, error) {
	stake, err := k.State.GetStake(stakeID)
	if err != nil {
		return nil, newExecutionError("STAKE_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	if stake.Status != state.StakeLocked {
		return nil, newExecutionError("STAKE_NOT_LOCKED", fmt.Errorf("%w: stake %s status %s", ErrInvalidState, stakeID, stake.Status))
	}
	amount := amountCC
	if amount <= 0 || amount > stake.BalanceCC {
		amount = stake.BalanceCC
	}
	if amount == stake.BalanceCC {
		return k.State.SlashStake(stakeID, recipient, "SANCTION_SLASH", nowStr)
	}
	// Partial slash: debit the stake account directly to recipient and
	// leave the remainder LOCKED, per the Stake state machine in spec.md §4.7.
	changes, err := k.State.TransferCC(stake.AccountID, recipient, amount, "SANCTION_SLASH", nowStr)
	if err != nil {
		return nil, newExecutionError("SLASH_TRANSFER_FAILED", err)
	}
	stake.BalanceCC -= amount
	if err := k.State.UpdateStake(stake); err != nil {
		return nil, newExecutionError("STAKE_UPDATE_FAILED", err)
	}
	return changes, nil
}

// execAppeal handles APPEAL: records an appeal against an existing sanction,
// moving an APPLIED sanction to UNDER_APPEAL.
func (k *Kernel) execAppeal(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.AppealPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}
	nowStr := now.UTC().Format(time.RFC3339)

	sanction, err := k.State.GetSanction(payload.SanctionID)
	if err != nil {
		return ledger.Event{}, newExecutionError("SANCTION_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}

	appeal := &state.Appeal{
		ID:          env.ID,
		SanctionID:  payload.SanctionID,
		AppellantID: payload.AppellantID,
		Reason:      payload.Reason,
		Status:      state.AppealPending,
		CreatedAt:   nowStr,
		UpdatedAt:   nowStr,
	}
	if err := k.State.AddAppeal(appeal); err != nil {
		return ledger.Event{}, newExecutionError("APPEAL_EXISTS", err)
	}

	if sanction.Status == state.SanctionApplied {
		sanction.Status = state.SanctionUnderAppeal
		sanction.UpdatedAt = nowStr
		if err := k.State.UpdateSanction(sanction); err != nil {
			return ledger.Event{}, newExecutionError("SANCTION_UPDATE_FAILED", err)
		}
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID: payload.SanctionID,
		ActorID:     env.ProposerID,
		Type:        ledger.EventBlueprint,
	}, now)
}
