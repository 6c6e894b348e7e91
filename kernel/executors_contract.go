package kernel

import (
	"fmt"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/state"
)

// execQuestContract handles QUEST_CONTRACT: validates funding covers the
// estimated payout, locks the sponsor's escrow, immediately releases any
// fixed admin fee to TREASURY, and stores the contract.
func (k *Kernel) execQuestContract(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	if env.Funding == nil || env.VerificationPlan == nil {
		return ledger.Event{}, newValidationError("MISSING_FUNDING", fmt.Errorf("%w: quest contract requires funding and verification_plan", ErrInvalidEnvelope))
	}
	var payload envelope.QuestContractPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}

	funding := env.Funding
	if !funding.EscrowRequired {
		return ledger.Event{}, newValidationError("ESCROW_NOT_REQUIRED", fmt.Errorf("%w: quest contract must set escrow_required=true", ErrInvalidEnvelope))
	}
	if funding.SponsorID == "" {
		return ledger.Event{}, newValidationError("MISSING_SPONSOR", fmt.Errorf("%w: quest contract requires sponsor_id", ErrInvalidEnvelope))
	}
	if funding.AdminPercent < 0 || funding.AdminPercent > 1 {
		return ledger.Event{}, newValidationError("INVALID_ADMIN_PERCENT", fmt.Errorf("%w: admin_percent must be in [0,1]", ErrInvalidEnvelope))
	}

	var sumPay float64
	for _, req := range env.VerificationPlan.RequiredStamps {
		sumPay += float64(req.PayCC) * float64(req.MinUnique)
	}
	estimated := float64(payload.AuthorStipendCC) + sumPay + funding.AdminPercent*sumPay + float64(funding.FixedCC)
	if float64(funding.EscrowCCAmount) < estimated {
		return ledger.Event{}, newValidationError("INSUFFICIENT_ESCROW", fmt.Errorf("%w: escrow_cc_amount %d below estimated payout %.2f", ErrInvalidEnvelope, funding.EscrowCCAmount, estimated))
	}

	nowStr := now.UTC().Format(time.RFC3339)
	ccChanges, err := k.State.LockEscrow(env.ID, funding.SponsorID, funding.EscrowCCAmount, nowStr)
	if err != nil {
		return ledger.Event{}, newExecutionError("ESCROW_LOCK_FAILED", err)
	}

	if funding.FixedCC > 0 {
		adminChanges, err := k.State.ReleaseEscrow(env.ID, state.TreasuryAccountID, funding.FixedCC, "ADMIN_FEE", nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("ADMIN_FEE_RELEASE_FAILED", err)
		}
		ccChanges = append(ccChanges, adminChanges...)
	}

	contract := &state.Contract{
		ID:         env.ID,
		ProposerID: env.ProposerID,
		Funding: state.Funding{
			SponsorID:      funding.SponsorID,
			EscrowCCAmount: funding.EscrowCCAmount,
			AdminPercent:   funding.AdminPercent,
			FixedCC:        funding.FixedCC,
			EscrowRequired: funding.EscrowRequired,
		},
		VerificationPlan: state.VerificationPlan{
			RequiredStamps: toStateRequirements(env.VerificationPlan.RequiredStamps),
			ConflictRules:  append([]string(nil), env.VerificationPlan.ConflictRules...),
			SamplingAudit:  toStateSamplingAudit(env.VerificationPlan.SamplingAudit),
		},
		Payload: state.ContractPayload{
			DeliverableType:    payload.DeliverableType,
			AcceptanceCriteria: append([]string(nil), payload.AcceptanceCriteria...),
			AuthorStipendCC:    payload.AuthorStipendCC,
			MintRewards:        toStateMintRewards(payload.MintRewards),
		},
		CreatedAt: nowStr,
		UpdatedAt: nowStr,
	}
	if err := k.State.AddContract(contract); err != nil {
		return ledger.Event{}, newExecutionError("CONTRACT_EXISTS", err)
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID: env.ID,
		ActorID:     env.ProposerID,
		Type:        ledger.EventEscrowLock,
		CCChanges:   ccChanges,
	}, now)
}

// execWorkSubmission handles WORK_SUBMISSION: stores the submission,
// creates one verification job per required stamp slot, and releases any
// author stipend immediately.
func (k *Kernel) execWorkSubmission(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.WorkSubmissionPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}

	contract, err := k.State.GetContract(payload.ContractID)
	if err != nil {
		return ledger.Event{}, newExecutionError("CONTRACT_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	escrow, err := k.State.GetEscrow(payload.ContractID)
	if err != nil || escrow.Status != state.EscrowOpen {
		return ledger.Event{}, newExecutionError("ESCROW_NOT_OPEN", fmt.Errorf("%w: contract %s has no open escrow", ErrInvalidState, payload.ContractID))
	}

	nowStr := now.UTC().Format(time.RFC3339)
	submission := &state.Submission{
		ID:         env.ID,
		ContractID: payload.ContractID,
		ProposerID: env.ProposerID,
		Payload: state.SubmissionPayload{
			Artifacts:     toStateArtifacts(payload.Artifacts),
			Claims:        payload.Claims,
			RequestedMint: toStateRequestedMint(payload.RequestedMint),
		},
		Status:    state.SubmissionSubmitted,
		CreatedAt: nowStr,
		UpdatedAt: nowStr,
	}
	if err := k.State.AddSubmission(submission); err != nil {
		return ledger.Event{}, newExecutionError("SUBMISSION_EXISTS", err)
	}

	for _, req := range contract.VerificationPlan.RequiredStamps {
		for i := 0; i < req.MinUnique; i++ {
			jobID, err := deriveJobID(submission.ID, req.Role, i, nowStr)
			if err != nil {
				return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
			}
			deadline := now.Add(time.Duration(req.TimeoutMinutes) * time.Minute).UTC().Format(time.RFC3339)
			job := &state.VerificationJob{
				ID:              jobID,
				SubmissionID:    submission.ID,
				StampRole:       req.Role,
				OpenToPool:      true,
				BasePayCC:       req.PayCC,
				CurrentPayCC:    req.PayCC,
				StakeRequiredCC: req.StakeCC,
				CreatedAt:       nowStr,
				DeadlineAt:      deadline,
				Status:          state.JobOpen,
			}
			if err := k.State.AddJob(job); err != nil {
				return ledger.Event{}, newExecutionError("JOB_EXISTS", err)
			}
		}
	}

	var ccChanges []state.CCChange
	if contract.Payload.AuthorStipendCC > 0 {
		changes, err := k.State.ReleaseEscrow(payload.ContractID, env.ProposerID, contract.Payload.AuthorStipendCC, "AUTHOR_STIPEND", nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("STIPEND_RELEASE_FAILED", err)
		}
		ccChanges = changes
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID: payload.ContractID,
		ActorID:     env.ProposerID,
		Type:        ledger.EventBlueprint,
		CCChanges:   ccChanges,
	}, now)
}
