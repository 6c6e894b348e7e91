package kernel

import (
	"fmt"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/state"
)

// execVerificationJobAccept handles VERIFICATION_JOB: a verifier claims an
// open job by locking the required stake.
func (k *Kernel) execVerificationJobAccept(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.VerificationJobAcceptPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}

	job, err := k.State.GetJob(payload.JobID)
	if err != nil {
		return ledger.Event{}, newExecutionError("JOB_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	if job.Status != state.JobOpen {
		return ledger.Event{}, newExecutionError("JOB_NOT_OPEN", fmt.Errorf("%w: job %s status %s", ErrInvalidState, job.ID, job.Status))
	}
	if !job.OpenToPool && !job.EligibleFor(payload.VerifierID) {
		return ledger.Event{}, newValidationError("NOT_ELIGIBLE", fmt.Errorf("%w: verifier %s not eligible for job %s", ErrInvalidEnvelope, payload.VerifierID, job.ID))
	}
	if payload.StakeCCLocked < job.StakeRequiredCC {
		return ledger.Event{}, newExecutionError("INSUFFICIENT_STAKE", fmt.Errorf("%w: locked %d below required %d", ErrInsufficientBalance, payload.StakeCCLocked, job.StakeRequiredCC))
	}

	nowStr := now.UTC().Format(time.RFC3339)
	_, ccChanges, err := k.State.LockStake(job.ID, payload.VerifierID, payload.StakeCCLocked, nowStr)
	if err != nil {
		return ledger.Event{}, newExecutionError("STAKE_LOCK_FAILED", err)
	}

	job.Status = state.JobAssigned
	job.AssignedTo = payload.VerifierID
	if err := k.State.UpdateJob(job); err != nil {
		return ledger.Event{}, newExecutionError("JOB_UPDATE_FAILED", err)
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID: job.SubmissionID,
		ActorID:     payload.VerifierID,
		Type:        ledger.EventStakeLock,
		CCChanges:   ccChanges,
	}, now)
}

// execVerificationStamp handles VERIFICATION_STAMP: records a verifier's
// decision, releases their stake, pays them out of escrow (or TREASURY for
// audit jobs, gated by the weekly budget), and drives the submission/job
// state machines — including rejection, requeue, audit scheduling, and mint
// payout — all folded into a single ledger event.
func (k *Kernel) execVerificationStamp(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.VerificationStampPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}
	decision := state.StampDecision(payload.Decision)
	if decision != state.DecisionPass && decision != state.DecisionFail && decision != state.DecisionAbstain {
		return ledger.Event{}, newValidationError("INVALID_DECISION", fmt.Errorf("%w: unknown decision %q", ErrInvalidEnvelope, payload.Decision))
	}

	job, err := k.State.GetJob(payload.JobID)
	if err != nil {
		return ledger.Event{}, newExecutionError("JOB_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	if job.Status != state.JobAssigned || job.AssignedTo != payload.VerifierID {
		return ledger.Event{}, newExecutionError("JOB_NOT_ASSIGNED", fmt.Errorf("%w: job %s not assigned to %s", ErrInvalidState, job.ID, payload.VerifierID))
	}
	stakeID := state.StakeID(job.ID, payload.VerifierID)
	stakeRecord, err := k.State.GetStake(stakeID)
	if err != nil || stakeRecord.Status != state.StakeLocked || stakeRecord.BalanceCC < job.StakeRequiredCC {
		return ledger.Event{}, newExecutionError("STAKE_NOT_LOCKED", fmt.Errorf("%w: stake %s not sufficiently locked", ErrInvalidState, stakeID))
	}
	submission, err := k.State.GetSubmission(job.SubmissionID)
	if err != nil {
		return ledger.Event{}, newExecutionError("SUBMISSION_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	contract, err := k.State.GetContract(submission.ContractID)
	if err != nil {
		return ledger.Event{}, newExecutionError("CONTRACT_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
	}

	nowStr := now.UTC().Format(time.RFC3339)

	stamp := &state.Stamp{
		ID:            env.ID,
		JobID:         job.ID,
		SubmissionID:  submission.ID,
		VerifierID:    payload.VerifierID,
		Role:          job.StampRole,
		Decision:      decision,
		Notes:         payload.Notes,
		Artifacts:     toStateArtifacts(payload.Artifacts),
		StakeCCLocked: stakeRecord.BalanceCC,
		CreatedAt:     nowStr,
	}
	if err := k.State.AddStamp(stamp); err != nil {
		return ledger.Event{}, newExecutionError("STAMP_EXISTS", err)
	}

	job.Status = state.JobCompleted
	job.StampID = stamp.ID
	if err := k.State.UpdateJob(job); err != nil {
		return ledger.Event{}, newExecutionError("JOB_UPDATE_FAILED", err)
	}

	submission.StampIDs = append(submission.StampIDs, stamp.ID)
	if err := k.State.UpdateSubmission(submission); err != nil {
		return ledger.Event{}, newExecutionError("SUBMISSION_UPDATE_FAILED", err)
	}

	var ccChanges []state.CCChange

	releaseChanges, err := k.State.ReleaseStake(stakeID, nowStr)
	if err != nil {
		return ledger.Event{}, newExecutionError("STAKE_RELEASE_FAILED", err)
	}
	ccChanges = append(ccChanges, releaseChanges...)

	if job.IsAudit {
		if err := k.Treasury.AssertCanSpend(k.Ledger, job.CurrentPayCC, now); err != nil {
			return ledger.Event{}, newExecutionError("BUDGET_EXCEEDED", fmt.Errorf("%w: %v", ErrBudgetExceeded, err))
		}
		payChanges, err := k.State.TransferCC(state.TreasuryAccountID, payload.VerifierID, job.CurrentPayCC, "AUDIT_PAY", nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("AUDIT_PAY_FAILED", err)
		}
		ccChanges = append(ccChanges, payChanges...)
	} else {
		if contract.Funding.AdminPercent > 0 {
			adminFee := ceilCC(contract.Funding.AdminPercent * float64(job.CurrentPayCC))
			if adminFee > 0 {
				adminChanges, err := k.State.ReleaseEscrow(contract.ID, state.TreasuryAccountID, adminFee, "ADMIN_FEE", nowStr)
				if err != nil {
					return ledger.Event{}, newExecutionError("ADMIN_FEE_RELEASE_FAILED", err)
				}
				ccChanges = append(ccChanges, adminChanges...)
			}
		}
		payChanges, err := k.State.ReleaseEscrow(contract.ID, payload.VerifierID, job.CurrentPayCC, "VERIFIER_PAY", nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("VERIFIER_PAY_FAILED", err)
		}
		ccChanges = append(ccChanges, payChanges...)
	}

	eventType := ledger.EventBlueprint
	var tokensMinted []string

	switch decision {
	case state.DecisionFail:
		extraChanges, err := k.rejectSubmission(submission, contract, nowStr)
		if err != nil {
			return ledger.Event{}, err
		}
		ccChanges = append(ccChanges, extraChanges...)

	case state.DecisionAbstain:
		replacementID, err := deriveJobID(submission.ID, job.StampRole, int(now.UnixNano()%1000000), nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
		}
		req, _ := contract.RequirementForRole(job.StampRole)
		deadline := now.Add(time.Duration(req.TimeoutMinutes) * time.Minute).UTC().Format(time.RFC3339)
		replacement := &state.VerificationJob{
			ID:              replacementID,
			SubmissionID:    submission.ID,
			StampRole:       job.StampRole,
			OpenToPool:      true,
			BasePayCC:       req.PayCC,
			CurrentPayCC:    req.PayCC,
			StakeRequiredCC: req.StakeCC,
			CreatedAt:       nowStr,
			DeadlineAt:      deadline,
			Status:          state.JobOpen,
		}
		if err := k.State.AddJob(replacement); err != nil {
			return ledger.Event{}, newExecutionError("JOB_EXISTS", err)
		}

	case state.DecisionPass:
		if job.IsAudit {
			minted, err := k.mintRewards(env, submission, contract, now)
			if err != nil {
				return ledger.Event{}, err
			}
			tokensMinted = minted
			submission.Status = state.SubmissionVerified
			submission.Minted = true
			eventType = ledger.EventMint
			if err := k.State.UpdateSubmission(submission); err != nil {
				return ledger.Event{}, newExecutionError("SUBMISSION_UPDATE_FAILED", err)
			}
			break
		}

		if !requirementsSatisfied(k.State, submission, contract) {
			break
		}

		audit := contract.VerificationPlan.SamplingAudit
		triggerAudit := false
		if audit != nil && audit.Enabled {
			fraction, err := auditSampleFraction(submission.ID, audit.Rate)
			if err != nil {
				return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
			}
			triggerAudit = fraction < audit.Rate
		}

		if triggerAudit {
			auditID, err := deriveJobID(submission.ID, "AUDIT", 0, nowStr)
			if err != nil {
				return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
			}
			auditJob := &state.VerificationJob{
				ID:              auditID,
				SubmissionID:    submission.ID,
				StampRole:       "AUDIT",
				OpenToPool:      true,
				BasePayCC:       audit.AuditPayCC,
				CurrentPayCC:    audit.AuditPayCC,
				StakeRequiredCC: 0,
				CreatedAt:       nowStr,
				DeadlineAt:      now.Add(240 * time.Minute).UTC().Format(time.RFC3339),
				Status:          state.JobOpen,
				IsAudit:         true,
			}
			if err := k.State.AddJob(auditJob); err != nil {
				return ledger.Event{}, newExecutionError("JOB_EXISTS", err)
			}
			submission.Status = state.SubmissionPendingAudit
			if err := k.State.UpdateSubmission(submission); err != nil {
				return ledger.Event{}, newExecutionError("SUBMISSION_UPDATE_FAILED", err)
			}
		} else {
			minted, err := k.mintRewards(env, submission, contract, now)
			if err != nil {
				return ledger.Event{}, err
			}
			tokensMinted = minted
			submission.Status = state.SubmissionVerified
			submission.Minted = true
			eventType = ledger.EventMint
			if err := k.State.UpdateSubmission(submission); err != nil {
				return ledger.Event{}, newExecutionError("SUBMISSION_UPDATE_FAILED", err)
			}
		}
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	return k.appendEvent(draft, appendParams{
		BlueprintID:  job.SubmissionID,
		ActorID:      payload.VerifierID,
		Type:         eventType,
		TokensMinted: tokensMinted,
		CCChanges:    ccChanges,
	}, now)
}

// rejectSubmission expires every non-terminal job of submission (releasing
// any locked stakes), refunds the remaining escrow to the sponsor, and
// marks the submission REJECTED.
func (k *Kernel) rejectSubmission(submission *state.Submission, contract *state.Contract, nowStr string) ([]state.CCChange, error) {
	var ccChanges []state.CCChange

	for _, job := range k.State.JobsBySubmission(submission.ID) {
		if job.Status != state.JobOpen && job.Status != state.JobAssigned {
			continue
		}
		if job.AssignedTo != "" {
			stakeID := state.StakeID(job.ID, job.AssignedTo)
			if st, err := k.State.GetStake(stakeID); err == nil && st.Status == state.StakeLocked {
				changes, err := k.State.ReleaseStake(stakeID, nowStr)
				if err != nil {
					return nil, newExecutionError("STAKE_RELEASE_FAILED", err)
				}
				ccChanges = append(ccChanges, changes...)
			}
		}
		job.Status = state.JobExpired
		if err := k.State.UpdateJob(job); err != nil {
			return nil, newExecutionError("JOB_UPDATE_FAILED", err)
		}
	}

	escrow, err := k.State.GetEscrow(contract.ID)
	if err == nil && escrow.BalanceCC > 0 {
		changes, err := k.State.ReleaseEscrow(contract.ID, contract.Funding.SponsorID, escrow.BalanceCC, "ESCROW_REFUND", nowStr)
		if err != nil {
			return nil, newExecutionError("ESCROW_REFUND_FAILED", err)
		}
		ccChanges = append(ccChanges, changes...)
	}

	submission.Status = state.SubmissionRejected
	if err := k.State.UpdateSubmission(submission); err != nil {
		return nil, newExecutionError("SUBMISSION_UPDATE_FAILED", err)
	}
	return ccChanges, nil
}

// mintRewards mints every mint_reward on contract whose token type the
// submission requested (or left unconstrained), returning the minted token
// ids in insertion order. Token ids are derived from a draft event id that
// mintRewards computes itself via beginEvent; it matches the id of the event
// the calling executor appends only because nothing is appended in between,
// so callers must invoke this only from within that same executor call.
func (k *Kernel) mintRewards(env envelope.Envelope, submission *state.Submission, contract *state.Contract, now time.Time) ([]string, error) {
	draft, err := k.beginEvent(env)
	if err != nil {
		return nil, err
	}
	nowStr := now.UTC().Format(time.RFC3339)
	proofRefs := artifactHashes(submission.Payload.Artifacts)
	stampIDs := passingStampIDs(k.State, submission)

	var minted []string
	index := 0
	for _, reward := range contract.Payload.MintRewards {
		if !submission.RequestsMint(reward.TokenType) {
			continue
		}
		targetID := resolveMintTarget(reward.Target, submission, contract)
		if err := k.Policy.CheckMintCap(k.State, reward.TokenType, targetID, reward.Amount, now); err != nil {
			return nil, newValidationError("MINT_CAP_EXCEEDED", err)
		}
		for i := 0; i < reward.Amount; i++ {
			tokenID, err := ledger.DeriveTokenID(draft.id, index, string(reward.TokenType), reward.Template)
			if err != nil {
				return nil, newExecutionError("HASH_FAILURE", err)
			}
			token := &state.Token{
				ID:          tokenID,
				Type:        reward.TokenType,
				Template:    reward.Template,
				OwnerID:     targetID,
				Status:      state.TokenActive,
				MintEventID: draft.id,
				ProofRefs:   append([]string(nil), proofRefs...),
				StampIDs:    append([]string(nil), stampIDs...),
				CreatedAt:   nowStr,
				UpdatedAt:   nowStr,
			}
			if err := k.State.AddToken(token); err != nil {
				return nil, newExecutionError("TOKEN_EXISTS", err)
			}
			minted = append(minted, tokenID)
			index++
		}
	}
	return minted, nil
}
