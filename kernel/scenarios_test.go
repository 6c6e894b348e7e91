package kernel

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/policy"
	"civicrun/security"
	"civicrun/signer"
	"civicrun/state"
	"civicrun/treasury"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestKernel(t *testing.T, secCfg security.Config, polCfg policy.Config, treasCfg treasury.Config, now time.Time) *Kernel {
	t.Helper()
	st := state.New()
	l := ledger.New()
	sec := security.New(secCfg, signer.NewRegistry())
	pol := policy.New(polCfg)
	treas := treasury.New(treasCfg)
	return New(st, l, sec, pol, treas, WithClock(fixedClock(now)))
}

func unsignedSecurity() security.Config {
	return security.Config{}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func questContractEnvelope(t *testing.T, id, sponsorID string, escrow int64, adminPercent float64, stamps []envelope.StampRequirement, mintRewards []envelope.MintReward, now time.Time) envelope.Envelope {
	t.Helper()
	payload := mustMarshal(t, envelope.QuestContractPayload{
		DeliverableType: "artifact",
		MintRewards:     mintRewards,
	})
	return envelope.Envelope{
		ID:         id,
		Kind:       envelope.KindQuestContract,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: sponsorID,
		Funding: &envelope.Funding{
			SponsorID:      sponsorID,
			EscrowCCAmount: escrow,
			AdminPercent:   adminPercent,
			EscrowRequired: true,
		},
		VerificationPlan: &envelope.VerificationPlan{RequiredStamps: stamps},
		Payload:          payload,
	}
}

func workSubmissionEnvelope(t *testing.T, id, contractID, authorID string, artifactHash string, requestedMint []string, now time.Time) envelope.Envelope {
	t.Helper()
	payload := mustMarshal(t, envelope.WorkSubmissionPayload{
		ContractID:    contractID,
		Artifacts:     []envelope.Artifact{{Name: "deliverable", Hash: artifactHash}},
		RequestedMint: requestedMint,
	})
	return envelope.Envelope{
		ID:         id,
		Kind:       envelope.KindWorkSubmission,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: authorID,
		Payload:    payload,
	}
}

func jobAcceptEnvelope(id, jobID, verifierID string, stakeCC int64, now time.Time) envelope.Envelope {
	payload, _ := json.Marshal(envelope.VerificationJobAcceptPayload{
		JobID:         jobID,
		VerifierID:    verifierID,
		StakeCCLocked: stakeCC,
	})
	return envelope.Envelope{
		ID:         id,
		Kind:       envelope.KindVerificationJob,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: verifierID,
		Payload:    payload,
	}
}

func stampEnvelope(id, jobID, verifierID, decision string, now time.Time) envelope.Envelope {
	payload, _ := json.Marshal(envelope.VerificationStampPayload{
		JobID:      jobID,
		VerifierID: verifierID,
		Decision:   decision,
	})
	return envelope.Envelope{
		ID:         id,
		Kind:       envelope.KindVerificationStamp,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: verifierID,
		Payload:    payload,
	}
}

// acceptAndPass drives one verifier through job-accept then a PASS stamp,
// seeding verifierID with enough CC to cover the stake.
func acceptAndPass(t *testing.T, k *Kernel, jobID, verifierID string, stakeCC int64, now time.Time, idx int) {
	t.Helper()
	if _, err := k.State.GetAccount(verifierID); err != nil {
		if err := k.State.AddAccount(&state.Account{ID: verifierID, CCBalance: stakeCC}); err != nil {
			t.Fatalf("seed verifier account: %v", err)
		}
	}
	acceptID := "accept-" + jobID
	if _, err := k.Execute(jobAcceptEnvelope(acceptID, jobID, verifierID, stakeCC, now)); err != nil {
		t.Fatalf("accept job %s: %v", jobID, err)
	}
	stampID := "stamp-" + jobID
	if _, err := k.Execute(stampEnvelope(stampID, jobID, verifierID, "PASS", now)); err != nil {
		t.Fatalf("stamp job %s: %v", jobID, err)
	}
}

func findJobsByRole(t *testing.T, k *Kernel, submissionID, role string) []*state.VerificationJob {
	t.Helper()
	var out []*state.VerificationJob
	for _, job := range k.State.JobsBySubmission(submissionID) {
		if job.StampRole == role {
			out = append(out, job)
		}
	}
	return out
}

// TestS1QuestHappyPath drives a quest contract through three passing
// verifications and asserts the author's mint, escrow remainder, and
// treasury credit match the scenario.
func TestS1QuestHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{}, treasury.Config{TrackedReasons: map[string]bool{"AUDIT_PAY": true}}, now)

	if err := k.State.AddAccount(&state.Account{ID: "sponsor-1", CCBalance: 300}); err != nil {
		t.Fatalf("seed sponsor: %v", err)
	}

	stamps := []envelope.StampRequirement{
		{Role: "QUALITY", MinUnique: 1, PayCC: 25, StakeCC: 5, TimeoutMinutes: 60},
		{Role: "EVIDENCE", MinUnique: 1, PayCC: 30, StakeCC: 5, TimeoutMinutes: 60},
		{Role: "SAFETY", MinUnique: 1, PayCC: 35, StakeCC: 10, TimeoutMinutes: 60},
	}
	mintRewards := []envelope.MintReward{{TokenType: "IRON", Template: "standard", Amount: 1, Target: "AUTHOR"}}

	contractEnv := questContractEnvelope(t, "contract-1", "sponsor-1", 110, 0.10, stamps, mintRewards, now)
	if _, err := k.Execute(contractEnv); err != nil {
		t.Fatalf("execute quest contract: %v", err)
	}

	submissionEnv := workSubmissionEnvelope(t, "submission-1", "contract-1", "author-1", "h1", []string{"IRON"}, now)
	if _, err := k.Execute(submissionEnv); err != nil {
		t.Fatalf("execute work submission: %v", err)
	}

	roles := []string{"QUALITY", "EVIDENCE", "SAFETY"}
	verifiers := []string{"verifier-quality", "verifier-evidence", "verifier-safety"}
	for i, role := range roles {
		jobs := findJobsByRole(t, k, "submission-1", role)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job for role %s, got %d", role, len(jobs))
		}
		acceptAndPass(t, k, jobs[0].ID, verifiers[i], jobs[0].StakeRequiredCC, now, i)
	}

	tokens := k.State.TokensByOwner("author-1")
	if len(tokens) != 1 {
		t.Fatalf("expected author to own 1 token, got %d", len(tokens))
	}
	tok := tokens[0]
	if tok.Type != state.TokenIRON {
		t.Fatalf("expected IRON token, got %s", tok.Type)
	}
	if len(tok.ProofRefs) != 1 || tok.ProofRefs[0] != "h1" {
		t.Fatalf("expected proof_refs [h1], got %v", tok.ProofRefs)
	}
	if len(tok.StampIDs) != 3 {
		t.Fatalf("expected 3 stamp ids, got %d", len(tok.StampIDs))
	}

	// Per-job admin fee is ceil(admin_percent * current_pay_cc): 3 + 3 + 4 = 10,
	// leaving 110 - (25+30+35) - 10 = 10 in escrow and 10 credited to TREASURY.
	escrow, err := k.State.GetEscrow("contract-1")
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if escrow.BalanceCC != 10 {
		t.Fatalf("expected escrow balance 10, got %d", escrow.BalanceCC)
	}

	treasuryAcct, err := k.State.GetAccount(state.TreasuryAccountID)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if treasuryAcct.CCBalance != 10 {
		t.Fatalf("expected treasury balance 10, got %d", treasuryAcct.CCBalance)
	}
}

// TestS2PartialVerificationLeavesSubmissionOpen mirrors S1 but completes
// only two of three stamp roles; no mint should occur.
func TestS2PartialVerificationLeavesSubmissionOpen(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{}, treasury.Config{TrackedReasons: map[string]bool{"AUDIT_PAY": true}}, now)
	if err := k.State.AddAccount(&state.Account{ID: "sponsor-1", CCBalance: 300}); err != nil {
		t.Fatalf("seed sponsor: %v", err)
	}

	stamps := []envelope.StampRequirement{
		{Role: "QUALITY", MinUnique: 1, PayCC: 25, StakeCC: 5, TimeoutMinutes: 60},
		{Role: "EVIDENCE", MinUnique: 1, PayCC: 30, StakeCC: 5, TimeoutMinutes: 60},
		{Role: "SAFETY", MinUnique: 1, PayCC: 35, StakeCC: 10, TimeoutMinutes: 60},
	}
	mintRewards := []envelope.MintReward{{TokenType: "IRON", Template: "standard", Amount: 1, Target: "AUTHOR"}}

	if _, err := k.Execute(questContractEnvelope(t, "contract-1", "sponsor-1", 110, 0.10, stamps, mintRewards, now)); err != nil {
		t.Fatalf("execute quest contract: %v", err)
	}
	if _, err := k.Execute(workSubmissionEnvelope(t, "submission-1", "contract-1", "author-1", "h1", []string{"IRON"}, now)); err != nil {
		t.Fatalf("execute work submission: %v", err)
	}

	for i, role := range []string{"QUALITY", "EVIDENCE"} {
		jobs := findJobsByRole(t, k, "submission-1", role)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job for role %s, got %d", role, len(jobs))
		}
		acceptAndPass(t, k, jobs[0].ID, []string{"verifier-quality", "verifier-evidence"}[i], jobs[0].StakeRequiredCC, now, i)
	}

	if tokens := k.State.TokensByOwner("author-1"); len(tokens) != 0 {
		t.Fatalf("expected no mint before all stamps complete, got %d tokens", len(tokens))
	}
	submission, err := k.State.GetSubmission("submission-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if submission.Status != state.SubmissionSubmitted {
		t.Fatalf("expected submission status SUBMITTED, got %s", submission.Status)
	}
}

// TestS3SlashStake locks one verifier's stake then slashes it fully to
// TREASURY.
func TestS3SlashStake(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{}, treasury.Config{TrackedReasons: map[string]bool{"AUDIT_PAY": true}}, now)
	if err := k.State.AddAccount(&state.Account{ID: "sponsor-1", CCBalance: 300}); err != nil {
		t.Fatalf("seed sponsor: %v", err)
	}

	stamps := []envelope.StampRequirement{
		{Role: "QUALITY", MinUnique: 1, PayCC: 25, StakeCC: 5, TimeoutMinutes: 60},
	}
	if _, err := k.Execute(questContractEnvelope(t, "contract-1", "sponsor-1", 25, 0, stamps, nil, now)); err != nil {
		t.Fatalf("execute quest contract: %v", err)
	}
	if _, err := k.Execute(workSubmissionEnvelope(t, "submission-1", "contract-1", "author-1", "h1", nil, now)); err != nil {
		t.Fatalf("execute work submission: %v", err)
	}

	jobs := findJobsByRole(t, k, "submission-1", "QUALITY")
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if err := k.State.AddAccount(&state.Account{ID: "verifier-1", CCBalance: job.StakeRequiredCC}); err != nil {
		t.Fatalf("seed verifier: %v", err)
	}
	if _, err := k.Execute(jobAcceptEnvelope("accept-1", job.ID, "verifier-1", job.StakeRequiredCC, now)); err != nil {
		t.Fatalf("accept job: %v", err)
	}

	stakeID := state.StakeID(job.ID, "verifier-1")
	payload, _ := json.Marshal(envelope.SanctionPayload{
		Action:     "SLASH",
		TargetType: "STAKE",
		TargetID:   stakeID,
		Reason:     "fraud",
	})
	sanctionEnv := envelope.Envelope{
		ID:         "sanction-1",
		Kind:       envelope.KindSanction,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "moderator-1",
		Payload:    payload,
	}
	if _, err := k.Execute(sanctionEnv); err != nil {
		t.Fatalf("execute sanction: %v", err)
	}

	stake, err := k.State.GetStake(stakeID)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if stake.Status != state.StakeSlashed {
		t.Fatalf("expected stake SLASHED, got %s", stake.Status)
	}
	treasuryAcct, err := k.State.GetAccount(state.TreasuryAccountID)
	if err != nil {
		t.Fatalf("get treasury: %v", err)
	}
	if treasuryAcct.CCBalance != job.StakeRequiredCC {
		t.Fatalf("expected treasury balance %d, got %d", job.StakeRequiredCC, treasuryAcct.CCBalance)
	}
}

// TestS5CraftBurnsInputsAndMintsOutput crafts an iron ingot from three ORE
// tokens and asserts the burn/mint/fee side effects.
func TestS5CraftBurnsInputsAndMintsOutput(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	craftFee := int64(2)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{CraftFeeCC: &craftFee}, treasury.Config{}, now)

	if err := k.State.AddAccount(&state.Account{ID: "author-1", CCBalance: 10}); err != nil {
		t.Fatalf("seed author: %v", err)
	}

	mintPayload, _ := json.Marshal(envelope.MintPayload{
		OwnerID:   "author-1",
		TokenType: "ORE",
		Template:  "raw",
		Amount:    3,
	})
	mintEnv := envelope.Envelope{
		ID:         "mint-ore-1",
		Kind:       envelope.KindMint,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "admin",
		Payload:    mintPayload,
	}
	if _, err := k.Execute(mintEnv); err != nil {
		t.Fatalf("mint ore: %v", err)
	}
	ore := k.State.TokensByOwner("author-1")
	if len(ore) != 3 {
		t.Fatalf("expected 3 ore tokens, got %d", len(ore))
	}
	inputIDs := []string{ore[0].ID, ore[1].ID, ore[2].ID}

	craftPayload, _ := json.Marshal(envelope.CraftPayload{
		InputTokenIDs: inputIDs,
		CraftFeeCC:    2,
		Output:        envelope.CraftOutput{TokenType: "ITEM", Template: "iron_ingot", Amount: 1},
	})
	craftEnv := envelope.Envelope{
		ID:         "craft-1",
		Kind:       envelope.KindCraft,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "author-1",
		Payload:    craftPayload,
	}
	ev, err := k.Execute(craftEnv)
	if err != nil {
		t.Fatalf("execute craft: %v", err)
	}
	if ev.Type != ledger.EventBlueprint {
		t.Fatalf("expected a single BLUEPRINT_EXEC event, got %s", ev.Type)
	}
	if len(ev.TokensBurned) != 3 {
		t.Fatalf("expected 3 tokens burned, got %d", len(ev.TokensBurned))
	}

	for _, id := range inputIDs {
		tok, err := k.State.GetToken(id)
		if err != nil {
			t.Fatalf("get burned token: %v", err)
		}
		if tok.Status != state.TokenBurned {
			t.Fatalf("expected token %s BURNED, got %s", id, tok.Status)
		}
		if tok.SpentByEventID != ev.ID {
			t.Fatalf("expected spent_by_event_id %s, got %s", ev.ID, tok.SpentByEventID)
		}
	}

	owned := k.State.TokensByOwner("author-1")
	var item *state.Token
	for _, tok := range owned {
		if tok.Type == state.TokenITEM {
			item = tok
		}
	}
	if item == nil {
		t.Fatalf("expected author to own an ITEM token")
	}
	if len(item.ProofRefs) != 3 {
		t.Fatalf("expected item proof_refs to list 3 burned tokens, got %d", len(item.ProofRefs))
	}

	author, err := k.State.GetAccount("author-1")
	if err != nil {
		t.Fatalf("get author: %v", err)
	}
	if author.CCBalance != 8 {
		t.Fatalf("expected author balance 8 after 2 CC craft fee, got %d", author.CCBalance)
	}
}

// TestS6ReplayRejected re-submits the same signed envelope/nonce twice and
// expects the second call to fail without growing the ledger.
func TestS6ReplayRejected(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	registry := signer.NewRegistry()
	kp, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubBytes, err := base64.StdEncoding.DecodeString(kp.PublicKey)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if err := registry.Register("signer-1", ed25519.PublicKey(pubBytes)); err != nil {
		t.Fatalf("register signer: %v", err)
	}
	privBytes, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}

	secCfg := security.Config{
		RequireSignature:     true,
		RequireKnownSigner:   true,
		RequireNonce:         true,
		EnforceProposerMatch: false,
	}
	st := state.New()
	l := ledger.New()
	sec := security.New(secCfg, registry)
	pol := policy.New(policy.Config{})
	treas := treasury.New(treasury.Config{})
	k := New(st, l, sec, pol, treas, WithClock(fixedClock(now)))

	payload, _ := json.Marshal(envelope.MintPayload{OwnerID: "alice", TokenType: "ORE", Template: "raw", Amount: 1})
	env := envelope.Envelope{
		ID:         "mint-1",
		Kind:       envelope.KindMint,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "alice",
		Payload:    payload,
	}
	signed, err := signer.Sign(env, signer.Options{
		SignerID:   "signer-1",
		PrivateKey: ed25519.PrivateKey(privBytes),
		Nonce:      "fixed-nonce",
	})
	if err != nil {
		t.Fatalf("sign envelope: %v", err)
	}

	if _, err := k.Execute(signed); err != nil {
		t.Fatalf("first execution should succeed: %v", err)
	}
	lenAfterFirst := k.Ledger.Len()

	if _, err := k.Execute(signed); err == nil {
		t.Fatalf("expected second execution with the same nonce to fail")
	}
	if k.Ledger.Len() != lenAfterFirst {
		t.Fatalf("expected ledger length to stay %d after rejected replay, got %d", lenAfterFirst, k.Ledger.Len())
	}
}

// TestAtomicityRollsBackOnExecutionFailure asserts a failing envelope leaves
// State and Ledger unchanged.
func TestAtomicityRollsBackOnExecutionFailure(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{}, treasury.Config{}, now)

	before := k.State.Snapshot()
	beforeLen := k.Ledger.Len()

	payload, _ := json.Marshal(envelope.VerificationJobAcceptPayload{JobID: "does-not-exist", VerifierID: "someone", StakeCCLocked: 5})
	env := envelope.Envelope{
		ID:         "bad-accept",
		Kind:       envelope.KindVerificationJob,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "someone",
		Payload:    payload,
	}
	if _, err := k.Execute(env); err == nil {
		t.Fatalf("expected execution against a missing job to fail")
	}
	if k.Ledger.Len() != beforeLen {
		t.Fatalf("expected ledger untouched after rollback, got length %d", k.Ledger.Len())
	}
	after := k.State.Snapshot()
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)
	if string(beforeJSON) != string(afterJSON) {
		t.Fatalf("expected state snapshot unchanged after rollback")
	}
}

// TestLedgerChainIntegrityHoldsAcrossMultipleEvents confirms VerifyIntegrity
// stays ok as the kernel appends a growing chain of events; the
// tamper-detection half of this property (a mutated field flipping the
// result to not-ok) is exercised at the persistence boundary in
// checkpoint.TestLoadRejectsTamperedLedger, since Ledger exposes no way to
// inject a stale hash other than through a serialized checkpoint.
func TestLedgerChainIntegrityHoldsAcrossMultipleEvents(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{}, treasury.Config{}, now)

	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(envelope.MintPayload{OwnerID: "alice", TokenType: "ORE", Template: "raw", Amount: 1})
		env := envelope.Envelope{
			ID:         "mint-" + string(rune('a'+i)),
			Kind:       envelope.KindMint,
			CreatedAt:  now.UTC().Format(time.RFC3339),
			ProposerID: "alice",
			Payload:    payload,
		}
		if _, err := k.Execute(env); err != nil {
			t.Fatalf("execute mint %d: %v", i, err)
		}
	}

	ok, errs := k.Ledger.VerifyIntegrity()
	if !ok || len(errs) != 0 {
		t.Fatalf("expected chain to verify ok, got errs: %v", errs)
	}
	if k.Ledger.Len() != 5 {
		t.Fatalf("expected 5 events, got %d", k.Ledger.Len())
	}
}

// TestS4AuditGateBlocksOnBudget drives a contract with sampling_audit
// enabled at rate=1 (always triggers) through its primary PASS stamp, then
// asserts the spawned AUDIT job's own stamp fails once the weekly treasury
// budget cannot cover audit_pay_cc, leaving state unchanged.
func TestS4AuditGateBlocksOnBudget(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{},
		treasury.Config{WeeklyCC: 1, TrackedReasons: map[string]bool{"AUDIT_PAY": true}}, now)
	if err := k.State.AddAccount(&state.Account{ID: "sponsor-1", CCBalance: 50}); err != nil {
		t.Fatalf("seed sponsor: %v", err)
	}

	stamps := []envelope.StampRequirement{
		{Role: "QUALITY", MinUnique: 1, PayCC: 10, StakeCC: 5, TimeoutMinutes: 60},
	}
	payload := mustMarshal(t, envelope.QuestContractPayload{DeliverableType: "artifact"})
	contractEnv := envelope.Envelope{
		ID:         "contract-1",
		Kind:       envelope.KindQuestContract,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "sponsor-1",
		Funding: &envelope.Funding{
			SponsorID:      "sponsor-1",
			EscrowCCAmount: 10,
			AdminPercent:   0,
			EscrowRequired: true,
		},
		VerificationPlan: &envelope.VerificationPlan{
			RequiredStamps: stamps,
			SamplingAudit:  &envelope.SamplingAudit{Enabled: true, Rate: 1, AuditPayCC: 10},
		},
		Payload: payload,
	}
	if _, err := k.Execute(contractEnv); err != nil {
		t.Fatalf("execute quest contract: %v", err)
	}
	if _, err := k.Execute(workSubmissionEnvelope(t, "submission-1", "contract-1", "author-1", "h1", nil, now)); err != nil {
		t.Fatalf("execute work submission: %v", err)
	}

	jobs := findJobsByRole(t, k, "submission-1", "QUALITY")
	if len(jobs) != 1 {
		t.Fatalf("expected 1 QUALITY job, got %d", len(jobs))
	}
	acceptAndPass(t, k, jobs[0].ID, "verifier-quality", jobs[0].StakeRequiredCC, now, 0)

	submission, err := k.State.GetSubmission("submission-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if submission.Status != state.SubmissionPendingAudit {
		t.Fatalf("expected submission PENDING_AUDIT after the primary PASS, got %s", submission.Status)
	}

	auditJobs := findJobsByRole(t, k, "submission-1", "AUDIT")
	if len(auditJobs) != 1 {
		t.Fatalf("expected 1 AUDIT job, got %d", len(auditJobs))
	}
	auditJob := auditJobs[0]
	if !auditJob.IsAudit {
		t.Fatalf("expected spawned job to be flagged IsAudit")
	}

	acceptEnv := jobAcceptEnvelope("audit-accept-1", auditJob.ID, "auditor-1", auditJob.StakeRequiredCC, now)
	if _, err := k.Execute(acceptEnv); err != nil {
		t.Fatalf("accept audit job: %v", err)
	}

	beforeLen := k.Ledger.Len()
	beforeSnapshot := k.State.Snapshot()

	stampErr := func() error {
		_, err := k.Execute(stampEnvelope("audit-stamp-1", auditJob.ID, "auditor-1", "PASS", now))
		return err
	}()
	if stampErr == nil {
		t.Fatalf("expected audit stamp to fail once the weekly treasury budget is exceeded")
	}

	if k.Ledger.Len() != beforeLen {
		t.Fatalf("expected ledger untouched after the budget rejection, got length %d", k.Ledger.Len())
	}
	afterSnapshot := k.State.Snapshot()
	beforeJSON, _ := json.Marshal(beforeSnapshot)
	afterJSON, _ := json.Marshal(afterSnapshot)
	if string(beforeJSON) != string(afterJSON) {
		t.Fatalf("expected state snapshot unchanged after the rejected audit stamp")
	}
}

// TestMintCapRejectsFourthMintSameDay exercises the per-settler daily mint
// cap described in the testable properties.
func TestMintCapRejectsFourthMintSameDay(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	k := newTestKernel(t, unsignedSecurity(), policy.Config{
		PerSettlerPerCycle: map[state.TokenType]int{state.TokenIRON: 3},
	}, treasury.Config{}, now)

	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal(envelope.MintPayload{OwnerID: "alice", TokenType: "IRON", Template: "t", Amount: 1})
		env := envelope.Envelope{
			ID:         "mint-" + string(rune('a'+i)),
			Kind:       envelope.KindMint,
			CreatedAt:  now.UTC().Format(time.RFC3339),
			ProposerID: "alice",
			Payload:    payload,
		}
		if _, err := k.Execute(env); err != nil {
			t.Fatalf("mint %d should succeed: %v", i, err)
		}
	}

	payload, _ := json.Marshal(envelope.MintPayload{OwnerID: "alice", TokenType: "IRON", Template: "t", Amount: 1})
	fourth := envelope.Envelope{
		ID:         "mint-fourth",
		Kind:       envelope.KindMint,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		ProposerID: "alice",
		Payload:    payload,
	}
	if _, err := k.Execute(fourth); err == nil {
		t.Fatalf("expected fourth same-day mint to exceed the cap")
	}

	nextDay := now.Add(24 * time.Hour)
	k.Clock = fixedClock(nextDay)
	payload, _ = json.Marshal(envelope.MintPayload{OwnerID: "alice", TokenType: "IRON", Template: "t", Amount: 1})
	fifth := envelope.Envelope{
		ID:         "mint-fifth",
		Kind:       envelope.KindMint,
		CreatedAt:  nextDay.UTC().Format(time.RFC3339),
		ProposerID: "alice",
		Payload:    payload,
	}
	if _, err := k.Execute(fifth); err != nil {
		t.Fatalf("expected mint on the following day to succeed: %v", err)
	}
}
