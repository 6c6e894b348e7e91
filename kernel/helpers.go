package kernel

import (
	"encoding/hex"
	"math"

	"civicrun/canon"
	"civicrun/envelope"
	"civicrun/state"
)

// deriveJobID computes a verification job's content-addressed id.
func deriveJobID(submissionID, role string, index int, timestamp string) (string, error) {
	return canon.HashValue(map[string]any{
		"submission_id": submissionID,
		"role":          role,
		"index":         index,
		"timestamp":     timestamp,
	})
}

// auditSampleFraction hashes {submission_id, rate} and interprets the first
// 32 bits of the digest as a fraction in [0, 1), per spec.md §4.7/§9.
func auditSampleFraction(submissionID string, rate float64) (float64, error) {
	hash, err := canon.HashValue(map[string]any{"submission_id": submissionID, "rate": rate})
	if err != nil {
		return 0, err
	}
	raw, err := hex.DecodeString(hash[:8])
	if err != nil {
		return 0, err
	}
	bits := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	return float64(bits) / float64(uint64(1)<<32), nil
}

// ceilCC rounds a floating CC amount up to the nearest whole credit.
func ceilCC(amount float64) int64 {
	return int64(math.Ceil(amount))
}

func toStateRequirements(in []envelope.StampRequirement) []state.StampRequirement {
	out := make([]state.StampRequirement, len(in))
	for i, r := range in {
		steps := make([]state.EscalationStep, len(r.Escalation))
		for j, s := range r.Escalation {
			steps[j] = state.EscalationStep{AfterMinutes: s.AfterMinutes, Multiplier: s.Multiplier}
		}
		out[i] = state.StampRequirement{
			Role:           r.Role,
			MinUnique:      r.MinUnique,
			StakeCC:        r.StakeCC,
			PayCC:          r.PayCC,
			TimeoutMinutes: r.TimeoutMinutes,
			Escalation:     steps,
		}
	}
	return out
}

func toStateSamplingAudit(in *envelope.SamplingAudit) *state.SamplingAudit {
	if in == nil {
		return nil
	}
	return &state.SamplingAudit{Enabled: in.Enabled, Rate: in.Rate, AuditPayCC: in.AuditPayCC}
}

func toStateMintRewards(in []envelope.MintReward) []state.MintReward {
	out := make([]state.MintReward, len(in))
	for i, r := range in {
		out[i] = state.MintReward{
			TokenType: state.TokenType(r.TokenType),
			Template:  r.Template,
			Amount:    r.Amount,
			Target:    state.MintTarget(r.Target),
		}
	}
	return out
}

func toStateArtifacts(in []envelope.Artifact) []state.Artifact {
	out := make([]state.Artifact, len(in))
	for i, a := range in {
		out[i] = state.Artifact{Name: a.Name, Hash: a.Hash, URI: a.URI, MimeType: a.MimeType, SizeBytes: a.SizeBytes}
	}
	return out
}

func artifactHashes(in []state.Artifact) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Hash
	}
	return out
}

func toStateRequestedMint(in []string) []state.TokenType {
	out := make([]state.TokenType, len(in))
	for i, tt := range in {
		out[i] = state.TokenType(tt)
	}
	return out
}

func resolveMintTarget(target state.MintTarget, submission *state.Submission, contract *state.Contract) string {
	switch target {
	case state.MintTargetSponsor:
		return contract.Funding.SponsorID
	case state.MintTargetEscrow:
		return state.EscrowAccountID(contract.ID)
	default:
		return submission.ProposerID
	}
}

// passingStampIDs returns the ids of every PASS stamp recorded for a
// submission.
func passingStampIDs(st *state.State, submission *state.Submission) []string {
	var out []string
	for _, id := range submission.StampIDs {
		stamp, err := st.GetStamp(id)
		if err != nil {
			continue
		}
		if stamp.Decision == state.DecisionPass {
			out = append(out, id)
		}
	}
	return out
}

// requirementsSatisfied reports whether every required stamp role on
// contract has at least MinUnique non-audit jobs of that role for submission
// whose stamp is a PASS. Verifier identities are not compared across those
// jobs.
func requirementsSatisfied(st *state.State, submission *state.Submission, contract *state.Contract) bool {
	jobs := st.JobsBySubmission(submission.ID)
	for _, req := range contract.VerificationPlan.RequiredStamps {
		passCount := 0
		for _, job := range jobs {
			if job.StampRole != req.Role || job.IsAudit || job.StampID == "" {
				continue
			}
			stamp, err := st.GetStamp(job.StampID)
			if err != nil || stamp.Decision != state.DecisionPass {
				continue
			}
			passCount++
		}
		if passCount < req.MinUnique {
			return false
		}
	}
	return true
}
