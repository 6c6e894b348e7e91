// Package envelope defines the wire shape of a blueprint envelope: the
// signed proposal the kernel validates and dispatches. Payload is kept as
// raw JSON because its schema is kind-specific; executors decode it once
// they know which kind they are handling.
package envelope

import "encoding/json"

// Kind is the blueprint envelope's dispatch tag.
type Kind string

const (
	KindQuestContract     Kind = "QUEST_CONTRACT"
	KindWorkSubmission    Kind = "WORK_SUBMISSION"
	KindVerificationJob   Kind = "VERIFICATION_JOB"
	KindVerificationStamp Kind = "VERIFICATION_STAMP"
	KindMint              Kind = "MINT"
	KindCraft             Kind = "CRAFT"
	KindSanction          Kind = "SANCTION"
	KindAppeal            Kind = "APPEAL"
)

// Auth is the envelope's signature block.
type Auth struct {
	SignerID  string `json:"signer_id"`
	Algorithm string `json:"algorithm"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// EscalationStep is one configured payout escalation rule on a stamp
// requirement.
type EscalationStep struct {
	AfterMinutes int     `json:"after_minutes"`
	Multiplier   float64 `json:"multiplier"`
}

// StampRequirement describes one required stamp role on a quest contract's
// verification plan.
type StampRequirement struct {
	Role           string           `json:"role"`
	MinUnique      int              `json:"min_unique"`
	StakeCC        int64            `json:"stake_cc"`
	PayCC          int64            `json:"pay_cc"`
	TimeoutMinutes int              `json:"timeout_minutes"`
	Escalation     []EscalationStep `json:"escalation,omitempty"`
}

// SamplingAudit configures post-verification audit sampling.
type SamplingAudit struct {
	Enabled    bool    `json:"enabled"`
	Rate       float64 `json:"rate"`
	AuditPayCC int64   `json:"audit_pay_cc"`
}

// VerificationPlan is the envelope-level verification_plan field of a
// QUEST_CONTRACT envelope.
type VerificationPlan struct {
	RequiredStamps []StampRequirement `json:"required_stamps"`
	ConflictRules  []string           `json:"conflict_rules,omitempty"`
	SamplingAudit  *SamplingAudit     `json:"sampling_audit,omitempty"`
}

// Funding is the envelope-level funding field of a QUEST_CONTRACT envelope.
type Funding struct {
	SponsorID      string  `json:"sponsor_id"`
	EscrowCCAmount int64   `json:"escrow_cc_amount"`
	AdminPercent   float64 `json:"admin_percent"`
	FixedCC        int64   `json:"fixed_cc"`
	EscrowRequired bool    `json:"escrow_required"`
}

// Envelope is the full blueprint proposal the kernel accepts.
type Envelope struct {
	ID               string            `json:"id"`
	Kind             Kind              `json:"kind"`
	Class            string            `json:"class,omitempty"`
	IRLMin           float64           `json:"irl_min,omitempty"`
	CreatedAt        string            `json:"created_at"`
	ProposerID       string            `json:"proposer_id"`
	Title            string            `json:"title,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	RequestedScopes  []string          `json:"requested_scopes,omitempty"`
	Funding          *Funding          `json:"funding,omitempty"`
	VerificationPlan *VerificationPlan `json:"verification_plan,omitempty"`
	ExecutionPlan    map[string]any    `json:"execution_plan,omitempty"`
	EconomyImpact    map[string]any    `json:"economy_impact,omitempty"`
	Payload          json.RawMessage   `json:"payload,omitempty"`
	Auth             *Auth             `json:"auth,omitempty"`
	Status           string            `json:"status,omitempty"`
}

// SigningView returns env as a generic map with auth.signature stripped (if
// present), ready to be passed to canon.MarshalMap for either producing a
// signature or verifying one. The other auth subfields (signer_id, nonce,
// algorithm, public_key) are retained per the security engine's contract.
func (env Envelope) SigningView() (map[string]any, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	if authVal, ok := generic["auth"].(map[string]any); ok {
		delete(authVal, "signature")
		generic["auth"] = authVal
	}
	return generic, nil
}

// QuestContractPayload is the kind-specific payload of a QUEST_CONTRACT
// envelope.
type QuestContractPayload struct {
	DeliverableType    string       `json:"deliverable_type"`
	AcceptanceCriteria []string     `json:"acceptance_criteria,omitempty"`
	AuthorStipendCC    int64        `json:"author_stipend_cc"`
	MintRewards        []MintReward `json:"mint_rewards,omitempty"`
}

// MintReward describes one reward a VERIFIED submission mints.
type MintReward struct {
	TokenType string `json:"token_type"`
	Template  string `json:"template"`
	Amount    int    `json:"amount"`
	Target    string `json:"target"`
}

// Artifact is one piece of evidence attached to a submission.
type Artifact struct {
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	URI       string `json:"uri,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// WorkSubmissionPayload is the kind-specific payload of a WORK_SUBMISSION
// envelope.
type WorkSubmissionPayload struct {
	ContractID    string            `json:"contract_id"`
	Artifacts     []Artifact        `json:"artifacts,omitempty"`
	Claims        map[string]string `json:"claims,omitempty"`
	RequestedMint []string          `json:"requested_mint,omitempty"`
}

// VerificationJobAcceptPayload is the kind-specific payload of a
// VERIFICATION_JOB (accept) envelope.
type VerificationJobAcceptPayload struct {
	JobID         string `json:"job_id"`
	VerifierID    string `json:"verifier_id"`
	StakeCCLocked int64  `json:"stake_cc_locked"`
}

// VerificationStampPayload is the kind-specific payload of a
// VERIFICATION_STAMP envelope.
type VerificationStampPayload struct {
	JobID      string         `json:"job_id"`
	VerifierID string         `json:"verifier_id"`
	Decision   string         `json:"decision"`
	Notes      string         `json:"notes,omitempty"`
	Artifacts  []Artifact     `json:"artifacts,omitempty"`
}

// MintPayload is the kind-specific payload of a direct MINT envelope.
type MintPayload struct {
	OwnerID   string   `json:"owner_id"`
	TokenType string   `json:"token_type"`
	Template  string   `json:"template"`
	Amount    int      `json:"amount"`
	ProofRefs []string `json:"proof_refs,omitempty"`
}

// CraftOutput describes the single token type a CRAFT recipe produces.
type CraftOutput struct {
	TokenType string `json:"token_type"`
	Template  string `json:"template"`
	Amount    int    `json:"amount"`
}

// CraftPayload is the kind-specific payload of a CRAFT envelope.
type CraftPayload struct {
	InputTokenIDs []string    `json:"input_token_ids"`
	CraftFeeCC    int64       `json:"craft_fee_cc"`
	Output        CraftOutput `json:"output"`
}

// SanctionPayload is the kind-specific payload of a SANCTION envelope.
type SanctionPayload struct {
	Action      string `json:"action"`
	TargetType  string `json:"target_type"`
	TargetID    string `json:"target_id"`
	Reason      string `json:"reason"`
	AmountCC    int64  `json:"amount_cc,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// AppealPayload is the kind-specific payload of an APPEAL envelope.
type AppealPayload struct {
	SanctionID  string `json:"sanction_id"`
	AppellantID string `json:"appellant_id"`
	Reason      string `json:"reason"`
}
