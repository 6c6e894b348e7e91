// Package state holds the in-memory civic ledger that the kernel mutates:
// accounts, tokens, escrows, stakes, contracts, submissions, verification
// jobs, stamps, sanctions, appeals, and the replay-protection nonce index.
// The manager type owns every map and is the sole place entities are
// created, mutated, or deep-cloned for the kernel's rollback ring.
package state

// TokenType enumerates the non-forgeable proof artifact kinds a mint or
// reward payout may create.
type TokenType string

const (
	TokenORE         TokenType = "ORE"
	TokenIRON        TokenType = "IRON"
	TokenSTEEL       TokenType = "STEEL"
	TokenSealBronze  TokenType = "SEAL_BRONZE"
	TokenSealSilver  TokenType = "SEAL_SILVER"
	TokenSealGold    TokenType = "SEAL_GOLD"
	TokenITEM        TokenType = "ITEM"
)

// TokenStatus is the lifecycle state of a Token. ACTIVE may only move to
// BURNED; BURNED is terminal.
type TokenStatus string

const (
	TokenActive TokenStatus = "ACTIVE"
	TokenBurned TokenStatus = "BURNED"
)

// Token is a non-forgeable proof artifact owned by exactly one account.
type Token struct {
	ID              string
	Type            TokenType
	Template        string
	OwnerID         string
	Status          TokenStatus
	MintEventID     string
	ProofRefs       []string
	StampIDs        []string
	SpentByEventID  string
	CreatedAt       string
	UpdatedAt       string
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	clone.ProofRefs = cloneStrings(t.ProofRefs)
	clone.StampIDs = cloneStrings(t.StampIDs)
	return &clone
}

// License grants an account standing within a school/tier taxonomy, gating
// kind execution per the security engine's license_requirements map.
type License struct {
	School      string
	Tier        TierRank
	GrantedAt   string
	GrantedBy   string
	SealsEarned int
}

// TierRank is the ordered license tier: VISITOR<CITIZEN<APPRENTICE<
// JOURNEYMAN<MASTER<ACCREDITED.
type TierRank int

const (
	TierVisitor TierRank = iota
	TierCitizen
	TierApprentice
	TierJourneyman
	TierMaster
	TierAccredited
)

// ParseTierRank converts a tier name, given as its exact upper-case form,
// into its rank.
func ParseTierRank(name string) (TierRank, bool) {
	switch name {
	case "VISITOR":
		return TierVisitor, true
	case "CITIZEN":
		return TierCitizen, true
	case "APPRENTICE":
		return TierApprentice, true
	case "JOURNEYMAN":
		return TierJourneyman, true
	case "MASTER":
		return TierMaster, true
	case "ACCREDITED":
		return TierAccredited, true
	default:
		return TierVisitor, false
	}
}

// TreasuryAccountID is the well-known privileged treasury account.
const TreasuryAccountID = "TREASURY"

// Account is a participant in the civic economy.
type Account struct {
	ID           string
	Handle       string
	DisplayName  string
	CCBalance    int64
	Licenses     []License
	TrustScore   float64
	IncidentCount int
	DiversityScore float64
	CreatedAt    string
	LastActiveAt string
	Flags        []string
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if len(a.Licenses) > 0 {
		clone.Licenses = append([]License(nil), a.Licenses...)
	}
	clone.Flags = cloneStrings(a.Flags)
	return &clone
}

// HasLicense reports whether the account carries a license for school with
// tier rank at least min.
func (a *Account) HasLicense(school string, min TierRank) bool {
	if a == nil {
		return false
	}
	for _, lic := range a.Licenses {
		if lic.School == school && lic.Tier >= min {
			return true
		}
	}
	return false
}

// EscrowStatus is the lifecycle state of an Escrow.
type EscrowStatus string

const (
	EscrowOpen   EscrowStatus = "OPEN"
	EscrowClosed EscrowStatus = "CLOSED"
)

// Escrow holds funds reserved for a quest contract.
type Escrow struct {
	ID        string // = contract id
	AccountID string // = ESCROW:<contract_id>
	SponsorID string
	BalanceCC int64
	Status    EscrowStatus
	CreatedAt string
	UpdatedAt string
}

func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// EscrowAccountID derives the synthetic account id holding a contract's
// escrowed balance.
func EscrowAccountID(contractID string) string {
	return "ESCROW:" + contractID
}

// StakeStatus is the lifecycle state of a Stake.
type StakeStatus string

const (
	StakeLocked   StakeStatus = "LOCKED"
	StakeReleased StakeStatus = "RELEASED"
	StakeSlashed  StakeStatus = "SLASHED"
)

// Stake is a verifier's locked bond against a single verification job.
type Stake struct {
	ID         string // = <job_id>:<verifier_id>
	JobID      string
	VerifierID string
	AccountID  string // = STAKE:<job_id>:<verifier_id>
	BalanceCC  int64
	Status     StakeStatus
	CreatedAt  string
	UpdatedAt  string
}

func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// StakeID derives the composite stake identifier for a job/verifier pair.
func StakeID(jobID, verifierID string) string {
	return jobID + ":" + verifierID
}

// StakeAccountID derives the synthetic account id holding a locked stake.
func StakeAccountID(jobID, verifierID string) string {
	return "STAKE:" + jobID + ":" + verifierID
}

// EscalationStep is one configured verification-job payout escalation rule.
type EscalationStep struct {
	AfterMinutes int
	Multiplier   float64
}

// StampRequirement describes one required stamp role on a contract's
// verification plan.
type StampRequirement struct {
	Role            string
	MinUnique       int
	StakeCC         int64
	PayCC           int64
	TimeoutMinutes  int
	Escalation      []EscalationStep
}

// SamplingAudit configures post-verification audit sampling for a contract.
type SamplingAudit struct {
	Enabled     bool
	Rate        float64
	AuditPayCC  int64
}

// VerificationPlan groups a contract's stamp requirements, conflict rules,
// and optional sampling audit configuration.
type VerificationPlan struct {
	RequiredStamps []StampRequirement
	ConflictRules  []string
	SamplingAudit  *SamplingAudit
}

// Funding captures a contract's escrow sponsor and fee schedule.
type Funding struct {
	SponsorID        string
	EscrowCCAmount   int64
	AdminPercent     float64
	FixedCC          int64
	EscrowRequired   bool
}

// MintReward describes one reward a VERIFIED submission mints.
type MintReward struct {
	TokenType TokenType
	Template  string
	Amount    int
	Target    MintTarget
}

// MintTarget is the resolved recipient role for a mint reward.
type MintTarget string

const (
	MintTargetAuthor  MintTarget = "AUTHOR"
	MintTargetSponsor MintTarget = "SPONSOR"
	MintTargetEscrow  MintTarget = "ESCROW"
)

// ContractPayload captures the deliverable expectations and mint rewards of
// a quest contract.
type ContractPayload struct {
	DeliverableType     string
	AcceptanceCriteria  []string
	AuthorStipendCC     int64
	MintRewards         []MintReward
}

// Contract is a quest offering a proposer publishes with escrowed funding.
type Contract struct {
	ID               string
	ProposerID       string
	Funding          Funding
	VerificationPlan VerificationPlan
	Payload          ContractPayload
	CreatedAt        string
	UpdatedAt        string
}

func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	clone.VerificationPlan.RequiredStamps = append([]StampRequirement(nil), c.VerificationPlan.RequiredStamps...)
	for i := range clone.VerificationPlan.RequiredStamps {
		clone.VerificationPlan.RequiredStamps[i].Escalation = append([]EscalationStep(nil), c.VerificationPlan.RequiredStamps[i].Escalation...)
	}
	clone.VerificationPlan.ConflictRules = cloneStrings(c.VerificationPlan.ConflictRules)
	if c.VerificationPlan.SamplingAudit != nil {
		audit := *c.VerificationPlan.SamplingAudit
		clone.VerificationPlan.SamplingAudit = &audit
	}
	clone.Payload.AcceptanceCriteria = cloneStrings(c.Payload.AcceptanceCriteria)
	clone.Payload.MintRewards = append([]MintReward(nil), c.Payload.MintRewards...)
	return &clone
}

// RequirementForRole returns the stamp requirement configured for role, if
// any.
func (c *Contract) RequirementForRole(role string) (StampRequirement, bool) {
	for _, req := range c.VerificationPlan.RequiredStamps {
		if req.Role == role {
			return req, true
		}
	}
	return StampRequirement{}, false
}

// SubmissionStatus is the lifecycle state of a Submission.
type SubmissionStatus string

const (
	SubmissionSubmitted   SubmissionStatus = "SUBMITTED"
	SubmissionVerified    SubmissionStatus = "VERIFIED"
	SubmissionRejected    SubmissionStatus = "REJECTED"
	SubmissionPendingAudit SubmissionStatus = "PENDING_AUDIT"
)

// Artifact is one piece of evidence attached to a submission.
type Artifact struct {
	Name     string
	Hash     string
	URI      string
	MimeType string
	SizeBytes int64
}

// SubmissionPayload captures the work product and claims of a submission.
type SubmissionPayload struct {
	Artifacts      []Artifact
	Claims         map[string]string
	RequestedMint  []TokenType
}

// Submission is work submitted against a contract.
type Submission struct {
	ID         string
	ContractID string
	ProposerID string
	Payload    SubmissionPayload
	Status     SubmissionStatus
	StampIDs   []string
	Minted     bool
	CreatedAt  string
	UpdatedAt  string
}

func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Payload.Artifacts = append([]Artifact(nil), s.Payload.Artifacts...)
	if s.Payload.Claims != nil {
		clone.Payload.Claims = make(map[string]string, len(s.Payload.Claims))
		for k, v := range s.Payload.Claims {
			clone.Payload.Claims[k] = v
		}
	}
	clone.Payload.RequestedMint = append([]TokenType(nil), s.Payload.RequestedMint...)
	clone.StampIDs = cloneStrings(s.StampIDs)
	return &clone
}

// RequestsMint reports whether the submission's requested mint list is empty
// (unconstrained) or contains tt.
func (s *Submission) RequestsMint(tt TokenType) bool {
	if len(s.Payload.RequestedMint) == 0 {
		return true
	}
	for _, t := range s.Payload.RequestedMint {
		if t == tt {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of a VerificationJob.
type JobStatus string

const (
	JobOpen      JobStatus = "OPEN"
	JobAssigned  JobStatus = "ASSIGNED"
	JobCompleted JobStatus = "COMPLETED"
	JobExpired   JobStatus = "EXPIRED"
)

// EscalationRecord is one fired escalation step recorded against a job.
type EscalationRecord struct {
	At         string
	Multiplier float64
}

// VerificationJob is a slot a verifier can accept to stamp a submission.
type VerificationJob struct {
	ID                 string
	SubmissionID       string
	StampRole          string
	OpenToPool         bool
	EligibleVerifiers  []string
	BasePayCC          int64
	CurrentPayCC       int64
	StakeRequiredCC    int64
	CreatedAt          string
	DeadlineAt         string
	EscalationHistory  []EscalationRecord
	Status             JobStatus
	AssignedTo         string
	StampID            string
	IsAudit            bool
}

func (j *VerificationJob) Clone() *VerificationJob {
	if j == nil {
		return nil
	}
	clone := *j
	clone.EligibleVerifiers = cloneStrings(j.EligibleVerifiers)
	clone.EscalationHistory = append([]EscalationRecord(nil), j.EscalationHistory...)
	return &clone
}

// HasEscalation reports whether multiplier has already been recorded.
func (j *VerificationJob) HasEscalation(multiplier float64) bool {
	for _, rec := range j.EscalationHistory {
		if rec.Multiplier == multiplier {
			return true
		}
	}
	return false
}

// EligibleFor reports whether verifierID may accept this job: either the job
// is open to the whole pool, or the verifier is named on the eligibility
// list.
func (j *VerificationJob) EligibleFor(verifierID string) bool {
	if j.OpenToPool {
		return true
	}
	for _, v := range j.EligibleVerifiers {
		if v == verifierID {
			return true
		}
	}
	return false
}

// StampDecision is a verifier's ruling on a verification job.
type StampDecision string

const (
	DecisionPass    StampDecision = "PASS"
	DecisionFail    StampDecision = "FAIL"
	DecisionAbstain StampDecision = "ABSTAIN"
)

// Stamp is a verifier's decision attached to a submission.
type Stamp struct {
	ID            string
	JobID         string
	SubmissionID  string
	VerifierID    string
	Role          string
	Decision      StampDecision
	Notes         string
	Artifacts     []Artifact
	StakeCCLocked int64
	CreatedAt     string
}

func (s *Stamp) Clone() *Stamp {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Artifacts = append([]Artifact(nil), s.Artifacts...)
	return &clone
}

// SanctionAction is the moderation action a SANCTION envelope applies.
type SanctionAction string

const (
	SanctionSlash  SanctionAction = "SLASH"
	SanctionReject SanctionAction = "REJECT"
	SanctionFlag   SanctionAction = "FLAG"
)

// SanctionTargetType names what a Sanction acts on.
type SanctionTargetType string

const (
	SanctionTargetStake      SanctionTargetType = "STAKE"
	SanctionTargetSubmission SanctionTargetType = "SUBMISSION"
	SanctionTargetAccount    SanctionTargetType = "ACCOUNT"
)

// SanctionStatus is the lifecycle state of a Sanction.
type SanctionStatus string

const (
	SanctionApplied     SanctionStatus = "APPLIED"
	SanctionUnderAppeal SanctionStatus = "UNDER_APPEAL"
	SanctionResolved    SanctionStatus = "RESOLVED"
)

// Sanction is a moderation record applied against a stake, submission, or
// account.
type Sanction struct {
	ID          string
	Action      SanctionAction
	TargetType  SanctionTargetType
	TargetID    string
	Reason      string
	AmountCC    int64
	RecipientID string
	Status      SanctionStatus
	CreatedAt   string
	UpdatedAt   string
}

func (s *Sanction) Clone() *Sanction {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// AppealStatus is the lifecycle state of an Appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "PENDING"
	AppealResolved AppealStatus = "RESOLVED"
	AppealDenied   AppealStatus = "DENIED"
)

// Appeal binds an appellant to a disputed sanction.
type Appeal struct {
	ID          string
	SanctionID  string
	AppellantID string
	Reason      string
	Status      AppealStatus
	CreatedAt   string
	UpdatedAt   string
}

func (a *Appeal) Clone() *Appeal {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
