package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"civicrun/ledger"
	"civicrun/state"
)

func newJob(t *testing.T, st *state.State, id, submissionID, role string, created, deadline time.Time) *state.VerificationJob {
	t.Helper()
	job := &state.VerificationJob{
		ID:              id,
		SubmissionID:    submissionID,
		StampRole:       role,
		OpenToPool:      true,
		BasePayCC:       100,
		CurrentPayCC:    100,
		StakeRequiredCC: 10,
		CreatedAt:       created.UTC().Format(time.RFC3339),
		DeadlineAt:      deadline.UTC().Format(time.RFC3339),
		Status:          state.JobOpen,
	}
	require.NoError(t, st.AddJob(job))
	return job
}

func newContractAndSubmission(t *testing.T, st *state.State, contractID, submissionID, role string, escalation []state.EscalationStep) {
	t.Helper()
	contract := &state.Contract{
		ID: contractID,
		VerificationPlan: state.VerificationPlan{
			RequiredStamps: []state.StampRequirement{
				{Role: role, MinUnique: 1, StakeCC: 10, PayCC: 100, TimeoutMinutes: 60, Escalation: escalation},
			},
		},
		CreatedAt: "2026-01-01T00:00:00Z",
		UpdatedAt: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, st.AddContract(contract))
	submission := &state.Submission{
		ID:         submissionID,
		ContractID: contractID,
		Status:     state.SubmissionSubmitted,
		CreatedAt:  "2026-01-01T00:00:00Z",
		UpdatedAt:  "2026-01-01T00:00:00Z",
	}
	require.NoError(t, st.AddSubmission(submission))
}

func TestSweepExpiresPastDeadlineJob(t *testing.T) {
	st := state.New()
	l := ledger.New()
	newContractAndSubmission(t, st, "contract-1", "submission-1", "REVIEW", nil)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := created.Add(time.Hour)
	job := newJob(t, st, "job-1", "submission-1", "REVIEW", created, deadline)

	now := deadline.Add(time.Minute)
	summary, err := Sweep(st, l, now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ExpiredJobs)
	require.Equal(t, 0, summary.StakeReleases)

	updated, err := st.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, state.JobExpired, updated.Status)
	require.Len(t, l.Events(), 1)
}

func TestSweepExpiryReleasesAssignedStake(t *testing.T) {
	st := state.New()
	l := ledger.New()
	newContractAndSubmission(t, st, "contract-1", "submission-1", "REVIEW", nil)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := created.Add(time.Hour)
	job := newJob(t, st, "job-1", "submission-1", "REVIEW", created, deadline)
	job.AssignedTo = "verifier-1"
	job.Status = state.JobAssigned
	require.NoError(t, st.UpdateJob(job))

	require.NoError(t, st.AddAccount(&state.Account{ID: "verifier-1", CCBalance: 10}))
	_, _, err := st.LockStake(job.ID, "verifier-1", 10, created.UTC().Format(time.RFC3339))
	require.NoError(t, err)

	now := deadline.Add(time.Minute)
	summary, err := Sweep(st, l, now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ExpiredJobs)
	require.Equal(t, 1, summary.StakeReleases)

	stake, err := st.GetStake(state.StakeID(job.ID, "verifier-1"))
	require.NoError(t, err)
	require.Equal(t, state.StakeReleased, stake.Status)
}

func TestSweepEscalatesPastThreshold(t *testing.T) {
	st := state.New()
	l := ledger.New()
	escalation := []state.EscalationStep{
		{AfterMinutes: 30, Multiplier: 1.5},
	}
	newContractAndSubmission(t, st, "contract-1", "submission-1", "REVIEW", escalation)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := created.Add(24 * time.Hour)
	job := newJob(t, st, "job-1", "submission-1", "REVIEW", created, deadline)

	now := created.Add(31 * time.Minute)
	summary, err := Sweep(st, l, now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EscalatedJobs)
	require.Equal(t, 0, summary.ExpiredJobs)

	updated, err := st.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150), updated.CurrentPayCC)
	require.True(t, updated.HasEscalation(1.5))
}

func TestSweepDoesNotDoubleEscalate(t *testing.T) {
	st := state.New()
	l := ledger.New()
	escalation := []state.EscalationStep{
		{AfterMinutes: 30, Multiplier: 1.5},
	}
	newContractAndSubmission(t, st, "contract-1", "submission-1", "REVIEW", escalation)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := created.Add(24 * time.Hour)
	newJob(t, st, "job-1", "submission-1", "REVIEW", created, deadline)

	first, err := Sweep(st, l, created.Add(31*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, first.EscalatedJobs)

	second, err := Sweep(st, l, created.Add(45*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, second.EscalatedJobs)
}

func TestSweepIgnoresJobsNotYetDue(t *testing.T) {
	st := state.New()
	l := ledger.New()
	newContractAndSubmission(t, st, "contract-1", "submission-1", "REVIEW", nil)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := created.Add(24 * time.Hour)
	newJob(t, st, "job-1", "submission-1", "REVIEW", created, deadline)

	summary, err := Sweep(st, l, created.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, summary.ExpiredJobs)
	require.Equal(t, 0, summary.EscalatedJobs)
	require.Empty(t, l.Events())
}
