// Package maintenance runs the periodic sweep over non-terminal
// verification jobs: expiring deadlines and escalating stale payouts. It
// mutates State and appends ledger events directly (outside the kernel's
// per-envelope snapshot/rollback, since a sweep has no caller-supplied
// envelope to roll back to); each individual job transition is independently
// idempotent so a partial sweep is safe to re-run.
package maintenance

import (
	"fmt"
	"math"
	"time"

	"civicrun/ledger"
	"civicrun/state"
)

// Summary reports what one sweep did.
type Summary struct {
	EscalatedJobs int
	ExpiredJobs   int
	StakeReleases int
	Events        []ledger.Event
}

// Sweep runs one maintenance pass over st at now, appending events to l for
// every expiry or escalation it performs.
func Sweep(st *state.State, l *ledger.Ledger, now time.Time) (Summary, error) {
	var summary Summary
	nowStr := now.UTC().Format(time.RFC3339)

	for _, job := range st.AllOpenOrAssignedJobs() {
		deadline, err := time.Parse(time.RFC3339, job.DeadlineAt)
		if err != nil {
			return summary, fmt.Errorf("maintenance: job %s has unparseable deadline_at %q: %w", job.ID, job.DeadlineAt, err)
		}

		if now.After(deadline) {
			var ccChanges []state.CCChange
			if job.AssignedTo != "" {
				stakeID := state.StakeID(job.ID, job.AssignedTo)
				if stakeRecord, err := st.GetStake(stakeID); err == nil && stakeRecord.Status == state.StakeLocked {
					changes, err := st.ReleaseStake(stakeID, nowStr)
					if err != nil {
						return summary, fmt.Errorf("maintenance: release stake %s: %w", stakeID, err)
					}
					ccChanges = changes
					summary.StakeReleases++
				}
			}
			job.Status = state.JobExpired
			if err := st.UpdateJob(job); err != nil {
				return summary, fmt.Errorf("maintenance: expire job %s: %w", job.ID, err)
			}
			ev, err := appendSweepEvent(l, "MAINTENANCE_EXPIRE", job.ID, ccChanges, nowStr)
			if err != nil {
				return summary, err
			}
			summary.Events = append(summary.Events, ev)
			summary.ExpiredJobs++
			continue
		}

		contract, err := contractForJob(st, job)
		if err != nil {
			continue // job belongs to a submission/contract this sweep cannot resolve; skip escalation, not fatal
		}
		req, ok := contract.RequirementForRole(job.StampRole)
		if !ok {
			continue
		}

		created, err := time.Parse(time.RFC3339, job.CreatedAt)
		if err != nil {
			continue
		}
		elapsed := now.Sub(created)
		escalated := false
		for _, step := range req.Escalation {
			if elapsed < time.Duration(step.AfterMinutes)*time.Minute {
				continue
			}
			if job.HasEscalation(step.Multiplier) {
				continue
			}
			candidate := int64(math.Ceil(float64(job.BasePayCC) * step.Multiplier))
			if candidate > job.CurrentPayCC {
				job.CurrentPayCC = candidate
			}
			job.EscalationHistory = append(job.EscalationHistory, state.EscalationRecord{At: nowStr, Multiplier: step.Multiplier})
			escalated = true
		}
		if escalated {
			if err := st.UpdateJob(job); err != nil {
				return summary, fmt.Errorf("maintenance: escalate job %s: %w", job.ID, err)
			}
			ev, err := appendSweepEvent(l, "MAINTENANCE_ESCALATE", job.ID, nil, nowStr)
			if err != nil {
				return summary, err
			}
			summary.Events = append(summary.Events, ev)
			summary.EscalatedJobs++
		}
	}

	return summary, nil
}

func contractForJob(st *state.State, job *state.VerificationJob) (*state.Contract, error) {
	submission, err := st.GetSubmission(job.SubmissionID)
	if err != nil {
		return nil, err
	}
	return st.GetContract(submission.ContractID)
}

func appendSweepEvent(l *ledger.Ledger, kind, jobID string, ccChanges []state.CCChange, nowStr string) (ledger.Event, error) {
	meta := l.NextMeta()
	id, err := ledger.DeriveEventID(meta, jobID, kind, "MAINTENANCE")
	if err != nil {
		return ledger.Event{}, fmt.Errorf("maintenance: derive event id: %w", err)
	}
	changes := make([]ledger.CCChange, 0, len(ccChanges))
	for _, c := range ccChanges {
		changes = append(changes, ledger.CCChange{AccountID: c.AccountID, Delta: c.Delta, Reason: c.Reason})
	}
	ev := ledger.Event{
		ID:        id,
		Sequence:  meta.Sequence,
		Timestamp: nowStr,
		Type:      ledger.EventStakeRel,
		ActorID:   "MAINTENANCE",
		CCChanges: changes,
		PrevHash:  meta.PrevHash,
	}
	if len(ccChanges) == 0 {
		ev.Type = ledger.EventBlueprint
	}
	return l.Append(ev)
}
