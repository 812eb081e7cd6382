package orchestrator

import "brandforge/internal/domain"

// Thresholds are the routing boundaries. Both figures are deployment
// configuration, not call-site constants.
type Thresholds struct {
	AutoApprove float64
	Review      float64
	MaxAttempts int
}

// route decides the next state after an audit. Precedence, highest first:
//
//  1. score >= AutoApprove        -> completed (skip human review)
//  2. score >= Review             -> needs_review
//  3. no user decision yet        -> needs_review (never silently
//     auto-correct a first low score)
//  4. attempt ceiling reached     -> failed (dominates choosing correction)
//  5. otherwise                   -> correcting
func route(score float64, attemptCount int, userDecided bool, t Thresholds) domain.JobStatus {
	switch {
	case score >= t.AutoApprove:
		return domain.JobStatusCompleted
	case score >= t.Review:
		return domain.JobStatusNeedsReview
	case !userDecided:
		return domain.JobStatusNeedsReview
	case attemptCount >= t.MaxAttempts:
		return domain.JobStatusFailed
	default:
		return domain.JobStatusCorrecting
	}
}
