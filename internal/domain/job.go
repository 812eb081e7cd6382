package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusGenerating  JobStatus = "generating"
	JobStatusAuditing    JobStatus = "auditing"
	JobStatusCorrecting  JobStatus = "correcting"
	JobStatusNeedsReview JobStatus = "needs_review"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
	JobStatusExpired     JobStatus = "expired"
)

// Terminal reports whether the status admits no further pipeline work.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

// WebhookStatus tracks terminal-notification delivery independently of the
// job's own outcome.
type WebhookStatus string

const (
	WebhookStatusNone      WebhookStatus = "none"
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusDelivered WebhookStatus = "delivered"
	WebhookStatusExhausted WebhookStatus = "exhausted"
)

// Job encapsulates one brand-asset generation request and its pipeline state.
type Job struct {
	ID             string
	BrandID        string
	Prompt         string
	Status         JobStatus
	Progress       int
	WebhookURL     string
	WebhookStatus  WebhookStatus
	IdempotencyKey string
	ErrorMessage   string
	State          JobState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// JobState is the mutable pipeline context carried between steps. It is
// persisted alongside the job row and mutated only by the orchestrator
// goroutine driving that job.
type JobState struct {
	CurrentImageRef string            `json:"current_image_ref,omitempty"`
	AttemptCount    int               `json:"attempt_count"`
	AuditHistory    []ComplianceScore `json:"audit_history,omitempty"`
	IsApproved      bool              `json:"is_approved"`
	SessionID       string            `json:"session_id,omitempty"`
	TweakInstruct   string            `json:"tweak_instruction,omitempty"`
	RevisedPrompt   string            `json:"revised_prompt,omitempty"`
	UserDecided     bool              `json:"user_decided"`
}

// LatestScore returns the most recent audit snapshot, if any.
func (s JobState) LatestScore() *ComplianceScore {
	if len(s.AuditHistory) == 0 {
		return nil
	}
	return &s.AuditHistory[len(s.AuditHistory)-1]
}

// ReviewDecision is a caller's resolution of a needs_review pause.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionRevise  ReviewDecision = "revise"
	DecisionAbandon ReviewDecision = "abandon"
)

// WebhookAttempt records one delivery try for a job's terminal notification.
type WebhookAttempt struct {
	JobID     string
	Attempt   int
	SentAt    time.Time
	Succeeded bool
}

// IdempotencyRecord binds a client-supplied key to a job within a validity
// window. At most one live record exists per key.
type IdempotencyRecord struct {
	Key       string
	JobID     string
	ExpiresAt time.Time
}

// Session is the durable multi-turn continuation context for a job.
type Session struct {
	JobID        string
	SessionID    string
	LastImageRef string
	UpdatedAt    time.Time
}
