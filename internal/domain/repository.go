package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	UpdateWebhookStatus(ctx context.Context, jobID string, status WebhookStatus) error
	ListUnfinished(ctx context.Context) ([]Job, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}

// IdempotencyRepository guards duplicate submissions. Claim must be atomic:
// under concurrent calls with the same key exactly one caller wins.
type IdempotencyRepository interface {
	// Claim registers key→jobID unless a live record already exists, in
	// which case it returns the existing record's job id and created=false.
	Claim(ctx context.Context, key, jobID string, expiresAt time.Time) (existingJobID string, created bool, err error)
	DeleteByJobID(ctx context.Context, jobID string) error
}

// SessionRepository persists multi-turn continuation context.
type SessionRepository interface {
	Get(ctx context.Context, jobID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	DeleteByJobID(ctx context.Context, jobID string) error
}

// WebhookRepository records delivery attempts for terminal notifications.
type WebhookRepository interface {
	RecordAttempt(ctx context.Context, attempt *WebhookAttempt) error
	ListAttempts(ctx context.Context, jobID string) ([]WebhookAttempt, error)
	DeleteByJobID(ctx context.Context, jobID string) error
}
