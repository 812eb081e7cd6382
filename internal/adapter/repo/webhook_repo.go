package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"brandforge/internal/domain"
)

// WebhookRepositoryPG implements domain.WebhookRepository.
type WebhookRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository creates a new webhook attempt repository backed by PostgreSQL.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepositoryPG {
	return &WebhookRepositoryPG{pool: pool}
}

// RecordAttempt appends one delivery attempt for a job.
func (r *WebhookRepositoryPG) RecordAttempt(ctx context.Context, attempt *domain.WebhookAttempt) error {
	query := `
INSERT INTO webhook_attempts (job_id, attempt, sent_at, succeeded)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_id, attempt) DO UPDATE
SET sent_at = EXCLUDED.sent_at,
    succeeded = EXCLUDED.succeeded;
`
	_, err := r.pool.Exec(ctx, query, attempt.JobID, attempt.Attempt, attempt.SentAt, attempt.Succeeded)
	return err
}

// ListAttempts returns recorded attempts in order.
func (r *WebhookRepositoryPG) ListAttempts(ctx context.Context, jobID string) ([]domain.WebhookAttempt, error) {
	query := `
SELECT job_id, attempt, sent_at, succeeded
FROM webhook_attempts
WHERE job_id = $1
ORDER BY attempt;
`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.WebhookAttempt
	for rows.Next() {
		var a domain.WebhookAttempt
		if err := rows.Scan(&a.JobID, &a.Attempt, &a.SentAt, &a.Succeeded); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// DeleteByJobID removes all attempts for a job.
func (r *WebhookRepositoryPG) DeleteByJobID(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM webhook_attempts WHERE job_id = $1;`, jobID)
	return err
}

var _ domain.WebhookRepository = (*WebhookRepositoryPG)(nil)
