package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brandforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	stateJSON, err := json.Marshal(job.State)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}
	query := `
INSERT INTO jobs (id, brand_id, prompt, status, progress, webhook_url, webhook_status, idempotency_key, error_message, state_json, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.BrandID,
		job.Prompt,
		job.Status,
		job.Progress,
		job.WebhookURL,
		job.WebhookStatus,
		job.IdempotencyKey,
		job.ErrorMessage,
		stateJSON,
		job.CreatedAt,
		job.UpdatedAt,
		job.ExpiresAt,
	)
	return err
}

// Update persists the job's mutable fields and pipeline state.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	stateJSON, err := json.Marshal(job.State)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}
	query := `
UPDATE jobs
SET status = $2,
    progress = $3,
    webhook_status = $4,
    error_message = $5,
    state_json = $6,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		job.WebhookStatus,
		job.ErrorMessage,
		stateJSON,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateWebhookStatus records delivery bookkeeping without touching pipeline state.
func (r *JobRepositoryPG) UpdateWebhookStatus(ctx context.Context, jobID string, status domain.WebhookStatus) error {
	query := `
UPDATE jobs
SET webhook_status = $2,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := selectJob + `WHERE id = $1;`
	row := r.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListUnfinished returns jobs whose pipelines were interrupted mid-flight.
// Jobs paused for review are excluded: they resume only on a user decision.
func (r *JobRepositoryPG) ListUnfinished(ctx context.Context) ([]domain.Job, error) {
	query := selectJob + `WHERE status IN ('pending', 'generating', 'auditing', 'correcting');`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListExpired returns jobs past their TTL, oldest first.
func (r *JobRepositoryPG) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	query := selectJob + `WHERE expires_at < $1 ORDER BY expires_at LIMIT $2;`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Delete removes a job row. Deleting an absent job is not an error so the
// sweeper stays safe under concurrent runs.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, jobID)
	return err
}

const selectJob = `
SELECT id, brand_id, prompt, status, progress, webhook_url, webhook_status, idempotency_key, error_message, state_json, created_at, updated_at, expires_at
FROM jobs
`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var stateJSON []byte
	if err := row.Scan(
		&job.ID,
		&job.BrandID,
		&job.Prompt,
		&job.Status,
		&job.Progress,
		&job.WebhookURL,
		&job.WebhookStatus,
		&job.IdempotencyKey,
		&job.ErrorMessage,
		&stateJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &job.State); err != nil {
			return nil, fmt.Errorf("decode job state: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
