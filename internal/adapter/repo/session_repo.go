package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brandforge/internal/domain"
)

// SessionRepositoryPG implements domain.SessionRepository.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// Get fetches the session for a job.
func (r *SessionRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Session, error) {
	query := `
SELECT job_id, session_id, last_image_ref, updated_at
FROM sessions
WHERE job_id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var s domain.Session
	if err := row.Scan(&s.JobID, &s.SessionID, &s.LastImageRef, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Save upserts the session row for a job.
func (r *SessionRepositoryPG) Save(ctx context.Context, session *domain.Session) error {
	query := `
INSERT INTO sessions (job_id, session_id, last_image_ref, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (job_id) DO UPDATE
SET session_id = EXCLUDED.session_id,
    last_image_ref = EXCLUDED.last_image_ref,
    updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, session.JobID, session.SessionID, session.LastImageRef)
	return err
}

// DeleteByJobID removes the session for a job.
func (r *SessionRepositoryPG) DeleteByJobID(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE job_id = $1;`, jobID)
	return err
}

var _ domain.SessionRepository = (*SessionRepositoryPG)(nil)
