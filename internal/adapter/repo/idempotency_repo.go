package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"brandforge/internal/domain"
)

// IdempotencyRepositoryPG implements domain.IdempotencyRepository on top of a
// uniqueness constraint, so lookup-then-insert is a single atomic statement.
type IdempotencyRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new idempotency repository backed by PostgreSQL.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepositoryPG {
	return &IdempotencyRepositoryPG{pool: pool}
}

// Claim registers key→jobID unless a live record already exists. An expired
// record is reclaimed in place; a live one keeps its job id. The CASE inside
// ON CONFLICT makes the whole decision server-side, so concurrent claims with
// the same key race safely: exactly one caller sees created=true.
func (r *IdempotencyRepositoryPG) Claim(ctx context.Context, key, jobID string, expiresAt time.Time) (string, bool, error) {
	query := `
INSERT INTO idempotency_keys (key, job_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE
SET job_id = CASE WHEN idempotency_keys.expires_at < NOW() THEN EXCLUDED.job_id ELSE idempotency_keys.job_id END,
    expires_at = CASE WHEN idempotency_keys.expires_at < NOW() THEN EXCLUDED.expires_at ELSE idempotency_keys.expires_at END
RETURNING job_id;
`
	var winner string
	if err := r.pool.QueryRow(ctx, query, key, jobID, expiresAt).Scan(&winner); err != nil {
		return "", false, err
	}
	return winner, winner == jobID, nil
}

// DeleteByJobID removes any record pointing at the job.
func (r *IdempotencyRepositoryPG) DeleteByJobID(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE job_id = $1;`, jobID)
	return err
}

var _ domain.IdempotencyRepository = (*IdempotencyRepositoryPG)(nil)
