package sweeper

import (
	"context"
	"fmt"
	"time"

	"brandforge/internal/domain"
	"brandforge/internal/infra"
	"brandforge/internal/storage"
)

const batchSize = 100

// Sweeper retires jobs past their TTL on a fixed interval. Sweeps are
// idempotent and safe to run concurrently: a job already deleted is simply
// skipped.
type Sweeper struct {
	jobs        domain.JobRepository
	idempotency domain.IdempotencyRepository
	sessions    domain.SessionRepository
	webhooks    domain.WebhookRepository
	artifacts   storage.ArtifactStore
	interval    time.Duration
	logger      infra.Logger
}

// New constructs the sweeper.
func New(
	jobs domain.JobRepository,
	idempotency domain.IdempotencyRepository,
	sessions domain.SessionRepository,
	webhooks domain.WebhookRepository,
	artifacts storage.ArtifactStore,
	interval time.Duration,
	logger infra.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		jobs:        jobs,
		idempotency: idempotency,
		sessions:    sessions,
		webhooks:    webhooks,
		artifacts:   artifacts,
		interval:    interval,
		logger:      logger,
	}
}

// Run loops sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweeper: sweep failed")
			}
		}
	}
}

// SweepOnce removes every job whose expires_at lies in the past. Temporary
// artifacts are reclaimed only for failed jobs; assets of other outcomes are
// left for their owners.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := s.jobs.ListExpired(ctx, now, batchSize)
	if err != nil {
		return fmt.Errorf("list expired jobs: %w", err)
	}

	swept := 0
	for _, job := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.retire(ctx, &job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("sweeper: retire job failed")
			continue
		}
		swept++
	}
	if swept > 0 {
		s.logger.Info().Int("count", swept).Msg("sweeper: retired expired jobs")
	}
	return nil
}

func (s *Sweeper) retire(ctx context.Context, job *domain.Job) error {
	if job.Status == domain.JobStatusFailed && s.artifacts != nil {
		prefix := fmt.Sprintf("generated/brand-assets/%s", job.ID)
		if err := s.artifacts.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
	}
	if err := s.sessions.DeleteByJobID(ctx, job.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.webhooks.DeleteByJobID(ctx, job.ID); err != nil {
		return fmt.Errorf("delete webhook attempts: %w", err)
	}
	if err := s.idempotency.DeleteByJobID(ctx, job.ID); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	if err := s.jobs.Delete(ctx, job.ID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
