package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"brandforge/internal/cache"
	"brandforge/internal/domain"
	"brandforge/internal/infra"
)

const cacheTTL = 30 * time.Minute

// Store persists multi-turn continuation context per job. Sessions are
// durable in Postgres with an optional Redis read-through in front; the
// cache is never authoritative.
type Store struct {
	repo   domain.SessionRepository
	cache  cache.Cache
	logger infra.Logger
}

// NewStore wires the durable repository and optional cache (nil disables it).
func NewStore(repo domain.SessionRepository, c cache.Cache, logger infra.Logger) *Store {
	return &Store{repo: repo, cache: c, logger: logger}
}

// GetOrCreate returns the existing session for a job, creating one on first
// use. A session is created on a job's first generation and survives process
// restarts.
func (s *Store) GetOrCreate(ctx context.Context, jobID string) (*domain.Session, error) {
	if sess := s.fromCache(ctx, jobID); sess != nil {
		return sess, nil
	}

	sess, err := s.repo.Get(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if sess == nil {
		sess = &domain.Session{
			JobID:     jobID,
			SessionID: uuid.NewString(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.repo.Save(ctx, sess); err != nil {
			return nil, err
		}
	}
	s.toCache(ctx, sess)
	return sess, nil
}

// Resolve returns a job's session for a tweak. When no durable row survives
// (for example after a restore from partial backup), the session is
// re-derived from the job's last stored image reference so the refinement
// still has continuation context.
func (s *Store) Resolve(ctx context.Context, jobID, lastImageRef string) (*domain.Session, error) {
	if sess := s.fromCache(ctx, jobID); sess != nil {
		return sess, nil
	}

	sess, err := s.repo.Get(ctx, jobID)
	if err == nil {
		s.toCache(ctx, sess)
		return sess, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	s.logger.Warn().Str("job_id", jobID).Msg("session: no durable session, re-deriving from last image reference")
	sess = &domain.Session{
		JobID:        jobID,
		SessionID:    uuid.NewString(),
		LastImageRef: lastImageRef,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.toCache(ctx, sess)
	return sess, nil
}

// RecordImage updates the session's last produced image reference.
func (s *Store) RecordImage(ctx context.Context, jobID, sessionID, imageRef string) error {
	sess := &domain.Session{
		JobID:        jobID,
		SessionID:    sessionID,
		LastImageRef: imageRef,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return err
	}
	s.toCache(ctx, sess)
	return nil
}

// Delete drops the session for a job.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cache.SessionKey(jobID))
	}
	return s.repo.DeleteByJobID(ctx, jobID)
}

func (s *Store) fromCache(ctx context.Context, jobID string) *domain.Session {
	if s.cache == nil {
		return nil
	}
	data, ok, err := s.cache.Get(ctx, cache.SessionKey(jobID))
	if err != nil || !ok {
		return nil
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil
	}
	return &sess
}

func (s *Store) toCache(ctx context.Context, sess *domain.Session) {
	if s.cache == nil || sess == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SessionKey(sess.JobID), data, cacheTTL); err != nil {
		s.logger.Debug().Err(err).Str("job_id", sess.JobID).Msg("session: cache write failed")
	}
}
