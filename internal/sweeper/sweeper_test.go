package sweeper

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandforge/internal/domain"
)

type fakeJobs struct {
	mu   sync.Mutex
	rows map[string]domain.Job
}

func newFakeJobs() *fakeJobs { return &fakeJobs{rows: make(map[string]domain.Job)} }

func (f *fakeJobs) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[job.ID] = *job
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := row
	return &out, nil
}

func (f *fakeJobs) Update(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[job.ID] = *job
	return nil
}

func (f *fakeJobs) UpdateWebhookStatus(_ context.Context, jobID string, status domain.WebhookStatus) error {
	return nil
}

func (f *fakeJobs) ListUnfinished(context.Context) ([]domain.Job, error) { return nil, nil }

func (f *fakeJobs) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, row := range f.rows {
		if row.ExpiresAt.Before(now) {
			out = append(out, row)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeJobs) Delete(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, jobID)
	return nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]string // key -> jobID
}

func (f *fakeIdempotency) Claim(_ context.Context, key, jobID string, _ time.Time) (string, bool, error) {
	return jobID, true, nil
}

func (f *fakeIdempotency) DeleteByJobID(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, id := range f.keys {
		if id == jobID {
			delete(f.keys, key)
		}
	}
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func (f *fakeSessions) Get(_ context.Context, jobID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (f *fakeSessions) Save(_ context.Context, sess *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[sess.JobID] = *sess
	return nil
}

func (f *fakeSessions) DeleteByJobID(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, jobID)
	return nil
}

type fakeWebhooks struct {
	mu   sync.Mutex
	rows []domain.WebhookAttempt
}

func (f *fakeWebhooks) RecordAttempt(_ context.Context, a *domain.WebhookAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeWebhooks) ListAttempts(_ context.Context, jobID string) ([]domain.WebhookAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookAttempt
	for _, a := range f.rows {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeWebhooks) DeleteByJobID(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, a := range f.rows {
		if a.JobID != jobID {
			kept = append(kept, a)
		}
	}
	f.rows = kept
	return nil
}

type fakeArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeArtifacts) Write(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return key, nil
}

func (f *fakeArtifacts) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeArtifacts) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
		}
	}
	return nil
}

func (f *fakeArtifacts) URL(key string) string { return "mem://" + key }

type fixture struct {
	sw *Sweeper

	jobs        *fakeJobs
	idempotency *fakeIdempotency
	sessions    *fakeSessions
	webhooks    *fakeWebhooks
	artifacts   *fakeArtifacts
}

func newFixture() *fixture {
	f := &fixture{
		jobs:        newFakeJobs(),
		idempotency: &fakeIdempotency{keys: make(map[string]string)},
		sessions:    &fakeSessions{rows: make(map[string]domain.Session)},
		webhooks:    &fakeWebhooks{},
		artifacts:   &fakeArtifacts{objects: make(map[string][]byte)},
	}
	f.sw = New(f.jobs, f.idempotency, f.sessions, f.webhooks, f.artifacts, time.Hour, zerolog.Nop())
	return f
}

func (f *fixture) seed(t *testing.T, id string, status domain.JobStatus, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.jobs.Create(ctx, &domain.Job{
		ID:             id,
		BrandID:        "acme",
		Prompt:         "banner",
		Status:         status,
		IdempotencyKey: "key-" + id,
		ExpiresAt:      expiresAt,
	}))
	require.NoError(t, f.sessions.Save(ctx, &domain.Session{JobID: id, SessionID: "sess-" + id}))
	require.NoError(t, f.webhooks.RecordAttempt(ctx, &domain.WebhookAttempt{JobID: id, Attempt: 1}))
	f.idempotency.keys["key-"+id] = id
	_, err := f.artifacts.Write(ctx, "generated/brand-assets/"+id+"/attempt-01.png", []byte("png"))
	require.NoError(t, err)
}

func TestSweepOnceRetiresExpiredJobs(t *testing.T) {
	f := newFixture()
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	f.seed(t, "old", domain.JobStatusCompleted, past)
	f.seed(t, "live", domain.JobStatusCompleted, future)

	require.NoError(t, f.sw.SweepOnce(context.Background()))

	_, err := f.jobs.GetByID(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.sessions.Get(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	attempts, _ := f.webhooks.ListAttempts(context.Background(), "old")
	assert.Empty(t, attempts)
	assert.NotContains(t, f.idempotency.keys, "key-old")

	// The live job is untouched.
	_, err = f.jobs.GetByID(context.Background(), "live")
	assert.NoError(t, err)
	_, err = f.sessions.Get(context.Background(), "live")
	assert.NoError(t, err)
}

func TestSweepReclaimsArtifactsOnlyForFailedJobs(t *testing.T) {
	f := newFixture()
	past := time.Now().UTC().Add(-time.Minute)

	f.seed(t, "failed", domain.JobStatusFailed, past)
	f.seed(t, "done", domain.JobStatusCompleted, past)

	require.NoError(t, f.sw.SweepOnce(context.Background()))

	assert.NotContains(t, f.artifacts.objects, "generated/brand-assets/failed/attempt-01.png")
	assert.Contains(t, f.artifacts.objects, "generated/brand-assets/done/attempt-01.png",
		"completed assets stay for their owners")
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	f := newFixture()
	f.seed(t, "old", domain.JobStatusFailed, time.Now().UTC().Add(-time.Minute))

	require.NoError(t, f.sw.SweepOnce(context.Background()))
	require.NoError(t, f.sw.SweepOnce(context.Background()))

	assert.Empty(t, f.jobs.rows)
}

func TestSweepOnceEmptyBacklog(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.sw.SweepOnce(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture()
	f.sw = New(f.jobs, f.idempotency, f.sessions, f.webhooks, f.artifacts, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sw.Run(ctx)
		close(done)
	}()

	f.seed(t, "old", domain.JobStatusFailed, time.Now().UTC().Add(-time.Minute))
	require.Eventually(t, func() bool {
		_, err := f.jobs.GetByID(context.Background(), "old")
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
