package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"brandforge/internal/compliance"
	"brandforge/internal/domain"
	"brandforge/internal/providers/audit"
	"brandforge/internal/providers/image"
	"brandforge/internal/session"
	"brandforge/internal/webhook"
)

// memJobs is an in-memory JobRepository. It copies on read and write so tests
// observe the same snapshot semantics a database row gives the pipeline.
type memJobs struct {
	mu   sync.Mutex
	rows map[string]domain.Job
}

func newMemJobs() *memJobs { return &memJobs{rows: make(map[string]domain.Job)} }

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[job.ID]; ok {
		return fmt.Errorf("duplicate job id %s", job.ID)
	}
	m.rows[job.ID] = *job
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := row
	return &out, nil
}

func (m *memJobs) Update(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[job.ID]; !ok {
		return domain.ErrNotFound
	}
	m.rows[job.ID] = *job
	return nil
}

func (m *memJobs) UpdateWebhookStatus(_ context.Context, jobID string, status domain.WebhookStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	row.WebhookStatus = status
	m.rows[jobID] = row
	return nil
}

func (m *memJobs) ListUnfinished(context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, row := range m.rows {
		switch row.Status {
		case domain.JobStatusPending, domain.JobStatusGenerating, domain.JobStatusAuditing, domain.JobStatusCorrecting:
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memJobs) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, row := range m.rows {
		if row.ExpiresAt.Before(now) {
			out = append(out, row)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memJobs) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, jobID)
	return nil
}

// memIdempotency mirrors the single-statement claim: expired records are
// replaced, live ones win.
type memIdempotency struct {
	mu   sync.Mutex
	rows map[string]domain.IdempotencyRecord
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{rows: make(map[string]domain.IdempotencyRecord)}
}

func (m *memIdempotency) Claim(_ context.Context, key, jobID string, expiresAt time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.rows[key]; ok && rec.ExpiresAt.After(time.Now()) {
		return rec.JobID, false, nil
	}
	m.rows[key] = domain.IdempotencyRecord{Key: key, JobID: jobID, ExpiresAt: expiresAt}
	return jobID, true, nil
}

func (m *memIdempotency) DeleteByJobID(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.rows {
		if rec.JobID == jobID {
			delete(m.rows, key)
		}
	}
	return nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func newMemSessions() *memSessions { return &memSessions{rows: make(map[string]domain.Session)} }

func (m *memSessions) Get(_ context.Context, jobID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := row
	return &out, nil
}

func (m *memSessions) Save(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sess.JobID] = *sess
	return nil
}

func (m *memSessions) DeleteByJobID(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, jobID)
	return nil
}

type memWebhookAttempts struct {
	mu   sync.Mutex
	rows []domain.WebhookAttempt
}

func (m *memWebhookAttempts) RecordAttempt(_ context.Context, a *domain.WebhookAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memWebhookAttempts) ListAttempts(_ context.Context, jobID string) ([]domain.WebhookAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookAttempt
	for _, a := range m.rows {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memWebhookAttempts) DeleteByJobID(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, a := range m.rows {
		if a.JobID != jobID {
			kept = append(kept, a)
		}
	}
	m.rows = kept
	return nil
}

// memArtifacts stores written blobs by key.
type memArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{objects: make(map[string][]byte)} }

func (m *memArtifacts) Write(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memArtifacts) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memArtifacts) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *memArtifacts) URL(key string) string { return "mem://" + key }

// scriptedGenerator returns one synthetic asset per call and records every
// request for assertions on continuation wiring.
type scriptedGenerator struct {
	mu       sync.Mutex
	calls    int
	requests []image.GenerateRequest
	err      error
}

func (g *scriptedGenerator) Generate(_ context.Context, req image.GenerateRequest) (*image.Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &image.Asset{Data: []byte(fmt.Sprintf("png-%d", g.calls)), Format: "png"}, nil
}

func (g *scriptedGenerator) recorded() []image.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]image.GenerateRequest(nil), g.requests...)
}

// scriptedAudit feeds queued overall scores to the compliance auditor. A
// single weighted category makes the queued value the exact overall score.
// The last score repeats once the queue drains.
type scriptedAudit struct {
	mu     sync.Mutex
	scores []float64
	calls  int
}

func (s *scriptedAudit) Audit(context.Context, string, domain.BrandRules, []string) (*audit.RawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.scores) {
		idx = len(s.scores) - 1
	}
	s.calls++
	return &audit.RawResult{
		Categories: []audit.RawCategoryScore{{
			Category: "colors",
			Score:    s.scores[idx],
			Violations: []domain.Violation{{
				Description:   "accent color drifts from palette",
				Severity:      domain.SeverityMedium,
				FixSuggestion: "use the primary accent from the palette",
			}},
		}},
	}, nil
}

type staticBrands struct{}

func (staticBrands) Rules(_ context.Context, brandID string) (domain.BrandRules, error) {
	return domain.BrandRules{
		BrandID:    brandID,
		Guidelines: map[string]string{"colors": "primary #1A73E8 on white"},
	}, nil
}

type harness struct {
	orc       *Orchestrator
	jobs      *memJobs
	sessions  *memSessions
	generator *scriptedGenerator
	auditCol  *scriptedAudit
	artifacts *memArtifacts
	cancel    context.CancelFunc
}

func newHarness(scores []float64, opts ...func(*Options, *memJobs)) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := newMemJobs()
	sessions := newMemSessions()
	gen := &scriptedGenerator{}
	auditCol := &scriptedAudit{scores: scores}
	artifacts := newMemArtifacts()

	o := Options{
		Jobs:        jobs,
		Idempotency: newMemIdempotency(),
		Sessions:    session.NewStore(sessions, nil, zerolog.Nop()),
		Generator:   gen,
		Auditor:     compliance.NewAuditor(auditCol, time.Second, 95, zerolog.Nop()),
		Artifacts:   artifacts,
		Brands:      staticBrands{},
		Thresholds:  Thresholds{AutoApprove: 95, Review: 70, MaxAttempts: 3},
		JobTTL:      time.Hour,
		WorkerSlots: 4,
		Logger:      zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o, jobs)
	}

	return &harness{
		orc:       New(ctx, o),
		jobs:      jobs,
		sessions:  sessions,
		generator: gen,
		auditCol:  auditCol,
		artifacts: artifacts,
		cancel:    cancel,
	}
}

func withWebhooks(attempts *memWebhookAttempts, client *http.Client, base time.Duration) func(*Options, *memJobs) {
	return func(o *Options, jobs *memJobs) {
		o.Webhooks = webhook.NewDelivery(jobs, attempts, client, 5, base, zerolog.Nop())
	}
}

func withGenerator(g image.Generator) func(*Options, *memJobs) {
	return func(o *Options, _ *memJobs) {
		o.Generator = g
	}
}

// gateGenerator parks inside Generate until released, so tests can pin a job
// mid-step.
type gateGenerator struct {
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func newGateGenerator() *gateGenerator {
	return &gateGenerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateGenerator) Generate(ctx context.Context, _ image.GenerateRequest) (*image.Asset, error) {
	g.startOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &image.Asset{Data: []byte("png"), Format: "png"}, nil
}

func (h *harness) close() {
	h.cancel()
	h.orc.Wait()
}

// await polls the job row until it settles in want or the deadline passes.
func (h *harness) await(jobID string, want domain.JobStatus) (*domain.Job, bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.jobs.GetByID(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := h.jobs.GetByID(context.Background(), jobID)
	return job, false
}
