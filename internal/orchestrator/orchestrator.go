package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandforge/internal/cache"
	"brandforge/internal/compliance"
	"brandforge/internal/domain"
	"brandforge/internal/infra"
	"brandforge/internal/providers/image"
	"brandforge/internal/session"
	"brandforge/internal/storage"
	"brandforge/internal/webhook"
)

const (
	progressPending     = 0
	progressGenerating  = 25
	progressAuditing    = 60
	progressNeedsReview = 75
	progressTerminal    = 100

	maxIdempotencyKeyLen = 64
	snapshotCacheTTL     = 3 * time.Second
)

// BrandResolver supplies brand context to the pipeline. Brand CRUD itself is
// an external collaborator; the orchestrator only reads.
type BrandResolver interface {
	Rules(ctx context.Context, brandID string) (domain.BrandRules, error)
}

// Options bundles the orchestrator's injected dependencies.
type Options struct {
	Jobs        domain.JobRepository
	Idempotency domain.IdempotencyRepository
	Sessions    *session.Store
	Generator   image.Generator
	Auditor     *compliance.Auditor
	Artifacts   storage.ArtifactStore
	Webhooks    *webhook.Delivery
	Brands      BrandResolver
	Cache       cache.Cache
	Thresholds  Thresholds
	JobTTL      time.Duration
	WorkerSlots int
	Logger      infra.Logger
}

// Orchestrator drives the generate -> audit -> route -> correct loop for each
// job. One goroutine owns one job id at a time; everything else reads jobs as
// snapshots.
type Orchestrator struct {
	jobs        domain.JobRepository
	idempotency domain.IdempotencyRepository
	sessions    *session.Store
	generator   image.Generator
	auditor     *compliance.Auditor
	artifacts   storage.ArtifactStore
	webhooks    *webhook.Delivery
	brands      BrandResolver
	cache       cache.Cache
	thresholds  Thresholds
	jobTTL      time.Duration
	logger      infra.Logger

	baseCtx context.Context
	sem     chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	cancelled map[string]bool
}

// New constructs the orchestrator. ctx bounds all background pipeline work.
func New(ctx context.Context, opts Options) *Orchestrator {
	slots := opts.WorkerSlots
	if slots <= 0 {
		slots = 8
	}
	ttl := opts.JobTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Orchestrator{
		jobs:        opts.Jobs,
		idempotency: opts.Idempotency,
		sessions:    opts.Sessions,
		generator:   opts.Generator,
		auditor:     opts.Auditor,
		artifacts:   opts.Artifacts,
		webhooks:    opts.Webhooks,
		brands:      opts.Brands,
		cache:       opts.Cache,
		thresholds:  opts.Thresholds,
		jobTTL:      ttl,
		logger:      opts.Logger,
		baseCtx:     ctx,
		sem:         make(chan struct{}, slots),
		cancelled:   make(map[string]bool),
	}
}

// SubmitRequest is the validated submission input.
type SubmitRequest struct {
	BrandID        string
	Prompt         string
	WebhookURL     string
	IdempotencyKey string
}

// SubmitResult reports the job bound to the submission. Existing is true when
// an idempotency key matched a live prior submission.
type SubmitResult struct {
	JobID    string
	Status   domain.JobStatus
	Existing bool
}

// Submit registers a job and hands it to the background pipeline. It returns
// as soon as the job row (and idempotency record, if any) is written; it
// never blocks on generation or audit.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.BrandID) == "" {
		return nil, fmt.Errorf("%w: brand_id is required", domain.ErrInvalidInstruction)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInstruction)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, fmt.Errorf("%w: idempotency key exceeds %d characters", domain.ErrInvalidInstruction, maxIdempotencyKeyLen)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:             uuid.NewString(),
		BrandID:        req.BrandID,
		Prompt:         req.Prompt,
		Status:         domain.JobStatusPending,
		Progress:       progressPending,
		WebhookURL:     req.WebhookURL,
		WebhookStatus:  domain.WebhookStatusNone,
		IdempotencyKey: req.IdempotencyKey,
		State:          domain.JobState{AttemptCount: 1},
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(o.jobTTL),
	}

	if req.IdempotencyKey != "" {
		winner, created, err := o.idempotency.Claim(ctx, req.IdempotencyKey, job.ID, job.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !created {
			existing, err := o.lookupClaimedJob(ctx, winner)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					// Record survived its job (partial sweep); treat the key
					// window as spent and surface the stale binding.
					return &SubmitResult{JobID: winner, Status: domain.JobStatusExpired, Existing: true}, nil
				}
				return nil, err
			}
			return &SubmitResult{JobID: existing.ID, Status: existing.Status, Existing: true}, nil
		}
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	o.spawn(job.ID)
	o.logger.Info().Str("job_id", job.ID).Str("brand_id", job.BrandID).Msg("orchestrator: job submitted")
	return &SubmitResult{JobID: job.ID, Status: job.Status}, nil
}

// StatusSnapshot is the read-only view served to status callers.
type StatusSnapshot struct {
	JobID           string                  `json:"job_id"`
	Status          domain.JobStatus        `json:"status"`
	Progress        int                     `json:"progress"`
	AttemptCount    int                     `json:"attempt_count"`
	CurrentImageRef string                  `json:"current_image_ref,omitempty"`
	ComplianceScore *domain.ComplianceScore `json:"compliance_score,omitempty"`
	WebhookStatus   domain.WebhookStatus    `json:"webhook_status,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// GetStatus returns a job snapshot, served from the cache when fresh.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	if o.cache != nil {
		if data, ok, err := o.cache.Get(ctx, cache.JobSnapshotKey(jobID)); err == nil && ok {
			var snap StatusSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				return &snap, nil
			}
		}
	}

	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := &StatusSnapshot{
		JobID:           job.ID,
		Status:          job.Status,
		Progress:        job.Progress,
		AttemptCount:    job.State.AttemptCount,
		CurrentImageRef: job.State.CurrentImageRef,
		ComplianceScore: job.State.LatestScore(),
		WebhookStatus:   job.WebhookStatus,
		Error:           job.ErrorMessage,
	}
	if o.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			_ = o.cache.Set(ctx, cache.JobSnapshotKey(jobID), data, snapshotCacheTTL)
		}
	}
	return snap, nil
}

// Cancel requests cooperative cancellation. In-flight collaborator calls are
// not interrupted, but no further state transition starts once the flag is
// observed. Jobs paused for review are cancelled immediately; every other
// non-terminal status has a pipeline goroutine driving it, which stays the
// sole finalizer so the terminal webhook fires exactly once.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}

	if job.Status == domain.JobStatusNeedsReview {
		job.Status = domain.JobStatusCancelled
		job.Progress = progressTerminal
		if err := o.persist(ctx, job); err != nil {
			return err
		}
		o.mu.Lock()
		delete(o.cancelled, jobID)
		o.mu.Unlock()
		o.notifyTerminal(job)
		o.logger.Info().Str("job_id", jobID).Msg("orchestrator: cancellation requested")
		return nil
	}

	o.mu.Lock()
	o.cancelled[jobID] = true
	o.mu.Unlock()
	o.logger.Info().Str("job_id", jobID).Msg("orchestrator: cancellation requested")
	return nil
}

// Decide resolves a needs_review pause with an explicit user decision.
func (o *Orchestrator) Decide(ctx context.Context, jobID string, decision domain.ReviewDecision, instruction string) (*StatusSnapshot, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusNeedsReview {
		return nil, domain.ErrNotReviewable
	}

	job.State.UserDecided = true
	switch decision {
	case domain.DecisionApprove:
		job.Status = domain.JobStatusCompleted
		job.State.IsApproved = true
		job.Progress = progressTerminal
	case domain.DecisionAbandon:
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = "abandoned during review"
		job.Progress = progressTerminal
	case domain.DecisionRevise:
		job.State.TweakInstruct = strings.TrimSpace(instruction)
		job.Status = domain.JobStatusCorrecting
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidInstruction, decision)
	}

	if err := o.persist(ctx, job); err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		o.notifyTerminal(job)
	} else {
		o.spawn(job.ID)
	}
	o.logger.Info().Str("job_id", jobID).Str("decision", string(decision)).Msg("orchestrator: review decided")
	return o.GetStatus(ctx, jobID)
}

// Tweak resumes a completed job with a refinement instruction. This is the
// only externally triggered re-entry into a terminal state.
func (o *Orchestrator) Tweak(ctx context.Context, jobID, instruction string) (*StatusSnapshot, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: tweak instruction is empty", domain.ErrInvalidInstruction)
	}
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, domain.ErrNotResumable
	}

	sess, err := o.sessions.Resolve(ctx, jobID, job.State.CurrentImageRef)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	job.State.SessionID = sess.SessionID
	job.State.TweakInstruct = strings.TrimSpace(instruction)
	job.State.UserDecided = true
	job.State.IsApproved = false
	job.Status = domain.JobStatusCorrecting
	job.WebhookStatus = resetWebhookStatus(job)

	o.mu.Lock()
	delete(o.cancelled, jobID)
	o.mu.Unlock()

	if err := o.persist(ctx, job); err != nil {
		return nil, err
	}
	o.spawn(job.ID)
	o.logger.Info().Str("job_id", jobID).Msg("orchestrator: tweak accepted")
	return o.GetStatus(ctx, jobID)
}

// Recover re-enqueues jobs whose pipelines were interrupted by a restart.
// Jobs paused for review stay paused: they move only on a user decision.
func (o *Orchestrator) Recover(ctx context.Context) error {
	jobs, err := o.jobs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished jobs: %w", err)
	}
	for _, job := range jobs {
		o.spawn(job.ID)
	}
	if len(jobs) > 0 {
		o.logger.Info().Int("count", len(jobs)).Msg("orchestrator: recovered unfinished jobs")
	}
	return nil
}

// Wait blocks until all in-flight pipelines have drained.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// lookupClaimedJob reads the job bound to a lost idempotency claim. The
// winning submission writes its row just after claiming, so a concurrent
// loser can observe the claim before the row lands; a couple of short
// re-reads close that window before the record is treated as orphaned.
func (o *Orchestrator) lookupClaimedJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		job, err := o.jobs.GetByID(ctx, jobID)
		if err == nil {
			return job, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) spawn(jobID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-o.baseCtx.Done():
			return
		}
		o.run(jobID)
	}()
}

func resetWebhookStatus(job *domain.Job) domain.WebhookStatus {
	if job.WebhookURL == "" {
		return domain.WebhookStatusNone
	}
	return domain.WebhookStatusPending
}
