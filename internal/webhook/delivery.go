package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"brandforge/internal/domain"
	"brandforge/internal/infra"
)

// Payload is the POST body sent to the caller's webhook URL when a job
// reaches a terminal state.
type Payload struct {
	JobID           string                  `json:"job_id"`
	Status          domain.JobStatus        `json:"status"`
	ImageRef        string                  `json:"image_ref,omitempty"`
	ComplianceScore *domain.ComplianceScore `json:"compliance_score,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// Delivery posts terminal notifications with bounded retries and exponential
// backoff. Delivery failure never fails the job itself; exhaustion is only
// recorded on the job's webhook bookkeeping.
type Delivery struct {
	jobs        domain.JobRepository
	attempts    domain.WebhookRepository
	client      *http.Client
	maxAttempts int
	backoffBase time.Duration
	logger      infra.Logger
}

// NewDelivery constructs the delivery service. backoffBase is the first wait;
// each subsequent wait doubles the previous one.
func NewDelivery(jobs domain.JobRepository, attempts domain.WebhookRepository, client *http.Client, maxAttempts int, backoffBase time.Duration, logger infra.Logger) *Delivery {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Delivery{
		jobs:        jobs,
		attempts:    attempts,
		client:      client,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
	}
}

// Notify delivers the terminal payload for a job. It blocks through retries
// and backoff sleeps, so callers run it on its own goroutine. Context
// cancellation aborts remaining retries.
func (d *Delivery) Notify(ctx context.Context, job *domain.Job) {
	if job.WebhookURL == "" {
		return
	}

	payload := Payload{
		JobID:           job.ID,
		Status:          job.Status,
		ImageRef:        job.State.CurrentImageRef,
		ComplianceScore: job.State.LatestScore(),
		Error:           job.ErrorMessage,
	}

	if err := d.jobs.UpdateWebhookStatus(ctx, job.ID, domain.WebhookStatusPending); err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("webhook: mark pending failed")
	}

	wait := d.backoffBase
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.post(ctx, job.WebhookURL, payload)
		d.record(ctx, job.ID, attempt, err == nil)
		if err == nil {
			if uerr := d.jobs.UpdateWebhookStatus(ctx, job.ID, domain.WebhookStatusDelivered); uerr != nil {
				d.logger.Error().Err(uerr).Str("job_id", job.ID).Msg("webhook: mark delivered failed")
			}
			d.logger.Info().Str("job_id", job.ID).Int("attempt", attempt).Msg("webhook: delivered")
			return
		}

		d.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("webhook: delivery failed")
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
	}

	if err := d.jobs.UpdateWebhookStatus(ctx, job.ID, domain.WebhookStatusExhausted); err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("webhook: mark exhausted failed")
	}
	d.logger.Error().Str("job_id", job.ID).Int("attempts", d.maxAttempts).Msg("webhook: delivery exhausted")
}

func (d *Delivery) post(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (d *Delivery) record(ctx context.Context, jobID string, attempt int, succeeded bool) {
	a := &domain.WebhookAttempt{
		JobID:     jobID,
		Attempt:   attempt,
		SentAt:    time.Now().UTC(),
		Succeeded: succeeded,
	}
	if err := d.attempts.RecordAttempt(ctx, a); err != nil {
		d.logger.Error().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("webhook: record attempt failed")
	}
}
