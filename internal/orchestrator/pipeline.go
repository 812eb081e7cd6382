package orchestrator

import (
	"context"
	"fmt"
	"time"

	"brandforge/internal/cache"
	"brandforge/internal/domain"
	"brandforge/internal/imagegen"
	"brandforge/internal/providers/image"
)

// run drives one job's pipeline to its next pause or terminal state. Steps
// execute strictly sequentially; the cancellation flag is checked before each
// one. Only this goroutine mutates the job while it runs.
func (o *Orchestrator) run(jobID string) {
	ctx := o.baseCtx
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: load job failed")
		return
	}

	for !job.Status.Terminal() && job.Status != domain.JobStatusNeedsReview {
		if o.isCancelled(job.ID) {
			job.Status = domain.JobStatusCancelled
			job.Progress = progressTerminal
			break
		}

		switch job.Status {
		case domain.JobStatusPending, domain.JobStatusGenerating:
			o.stepGenerate(ctx, job)
		case domain.JobStatusCorrecting:
			o.stepCorrect(ctx, job)
		case domain.JobStatusAuditing:
			o.stepAudit(ctx, job)
		default:
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = fmt.Sprintf("unexpected pipeline state %q", job.Status)
			job.Progress = progressTerminal
		}

		if err := o.persist(ctx, job); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: persist job failed")
			return
		}
	}

	if job.Status == domain.JobStatusCancelled {
		if err := o.persist(ctx, job); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: persist cancellation failed")
			return
		}
	}
	if job.Status.Terminal() {
		o.mu.Lock()
		delete(o.cancelled, job.ID)
		o.mu.Unlock()
		o.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Int("attempts", job.State.AttemptCount).
			Msg("orchestrator: job finished")
		o.notifyTerminal(job)
	}
}

// stepGenerate invokes the generation collaborator. Continuation context is
// passed purely when a previous attempt exists and a session is present, so
// the collaborator refines rather than re-renders. Collaborator-level retries
// live at the provider boundary; an error here means they are exhausted.
func (o *Orchestrator) stepGenerate(ctx context.Context, job *domain.Job) {
	job.Status = domain.JobStatusGenerating
	if job.Progress < progressGenerating {
		job.Progress = progressGenerating
	}

	instruction := job.State.RevisedPrompt
	if instruction == "" {
		rules := o.brandRules(ctx, job.BrandID)
		instruction = imagegen.BuildInstruction(imagegen.PromptInput{
			BrandName:  job.BrandID,
			Prompt:     job.Prompt,
			Guidelines: rules.Guidelines,
		})
	}

	continuationRef := ""
	if job.State.AttemptCount > 0 && job.State.SessionID != "" {
		continuationRef = job.State.CurrentImageRef
	}

	asset, err := o.generator.Generate(ctx, image.GenerateRequest{
		Prompt:          instruction,
		BrandID:         job.BrandID,
		RequestID:       job.ID,
		SessionID:       job.State.SessionID,
		ContinuationRef: continuationRef,
	})
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = fmt.Sprintf("generation failed: %v", err)
		job.Progress = progressTerminal
		return
	}

	ref := asset.URL
	if len(asset.Data) > 0 {
		key := fmt.Sprintf("generated/brand-assets/%s/attempt-%02d.png", job.ID, job.State.AttemptCount)
		savedKey, werr := o.artifacts.Write(ctx, key, asset.Data)
		if werr != nil {
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = fmt.Sprintf("store artifact: %v", werr)
			job.Progress = progressTerminal
			return
		}
		ref = o.artifacts.URL(savedKey)
	}
	if ref == "" {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = "generation produced no artifact reference"
		job.Progress = progressTerminal
		return
	}

	sess, err := o.sessions.GetOrCreate(ctx, job.ID)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: session unavailable, continuing without continuity")
	} else {
		job.State.SessionID = sess.SessionID
		if rerr := o.sessions.RecordImage(ctx, job.ID, sess.SessionID, ref); rerr != nil {
			o.logger.Warn().Err(rerr).Str("job_id", job.ID).Msg("orchestrator: record session image failed")
		}
	}

	job.State.CurrentImageRef = ref
	job.Status = domain.JobStatusAuditing
}

// stepAudit scores the current artifact and routes. The auditor never blocks
// past its wall-clock timeout; a degraded score routes like a failing one.
func (o *Orchestrator) stepAudit(ctx context.Context, job *domain.Job) {
	if job.Progress < progressAuditing {
		job.Progress = progressAuditing
	}

	score := o.auditor.Score(ctx, job.State.CurrentImageRef, o.brandRules(ctx, job.BrandID))
	job.State.AuditHistory = append(job.State.AuditHistory, score)

	next := route(score.OverallScore, job.State.AttemptCount, job.State.UserDecided, o.thresholds)
	switch next {
	case domain.JobStatusCompleted:
		job.State.IsApproved = true
		job.State.RevisedPrompt = ""
		job.Progress = progressTerminal
	case domain.JobStatusNeedsReview:
		job.Progress = progressNeedsReview
	case domain.JobStatusFailed:
		job.ErrorMessage = fmt.Sprintf("attempt ceiling reached after %d attempts (score %.1f)", job.State.AttemptCount, score.OverallScore)
		job.Progress = progressTerminal
	}
	job.Status = next
}

// stepCorrect merges the last audit's violations and any pending tweak
// instruction into a revised prompt, consumes the tweak, and re-enters
// generation. The attempt counter moves here and only here.
func (o *Orchestrator) stepCorrect(ctx context.Context, job *domain.Job) {
	rules := o.brandRules(ctx, job.BrandID)

	var violations []domain.Violation
	if last := job.State.LatestScore(); last != nil {
		violations = last.AllViolations()
	}

	job.State.RevisedPrompt = imagegen.BuildInstruction(imagegen.PromptInput{
		BrandName:        job.BrandID,
		Prompt:           job.Prompt,
		Guidelines:       rules.Guidelines,
		Violations:       violations,
		TweakInstruction: job.State.TweakInstruct,
		Refinement:       true,
	})
	job.State.AttemptCount++
	job.State.TweakInstruct = ""
	job.Status = domain.JobStatusGenerating
}

func (o *Orchestrator) brandRules(ctx context.Context, brandID string) domain.BrandRules {
	if o.brands == nil {
		return domain.BrandRules{BrandID: brandID}
	}
	rules, err := o.brands.Rules(ctx, brandID)
	if err != nil {
		o.logger.Warn().Err(err).Str("brand_id", brandID).Msg("orchestrator: brand rules unavailable")
		return domain.BrandRules{BrandID: brandID}
	}
	return rules
}

func (o *Orchestrator) isCancelled(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[jobID]
}

func (o *Orchestrator) persist(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.Update(ctx, job); err != nil {
		return err
	}
	if o.cache != nil {
		_ = o.cache.Delete(ctx, cache.JobSnapshotKey(job.ID))
	}
	return nil
}

func (o *Orchestrator) notifyTerminal(job *domain.Job) {
	if o.webhooks == nil || job.WebhookURL == "" {
		return
	}
	snapshot := *job
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.webhooks.Notify(o.baseCtx, &snapshot)
	}()
}
