package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/providers"
	"github.com/pressbound/bindery/internal/stages"
)

// RetryConfig tunes the orchestrator's retry policy. The budget is
// per stage per job: a stage that succeeds resets the count for the
// next stage.
type RetryConfig struct {
	// MaxAttempts is the default attempt budget when a job carries none.
	MaxAttempts uint

	// BackoffBase is the first retry delay; later retries back off
	// exponentially. A provider-supplied rate-limit hint overrides it.
	BackoffBase time.Duration

	// RetryProviderErrors retries generic provider failures too, not
	// just rate limits and connectivity problems.
	RetryProviderErrors bool
}

// Orchestrator drives one job through its ordered stage sequence. All
// retry policy lives here; stages never retry internally.
type Orchestrator struct {
	store    jobs.Store
	artifact artifacts.Store
	registry *Registry
	progress *Broadcaster
	retry    RetryConfig
	logger   *slog.Logger
}

// NewOrchestrator wires the orchestrator with its collaborators.
func NewOrchestrator(store jobs.Store, artifact artifacts.Store, registry *Registry, progress *Broadcaster, retryCfg RetryConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg.MaxAttempts = 3
	}
	if retryCfg.BackoffBase <= 0 {
		retryCfg.BackoffBase = time.Second
	}
	if progress == nil {
		progress = NewBroadcaster(nil)
	}
	return &Orchestrator{
		store:    store,
		artifact: artifact,
		registry: registry,
		progress: progress,
		retry:    retryCfg,
		logger:   logger,
	}
}

// Run executes a dequeued (running) job to a terminal state. Stages
// whose latest result already succeeded for this (book, job type) are
// skipped so a retried job resumes where it failed. Cancellation is
// observed between stages, never mid-stage.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.Job) error {
	stageList, err := o.registry.StagesFor(job.JobType)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	latest, err := o.store.LatestStageResults(ctx, job.BookID, job.JobType)
	if err != nil {
		return o.failJob(ctx, job, fmt.Errorf("failed to load stage history: %w", err))
	}

	total := len(stageList)
	for i, stage := range stageList {
		cancelled, err := o.cancelRequested(ctx, job.ID)
		if err != nil {
			return o.failJob(ctx, job, err)
		}
		if cancelled {
			if err := o.store.UpdateJobStatus(ctx, job.ID, jobs.StatusCancelled, ""); err != nil {
				return err
			}
			o.logger.Info("job cancelled", "job_id", job.ID, "before_stage", stage.Name())
			o.publish(job, stage.Name(), percent(i, total), "cancelled")
			return nil
		}

		if prev, ok := latest[stage.Name()]; ok && prev.Status == jobs.StageSucceeded {
			o.logger.Info("stage already complete, resuming past it",
				"job_id", job.ID, "stage", stage.Name())
			o.publish(job, stage.Name(), percent(i+1, total), "already complete")
			continue
		}

		if err := o.runStage(ctx, job, stage, i, total); err != nil {
			return o.failJob(ctx, job, fmt.Errorf("%s: %w", stage.Name(), err))
		}
		o.publish(job, stage.Name(), percent(i+1, total), "stage complete")
	}

	if err := o.store.UpdateJobStatus(ctx, job.ID, jobs.StatusCompleted, ""); err != nil {
		return err
	}
	o.logger.Info("job completed", "job_id", job.ID, "book_id", job.BookID, "job_type", job.JobType)
	o.publish(job, "", 100, "completed")
	return nil
}

// runStage executes one stage with the retry policy applied. Every
// attempt appends a StageResult; failed attempts also clean up the
// stage's partial artifacts so a retry starts from a clean slate while
// earlier stages' artifacts stay put.
func (o *Orchestrator) runStage(ctx context.Context, job *jobs.Job, stage stages.Stage, index, total int) error {
	maxAttempts := uint(job.MaxAttempts)
	if maxAttempts == 0 {
		maxAttempts = o.retry.MaxAttempts
	}

	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			if err := o.store.SetCurrentStage(ctx, job.ID, stage.Name(), attempt); err != nil {
				return retry.Unrecoverable(err)
			}
			o.publish(job, stage.Name(), percent(index, total),
				fmt.Sprintf("running (attempt %d)", attempt))

			started := time.Now().UTC()
			outcome, err := stage.Run(ctx, job.BookID)
			completed := time.Now().UTC()

			result := &jobs.StageResult{
				JobID:       job.ID,
				BookID:      job.BookID,
				JobType:     job.JobType,
				Stage:       stage.Name(),
				Attempt:     attempt,
				StartedAt:   started,
				CompletedAt: &completed,
			}

			if err != nil {
				result.Status = jobs.StageFailed
				result.ErrorDetail = err.Error()
				if aerr := o.store.AppendStageResult(ctx, result); aerr != nil {
					return retry.Unrecoverable(aerr)
				}
				// Drop this attempt's partial output; earlier stages'
				// artifacts are preserved for resumption.
				if derr := o.artifact.DeletePrefix(ctx, job.BookID, stage.Name()); derr != nil {
					o.logger.Warn("failed to clean up stage artifacts",
						"job_id", job.ID, "stage", stage.Name(), "error", derr)
				}
				o.logger.Warn("stage attempt failed",
					"job_id", job.ID,
					"stage", stage.Name(),
					"attempt", attempt,
					"error", err)
				return err
			}

			result.Status = jobs.StageSucceeded
			result.Method = outcome.Method
			result.ArtifactRef = outcome.ArtifactRef
			if aerr := o.store.AppendStageResult(ctx, result); aerr != nil {
				return retry.Unrecoverable(aerr)
			}
			o.logger.Info("stage succeeded",
				"job_id", job.ID,
				"stage", stage.Name(),
				"method", outcome.Method,
				"attempt", attempt)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(o.retry.BackoffBase),
		retry.DelayType(o.delayType),
		retry.RetryIf(o.retryable),
		retry.LastErrorOnly(true),
	)
}

// retryable classifies a stage error. Auth failures and input errors
// are permanent; rate limits and connectivity problems are transient;
// generic provider failures follow configuration.
func (o *Orchestrator) retryable(err error) bool {
	if providers.IsAuth(err) {
		return false
	}
	if errors.Is(err, stages.ErrNoTextFound) ||
		errors.Is(err, stages.ErrNoVocabularyFound) ||
		errors.Is(err, stages.ErrInvalidModuleDefinition) {
		return false
	}
	if providers.IsRetryable(err) {
		return true
	}
	if providers.IsProviderError(err) {
		return o.retry.RetryProviderErrors
	}
	return false
}

// delayType honors a provider-supplied rate-limit hint, otherwise
// falls back to exponential backoff.
func (o *Orchestrator) delayType(n uint, err error, config *retry.Config) time.Duration {
	if hint, ok := providers.RetryAfterHint(err); ok {
		return hint
	}
	return retry.BackOffDelay(n, err, config)
}

func (o *Orchestrator) cancelRequested(ctx context.Context, jobID string) (bool, error) {
	current, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return current.CancelRequested, nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *jobs.Job, cause error) error {
	if err := o.store.UpdateJobStatus(ctx, job.ID, jobs.StatusFailed, cause.Error()); err != nil {
		o.logger.Error("failed to record job failure",
			"job_id", job.ID, "cause", cause, "error", err)
	}
	o.logger.Warn("job failed", "job_id", job.ID, "book_id", job.BookID, "error", cause)
	o.publish(job, job.CurrentStage, 0, "failed: "+cause.Error())
	return cause
}

func (o *Orchestrator) publish(job *jobs.Job, stage string, pct int, message string) {
	o.progress.Publish(Update{
		JobID:   job.ID,
		BookID:  job.BookID,
		Stage:   stage,
		Percent: pct,
		Message: message,
	})
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
