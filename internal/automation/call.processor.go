package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/queue"
	"github.com/callloop/postcall-gateway/pkg/logger"
	"github.com/callloop/postcall-gateway/pkg/prom"
)

type DelayedPublisher interface {
	PublishJSONDelayed(ctx context.Context, data interface{}, metadata map[string]string, delay time.Duration) error
}

// CallAutomationProcessor consumes automation jobs off the queue and drives
// the runner with idempotency and bounded retries.
type CallAutomationProcessor struct {
	runner      *Runner
	idempotency *IdempotencyService
	publisher   DelayedPublisher
	maxAttempts int
	baseBackoff time.Duration
}

func NewCallAutomationProcessor(runner *Runner, idempotency *IdempotencyService, publisher DelayedPublisher, maxAttempts int, baseBackoff time.Duration) *CallAutomationProcessor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Minute
	}
	return &CallAutomationProcessor{
		runner:      runner,
		idempotency: idempotency,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

func (p *CallAutomationProcessor) GetType() string {
	return "call-automation"
}

// Process handles one job. Returning nil acks the queue message; errors are
// reserved for transient conditions where queue-level redelivery helps.
func (p *CallAutomationProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var job model.AutomationJob
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal automation job", "error", err)
		return err // malformed payload goes to the DLQ
	}

	callKey := fmt.Sprintf("call-%d", job.CallID)
	if job.Retry {
		// Retry jobs get their own key per attempt so the processed marker
		// of the original run does not block them.
		callKey = fmt.Sprintf("call-%d-retry-%d", job.CallID, job.Attempt)
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, callKey, job.Retry)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Info("Job already processed, skipping", "call_id", job.CallID)
			return nil
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			return errors.New("lock held by another consumer")
		}
		return err
	}
	defer p.idempotency.ReleaseLock(ctx, procCtx)

	logger.Info("Processing automation job",
		"call_id", job.CallID,
		"tenant_id", job.TenantID,
		"attempt", job.Attempt,
		"retry", job.Retry)

	start := time.Now()
	var result *Result
	if job.Retry {
		result, err = p.runner.RunRetry(ctx, job)
	} else {
		result, err = p.runner.Run(ctx, job)
	}
	if err != nil {
		// Infrastructure failure before any policy decision; let the queue
		// redeliver the message.
		logger.Error("Automation run errored", "call_id", job.CallID, "error", err)
		return err
	}

	outcome := "sent"
	switch {
	case result.Skipped:
		outcome = "skipped"
	case result.MessagesFailed > 0 && result.MessagesSent > 0:
		outcome = "partial"
	case result.MessagesFailed > 0:
		outcome = "failed"
	}
	prom.AddAutomationRunDuration(time.Since(start).Seconds(), outcome)

	if result.Skipped || result.MessagesFailed == 0 {
		if markErr := p.idempotency.MarkProcessed(ctx, procCtx); markErr != nil {
			logger.Error("Failed to mark processed", "call_id", job.CallID, "error", markErr)
		}
		logger.Info("Automation job done",
			"call_id", job.CallID,
			"outcome", outcome,
			"sent", result.MessagesSent)
		return nil
	}

	// Some messages failed. Mark the original flow as processed so it never
	// re-runs whole, then schedule a retry for the failed logs if budget
	// remains.
	if !job.Retry {
		if markErr := p.idempotency.MarkProcessed(ctx, procCtx); markErr != nil {
			logger.Error("Failed to mark processed", "call_id", job.CallID, "error", markErr)
		}
	}

	nextAttempt := job.Attempt + 1
	if nextAttempt >= p.maxAttempts {
		logger.Warn("Automation retries exhausted",
			"call_id", job.CallID,
			"attempt", job.Attempt,
			"failed", result.MessagesFailed,
			"errors", result.Errors)
		return nil
	}

	backoff := p.baseBackoff * time.Duration(1<<uint(job.Attempt))
	retryJob := model.AutomationJob{
		TenantID:    job.TenantID,
		CallID:      job.CallID,
		CallerPhone: job.CallerPhone,
		Attempt:     nextAttempt,
		Retry:       true,
	}
	if err := p.publisher.PublishJSONDelayed(ctx, retryJob, nil, backoff); err != nil {
		logger.Error("Failed to schedule retry", "call_id", job.CallID, "error", err)
		return err
	}

	logger.Info("Automation retry scheduled",
		"call_id", job.CallID,
		"attempt", nextAttempt,
		"backoff", backoff,
		"failed", result.MessagesFailed)
	return nil
}
