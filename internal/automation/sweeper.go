package automation

import (
	"context"
	"sync"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/logger"
)

type RetryableLogLister interface {
	ListFailedRetryable(ctx context.Context, tenantID *int64, limit int) ([]*model.MessageLog, error)
}

type SweeperConfig struct {
	Interval   time.Duration
	BatchSize  int
	RetryDelay time.Duration
}

// Sweeper periodically requeues failed messages that still have retry budget.
// It backstops the in-flight retry path: jobs lost to a crash or an expired
// queue message get picked up here.
type Sweeper struct {
	logRepo     RetryableLogLister
	idempotency *IdempotencyService
	publisher   DelayedPublisher
	config      SweeperConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(logRepo RetryableLogLister, idempotency *IdempotencyService, publisher DelayedPublisher, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		logRepo:     logRepo,
		idempotency: idempotency,
		publisher:   publisher,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		logger.Info("Retry sweeper started", "interval", s.config.Interval, "batch_size", s.config.BatchSize)

		for {
			select {
			case <-ticker.C:
				requeued, err := s.SweepOnce(s.ctx)
				if err != nil {
					logger.Error("Sweep failed", "error", err)
				} else if requeued > 0 {
					logger.Info("Sweep requeued failed messages", "count", requeued)
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("Retry sweeper stopped")
}

// SweepOnce scans failed logs under their retry budget and requeues one
// retry job per affected call. The per-log sweep marker keeps overlapping
// sweep runs from double-counting retries.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	logs, err := s.logRepo.ListFailedRetryable(ctx, nil, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		return 0, nil
	}

	// One retry job per call, attempts carried over from the worst log.
	type callRetry struct {
		job     model.AutomationJob
		claimed bool
	}
	calls := make(map[int64]*callRetry)

	requeued := 0
	for _, log := range logs {
		if log.CallID == nil {
			continue
		}

		claimed, err := s.idempotency.MarkSweep(ctx, log.ID)
		if err != nil {
			logger.Warn("Failed to claim log for sweep", "log_id", log.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		// Attempt counting happens on the send itself, not here; the sweep
		// marker alone keeps overlapping runs from requeueing the same log.
		cr, ok := calls[*log.CallID]
		if !ok {
			cr = &callRetry{
				job: model.AutomationJob{
					TenantID:    log.TenantID,
					CallID:      *log.CallID,
					CallerPhone: log.RecipientPhone,
					Attempt:     log.RetryCount + 1,
					Retry:       true,
				},
			}
			calls[*log.CallID] = cr
		}
		cr.claimed = true
	}

	for _, cr := range calls {
		if !cr.claimed {
			continue
		}
		if err := s.publisher.PublishJSONDelayed(ctx, cr.job, nil, s.config.RetryDelay); err != nil {
			logger.Error("Failed to requeue retry job", "call_id", cr.job.CallID, "error", err)
			continue
		}
		requeued++
	}

	return requeued, nil
}
