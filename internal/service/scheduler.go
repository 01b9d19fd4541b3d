package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"paycore/internal/config"
	"paycore/internal/logging"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultWorkers      = 4
)

// Scheduler periodically sweeps for due recurring payments and executes them
// on a bounded pool of workers. A schedule is never queued twice while an
// earlier execution of it is still running.
type Scheduler struct {
	recurring *RecurringService
	logger    *slog.Logger
	interval  time.Duration
	workers   int

	mu       sync.Mutex
	inflight map[string]struct{}
	jobs     chan string
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewScheduler creates a Scheduler for the given recurring service.
func NewScheduler(recurring *RecurringService, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scheduler{
		recurring: recurring,
		logger:    logger,
		interval:  interval,
		workers:   workers,
		inflight:  make(map[string]struct{}),
		jobs:      make(chan string, workers*4),
	}
}

// Start launches the sweep loop and the workers. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = g

	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := s.Sweep(gctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.ErrorContext(gctx, "recurring sweep failed", "error", err)
				}
			}
		}
	})

	s.logger.Info("recurring scheduler started", "interval", s.interval.String(), "workers", s.workers)
}

// Stop cancels the sweep loop and waits for running executions to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
	s.logger.Info("recurring scheduler stopped")
}

// Sweep queues every due schedule that is not already in flight and returns
// how many were queued. It never blocks on a full queue; whatever does not
// fit is picked up by a later sweep.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	ids, err := s.recurring.DueIDs(ctx, s.recurring.now())
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		if !s.claim(id) {
			continue
		}
		select {
		case s.jobs <- id:
			queued++
		case <-ctx.Done():
			s.release(id)
			return queued, ctx.Err()
		default:
			s.release(id)
		}
	}
	return queued, nil
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.jobs:
			s.execute(ctx, id)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, id string) {
	defer s.release(id)

	rp, err := s.recurring.Execute(ctx, id)
	switch {
	case errors.Is(err, ErrRecurringNotActive):
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "recurring execution failed", "recurring_id", id, "error", err)
		return
	}
	if rp.LastFailure != "" {
		s.logger.WarnContext(ctx, "recurring payment attempt declined",
			"recurring_id", id,
			"retry_count", rp.RetryCount,
			"status", string(rp.Status),
			"reason", rp.LastFailure,
		)
	}
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// InFlight reports how many schedules are queued or executing.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
