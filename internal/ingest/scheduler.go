package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Runner is what the scheduler drives.
type Runner interface {
	Run(ctx context.Context, runID string) (*RunReport, error)
}

// Scheduler runs a pipeline at startup, on an interval and on demand.
// Runs may overlap.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   log.Logger

	mu      sync.Mutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler returns a scheduler for runner. An interval <= 0 disables
// periodic runs.
func NewScheduler(runner Runner, interval time.Duration, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start triggers an immediate run and then one every interval until ctx is
// cancelled or Stop is called. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	s.Trigger(ctx)
	if s.interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Trigger(ctx)
			}
		}
	}()
}

// Trigger launches a run in the background and returns its id. The run
// outlives ctx (an HTTP request, typically) but not Stop. After Stop no run
// is started and the id is empty.
func (s *Scheduler) Trigger(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ""
	}

	runID := ulid.Make().String()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()
		if _, err := s.runner.Run(runCtx, runID); err != nil {
			s.logger.Error(runCtx, err, "ingest run failed", "run_id", runID)
		}
	}()
	return runID
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
