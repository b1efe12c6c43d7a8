// Package scheduler runs the nightly inventory rollup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger/ledger"
)

// RunTimeout bounds one scheduled rollup.
const RunTimeout = 5 * time.Minute

// Roller rolls inventory up for a day. *ledger.Service implements it.
type Roller interface {
	RollupInventory(ctx context.Context, day time.Time) ([]ledger.InventorySummary, error)
}

// Scheduler rolls up the previous day on a cron schedule.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	roller  Roller
	logger  *zap.Logger
	now     func() time.Time
	running bool
}

// New parses schedule (standard five-field cron) and returns a stopped scheduler.
func New(schedule string, roller Roller, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		roller: roller,
		logger: logger.Named("scheduler"),
		now:    time.Now,
	}
	id, err := s.cron.AddFunc(schedule, s.scheduledRun)
	if err != nil {
		return nil, err
	}
	s.entryID = id
	return s, nil
}

// Start starts the cron loop. It is a no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("rollup scheduler started", zap.Time("next_run", s.cron.Entry(s.entryID).Next))
}

// Stop stops the loop and waits for a running rollup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("rollup scheduler stopped")
}

// NextRun returns the next scheduled time, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) scheduledRun() {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce rolls up the UTC day before now.
func (s *Scheduler) RunOnce(ctx context.Context) ([]ledger.InventorySummary, error) {
	day := s.now().UTC().AddDate(0, 0, -1)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	start := time.Now()
	summaries, err := s.roller.RollupInventory(ctx, day)
	if err != nil {
		s.logger.Error("scheduled rollup failed", zap.String("day", day.Format(time.DateOnly)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("scheduled rollup finished",
		zap.String("day", day.Format(time.DateOnly)),
		zap.Int("materials", len(summaries)),
		zap.Duration("duration", time.Since(start)),
	)
	return summaries, nil
}
