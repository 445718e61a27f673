package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/usecase"
)

const (
	// A sweep must finish before the next one fires.
	sweepTimeout  = 4 * time.Minute
	notifyTimeout = 30 * time.Second
)

// Scheduler drives the recurring jobs on the exchange clock: the setup
// sweep during market hours, the opening bell notification and the
// after-close daily report. Specs are standard five-field cron,
// evaluated in the exchange timezone.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  *usecase.SymbolSweeper
	reporter *usecase.Reporter
	logger   *zap.Logger
	ctx      context.Context
}

func NewScheduler(ctx context.Context, loc *time.Location, sweeper *usecase.SymbolSweeper, reporter *usecase.Reporter, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		sweeper:  sweeper,
		reporter: reporter,
		logger:   logger,
		ctx:      ctx,
	}
}

// RegisterAll wires the three recurring jobs.
func (s *Scheduler) RegisterAll(sweepSpec, openAlertSpec, reportSpec string) error {
	if _, err := s.cron.AddFunc(sweepSpec, s.sweepJob); err != nil {
		return fmt.Errorf("register sweep job %q: %w", sweepSpec, err)
	}
	if _, err := s.cron.AddFunc(openAlertSpec, s.openAlertJob); err != nil {
		return fmt.Errorf("register open alert job %q: %w", openAlertSpec, err)
	}
	if _, err := s.cron.AddFunc(reportSpec, s.reportJob); err != nil {
		return fmt.Errorf("register report job %q: %w", reportSpec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	result, err := s.sweeper.Sweep(ctx, false)
	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return
	}
	if result.Skipped {
		return
	}
	if result.Errors > 0 {
		s.logger.Warn("Scheduled sweep finished with symbol errors",
			zap.Int("errors", result.Errors),
			zap.Int("triggered", result.Triggered))
	}
}

func (s *Scheduler) openAlertJob() {
	ctx, cancel := context.WithTimeout(s.ctx, notifyTimeout)
	defer cancel()
	s.reporter.SendMarketOpenAlert(ctx)
}

func (s *Scheduler) reportJob() {
	ctx, cancel := context.WithTimeout(s.ctx, notifyTimeout)
	defer cancel()
	s.reporter.SendDailyReport(ctx)
}
