package service

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultScheduleSpec is how often due scheduled campaigns are swept.
const DefaultScheduleSpec = "@every 1m"

// ScheduledStarter is the part of CampaignService the scheduler drives.
type ScheduledStarter interface {
	StartDueScheduled(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	spec    string
	starter ScheduledStarter
	log     *slog.Logger
}

func NewScheduler(starter ScheduledStarter, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultScheduleSpec
	}
	return &Scheduler{
		cron:    cron.New(),
		spec:    spec,
		starter: starter,
		log:     moduleLogger(logger, "scheduler"),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", "event", "scheduler.started", "spec", s.spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	started, err := s.starter.StartDueScheduled(context.Background())
	if err != nil {
		s.log.Error("scheduled sweep failed", "event", "scheduler.sweep_failed", "error", err)
		return
	}
	if started > 0 {
		s.log.Info("scheduled campaigns started", "event", "scheduler.swept", "started", started)
	}
}
