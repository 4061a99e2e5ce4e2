package digest

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Service runs one job on a cron schedule (six-field, with seconds).
type Service struct {
	schedule string
	job      func(ctx context.Context)
	cron     *rcron.Cron
}

func New(schedule string, job func(ctx context.Context)) *Service {
	return &Service{schedule: schedule, job: job}
}

func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds())
	if _, err := s.cron.AddFunc(s.schedule, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("register digest schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	log.Printf("[digest] scheduled at %q", s.schedule)
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[digest] stop timeout waiting for running job")
	}
	log.Printf("[digest] stopped")
}
