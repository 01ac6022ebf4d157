// Package scheduler triggers the payout engine once a day at a fixed
// wall-clock time in a fixed timezone.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"payout-ledger/internal/config"
	"payout-ledger/internal/service"
)

// Runner runs one payout batch.
type Runner interface {
	Run(ctx context.Context, now time.Time) (*service.PayoutReport, error)
}

// Scheduler calls Runner daily. Overlapping runs are safe, so a manual
// Trigger may race a scheduled tick.
type Scheduler struct {
	runner Runner
	hour   int
	minute int
	loc    *time.Location
	now    func() time.Time
}

// New builds a Scheduler from config.
func New(runner Runner, cfg config.SchedulerConfig) (*Scheduler, error) {
	hour, minute, err := ParseClock(cfg.Time)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		runner: runner,
		hour:   hour,
		minute: minute,
		loc:    loc,
		now:    time.Now,
	}, nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scheduler time %q, want HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start blocks, running the payout engine at each daily tick until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		now := s.now()
		next := NextRun(now, s.hour, s.minute, s.loc)
		log.Info().Time("next_run", next).Str("timezone", s.loc.String()).Msg("Payout scheduler waiting")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Payout scheduler stopped")
			return nil
		case <-timer.C:
		}

		if _, err := s.Trigger(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled payout run failed")
		}
	}
}

// Trigger runs the payout engine synchronously at the current time.
func (s *Scheduler) Trigger(ctx context.Context) (*service.PayoutReport, error) {
	report, err := s.runner.Run(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("run_id", report.RunID).
		Int("processed", report.Processed).
		Int64("total_amount", report.TotalAmount).
		Int("errors", len(report.Errors)).
		Msg("Scheduled payout run finished")
	return report, nil
}
