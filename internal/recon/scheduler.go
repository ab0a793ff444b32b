package recon

import (
	"context"
	"log"
	"time"
)

// Scheduler runs one unbounded sweep per day at a fixed local hour, the quiet
// window after close of business.
type Scheduler struct {
	engine   *Engine
	hour     int
	location *time.Location
	limit    int
}

func NewScheduler(engine *Engine, hour int, timezone string, limit int) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	if limit < 1 {
		limit = DefaultSweepLimit
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("[recon] WARN: unknown timezone %q, falling back to UTC: %v", timezone, err)
		location = time.UTC
	}
	return &Scheduler{engine: engine, hour: hour, location: location, limit: limit}
}

// nextRun returns the next occurrence of the configured hour after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, 0, 0, 0, s.location)
	if !next.After(local) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Run blocks until ctx is cancelled, sweeping once per scheduled slot.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now()
		next := s.nextRun(now)
		log.Printf("[recon] next scheduled sweep at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[recon] scheduler stopped")
			return
		case <-timer.C:
		}

		result, err := s.engine.SweepAll(ctx, s.limit)
		if err != nil {
			log.Printf("[recon] WARN: scheduled sweep failed: %v", err)
			continue
		}
		log.Printf("[recon] scheduled sweep settled %d entries", result.Processed)
	}
}
