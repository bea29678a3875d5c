// Package schedule fires cron-triggered pipeline runs.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ciq/pipeline-engine/internal/event"
	"ciq/pipeline-engine/internal/scheduler"
	"ciq/pipeline-engine/internal/trigger"
	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// maxSleep caps how long the daemon sleeps so pipelines registered
// after startup get picked up promptly.
const maxSleep = time.Minute

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Daemon watches registered pipelines and starts runs when their cron
// schedules fire. All schedules are evaluated in UTC.
type Daemon struct {
	sched   *scheduler.Scheduler
	matcher *trigger.Matcher
	clock   Clock
}

// NewDaemon creates a schedule daemon over the scheduler's pipelines.
func NewDaemon(s *scheduler.Scheduler) *Daemon {
	return &Daemon{
		sched:   s,
		matcher: trigger.NewMatcher(),
		clock:   systemClock{},
	}
}

// SetClock overrides the daemon's clock, used by tests.
func (d *Daemon) SetClock(c Clock) {
	d.clock = c
}

// Run blocks firing schedules until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	logger.Info("schedule daemon started")
	last := d.clock.Now()

	for {
		now := d.clock.Now()
		d.fireDue(ctx, last, now)
		last = now

		wake := d.nextWake(now)
		sleep := wake.Sub(d.clock.Now())
		if sleep < 0 {
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("schedule daemon stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// fireDue starts a run for every pipeline with a schedule due in
// (last, now].
func (d *Daemon) fireDue(ctx context.Context, last, now time.Time) {
	for _, p := range d.sched.Pipelines() {
		if len(p.On.Schedule) == 0 {
			continue
		}
		due, err := d.matcher.NextFire(p.On.Schedule, last)
		if err != nil {
			logger.Warn("skipping pipeline with invalid schedule",
				zap.String("pipeline", p.Name),
				zap.Error(err),
			)
			continue
		}
		if due.After(now) {
			continue
		}

		logger.Info("schedule fired",
			zap.String("pipeline", p.Name),
			zap.Time("due", due),
		)
		d.sched.Start(ctx, p, event.NewScheduleEvent(due))
	}
}

// nextWake returns the earliest upcoming fire time across all
// pipelines, capped at maxSleep from now.
func (d *Daemon) nextWake(now time.Time) time.Time {
	wake := now.Add(maxSleep)
	for _, p := range d.sched.Pipelines() {
		if len(p.On.Schedule) == 0 {
			continue
		}
		next, err := d.matcher.NextFire(p.On.Schedule, now)
		if err != nil {
			continue
		}
		if next.Before(wake) {
			wake = next
		}
	}
	return wake
}

// Due reports the upcoming fire times per pipeline, for inspection.
func (d *Daemon) Due(after time.Time) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, p := range d.sched.Pipelines() {
		if len(p.On.Schedule) == 0 {
			continue
		}
		if next, err := d.matcher.NextFire(p.On.Schedule, after); err == nil {
			out[p.Name] = next
		}
	}
	return out
}

// hasSchedules reports whether any registered pipeline declares crons.
func hasSchedules(pipelines []*types.Pipeline) bool {
	for _, p := range pipelines {
		if len(p.On.Schedule) > 0 {
			return true
		}
	}
	return false
}

// HasWork reports whether the daemon has any schedules to watch.
func (d *Daemon) HasWork() bool {
	return hasSchedules(d.sched.Pipelines())
}
