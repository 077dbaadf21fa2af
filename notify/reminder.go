package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"signwise/core"
	"signwise/engine"
)

// ReminderTag tags the daily reminder job.
const ReminderTag = "daily-reminder"

// MotivationTag tags the motivational nudge job.
const MotivationTag = "motivation"

// DefaultReminderTime is when the daily reminder fires unless configured.
const DefaultReminderTime = "09:00"

// Targets lists the devices a reminder is sent to.
type Targets func(ctx context.Context) []engine.Snapshot

// Scheduler publishes the daily reminder, and optionally a motivational
// nudge for devices idle that day, on a gocron schedule.
type Scheduler struct {
	cron       *gocron.Scheduler
	bus        *engine.EventBus
	clock      engine.Clock
	targets    Targets
	at         string
	motivateAt string
	logger     *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReminderAt sets the HH:MM time of day.
func WithReminderAt(at string) SchedulerOption { return func(s *Scheduler) { s.at = at } }

// WithMotivationAt schedules MotivateIdle daily at HH:MM. Empty disables it.
func WithMotivationAt(at string) SchedulerOption { return func(s *Scheduler) { s.motivateAt = at } }

func WithSchedulerClock(c engine.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithTargets makes reminders per device instead of a single broadcast.
func WithTargets(t Targets) SchedulerOption { return func(s *Scheduler) { s.targets = t } }

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler builds a scheduler running in loc (time.Local when nil).
func NewScheduler(bus *engine.EventBus, loc *time.Location, opts ...SchedulerOption) (*Scheduler, error) {
	if bus == nil {
		return nil, fmt.Errorf("reminder scheduler requires an event bus")
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:   gocron.NewScheduler(loc),
		bus:    bus,
		clock:  engine.SystemClock{Location: loc},
		at:     DefaultReminderTime,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if _, err := ParseReminderTime(s.at); err != nil {
		return nil, err
	}
	if s.motivateAt != "" {
		if _, err := ParseReminderTime(s.motivateAt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ParseReminderTime validates an HH:MM time of day.
func ParseReminderTime(at string) (time.Time, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder time %q: want HH:MM", at)
	}
	return t, nil
}

// Start schedules the jobs and runs the scheduler in the background.
func (s *Scheduler) Start() error {
	_, err := s.cron.Every(1).Day().At(s.at).Tag(ReminderTag).Do(s.Remind, context.Background())
	if err != nil {
		return fmt.Errorf("schedule daily reminder: %w", err)
	}
	if s.motivateAt != "" {
		_, err = s.cron.Every(1).Day().At(s.motivateAt).Tag(MotivationTag).Do(s.MotivateIdle, context.Background())
		if err != nil {
			return fmt.Errorf("schedule motivation: %w", err)
		}
	}
	s.cron.StartAsync()
	s.logger.Info("daily reminder scheduled", "at", s.at, "motivation_at", s.motivateAt)
	return nil
}

// Stop terminates the schedule.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// NextRun returns when the reminder fires next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	return s.next(ReminderTag)
}

// NextMotivation returns when the motivational nudge fires next.
func (s *Scheduler) NextMotivation() (time.Time, bool) {
	return s.next(MotivationTag)
}

func (s *Scheduler) next(tag string) (time.Time, bool) {
	jobs, err := s.cron.FindJobsByTag(tag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

// Remind publishes a daily reminder, one per target when targets are set.
func (s *Scheduler) Remind(ctx context.Context) {
	today := s.clock.Today()
	if s.targets == nil {
		s.bus.Publish(ctx, core.NewDailyReminder(today, 0))
		return
	}
	snaps := s.targets(ctx)
	for _, snap := range snaps {
		s.bus.Publish(ctx, core.NewDailyReminder(today, snap.State.CurrentStreak).ForDevice(snap.Device))
	}
	s.logger.Debug("daily reminders published", "devices", len(snaps))
}

// Motivate publishes a motivational nudge for device.
func (s *Scheduler) Motivate(ctx context.Context, snap engine.Snapshot) {
	s.bus.Publish(ctx, core.NewMotivational(s.clock.Today(), snap.State.CurrentStreak).ForDevice(snap.Device))
}

// MotivateIdle nudges every target that has not learned a sign today and
// returns how many were nudged.
func (s *Scheduler) MotivateIdle(ctx context.Context) int {
	if s.targets == nil {
		return 0
	}
	n := 0
	for _, snap := range s.targets(ctx) {
		if snap.SignsToday > 0 {
			continue
		}
		s.Motivate(ctx, snap)
		n++
	}
	s.logger.Debug("motivational nudges published", "devices", n)
	return n
}
