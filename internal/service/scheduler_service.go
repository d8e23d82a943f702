package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"study-planner/internal/apperr"
)

// SchedulerService runs the batch jobs on cron schedules.
type SchedulerService struct {
	cron *cron.Cron
	loc  *time.Location
	log  *zap.SugaredLogger
}

// cronLogger feeds cron's scheduling chatter and recovered panics into zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewSchedulerService(loc *time.Location, log *zap.SugaredLogger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cl := cronLogger{log: log}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc: loc,
		log: log,
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, apperr.Validation("interval must be positive, got %s", interval)
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// Entries returns the number of registered jobs.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", apperr.Validation("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", apperr.Validation("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", apperr.Validation("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// JobSchedule says when each batch job runs.
type JobSchedule struct {
	DailyPlanAt   string
	ReminderEvery time.Duration
	SyncEvery     time.Duration
	// Timeout bounds a single run.
	Timeout time.Duration
}

// RegisterBatchJobs wires the batch jobs into the scheduler. A zero interval disables that job.
// Overlapping runs of the same job are skipped.
func (s *SchedulerService) RegisterBatchJobs(batch *BatchService, js JobSchedule) error {
	log := s.log
	timeout := js.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	run := func(job string) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			tally, err := batch.Run(ctx, job, time.Now().In(s.loc))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("batch job failed", "job", job, "error", err)
				return
			}
			log.Infow("batch job finished", "job", job, "processed", tally.Processed, "failed", tally.Failed, "skipped", tally.Skipped)
		}
	}

	if js.DailyPlanAt != "" {
		if _, err := s.ScheduleDaily(js.DailyPlanAt, run(JobDailyPlans)); err != nil {
			return fmt.Errorf("schedule daily plans: %w", err)
		}
	}
	if js.ReminderEvery > 0 {
		if _, err := s.ScheduleInterval(js.ReminderEvery, run(JobDeadlineReminders)); err != nil {
			return fmt.Errorf("schedule reminders: %w", err)
		}
	}
	if js.SyncEvery > 0 {
		if _, err := s.ScheduleInterval(js.SyncEvery, run(JobSyncContext)); err != nil {
			return fmt.Errorf("schedule context sync: %w", err)
		}
	}
	return nil
}
