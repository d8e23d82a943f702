package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/metrics"
	"study-planner/internal/model"
	"study-planner/internal/notify"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
)

// Batch job names.
const (
	JobDailyPlans        = "daily-plans"
	JobDeadlineReminders = "deadline-reminders"
	JobSyncContext       = "sync-context"
)

// JobNames lists the jobs Run accepts.
func JobNames() []string {
	return []string{JobDailyPlans, JobDeadlineReminders, JobSyncContext}
}

// ReminderWindow is how far ahead deadline reminders look.
const ReminderWindow = 24 * time.Hour

// DayPlanner plans and stores one owner's day.
type DayPlanner interface {
	PlanDay(ctx context.Context, owner uint, date time.Time, mode planner.Mode) (*model.Plan, error)
}

// Tally counts the items a batch run handled.
type Tally struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (t *Tally) record(job string, err error) {
	if err != nil {
		t.Failed++
	} else {
		t.Processed++
	}
	metrics.JobItems.WithLabelValues(job, metrics.Outcome(err == nil)).Inc()
}

// BatchService runs the periodic jobs. One failing item never stops a run.
type BatchService struct {
	users    *repository.UserRepository
	tasks    *repository.TaskRepository
	planner  DayPlanner
	indexer  TaskIndexer
	notifier notify.Notifier
	log      *zap.SugaredLogger
}

func NewBatchService(users *repository.UserRepository, tasks *repository.TaskRepository, dayPlanner DayPlanner, indexer TaskIndexer, notifier notify.Notifier, log *zap.SugaredLogger) *BatchService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BatchService{
		users:    users,
		tasks:    tasks,
		planner:  dayPlanner,
		indexer:  indexer,
		notifier: notifier,
		log:      log,
	}
}

// DailyPlans builds the deterministic plan of date for every active user and
// sends it out.
func (s *BatchService) DailyPlans(ctx context.Context, date time.Time) (Tally, error) {
	var tally Tally
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return tally, err
	}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		plan, err := s.planner.PlanDay(ctx, user.ID, date, planner.ModeBatch)
		tally.record(JobDailyPlans, err)
		if err != nil {
			s.log.Errorw("daily plan failed", "user_id", user.ID, "error", err)
			continue
		}
		payload := map[string]any{
			notify.KeyOwner: user.ID,
			"date":          plan.Date,
			"schedule":      plan.Schedule,
			"summary":       plan.Summary,
			notify.KeyText:  PlanText(*plan),
		}
		if user.TelegramID != nil {
			payload[notify.KeyChatID] = *user.TelegramID
		}
		s.notifier.Notify(ctx, notify.EventDailySchedule, payload)
	}
	s.log.Infow("daily plans done", "processed", tally.Processed, "failed", tally.Failed)
	return tally, nil
}

// DeadlineReminders notifies owners of unfinished tasks due within the next 24 hours.
func (s *BatchService) DeadlineReminders(ctx context.Context, now time.Time) (Tally, error) {
	var tally Tally
	due, err := s.tasks.DueBetween(ctx, now, now.Add(ReminderWindow))
	if err != nil {
		return tally, err
	}

	owners := map[uint]*model.User{}
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		user, ok := owners[task.UserID]
		if !ok {
			user, err = s.users.FindByID(ctx, task.UserID)
			if err != nil {
				s.log.Errorw("reminder owner lookup failed", "user_id", task.UserID, "error", err)
				user = nil
			}
			owners[task.UserID] = user
		}
		if user == nil || !user.IsActive {
			tally.Skipped++
			continue
		}

		payload := map[string]any{
			notify.KeyOwner: task.UserID,
			"task_id":       task.ID,
			"title":         task.Title,
			"deadline":      task.Deadline.Format(time.RFC3339),
			notify.KeyText:  ReminderText(task, now),
		}
		if user.TelegramID != nil {
			payload[notify.KeyChatID] = *user.TelegramID
		}
		// Delivery failure is logged by the notifier; the item still counts as handled.
		s.notifier.Notify(ctx, notify.EventDeadlineReminder, payload)
		tally.record(JobDeadlineReminders, nil)
	}
	s.log.Infow("deadline reminders done", "sent", tally.Processed, "skipped", tally.Skipped)
	return tally, nil
}

// SyncContext re-indexes every unfinished task so the context store follows
// status and deadline changes.
func (s *BatchService) SyncContext(ctx context.Context) (Tally, error) {
	var tally Tally
	if s.indexer == nil {
		return tally, nil
	}
	tasks, err := s.tasks.ListUnfinished(ctx)
	if err != nil {
		return tally, err
	}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		id, err := s.indexer.AddTask(ctx, task)
		if err == nil && (task.ContextID == nil || *task.ContextID != id) {
			err = s.tasks.SetContextID(ctx, task.ID, id)
		}
		tally.record(JobSyncContext, err)
		if err != nil {
			s.log.Warnw("context sync failed", "task_id", task.ID, "error", err)
		}
	}
	s.log.Infow("context sync done", "processed", tally.Processed, "failed", tally.Failed)
	return tally, nil
}

// Run executes a job by name.
func (s *BatchService) Run(ctx context.Context, job string, now time.Time) (Tally, error) {
	switch job {
	case JobDailyPlans:
		return s.DailyPlans(ctx, now)
	case JobDeadlineReminders:
		return s.DeadlineReminders(ctx, now)
	case JobSyncContext:
		return s.SyncContext(ctx)
	default:
		return Tally{}, apperr.Validation("unknown job %q, want one of %v", job, JobNames())
	}
}
