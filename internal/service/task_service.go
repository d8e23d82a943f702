package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
	"study-planner/internal/notify"
	"study-planner/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title             string
	Description       string
	Course            string
	Deadline          time.Time
	EstimatedDuration int
	Priority          model.TaskPriority
	Source            model.TaskSource
}

// TaskIndexer writes tasks into the context store.
type TaskIndexer interface {
	AddTask(ctx context.Context, task model.Task) (string, error)
}

// NotifyTimeout bounds one background new-task announcement.
const NotifyTimeout = 15 * time.Second

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
	userRepo *repository.UserRepository
	indexer  TaskIndexer
	notifier notify.Notifier
	log      *zap.SugaredLogger
	now      func() time.Time
	pending  sync.WaitGroup
}

func NewTaskService(taskRepo *repository.TaskRepository, userRepo *repository.UserRepository, indexer TaskIndexer, notifier notify.Notifier, log *zap.SugaredLogger) *TaskService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TaskService{
		taskRepo: taskRepo,
		userRepo: userRepo,
		indexer:  indexer,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Create persists a task, indexes it and announces it in the background.
// Indexing and notification are best effort: the task exists once Create
// returns it.
func (s *TaskService) Create(ctx context.Context, owner uint, input TaskInput) (*model.Task, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if input.Deadline.IsZero() {
		return nil, apperr.Validation("deadline is required")
	}

	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	source := input.Source
	if source == "" {
		source = model.SourceManual
	}
	duration := input.EstimatedDuration
	if duration <= 0 {
		duration = model.DefaultDurationMinutes
	}

	task := model.Task{
		UserID:            owner,
		Title:             title,
		Description:       strings.TrimSpace(input.Description),
		Course:            strings.TrimSpace(input.Course),
		Deadline:          input.Deadline,
		EstimatedDuration: duration,
		Status:            model.StatusPending,
		Priority:          priority,
		Source:            source,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	s.index(ctx, &task)
	s.announce(task, input.Deadline.Location())
	return &task, nil
}

func (s *TaskService) index(ctx context.Context, task *model.Task) {
	if s.indexer == nil {
		return
	}
	id, err := s.indexer.AddTask(ctx, *task)
	if err != nil {
		s.log.Warnw("index task failed", "task_id", task.ID, "error", err)
		return
	}
	if task.ContextID != nil && *task.ContextID == id {
		return
	}
	if err := s.taskRepo.SetContextID(ctx, task.ID, id); err != nil {
		s.log.Warnw("link task context failed", "task_id", task.ID, "error", err)
		return
	}
	task.ContextID = &id
}

// announce notifies about a new task without holding up the caller. The
// deadline date is rendered in loc.
func (s *TaskService) announce(task model.Task, loc *time.Location) {
	due := task.Deadline.In(loc).Format(model.DateLayout)
	text := fmt.Sprintf("🆕 New task: <b>%s</b>\n⏰ due %s", html.EscapeString(task.Title), due)
	payload := map[string]any{
		notify.KeyOwner: task.UserID,
		"task_id":       task.ID,
		"title":         task.Title,
		"course":        task.Course,
		"deadline":      due,
		"priority":      string(task.Priority),
		notify.KeyText:  text,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), NotifyTimeout)
		defer cancel()
		addChat(ctx, s.userRepo, task.UserID, payload)
		if !s.notifier.Notify(ctx, notify.EventNewTask, payload) {
			s.log.Debugw("new task announcement not delivered", "task_id", task.ID)
		}
	}()
}

// Wait blocks until every background announcement has finished.
func (s *TaskService) Wait() {
	s.pending.Wait()
}

// addChat puts the owner's telegram chat id into payload when it is linked.
func addChat(ctx context.Context, users *repository.UserRepository, owner uint, payload map[string]any) {
	if users == nil {
		return
	}
	user, err := users.FindByID(ctx, owner)
	if err != nil || user.TelegramID == nil {
		return
	}
	payload[notify.KeyChatID] = *user.TelegramID
}

// Pending lists the owner's open tasks, nearest deadline first.
func (s *TaskService) Pending(ctx context.Context, owner uint) ([]model.Task, error) {
	return s.taskRepo.Pending(ctx, owner)
}

func (s *TaskService) ListByStatus(ctx context.Context, owner uint, status model.TaskStatus) ([]model.Task, error) {
	return s.taskRepo.ListByStatus(ctx, owner, status)
}

func (s *TaskService) GetTask(ctx context.Context, owner, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, owner, taskID)
}

// UpdateStatus moves a task forward in its lifecycle and refreshes its
// context entry. Backward moves fail with apperr.ErrValidation.
func (s *TaskService) UpdateStatus(ctx context.Context, owner, taskID uint, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown status %q", status)
	}
	task, err := s.taskRepo.UpdateStatus(ctx, owner, taskID, status, s.now())
	if err != nil {
		return nil, err
	}
	s.index(ctx, task)
	return task, nil
}

// CompleteTask marks a task as done.
func (s *TaskService) CompleteTask(ctx context.Context, owner, taskID uint) (*model.Task, error) {
	return s.UpdateStatus(ctx, owner, taskID, model.StatusCompleted)
}
