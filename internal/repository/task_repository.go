package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return apperr.Persistence("create task", err)
	}
	return nil
}

// Pending returns the owner's open tasks (pending or in progress), nearest deadline first.
func (r *TaskRepository) Pending(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []model.TaskStatus{model.StatusPending, model.StatusInProgress}).
		Order("deadline ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, apperr.Persistence("list pending tasks", err)
	}
	return tasks, nil
}

// ListByStatus returns the owner's tasks in the given status. An empty status lists all.
func (r *TaskRepository) ListByStatus(ctx context.Context, userID uint, status model.TaskStatus) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tasks []model.Task
	if err := q.Order("deadline ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, apperr.Persistence("list tasks", err)
	}
	return tasks, nil
}

// ListUnfinished returns open tasks of every owner.
func (r *TaskRepository) ListUnfinished(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []model.TaskStatus{model.StatusCompleted, model.StatusCancelled}).
		Order("user_id ASC, deadline ASC").
		Find(&tasks).Error; err != nil {
		return nil, apperr.Persistence("list unfinished tasks", err)
	}
	return tasks, nil
}

// DueBetween returns unfinished tasks of every owner with a deadline in [from, to).
func (r *TaskRepository) DueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("deadline >= ? AND deadline < ?", from.UTC(), to.UTC()).
		Where("status NOT IN ?", []model.TaskStatus{model.StatusCompleted, model.StatusCancelled}).
		Order("user_id ASC, deadline ASC").
		Find(&tasks).Error; err != nil {
		return nil, apperr.Persistence("list due tasks", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, notFoundOr("find task", err, fmt.Sprintf("task %d", taskID))
	}
	return &task, nil
}

// UpdateStatus moves a task to next inside a transaction, rejecting backward transitions.
func (r *TaskRepository) UpdateStatus(ctx context.Context, userID, taskID uint, next model.TaskStatus, at time.Time) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
			return notFoundOr("find task", err, fmt.Sprintf("task %d", taskID))
		}
		if !task.Status.CanTransition(next) {
			return apperr.Validation("task %d cannot move from %s to %s", taskID, task.Status, next)
		}
		if task.Status == next {
			return nil
		}
		task.Status = next
		if next == model.StatusCompleted {
			task.CompletedAt = &at
		}
		if err := tx.Save(&task).Error; err != nil {
			return apperr.Persistence("update task status", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// SetContextID links a task to its context store entry.
func (r *TaskRepository) SetContextID(ctx context.Context, taskID uint, contextID string) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Update("context_id", contextID)
	if res.Error != nil {
		return apperr.Persistence("link task context", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", taskID, apperr.ErrNotFound)
	}
	return nil
}
