package model

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority is the importance assigned by the user or by extraction.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// TaskSource records where a task came from.
type TaskSource string

const (
	SourceManual   TaskSource = "manual"
	SourceDocument TaskSource = "document"
	SourcePortal   TaskSource = "portal"
	SourceCalendar TaskSource = "calendar"
)

// DefaultDurationMinutes is used when a task has no usable estimate.
const DefaultDurationMinutes = 60

// Task represents a single assignment or to-do owned by a user.
type Task struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	UserID            uint         `gorm:"index;not null" json:"user_id"`
	Title             string       `gorm:"index;not null" json:"title"`
	Description       string       `json:"description,omitempty"`
	Course            string       `json:"course,omitempty"`
	Deadline          time.Time    `gorm:"index;not null" json:"deadline"`
	EstimatedDuration int          `gorm:"default:60" json:"estimated_duration"`
	Status            TaskStatus   `gorm:"index;default:pending" json:"status"`
	Priority          TaskPriority `gorm:"index;default:medium" json:"priority"`
	Source            TaskSource   `json:"source,omitempty"`
	CalendarEventID   *string      `json:"calendar_event_id,omitempty"`
	ContextID         *string      `json:"context_id,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// DurationMinutes returns the estimate, or the default when it is not positive.
func (t Task) DurationMinutes() int {
	if t.EstimatedDuration <= 0 {
		return DefaultDurationMinutes
	}
	return t.EstimatedDuration
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a task in status s may move to next.
// Transitions only move forward; re-opening a finished task is not supported.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return true
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// ParsePriority maps free text onto a priority, defaulting to medium.
func ParsePriority(raw string) TaskPriority {
	switch TaskPriority(normalizeWord(raw)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent, "critical":
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}
