// Package tools exposes a closed set of data commands the pipeline stages
// call instead of reaching into storage directly.
package tools

import (
	"context"
	"fmt"
	"time"

	"study-planner/internal/apperr"
	"study-planner/internal/calendar"
	"study-planner/internal/contextstore"
	"study-planner/internal/model"
)

// Command is one of the commands below; the set is closed.
type Command interface {
	command()
}

// GetUserTasks lists an owner's tasks in Status. An empty Status lists open
// tasks, pending or in progress.
type GetUserTasks struct {
	Owner  uint
	Status model.TaskStatus
}

// SearchContext runs a similarity query in the owner's context.
type SearchContext struct {
	Owner uint
	Query string
	TopK  int
}

// UpdateTaskStatus moves one task to a new status.
type UpdateTaskStatus struct {
	Owner  uint
	TaskID uint
	Status model.TaskStatus
}

// GetCalendarEvents lists the owner's events on Date.
type GetCalendarEvents struct {
	Owner uint
	Date  time.Time
}

func (GetUserTasks) command()      {}
func (SearchContext) command()     {}
func (UpdateTaskStatus) command()  {}
func (GetCalendarEvents) command() {}

// Result carries the payload of whichever command ran.
type Result struct {
	Tasks  []model.Task       `json:"tasks,omitempty"`
	Task   *model.Task        `json:"task,omitempty"`
	Hits   []contextstore.Hit `json:"results,omitempty"`
	Events []model.Event      `json:"events,omitempty"`
}

// TaskStore is the task side of persistence.
type TaskStore interface {
	Pending(ctx context.Context, owner uint) ([]model.Task, error)
	ListByStatus(ctx context.Context, owner uint, status model.TaskStatus) ([]model.Task, error)
	UpdateStatus(ctx context.Context, owner, taskID uint, status model.TaskStatus) (*model.Task, error)
}

// Searcher is the query side of the context store.
type Searcher interface {
	Query(ctx context.Context, owner uint, text string, topK int, filter map[string]any) ([]contextstore.Hit, error)
}

// DefaultSearchTopK is the hit count when SearchContext.TopK is not set.
const DefaultSearchTopK = 3

// Server dispatches commands to their collaborators.
type Server struct {
	tasks    TaskStore
	search   Searcher
	calendar calendar.Source
}

func NewServer(tasks TaskStore, search Searcher, cal calendar.Source) *Server {
	return &Server{tasks: tasks, search: search, calendar: cal}
}

// Dispatch runs cmd. Every command needs an owner.
func (s *Server) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch c := cmd.(type) {
	case GetUserTasks:
		if c.Owner == 0 {
			return Result{}, apperr.Validation("owner is required")
		}
		var tasks []model.Task
		var err error
		if c.Status == "" {
			tasks, err = s.tasks.Pending(ctx, c.Owner)
		} else {
			tasks, err = s.tasks.ListByStatus(ctx, c.Owner, c.Status)
		}
		if err != nil {
			return Result{}, err
		}
		return Result{Tasks: tasks}, nil

	case SearchContext:
		if c.Owner == 0 {
			return Result{}, apperr.Validation("owner is required")
		}
		topK := c.TopK
		if topK <= 0 {
			topK = DefaultSearchTopK
		}
		hits, err := s.search.Query(ctx, c.Owner, c.Query, topK, nil)
		if err != nil {
			return Result{}, err
		}
		return Result{Hits: hits}, nil

	case UpdateTaskStatus:
		if c.Owner == 0 || c.TaskID == 0 {
			return Result{}, apperr.Validation("owner and task id are required")
		}
		task, err := s.tasks.UpdateStatus(ctx, c.Owner, c.TaskID, c.Status)
		if err != nil {
			return Result{}, err
		}
		return Result{Task: task}, nil

	case GetCalendarEvents:
		if c.Owner == 0 {
			return Result{}, apperr.Validation("owner is required")
		}
		events, err := s.calendar.EventsForDate(ctx, c.Owner, c.Date)
		if err != nil {
			return Result{}, err
		}
		return Result{Events: events}, nil

	default:
		return Result{}, fmt.Errorf("unknown command %T", cmd)
	}
}
