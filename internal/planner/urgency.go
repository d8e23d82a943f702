package planner

import (
	"math"
	"time"

	"study-planner/internal/model"
)

var basePriority = map[model.TaskPriority]int{
	model.PriorityLow:    2,
	model.PriorityMedium: 5,
	model.PriorityHigh:   8,
	model.PriorityUrgent: 10,
}

// UrgencyScore rates a task from 0 to 10. Completed tasks score 0, overdue
// tasks 10; otherwise the priority base is raised as the deadline nears.
func UrgencyScore(task model.Task, now time.Time) int {
	if task.Status == model.StatusCompleted {
		return 0
	}
	base, ok := basePriority[task.Priority]
	if !ok {
		base = basePriority[model.PriorityMedium]
	}

	days := int(math.Floor(task.Deadline.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return 10
	case days == 0:
		return max(base, 9)
	case days == 1:
		return max(base, 7)
	case days <= 3:
		return max(base, 6)
	default:
		return base
	}
}
