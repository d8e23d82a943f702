package planner

import (
	"sort"
	"time"

	"study-planner/internal/model"
)

const (
	fallbackTasks     = 5
	fallbackStartHour = 9
	fallbackGap       = 15 * time.Minute
	fallbackScore     = 85.0
	fallbackReasoning = "Generated without the language model: open tasks in deadline order, starting at 09:00 with 15-minute gaps."
)

// Fallback builds a deterministic schedule for date from the five most
// pressing open tasks. Blocks never overlap, so the result has no conflicts.
func Fallback(date time.Time, tasks []model.Task, now time.Time) Result {
	open := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Status.Terminal() {
			open = append(open, t)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if !a.Deadline.Equal(b.Deadline) {
			return a.Deadline.Before(b.Deadline)
		}
		ua, ub := UrgencyScore(a, now), UrgencyScore(b, now)
		if ua != ub {
			return ua > ub
		}
		return a.ID < b.ID
	})
	if len(open) > fallbackTasks {
		open = open[:fallbackTasks]
	}

	y, m, d := date.Date()
	cursor := time.Date(y, m, d, fallbackStartHour, 0, 0, 0, date.Location())
	blocks := make([]model.ScheduleBlock, 0, len(open))
	for _, t := range open {
		id := t.ID
		end := cursor.Add(time.Duration(t.DurationMinutes()) * time.Minute)
		blocks = append(blocks, model.ScheduleBlock{
			Start:    cursor,
			End:      end,
			Activity: t.Title,
			Type:     model.BlockStudy,
			TaskID:   &id,
			Priority: t.Priority,
		})
		cursor = end.Add(fallbackGap)
	}

	return Result{
		Schedule:          blocks,
		Conflicts:         nil,
		Reasoning:         fallbackReasoning,
		ProductivityScore: fallbackScore,
		Source:            model.PlanFromFallback,
		Summary:           model.SummaryLine(blocks),
	}
}
