package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"study-planner/internal/model"
	"study-planner/internal/repository"
)

// ReminderService builds human-readable summaries for notifications.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// Digest lists the user's open tasks by deadline.
func (s *ReminderService) Digest(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.Pending(ctx, user.ID)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Deadline report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format(model.DateLayout)))

	builder.WriteString("🔥 <b>Open tasks</b>\n")
	if len(tasks) == 0 {
		builder.WriteString("— nothing open\n")
	} else {
		for _, task := range tasks {
			builder.WriteString(FormatTask(task, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// ReminderText is the notification for one task whose deadline is near.
func ReminderText(task model.Task, now time.Time) string {
	return "⏳ <b>Deadline reminder</b>\n" + strings.TrimSpace(FormatTask(task, now))
}

// PlanText renders a stored plan for delivery.
func PlanText(plan model.Plan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 <b>Plan for %s</b>\n", plan.Date))
	if len(plan.Schedule) == 0 {
		sb.WriteString("— nothing scheduled\n")
	}
	for _, b := range plan.Schedule {
		sb.WriteString(fmt.Sprintf("%s %s-%s %s\n", blockIcon(b.Type),
			b.Start.Format(model.ClockLayout), b.End.Format(model.ClockLayout), html.EscapeString(b.Activity)))
	}
	if len(plan.Conflicts) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠️ %d conflict(s):\n", len(plan.Conflicts)))
		for _, c := range plan.Conflicts {
			sb.WriteString("   " + html.EscapeString(c.Description) + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func blockIcon(t model.BlockType) string {
	switch t {
	case model.BlockStudy:
		return "📚"
	case model.BlockBreak:
		return "☕"
	case model.BlockEvent:
		return "📌"
	default:
		return "🔹"
	}
}

// FormatTask renders one task line with a deadline status icon.
func FormatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	d := task.Deadline.In(now.Location())
	icon := "🟢"
	switch {
	case now.After(d):
		icon = "⚠️"
	case d.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.ID, title))

	if course := strings.TrimSpace(task.Course); course != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(course)))
	}

	if now.After(d) {
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · <b>overdue</b>", d.Format(model.DateLayout)))
	} else {
		daysLeft := int(d.Sub(now).Hours()/24) + 1
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · ≈%d day(s) left", d.Format(model.DateLayout), daysLeft))
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
