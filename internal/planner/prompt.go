package planner

import (
	"fmt"
	"strings"

	"study-planner/internal/model"
)

const planSchema = `Return only JSON:
{
    "date": "YYYY-MM-DD",
    "schedule": [
        {"start_time": "HH:MM", "end_time": "HH:MM", "activity": "", "type": "study|break|event|personal", "task_id": null, "priority": "low|medium|high|urgent"}
    ],
    "reasoning": "Explain your scheduling decisions",
    "productivity_score": 0
}`

func (p *Planner) planPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are ScheduleMaster, an expert study planner who builds balanced daily schedules that maximise productivity while respecting the student's constraints.\n\n")
	fmt.Fprintf(&sb, "Create an optimal schedule for %s.\n\n", req.Date.Format(model.DateLayout))
	sb.WriteString("Reason step by step:\n")
	sb.WriteString("1. Analyze the tasks: list them with deadlines and rank by urgency and importance\n")
	sb.WriteString("2. Consider constraints: study hours, break preferences, existing calendar events\n")
	sb.WriteString("3. Allocate time blocks: high-priority tasks in peak focus hours, breaks at the preferred interval, no overlap with events\n")
	sb.WriteString("4. Detect and resolve conflicts, then produce the schedule\n\n")
	p.writeInputs(&sb, req)
	sb.WriteString("\n")
	sb.WriteString(planSchema)
	return sb.String()
}

func (p *Planner) adjustPrompt(req AdjustRequest) string {
	var sb strings.Builder
	sb.WriteString("You are ScheduleMaster, an expert study planner. The student wants to change today's schedule.\n\n")
	fmt.Fprintf(&sb, "Requested change: %s\n\n", strings.TrimSpace(req.Instruction))
	sb.WriteString("Current schedule:\n")
	if req.Current == nil || len(req.Current.Schedule) == 0 {
		sb.WriteString("- (none yet)\n")
	} else {
		for _, b := range req.Current.Schedule {
			writeBlock(&sb, b)
		}
	}
	sb.WriteString("\nApply the change, keep everything else where it is unless it now overlaps, and keep breaks at the preferred interval.\n\n")
	p.writeInputs(&sb, req.Request)
	sb.WriteString("\n")
	sb.WriteString(planSchema)
	return sb.String()
}

func (p *Planner) writeInputs(sb *strings.Builder, req Request) {
	now := p.now()
	loc := req.Date.Location()
	sb.WriteString("Tasks:\n")
	if len(req.Tasks) == 0 {
		sb.WriteString("- (no open tasks)\n")
	}
	for _, t := range req.Tasks {
		fmt.Fprintf(sb, "- id=%d %q course=%q deadline=%s priority=%s urgency=%d/10 duration=%dmin\n",
			t.ID, t.Title, t.Course, t.Deadline.In(loc).Format(model.DateLayout), t.Priority, UrgencyScore(t, now), t.DurationMinutes())
	}

	sb.WriteString("Calendar events:\n")
	if len(req.Events) == 0 {
		sb.WriteString("- (none)\n")
	}
	for _, e := range req.Events {
		fmt.Fprintf(sb, "- %s-%s %s", e.Start.In(loc).Format(model.ClockLayout), e.End.In(loc).Format(model.ClockLayout), e.Title)
		if e.Location != "" {
			fmt.Fprintf(sb, " @ %s", e.Location)
		}
		sb.WriteString("\n")
	}

	prefs := req.Preferences
	fmt.Fprintf(sb, "Preferences: study hours %s-%s, a %d-minute break every %d minutes\n",
		prefs.StudyStart, prefs.StudyEnd, prefs.BreakLength, prefs.BreakEvery)

	if req.Context != "" {
		sb.WriteString("Relevant history:\n")
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}
}

func writeBlock(sb *strings.Builder, b model.ScheduleBlock) {
	fmt.Fprintf(sb, "- %s-%s %s (%s)", b.Start.Format(model.ClockLayout), b.End.Format(model.ClockLayout), b.Activity, b.Type)
	if b.TaskID != nil {
		fmt.Fprintf(sb, " task_id=%d", *b.TaskID)
	}
	sb.WriteString("\n")
}
