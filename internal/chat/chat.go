// Package chat answers student messages with their retrieved context.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/llm"
	"study-planner/internal/model"
)

const (
	historyTurns    = 5
	chatTemperature = 0.7
	chatMaxTokens   = 800
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat turn with the background gathered for it.
type Request struct {
	Owner   uint
	Name    string
	Message string
	History []Message
	// Context is the formatted retrieval result, may be empty.
	Context string
	Plan    *model.Plan
	// Events are today's calendar entries, already described.
	Events []string
	// Note tells the model what the system already did, e.g. applied a schedule change.
	Note string
}

// Responder turns a Request into reply text.
type Responder struct {
	gen llm.Generator
	log *zap.SugaredLogger
}

func NewResponder(gen llm.Generator, log *zap.SugaredLogger) *Responder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Responder{gen: gen, log: log}
}

func (r *Responder) Respond(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", apperr.Validation("message is empty")
	}
	text, err := r.gen.Generate(ctx, buildPrompt(req), llm.RouteFor(llm.TaskQuickChat), chatTemperature, chatMaxTokens)
	if err != nil {
		return "", fmt.Errorf("chat respond: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(`You are WizAI, an intelligent personal assistant for students.

Your capabilities:
- Access the student's schedule, tasks, and calendar
- Answer questions about their plans ("What's my schedule today?")
- Modify schedules via natural language ("Move my study session to 7 PM")
- Give personalised advice based on their context

Be helpful and proactive. Keep answers concise and reference specific tasks or events when relevant.
`)
	if req.Name != "" {
		fmt.Fprintf(&sb, "\nYou are talking to %s.\n", req.Name)
	}

	sb.WriteString("\nUser context:\n")
	if req.Context == "" {
		sb.WriteString("(nothing relevant found)\n")
	} else {
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}

	if req.Plan != nil {
		fmt.Fprintf(&sb, "\nToday's plan (%s, %s):\n", req.Plan.Date, req.Plan.Summary)
		for _, b := range req.Plan.Schedule {
			fmt.Fprintf(&sb, "- %s-%s %s (%s)\n", b.Start.Format(model.ClockLayout), b.End.Format(model.ClockLayout), b.Activity, b.Type)
		}
	}

	if len(req.Events) > 0 {
		sb.WriteString("\nToday's calendar:\n")
		for _, e := range req.Events {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}

	if req.Note != "" {
		fmt.Fprintf(&sb, "\nSystem note: %s\n", req.Note)
	}

	sb.WriteString("\nConversation history:\n")
	sb.WriteString(FormatHistory(req.History))
	fmt.Fprintf(&sb, "\nUser message: %s\n", req.Message)
	return sb.String()
}

// FormatHistory renders the last five turns as "role: content" lines.
func FormatHistory(history []Message) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) == 0 {
		return "(none)\n"
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}
