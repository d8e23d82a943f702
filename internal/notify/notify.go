// Package notify delivers fire-and-forget notifications. Failures are logged
// and reported as false; they never reach the caller as errors.
package notify

import (
	"context"
)

// Event names, also the webhook path segments.
const (
	EventNewTask          = "new-task"
	EventDeadlineReminder = "deadline-reminder"
	EventDailySchedule    = "daily-schedule"
)

// Payload keys shared by every notifier.
const (
	// KeyText is the human-readable message.
	KeyText = "text"
	// KeyChatID is the telegram chat of the owner, when linked.
	KeyChatID = "telegram_chat_id"
	KeyOwner  = "user_id"
)

// Notifier delivers one event.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any) bool
}

// Multi fans out to every notifier and reports whether any succeeded.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event string, payload map[string]any) bool {
	ok := false
	for _, n := range m {
		if n.Notify(ctx, event, payload) {
			ok = true
		}
	}
	return ok
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]any) bool { return false }
