package contextstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"study-planner/internal/document"
	"study-planner/internal/model"
)

// TaskText is the indexed form of a task.
func TaskText(t model.Task) string {
	return fmt.Sprintf("Task: %s. Deadline: %s. Course: %s. Description: %s",
		t.Title, t.Deadline.Format(model.DateLayout), t.Course, t.Description)
}

// TaskEntryID is the stable context id of a task, so resyncs overwrite.
func TaskEntryID(t model.Task) string {
	return fmt.Sprintf("user_%d_task_%d", t.UserID, t.ID)
}

// AddTask indexes a task under its stable id.
func (s *Store) AddTask(ctx context.Context, t model.Task) (string, error) {
	meta := map[string]any{
		model.MetaKind: string(model.KindTask),
		"task_id":      t.ID,
		"course":       t.Course,
		"deadline":     t.Deadline.Format(model.DateLayout),
		"priority":     string(t.Priority),
		"status":       string(t.Status),
	}
	return s.Add(ctx, t.UserID, TaskText(t), meta, TaskEntryID(t))
}

// AddPlan indexes a plan summary so chat can recall past schedules.
func (s *Store) AddPlan(ctx context.Context, p model.Plan) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan for %s: %s.", p.Date, p.Summary)
	for _, b := range p.Schedule {
		fmt.Fprintf(&sb, " %s-%s %s (%s).", b.Start.Format(model.ClockLayout), b.End.Format(model.ClockLayout), b.Activity, b.Type)
	}
	meta := map[string]any{
		model.MetaKind: string(model.KindPlan),
		"date":         p.Date,
		"source":       string(p.Source),
	}
	return s.Add(ctx, p.UserID, sb.String(), meta, fmt.Sprintf("user_%d_plan_%s", p.UserID, p.Date))
}

// AddDocument chunks a document by sentences and indexes every chunk under a
// shared document id. It returns the entry ids written before any failure.
func (s *Store) AddDocument(ctx context.Context, owner uint, text string) ([]string, error) {
	docID := uuid.NewString()
	chunks := document.Chunk(text, document.DefaultChunkSize)
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]any{
			model.MetaKind: string(model.KindDocument),
			"document_id":  docID,
			"chunk":        i,
		}
		id, err := s.Add(ctx, owner, chunk, meta, fmt.Sprintf("user_%d_doc_%s_%d", owner, docID, i))
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FormatHits renders hits as a bullet list for prompts.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = fmt.Sprintf("- %s (relevance: %.2f)", h.Text, h.Relevance())
	}
	return strings.Join(lines, "\n")
}
