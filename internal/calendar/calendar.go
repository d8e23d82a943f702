// Package calendar reads and records the owner's calendar commitments.
// External calendar sync (OAuth and provider APIs) feeds the same table.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
	"study-planner/internal/repository"
)

// Source returns the events of one owner on one day.
type Source interface {
	EventsForDate(ctx context.Context, owner uint, date time.Time) ([]model.Event, error)
}

// Store is a Source that also records events found in documents.
type Store interface {
	Source
	AddExtracted(ctx context.Context, owner uint, ev model.ExtractedEvent) (*model.Event, error)
}

// DefaultEventLength is used for extracted events that carry only a start time.
const DefaultEventLength = time.Hour

// DBSource is a Source backed by the events table.
type DBSource struct {
	repo *repository.EventRepository
	loc  *time.Location
}

func NewDBSource(repo *repository.EventRepository, loc *time.Location) *DBSource {
	if loc == nil {
		loc = time.Local
	}
	return &DBSource{repo: repo, loc: loc}
}

// EventsForDate returns events starting on date's calendar day in the source location.
func (s *DBSource) EventsForDate(ctx context.Context, owner uint, date time.Time) ([]model.Event, error) {
	y, m, d := date.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return s.repo.Between(ctx, owner, from, from.AddDate(0, 0, 1))
}

// AddExtracted stores an event found by the extraction stage.
// Events without a time of day span the whole day.
func (s *DBSource) AddExtracted(ctx context.Context, owner uint, ev model.ExtractedEvent) (*model.Event, error) {
	start, end, err := s.span(ev.Date, ev.Time)
	if err != nil {
		return nil, err
	}
	event := &model.Event{
		UserID:   owner,
		Title:    strings.TrimSpace(ev.Title),
		Start:    start,
		End:      end,
		Location: strings.TrimSpace(ev.Location),
		Source:   string(model.SourceDocument),
	}
	if event.Title == "" {
		return nil, apperr.Validation("event has no title")
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3 PM", "3PM"}

func (s *DBSource) span(date, clock string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(date), s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("event date %q: %v", date, err)
	}
	clock = strings.ToUpper(strings.TrimSpace(clock))
	if clock == "" {
		return day, day.AddDate(0, 0, 1), nil
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			start := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, s.loc)
			return start, start.Add(DefaultEventLength), nil
		}
	}
	return time.Time{}, time.Time{}, apperr.Validation("event time %q is not a clock reading", clock)
}

// Describe renders an event with its clock times in loc, for chat prompts.
func Describe(e model.Event, loc *time.Location) string {
	if e.End.Sub(e.Start) >= 24*time.Hour {
		return fmt.Sprintf("%s (all day)", e.Title)
	}
	s := fmt.Sprintf("%s-%s %s", e.Start.In(loc).Format(model.ClockLayout), e.End.In(loc).Format(model.ClockLayout), e.Title)
	if e.Location != "" {
		s += " @ " + e.Location
	}
	return s
}
