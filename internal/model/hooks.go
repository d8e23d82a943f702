package model

import (
	"time"

	"gorm.io/gorm"
)

// SQLite keeps timestamps as text with the value's own offset, so range and
// order queries only hold when every stored instant shares one zone.

func (t *Task) BeforeSave(*gorm.DB) error {
	t.Deadline = t.Deadline.UTC()
	t.CompletedAt = utcPtr(t.CompletedAt)
	return nil
}

func (e *Event) BeforeSave(*gorm.DB) error {
	e.Start = e.Start.UTC()
	e.End = e.End.UTC()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
