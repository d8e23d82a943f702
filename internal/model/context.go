package model

import (
	"strings"
	"time"
)

// ContextKind tells what produced a context entry.
type ContextKind string

const (
	KindTask     ContextKind = "task"
	KindPlan     ContextKind = "plan"
	KindDocument ContextKind = "document"
)

// Metadata keys every context entry carries.
const (
	MetaOwner     = "user_id"
	MetaTimestamp = "timestamp"
	MetaKind      = "type"
)

// ContextEntry is a retrievable text fragment with its embedding.
type ContextEntry struct {
	ID        string         `gorm:"primaryKey;size:128" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Kind      ContextKind    `gorm:"index" json:"kind"`
	Text      string         `gorm:"not null" json:"text"`
	Embedding []byte         `json:"-"`
	Metadata  map[string]any `gorm:"serializer:json" json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Event is a calendar commitment for a given owner.
type Event struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Title      string    `gorm:"not null" json:"title"`
	Start      time.Time `gorm:"index;not null" json:"start"`
	End        time.Time `gorm:"not null" json:"end"`
	Location   string    `json:"location,omitempty"`
	Source     string    `json:"source,omitempty"`
	ExternalID *string   `gorm:"index" json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExtractedAssignment is one assignment found in a document.
type ExtractedAssignment struct {
	Title             string `json:"title"`
	Deadline          string `json:"deadline"`
	Course            string `json:"course"`
	Priority          string `json:"priority"`
	Description       string `json:"description,omitempty"`
	EstimatedDuration int    `json:"estimated_duration,omitempty"`
}

// ExtractedEvent is one dated event found in a document.
type ExtractedEvent struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
}

// ExtractionResult is the parsed output of the extraction stage.
// It is consumed once to materialise tasks and is never stored as-is.
type ExtractionResult struct {
	Assignments []ExtractedAssignment `json:"assignments"`
	Events      []ExtractedEvent      `json:"events"`
	Confidence  float64               `json:"confidence"`
}

func normalizeWord(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
