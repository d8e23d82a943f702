package model

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// PreviewRunes is how much extracted text listings show.
const PreviewRunes = 500

// Document records one processed upload. A failed extraction keeps the raw
// model output so the document can be reviewed by hand.
type Document struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UserID        uint              `gorm:"index;not null" json:"user_id"`
	Filename      string            `gorm:"not null" json:"filename"`
	FileType      string            `gorm:"not null" json:"file_type"`
	FileSize      int               `json:"file_size"`
	ExtractedText string            `json:"-"`
	ProcessedData *ExtractionResult `gorm:"serializer:json" json:"processed_data,omitempty"`
	RawOutput     string            `json:"raw_output,omitempty"`
	Status        DocumentStatus    `gorm:"index;default:pending" json:"processing_status"`
	Error         string            `json:"error_message,omitempty"`
	TasksCreated  int               `json:"tasks_created"`
	EventsCreated int               `json:"events_created"`
	CreatedAt     time.Time         `json:"uploaded_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

// Preview is the first PreviewRunes runes of the extracted text.
func (d Document) Preview() string {
	r := []rune(d.ExtractedText)
	if len(r) <= PreviewRunes {
		return d.ExtractedText
	}
	return string(r[:PreviewRunes])
}

func (d *Document) BeforeSave(*gorm.DB) error {
	d.ProcessedAt = utcPtr(d.ProcessedAt)
	return nil
}
