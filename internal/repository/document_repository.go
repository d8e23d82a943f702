package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

// DefaultDocumentLimit caps ListByOwner when no limit is given.
const DefaultDocumentLimit = 50

// DocumentRepository keeps the record of processed uploads.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.UserID == 0 {
		return apperr.Validation("document owner is required")
	}
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return apperr.Persistence("create document", err)
	}
	return nil
}

// Save writes every field of an existing record.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return apperr.Persistence("save document", err)
	}
	return nil
}

// ListByOwner returns the owner's documents, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, userID uint, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = DefaultDocumentLimit
	}
	var docs []model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, apperr.Persistence("list documents", err)
	}
	return docs, nil
}

func (r *DocumentRepository) FindByID(ctx context.Context, userID, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&doc).Error; err != nil {
		return nil, notFoundOr("find document", err, fmt.Sprintf("document %d", id))
	}
	return &doc, nil
}
