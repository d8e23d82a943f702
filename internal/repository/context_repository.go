package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

// ContextRepository persists context entries and their embeddings.
type ContextRepository struct {
	db *gorm.DB
}

func NewContextRepository(db *gorm.DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Upsert inserts the entry or overwrites the one with the same id.
func (r *ContextRepository) Upsert(ctx context.Context, entry *model.ContextEntry) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "kind", "text", "embedding", "metadata", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return apperr.Persistence("upsert context entry", err)
	}
	return nil
}

func (r *ContextRepository) Get(ctx context.Context, id string) (*model.ContextEntry, error) {
	var entry model.ContextEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, notFoundOr("find context entry", err, fmt.Sprintf("context entry %q", id))
	}
	return &entry, nil
}

// Save writes every column of an existing entry.
func (r *ContextRepository) Save(ctx context.Context, entry *model.ContextEntry) error {
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return apperr.Persistence("save context entry", err)
	}
	return nil
}

func (r *ContextRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ContextEntry{})
	if res.Error != nil {
		return apperr.Persistence("delete context entry", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("context entry %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ListByOwner returns every entry of one owner, optionally narrowed to a kind.
func (r *ContextRepository) ListByOwner(ctx context.Context, userID uint, kind model.ContextKind) ([]model.ContextEntry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var entries []model.ContextEntry
	if err := q.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, apperr.Persistence("list context entries", err)
	}
	return entries, nil
}

// ScoredID is a row id with its cosine distance to the query.
type ScoredID struct {
	ID       string
	Distance float64
}

// Nearest ranks the owner's entries by vec_distance_cosine inside SQLite.
// It requires the sqlite_vec build; check VectorSQLEnabled first.
func (r *ContextRepository) Nearest(ctx context.Context, userID uint, kind model.ContextKind, query []byte, limit int) ([]ScoredID, error) {
	if !vectorSQL {
		return nil, fmt.Errorf("nearest: sqlite-vec not compiled in")
	}
	q := r.db.WithContext(ctx).
		Table("context_entries").
		Select("id, vec_distance_cosine(embedding, ?) AS distance", query).
		Where("user_id = ? AND embedding IS NOT NULL", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var rows []ScoredID
	if err := q.Order("distance ASC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, apperr.Persistence("nearest context entries", err)
	}
	return rows, nil
}

// FindByIDs loads entries of one owner by id.
func (r *ContextRepository) FindByIDs(ctx context.Context, userID uint, ids []string) ([]model.ContextEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entries []model.ContextEntry
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&entries).Error; err != nil {
		return nil, apperr.Persistence("find context entries", err)
	}
	return entries, nil
}
