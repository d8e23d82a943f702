package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

// EventRepository keeps the owner's calendar commitments.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return apperr.Persistence("create event", err)
	}
	return nil
}

// Between returns events starting in [from, to), earliest first.
func (r *EventRepository) Between(ctx context.Context, userID uint, from, to time.Time) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND start >= ? AND start < ?", userID, from.UTC(), to.UTC()).
		Order("start ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, apperr.Persistence("list events", err)
	}
	return events, nil
}
