package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

// PlanRepository stores one plan per owner and date.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Upsert inserts the plan or replaces the existing one for the same owner and date.
// Concurrent writers race; the last write wins.
func (r *PlanRepository) Upsert(ctx context.Context, plan *model.Plan) error {
	if plan.UserID == 0 || plan.Date == "" {
		return apperr.Validation("plan needs an owner and a date")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"schedule", "summary", "reasoning", "productivity_score", "conflicts", "source", "updated_at",
		}),
	}).Create(plan).Error
	if err != nil {
		return apperr.Persistence("upsert plan", err)
	}
	return nil
}

func (r *PlanRepository) Get(ctx context.Context, userID uint, date string) (*model.Plan, error) {
	var plan model.Plan
	if err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).First(&plan).Error; err != nil {
		return nil, notFoundOr("find plan", err, fmt.Sprintf("plan %s", date))
	}
	return &plan, nil
}
