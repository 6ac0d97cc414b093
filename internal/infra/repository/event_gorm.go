package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProcessedEventGormRepository struct {
	db *gorm.DB
}

func NewProcessedEventGormRepository(db *gorm.DB) *ProcessedEventGormRepository {
	return &ProcessedEventGormRepository{db: db}
}

func (r *ProcessedEventGormRepository) FindByID(ctx context.Context, eventID string) (model.ProcessedEvent, error) {
	var ev model.ProcessedEvent
	err := r.db.WithContext(ctx).First(&ev, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ProcessedEvent{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ProcessedEvent{}, err
	}
	return ev, nil
}

// 主キー衝突はエラーではなく「既に登録済み」。再配送をここで吸収する。
func (r *ProcessedEventGormRepository) CreateIfAbsent(ctx context.Context, ev model.ProcessedEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ProcessedEventGormRepository) MarkApplied(ctx context.Context, eventID string) error {
	return r.setFlag(ctx, eventID, "applied")
}

func (r *ProcessedEventGormRepository) MarkPropagated(ctx context.Context, eventID string) error {
	return r.setFlag(ctx, eventID, "propagated")
}

func (r *ProcessedEventGormRepository) setFlag(ctx context.Context, eventID string, column string) error {
	res := r.db.WithContext(ctx).
		Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Update(column, true)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
