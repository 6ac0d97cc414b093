package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockGormRepository struct {
	db *gorm.DB
}

func NewStockGormRepository(db *gorm.DB) *StockGormRepository {
	return &StockGormRepository{db: db}
}

func (r *StockGormRepository) FindBySKU(ctx context.Context, sku string) (model.StockRecord, error) {
	var rec model.StockRecord
	err := r.db.WithContext(ctx).First(&rec, "sku = ?", sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StockRecord{}, repo.ErrNotFound
	}
	if err != nil {
		return model.StockRecord{}, err
	}
	return rec, nil
}

// SELECT ... FOR UPDATE で取得。同一SKUの並行更新はここでブロックされる。
// 行がなければon_hand=0で作ってからロックを取り直す。
func (r *StockGormRepository) GetOrCreateForUpdate(ctx context.Context, sku string) (model.StockRecord, error) {
	var rec model.StockRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rec, "sku = ?", sku).Error

	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StockRecord{}, err
	}

	// 遅延作成。同時作成は主キー衝突になるのでDoNothingで握って再取得。
	rec = model.StockRecord{SKU: sku, OnHand: 0}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error; err != nil {
		return model.StockRecord{}, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rec, "sku = ?", sku).Error
	if err != nil {
		return model.StockRecord{}, err
	}
	return rec, nil
}

func (r *StockGormRepository) Save(ctx context.Context, rec model.StockRecord) error {
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *StockGormRepository) ListAll(ctx context.Context) ([]model.StockRecord, error) {
	var recs []model.StockRecord
	if err := r.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
