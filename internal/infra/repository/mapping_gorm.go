package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type MappingGormRepository struct {
	db *gorm.DB
}

func NewMappingGormRepository(db *gorm.DB) *MappingGormRepository {
	return &MappingGormRepository{db: db}
}

func (r *MappingGormRepository) FindBySKU(ctx context.Context, sku string) (model.ProductMap, error) {
	var m model.ProductMap
	err := r.db.WithContext(ctx).First(&m, "sku = ?", sku).Error
	return m, wrapNotFound(err)
}

func (r *MappingGormRepository) FindBySquareVariationID(ctx context.Context, variationID string) (model.ProductMap, error) {
	var m model.ProductMap
	err := r.db.WithContext(ctx).First(&m, "square_variation_id = ?", variationID).Error
	return m, wrapNotFound(err)
}

func (r *MappingGormRepository) FindByEbayListingID(ctx context.Context, listingID string) (model.ProductMap, error) {
	var m model.ProductMap
	err := r.db.WithContext(ctx).First(&m, "ebay_listing_id = ?", listingID).Error
	return m, wrapNotFound(err)
}

func (r *MappingGormRepository) Save(ctx context.Context, m model.ProductMap) error {
	return r.db.WithContext(ctx).Save(&m).Error
}

func (r *MappingGormRepository) ListAll(ctx context.Context) ([]model.ProductMap, error) {
	var ms []model.ProductMap
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	return err
}
