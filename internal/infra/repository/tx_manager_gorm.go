package repository

import (
	"context"

	repo "app/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	stocks   repo.StockRepository
	mappings repo.MappingRepository
	events   repo.ProcessedEventRepository
}

func (r *txReposGorm) Stocks() repo.StockRepository          { return r.stocks }
func (r *txReposGorm) Mappings() repo.MappingRepository      { return r.mappings }
func (r *txReposGorm) Events() repo.ProcessedEventRepository { return r.events }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			stocks:   NewStockGormRepository(tx),
			mappings: NewMappingGormRepository(tx),
			events:   NewProcessedEventGormRepository(tx),
		}
		return fn(r)
	})
}
