package repo

import (
	"context"

	"github.com/joripage/matching-engine/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (r *TradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *TradeSQLRepo) Create(ctx context.Context, record *model.Trade) (*model.Trade, error) {
	return record, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}

// BulkCreate inserts records, skipping trade ids already stored so a
// redelivered batch is harmless.
func (r *TradeSQLRepo) BulkCreate(ctx context.Context, records []*model.Trade) ([]*model.Trade, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(records, 500).Error
}

func (r *TradeSQLRepo) ListByOrderID(ctx context.Context, orderID uint64, limit int) ([]*model.Trade, error) {
	var trades []*model.Trade
	q := r.dbWithContext(ctx).
		Where("resting_order_id = ? OR incoming_order_id = ?", orderID, orderID).
		Order("executed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return trades, q.Find(&trades).Error
}
