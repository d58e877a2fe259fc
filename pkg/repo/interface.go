package repo

import (
	"context"

	"github.com/joripage/matching-engine/pkg/model"
)

type ITrade interface {
	Create(ctx context.Context, record *model.Trade) (*model.Trade, error)
	BulkCreate(ctx context.Context, records []*model.Trade) ([]*model.Trade, error)
	ListByOrderID(ctx context.Context, orderID uint64, limit int) ([]*model.Trade, error)
}
