package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/joripage/matching-engine/pkg/model"
)

// TradePebbleRepo keeps trades in an embedded pebble store for deployments
// without Postgres.
//
// Layout:
//
//	trade/<trade id>                          -> trade JSON
//	order/<order id>/<executed at>/<trade id> -> empty, one per order on the trade
type TradePebbleRepo struct {
	db *pebble.DB
}

func NewTradePebbleRepo(db *pebble.DB) *TradePebbleRepo {
	return &TradePebbleRepo{db: db}
}

func tradeKey(r *model.Trade) []byte {
	return []byte("trade/" + r.TradeID.String())
}

func orderPrefix(orderID uint64) []byte {
	return []byte(fmt.Sprintf("order/%020d/", orderID))
}

func orderKey(orderID uint64, r *model.Trade) []byte {
	var nanos int64
	if !r.ExecutedAt.IsZero() {
		nanos = r.ExecutedAt.UnixNano()
	}
	return fmt.Appendf(orderPrefix(orderID), "%020d/%s", nanos, r.TradeID)
}

func (r *TradePebbleRepo) exists(key []byte) (bool, error) {
	_, closer, err := r.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (r *TradePebbleRepo) stage(b *pebble.Batch, record *model.Trade) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := b.Set(tradeKey(record), value, nil); err != nil {
		return err
	}
	if err := b.Set(orderKey(record.RestingOrderID, record), nil, nil); err != nil {
		return err
	}
	return b.Set(orderKey(record.IncomingOrderID, record), nil, nil)
}

func (r *TradePebbleRepo) Create(ctx context.Context, record *model.Trade) (*model.Trade, error) {
	_, err := r.BulkCreate(ctx, []*model.Trade{record})
	return record, err
}

// BulkCreate writes records in one synced batch, skipping trade ids already
// stored.
func (r *TradePebbleRepo) BulkCreate(ctx context.Context, records []*model.Trade) ([]*model.Trade, error) {
	if len(records) == 0 {
		return records, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := r.db.NewBatch()
	defer b.Close() // nolint

	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		key := tradeKey(record)
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}

		ok, err := r.exists(key)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if err := r.stage(b, record); err != nil {
			return nil, err
		}
	}
	return records, b.Commit(pebble.Sync)
}

// ListByOrderID returns the trades an order took part in, oldest first.
func (r *TradePebbleRepo) ListByOrderID(ctx context.Context, orderID uint64, limit int) ([]*model.Trade, error) {
	prefix := orderPrefix(orderID)
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(prefix[:len(prefix)-1:len(prefix)-1], '0'), // '0' sorts right after '/'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close() // nolint

	var trades []*model.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := iter.Key()
		tradeID := key[len(key)-36:]

		value, closer, err := r.db.Get(append([]byte("trade/"), tradeID...))
		if err != nil {
			return nil, fmt.Errorf("trade %s indexed under order %d: %w", tradeID, orderID, err)
		}
		var t model.Trade
		err = json.Unmarshal(value, &t)
		_ = closer.Close()
		if err != nil {
			return nil, err
		}
		trades = append(trades, &t)

		if limit > 0 && len(trades) == limit {
			break
		}
	}
	return trades, iter.Error()
}
