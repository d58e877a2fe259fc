package repo

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/joripage/matching-engine/pkg/model"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemPebble(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func trade(resting, incoming uint64, at time.Time) *model.Trade {
	return model.NewTrade("ABC", orderbook.MatchResult{
		Price:           100,
		Qty:             5,
		RestingOrderID:  resting,
		IncomingOrderID: incoming,
		Side:            orderbook.BUY,
		Timestamp:       at,
	})
}

func TestPebbleBulkCreateAndList(t *testing.T) {
	ctx := context.Background()
	r := NewPebbleRepo(openMemPebble(t)).Trade()

	base := time.Unix(1_700_000_000, 0).UTC()
	t1 := trade(1, 3, base)
	t2 := trade(2, 3, base.Add(time.Millisecond))
	t3 := trade(12, 13, base.Add(2*time.Millisecond))

	_, err := r.BulkCreate(ctx, []*model.Trade{t2, t1, t3})
	require.NoError(t, err)

	got, err := r.ListByOrderID(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t1.TradeID, got[0].TradeID)
	assert.Equal(t, t2.TradeID, got[1].TradeID)
	assert.True(t, t1.ExecutedAt.Equal(got[0].ExecutedAt))

	got, err = r.ListByOrderID(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].IncomingOrderID)

	// order 1 must not pick up order 12's trades
	got, err = r.ListByOrderID(ctx, 12, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t3.TradeID, got[0].TradeID)

	got, err = r.ListByOrderID(ctx, 3, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = r.ListByOrderID(ctx, 99, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPebbleCreateSkipsStoredTrades(t *testing.T) {
	ctx := context.Background()
	r := NewPebbleRepo(openMemPebble(t)).Trade()

	tr := trade(1, 2, time.Now())
	_, err := r.Create(ctx, tr)
	require.NoError(t, err)

	dup := *tr
	dup.Qty = 999
	_, err = r.BulkCreate(ctx, []*model.Trade{&dup, &dup})
	require.NoError(t, err)

	got, err := r.ListByOrderID(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].Qty)
}

func TestPebbleBulkCreateHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewPebbleRepo(openMemPebble(t)).Trade()

	_, err := r.BulkCreate(ctx, []*model.Trade{trade(1, 2, time.Now()), {TradeID: uuid.New()}})
	assert.ErrorIs(t, err, context.Canceled)
}
