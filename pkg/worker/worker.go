// file: pkg/worker/worker.go
package worker

import (
	"context"
	"encoding/json"

	kafkawrapper "github.com/joripage/matching-engine/pkg/kafka_wrapper"
	"github.com/joripage/matching-engine/pkg/model"
	"github.com/joripage/matching-engine/pkg/repo"
	"go.uber.org/zap"
)

// Worker stores the trades published by the engine.
type Worker struct {
	trade repo.ITrade
}

func NewWorker(repo repo.IRepo) *Worker {
	return &Worker{
		trade: repo.Trade(),
	}
}

type consumer interface {
	Run(ctx context.Context, handler func(context.Context, []kafkawrapper.Message) error) error
}

func (w *Worker) StartConsumer(ctx context.Context, cg consumer) error {
	return cg.Run(ctx, w.HandleBatch)
}

// HandleBatch decodes a batch of trade messages and stores them in one go.
// Undecodable messages are logged and skipped; a storage error fails the
// whole batch so the consumer retries it.
func (w *Worker) HandleBatch(ctx context.Context, msgs []kafkawrapper.Message) error {
	trades := make([]*model.Trade, 0, len(msgs))
	for _, msg := range msgs {
		var tr model.Trade
		if err := json.Unmarshal(msg.Value, &tr); err != nil {
			zap.S().Warnf("unmarshal trade at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			continue
		}
		trades = append(trades, &tr)
	}
	if len(trades) == 0 {
		return nil
	}

	if _, err := w.trade.BulkCreate(ctx, trades); err != nil {
		zap.S().Errorf("store %d trades: %v", len(trades), err)
		return err
	}
	zap.S().Debugf("stored %d trades", len(trades))
	return nil
}
