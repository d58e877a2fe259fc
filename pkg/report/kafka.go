package report

import (
	"context"
	"strconv"

	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/model"
	"go.uber.org/zap"
)

// Publisher is the part of kafkawrapper.Producer the reporter needs.
type Publisher interface {
	PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error
}

// KafkaReporter publishes every execution as a model.Trade on topic, keyed by
// the incoming order id so one order's fills stay on one partition.
type KafkaReporter struct {
	publisher Publisher
	topic     string
}

func NewKafkaReporter(publisher Publisher, topic string) *KafkaReporter {
	return &KafkaReporter{publisher: publisher, topic: topic}
}

func (r *KafkaReporter) OnExecution(ctx context.Context, report *engine.ExecutionReport) {
	for _, m := range report.Trades {
		trade := model.NewTrade(report.Symbol, m)
		key := strconv.FormatUint(m.IncomingOrderID, 10)
		headers := map[string]string{"symbol": report.Symbol}
		if err := r.publisher.PublishJSON(ctx, r.topic, key, trade, headers); err != nil {
			zap.S().Warnf("publish trade %s: %v", trade.TradeID, err)
		}
	}
}
