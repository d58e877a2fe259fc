package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DepthSnapshot is what RedisDepthPublisher stores and broadcasts.
type DepthSnapshot struct {
	Symbol    string          `json:"symbol"`
	Depth     orderbook.Depth `json:"depth"`
	Timestamp int64           `json:"timestamp"` // unix nanos
}

// RedisDepthPublisher keeps the latest depth snapshot under a key and
// publishes each new one on a channel.
type RedisDepthPublisher struct {
	client redis.Cmdable
	prefix string
}

func NewRedisDepthPublisher(client redis.Cmdable, prefix string) *RedisDepthPublisher {
	if prefix == "" {
		prefix = "book"
	}
	return &RedisDepthPublisher{client: client, prefix: prefix}
}

func (p *RedisDepthPublisher) DepthKey(symbol string) string {
	return fmt.Sprintf("%s:%s:depth", p.prefix, symbol)
}

func (p *RedisDepthPublisher) UpdatesChannel(symbol string) string {
	return fmt.Sprintf("%s:%s:updates", p.prefix, symbol)
}

func (p *RedisDepthPublisher) NeedsDepth() bool { return true }

func (p *RedisDepthPublisher) OnExecution(ctx context.Context, report *engine.ExecutionReport) {
	if report.Rejected() {
		return // book untouched
	}
	data, err := json.Marshal(DepthSnapshot{
		Symbol:    report.Symbol,
		Depth:     report.Depth,
		Timestamp: report.Timestamp.UnixNano(),
	})
	if err != nil {
		zap.S().Warnf("marshal depth snapshot: %v", err)
		return
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.DepthKey(report.Symbol), data, 0)
		pipe.Publish(ctx, p.UpdatesChannel(report.Symbol), data)
		return nil
	})
	if err != nil {
		zap.S().Warnf("publish depth snapshot: %v", err)
	}
}
