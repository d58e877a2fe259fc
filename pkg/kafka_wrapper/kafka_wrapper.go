// Package kafkawrapper publishes JSON messages to Kafka and consumes a topic
// in batches with a small worker pool.
package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errNotInitialized = errors.New("kafka client not initialized")

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Headers   map[string]string
}

type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchBytes   int64
	BatchTimeout time.Duration
	Async        bool
}

// writer is the part of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = 1 << 20
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	wr := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  cfg.Async,
	}
	if cfg.Async {
		wr.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				zap.S().Warnf("kafka async write of %d messages failed: %v", len(messages), err)
			}
		}
	}
	return &Producer{w: wr}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.w == nil {
		return errNotInitialized
	}
	kh := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kh = append(kh, kafka.Header{Key: k, Value: []byte(v)})
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: kh,
		Time:    time.Now(),
	})
}

func (p *Producer) PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, []byte(key), b, headers)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	WorkerCount  int
	MaxRetries   int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	DLQTopic     string
	BatchSize    int           // max messages per batch
	BatchTimeout time.Duration // max time spent filling a batch
}

func (c *ConsumerConfig) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMin == 0 {
		c.BackoffMin = 100 * time.Millisecond
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 10 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 200 * time.Millisecond
	}
}

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerGroup struct {
	r   reader
	cfg ConsumerConfig
	dlq *Producer
}

func NewConsumerGroup(cfg ConsumerConfig) *ConsumerGroup {
	cfg.applyDefaults()

	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})

	var dlq *Producer
	if cfg.DLQTopic != "" {
		dlq = NewProducer(ProducerConfig{Brokers: cfg.Brokers})
	}

	return &ConsumerGroup{r: rd, cfg: cfg, dlq: dlq}
}

func (cg *ConsumerGroup) Close() error {
	if cg == nil {
		return nil
	}
	if cg.dlq != nil {
		_ = cg.dlq.Close()
	}
	if cg.r != nil {
		return cg.r.Close()
	}
	return nil
}

// Run delivers batches to handler until ctx is done. A batch whose handler
// keeps failing after MaxRetries is sent to the DLQ topic (if any) and
// committed so the group moves on.
func (cg *ConsumerGroup) Run(ctx context.Context, handler func(context.Context, []Message) error) error {
	if cg == nil || cg.r == nil {
		return errNotInitialized
	}

	batches := make(chan []kafka.Message, cg.cfg.WorkerCount)
	go cg.fetchBatches(ctx, batches)

	done := make(chan struct{}, cg.cfg.WorkerCount)
	for i := 0; i < cg.cfg.WorkerCount; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for ms := range batches {
				cg.process(ctx, ms, handler)
			}
		}()
	}

	for i := 0; i < cg.cfg.WorkerCount; i++ {
		<-done
	}
	return ctx.Err()
}

func (cg *ConsumerGroup) fetchBatches(ctx context.Context, batches chan<- []kafka.Message) {
	defer close(batches)

	var buf []kafka.Message
	flush := func() bool {
		if len(buf) == 0 {
			return true
		}
		select {
		case batches <- buf:
			buf = nil
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, cg.cfg.BatchTimeout)
		m, err := cg.r.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if !flush() {
					return
				}
				continue
			}
			zap.S().Warnf("kafka fetch error: %v", err)
			continue
		}
		buf = append(buf, m)
		if len(buf) >= cg.cfg.BatchSize && !flush() {
			return
		}
	}
}

func (cg *ConsumerGroup) process(ctx context.Context, ms []kafka.Message, handler func(context.Context, []Message) error) {
	wrapped := make([]Message, len(ms))
	for i, m := range ms {
		wrapped[i] = wrapMessage(m)
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = cg.cfg.BackoffMin
	boff.MaxInterval = cg.cfg.BackoffMax
	boff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(boff, uint64(cg.cfg.MaxRetries)), ctx)

	err := backoff.Retry(func() error { return handler(ctx, wrapped) }, policy)
	if err != nil {
		if ctx.Err() != nil {
			return // not committed, redelivered after restart
		}
		zap.S().Errorf("batch of %d from %s failed after %d retries: %v", len(ms), cg.cfg.Topic, cg.cfg.MaxRetries, err)
		if cg.dlq != nil {
			for _, m := range ms {
				if err := cg.dlq.Publish(ctx, cg.cfg.DLQTopic, m.Key, m.Value, headersToMap(m.Headers)); err != nil {
					zap.S().Warnf("dlq publish: %v", err)
				}
			}
		}
	}
	if err := cg.r.CommitMessages(ctx, ms...); err != nil {
		zap.S().Warnf("commit %d messages: %v", len(ms), err)
	}
}

func wrapMessage(m kafka.Message) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   headersToMap(m.Headers),
	}
}

func headersToMap(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}
