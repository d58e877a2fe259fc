package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/matching-engine/config"
	"github.com/joripage/matching-engine/pkg/command"
	"github.com/joripage/matching-engine/pkg/engine"
	redis_wrapper "github.com/joripage/matching-engine/pkg/infra/redis"
	kafkawrapper "github.com/joripage/matching-engine/pkg/kafka_wrapper"
	"github.com/joripage/matching-engine/pkg/logging"
	"github.com/joripage/matching-engine/pkg/marketdata"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/joripage/matching-engine/pkg/report"
	"github.com/joripage/matching-engine/pkg/stats"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync() // nolint
	defer logger.ReplaceGlobals()()

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	parser, err := command.NewParser(cfg.Engine.TickSize)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := stats.NewTracker()
	reporters := report.Multi{tracker}

	if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		producer := kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: time.Duration(cfg.Kafka.BatchTimeout) * time.Millisecond,
			Async:        true,
		})
		defer producer.Close() // nolint
		reporters = append(reporters, report.NewKafkaReporter(producer, cfg.Kafka.TradeTopic))
		zap.S().Infof("publishing trades to %s", cfg.Kafka.TradeTopic)
	}

	if cfg.Redis != nil && cfg.Redis.ConnectionURL != "" {
		rdb, err := redis_wrapper.InitRedis(ctx, cfg.Redis)
		if err != nil {
			zap.S().Warnf("redis unavailable, depth snapshots disabled: %v", err)
		} else {
			defer rdb.Close() // nolint
			reporters = append(reporters, report.NewRedisDepthPublisher(rdb, cfg.Redis.KeyPrefix))
		}
	}

	var eng *engine.Engine
	var feed *marketdata.Server
	if md := cfg.MarketData; md != nil && md.ListenAddr != "" {
		feed = marketdata.NewServer(marketdata.Config{
			Symbol:      cfg.Symbol,
			AuthToken:   md.AuthToken,
			Buffer:      md.Buffer,
			DepthLevels: cfg.Engine.DepthLevels,
		}, marketdata.DepthFunc(func(ctx context.Context, n int) (orderbook.Depth, error) {
			return eng.Depth(ctx, n)
		}), tracker)
		reporters = append(reporters, feed)
	}

	eng = engine.New(engine.Config{
		Symbol:           cfg.Symbol,
		QueueSize:        cfg.Engine.QueueSize,
		DepthLevels:      cfg.Engine.DepthLevels,
		VerifyInvariants: cfg.Engine.VerifyInvariants,
	}, reporters, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	if feed != nil {
		go func() {
			if err := feed.ListenAndServe(ctx, cfg.MarketData.ListenAddr); err != nil {
				zap.S().Errorf("market data: %v", err)
			}
		}()
	}

	tracker.Start()
	s := &session{
		symbol:  cfg.Symbol,
		parser:  parser,
		eng:     eng,
		tracker: tracker,
		out:     os.Stdout,
	}
	if err := s.run(ctx, os.Stdin); err != nil {
		zap.S().Errorf("read commands: %v", err)
	}

	stop()
	if err := <-runErr; err != nil {
		zap.S().Errorf("engine: %v", err)
	}
	tracker.Stop()

	if sum, err := tracker.Summary(); err == nil {
		fmt.Println(sum)
	}
}
