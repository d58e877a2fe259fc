package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/matching-engine/config"
	pebble_wrapper "github.com/joripage/matching-engine/pkg/infra/pebble"
	postgres_wrapper "github.com/joripage/matching-engine/pkg/infra/postgres"
	kafkawrapper "github.com/joripage/matching-engine/pkg/kafka_wrapper"
	"github.com/joripage/matching-engine/pkg/logging"
	"github.com/joripage/matching-engine/pkg/repo"
	"github.com/joripage/matching-engine/pkg/worker"
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

	if cfg.Kafka == nil {
		zap.S().Fatal("worker needs kafka config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init store
	var store repo.IRepo
	switch {
	case cfg.TradeDB != nil:
		db, err := postgres_wrapper.InitPostgresWithBackoff(ctx, cfg.TradeDB)
		if err != nil {
			zap.S().Errorf("init db fail with err: %v", err)
			panic(err)
		}
		store = repo.NewRepo(db)
	case cfg.TradeStore != nil:
		db, err := pebble_wrapper.InitPebble(cfg.TradeStore)
		if err != nil {
			zap.S().Errorf("init pebble fail with err: %v", err)
			panic(err)
		}
		defer db.Close() // nolint
		store = repo.NewPebbleRepo(db)
	default:
		zap.S().Fatal("worker needs trade_db or trade_store config")
	}

	cg := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		Topic:        cfg.Kafka.TradeTopic,
		WorkerCount:  cfg.Kafka.WorkerCount,
		MaxRetries:   cfg.Kafka.MaxRetries,
		DLQTopic:     cfg.Kafka.DLQTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: time.Duration(cfg.Kafka.BatchTimeout) * time.Millisecond,
	})
	defer cg.Close() // nolint

	w := worker.NewWorker(store)
	zap.S().Infof("consuming %s as %s", cfg.Kafka.TradeTopic, cfg.Kafka.GroupID)
	if err := w.StartConsumer(ctx, cg); err != nil && ctx.Err() == nil {
		zap.S().Errorf("consumer stopped: %v", err)
	}
}
