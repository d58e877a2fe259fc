package main

import (
	"flag"

	"github.com/joripage/matching-engine/config"
	"github.com/joripage/matching-engine/pkg/infra"
	"github.com/joripage/matching-engine/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile string
		source     string
	)
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source URL")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync() // nolint
	defer logger.ReplaceGlobals()()

	if cfg.TradeDB == nil || cfg.TradeDB.MigrationConnURL == "" {
		zap.S().Fatal("trade_db.migration_conn_url is not set")
	}

	if err := infra.Migrate(source, cfg.TradeDB.MigrationConnURL); err != nil {
		zap.S().Fatalf("migrate: %v", err)
	}
}
