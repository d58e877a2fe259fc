package config

import (
	"os"

	pebble_wrapper "github.com/joripage/matching-engine/pkg/infra/pebble"
	postgres_wrapper "github.com/joripage/matching-engine/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/matching-engine/pkg/infra/redis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	Symbol      string                           `yaml:"symbol"`
	LogLevel    string                           `yaml:"log_level"`
	Engine      EngineConfig                     `yaml:"engine"`
	Kafka       *KafkaConfig                     `yaml:"kafka"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
	TradeDB     *postgres_wrapper.PostgresConfig `yaml:"trade_db"`
	TradeStore  *pebble_wrapper.PebbleConfig     `yaml:"trade_store"` // used by the worker when trade_db is unset
	MarketData  *MarketDataConfig                `yaml:"market_data"`
	Simulator   SimulatorConfig                  `yaml:"simulator"`
}

type EngineConfig struct {
	QueueSize        int    `yaml:"queue_size"`
	TickSize         string `yaml:"tick_size"` // decimal, e.g. "0.01"
	DepthLevels      int    `yaml:"depth_levels"`
	VerifyInvariants bool   `yaml:"verify_invariants"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	TradeTopic   string   `yaml:"trade_topic"`
	GroupID      string   `yaml:"group_id"`
	DLQTopic     string   `yaml:"dlq_topic"`
	WorkerCount  int      `yaml:"worker_count"`
	MaxRetries   int      `yaml:"max_retries"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout int      `yaml:"batch_timeout_ms"`
}

// MarketDataConfig enables the read-only HTTP and websocket feed.
type MarketDataConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"auth_token"`
	Buffer     int    `yaml:"buffer"` // per subscriber
}

type SimulatorConfig struct {
	Seed           uint64  `yaml:"seed"`
	Steps          int     `yaml:"steps"`
	OrdersPerStep  int     `yaml:"orders_per_step"`
	StartPrice     int64   `yaml:"start_price"`
	Volatility     float64 `yaml:"volatility"`
	MaxQty         uint64  `yaml:"max_qty"`
	SpreadTicks    int64   `yaml:"spread_ticks"`
	AggressiveRate float64 `yaml:"aggressive_rate"`
	OutputFile     string  `yaml:"output_file"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "matching-engine"
	}
	if c.Symbol == "" {
		c.Symbol = "ABC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine.QueueSize <= 0 {
		c.Engine.QueueSize = 1024
	}
	if c.Engine.TickSize == "" {
		c.Engine.TickSize = "0.01"
	}
	if c.Engine.DepthLevels <= 0 {
		c.Engine.DepthLevels = 10
	}
	sim := &c.Simulator
	if sim.Steps <= 0 {
		sim.Steps = 1000
	}
	if sim.OrdersPerStep <= 0 {
		sim.OrdersPerStep = 10
	}
	if sim.StartPrice <= 0 {
		sim.StartPrice = 10_000
	}
	if sim.Volatility <= 0 {
		sim.Volatility = 5
	}
	if sim.MaxQty == 0 {
		sim.MaxQty = 100
	}
	if sim.SpreadTicks <= 0 {
		sim.SpreadTicks = 20
	}
	if sim.AggressiveRate <= 0 {
		sim.AggressiveRate = 0.2
	}
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}
	if len(filePath) == 0 {
		zap.S().Debug("no config file, using defaults")
		return Default(), nil
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.applyDefaults()

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
