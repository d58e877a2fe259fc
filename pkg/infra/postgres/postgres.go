package postgres_wrapper

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq" // nolint
	"go.uber.org/zap"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

type PostgresConfig struct {
	DriverName                 string          `yaml:"driver_name"`
	DataSource                 string          `yaml:"data_source"`
	MaxOpenConns               int             `yaml:"max_open_conns"`
	MaxIdleConns               int             `yaml:"max_idle_conns"`
	ConnMaxLifeTimeMiliseconds int64           `yaml:"conn_max_life_time_ms"`
	MigrationConnURL           string          `yaml:"migration_conn_url"`
	SlaveSources               []string        `yaml:"slave_sources"`
	LogLevel                   logger.LogLevel `yaml:"log_level"`
	Location                   string          `yaml:"location"`
	MaxInitRetries             uint64          `yaml:"max_init_retries"`
}

// zapWriter routes gorm's logger through the global zap logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	zap.S().Infof(format, args...)
}

func gormConfig(cfg *PostgresConfig) *gorm.Config {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		zap.S().Warnf("unknown location %q, using UTC: %v", cfg.Location, err)
		loc = time.UTC
	}
	return &gorm.Config{
		Logger: logger.New(zapWriter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().In(loc)
		},
	}
}

func registerReplicas(db *gorm.DB, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	replicas := make([]gorm.Dialector, 0, len(sources))
	for _, s := range sources {
		replicas = append(replicas, pg.Open(s))
	}
	zap.S().Debugf("register %d postgres replicas", len(replicas))
	return db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	}))
}

// InitPostgres opens the trade database, registers read replicas and sizes
// the connection pool.
func InitPostgres(cfg *PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(pg.Open(cfg.DataSource), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := registerReplicas(db, cfg.SlaveSources); err != nil {
		return nil, fmt.Errorf("register replicas: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeTimeMiliseconds) * time.Millisecond)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// InitPostgresWithBackoff retries InitPostgres with exponential backoff. It
// gives up when ctx is done or after MaxInitRetries attempts (0 means no cap).
func InitPostgresWithBackoff(ctx context.Context, cfg *PostgresConfig) (*gorm.DB, error) {
	var db *gorm.DB
	var boff backoff.BackOff = backoff.NewExponentialBackOff()
	if cfg.MaxInitRetries > 0 {
		boff = backoff.WithMaxRetries(boff, cfg.MaxInitRetries)
	}

	err := backoff.Retry(func() error {
		var err error
		db, err = InitPostgres(cfg)
		if err != nil {
			zap.S().Warnf("connect postgres error: %v", err)
		}
		return err
	}, backoff.WithContext(boff, ctx))
	if err != nil {
		return nil, err
	}

	return db, nil
}
