package postgres_wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func TestGormConfigLocation(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err != nil {
		t.Skip("no tzdata")
	}
	cfg := gormConfig(&PostgresConfig{Location: "Asia/Ho_Chi_Minh", LogLevel: logger.Silent})
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.NowFunc().Location().String())

	cfg = gormConfig(&PostgresConfig{Location: "Not/AZone"})
	assert.Equal(t, time.UTC, cfg.NowFunc().Location())
}

func TestZapWriter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer zap.ReplaceGlobals(zap.New(core))()

	zapWriter{}.Printf("slow query %dms", 1200)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow query 1200ms", logs.All()[0].Message)
}

func TestInitWithBackoffGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := InitPostgresWithBackoff(ctx, &PostgresConfig{
		DataSource:     "host=127.0.0.1 port=1 user=none dbname=none sslmode=disable connect_timeout=1",
		MaxInitRetries: 1,
		LogLevel:       logger.Silent,
	})
	assert.Error(t, err)
}
