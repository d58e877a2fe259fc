package pebble_wrapper

import (
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

type PebbleConfig struct {
	Dir          string `yaml:"dir"`
	CacheSizeMB  int64  `yaml:"cache_size_mb"`
	MemTableSize uint64 `yaml:"mem_table_size_mb"`
}

// InitPebble opens (creating if needed) the store at cfg.Dir.
func InitPebble(cfg *PebbleConfig) (*pebble.DB, error) {
	opts := &pebble.Options{}
	if cfg.CacheSizeMB > 0 {
		cache := pebble.NewCache(cfg.CacheSizeMB << 20)
		defer cache.Unref()
		opts.Cache = cache
	}
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize << 20
	}

	db, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		zap.S().Debugf("open pebble at %s fail: %+v", cfg.Dir, err)
		return nil, err
	}
	zap.S().Debugf("pebble opened at %s", cfg.Dir)
	return db, nil
}
