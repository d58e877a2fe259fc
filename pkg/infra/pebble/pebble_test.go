package pebble_wrapper

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitPebbleReopens(t *testing.T) {
	cfg := &PebbleConfig{Dir: filepath.Join(t.TempDir(), "trades"), CacheSizeMB: 8, MemTableSize: 4}

	db, err := InitPebble(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v"), nil))
	require.NoError(t, db.Close())

	db, err = InitPebble(cfg)
	require.NoError(t, err)
	defer db.Close()

	v, closer, err := db.Get([]byte("k"))
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, "v", string(v))
}
