package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/otp-accounts/internal/config"
	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/ratelimit"
	"github.com/redmonkez12/otp-accounts/internal/user"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store.Driver = config.StoreDriverMemory

		store, closeStore, err := openStore(ctx, cfg, logging.Discard())
		require.NoError(t, err)
		defer closeStore()

		assert.IsType(t, &user.MemoryStore{}, store)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store.Driver = config.StoreDriverSQLite
		cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "accounts.db")

		store, closeStore, err := openStore(ctx, cfg, logging.Discard())
		require.NoError(t, err)
		defer closeStore()

		assert.IsType(t, &user.SQLiteStore{}, store)
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestNewRateLimiter_Memory(t *testing.T) {
	cfg := config.Defaults()

	limiter, closeLimiter, err := newRateLimiter(context.Background(), cfg)
	require.NoError(t, err)
	defer closeLimiter()

	assert.IsType(t, &ratelimit.MemoryLimiter{}, limiter)
}
