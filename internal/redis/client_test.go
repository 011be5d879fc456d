package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("connects and pings", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := Open(context.Background(), "redis://"+mr.Addr())
		require.NoError(t, err)
		defer client.Close()

		assert.NoError(t, client.Check(context.Background()))
	})

	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := Open(context.Background(), "://bad")
		assert.Error(t, err)
	})

	t.Run("reports an unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := Open(context.Background(), "redis://"+addr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping redis")
	})
}

func TestJobEventChannel(t *testing.T) {
	assert.Equal(t, "jobs:42", JobEventChannel(42))
}
