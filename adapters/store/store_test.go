package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengeStores(t *testing.T) map[string]ports.ChallengeStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ports.ChallengeStore{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func TestChallengeStores(t *testing.T) {
	for name, s := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			addr := "0xabc0000000000000000000000000000000000001"

			_, err := s.Get(ctx, addr)
			require.ErrorIs(t, err, core.ErrChallengeMissing)

			first := &core.Challenge{Address: addr, Nonce: "n1", IssuedAt: now, ExpiresAt: now.Add(core.ChallengeTTL)}
			require.NoError(t, s.Put(ctx, first))

			second := &core.Challenge{Address: addr, Nonce: "n2", IssuedAt: now, ExpiresAt: now.Add(core.ChallengeTTL)}
			require.NoError(t, s.Put(ctx, second))

			got, err := s.Get(ctx, addr)
			require.NoError(t, err)
			assert.Equal(t, "n2", got.Nonce)
			assert.True(t, got.ExpiresAt.Equal(second.ExpiresAt))

			ok, err := s.Consume(ctx, addr, "n1")
			require.NoError(t, err)
			assert.False(t, ok, "stale nonce must not consume the live challenge")

			ok, err = s.Consume(ctx, addr, "n2")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Consume(ctx, addr, "n2")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, first))
			require.NoError(t, s.Delete(ctx, addr))
			_, err = s.Get(ctx, addr)
			assert.ErrorIs(t, err, core.ErrChallengeMissing)
		})
	}
}
