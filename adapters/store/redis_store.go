package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the challenge only while it still carries the nonce
// that was verified, so two concurrent verifications cannot both consume it.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local ok, ch = pcall(cjson.decode, v)
if not ok then return 0 end
if ch['nonce'] == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

type challengeRecord struct {
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore is a Redis implementation of the ChallengeStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
	grace  time.Duration
}

// NewRedisStore creates a new Redis challenge store
func NewRedisStore(client *redis.Client) ports.ChallengeStore {
	return &RedisStore{
		client: client,
		prefix: "certify:challenge:",
		// Keys outlive the challenge so an expired one is still seen and
		// reported as expired rather than missing.
		grace: core.ChallengeTTL,
	}
}

// Put stores the challenge, replacing any live one for the address
func (s *RedisStore) Put(ctx context.Context, ch *core.Challenge) error {
	payload, err := json.Marshal(challengeRecord{
		Nonce:     ch.Nonce,
		IssuedAt:  ch.IssuedAt,
		ExpiresAt: ch.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := time.Until(ch.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}

	if err := s.client.Set(ctx, s.prefix+ch.Address, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Get loads the challenge for an address
func (s *RedisStore) Get(ctx context.Context, address string) (*core.Challenge, error) {
	raw, err := s.client.Get(ctx, s.prefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrChallengeMissing
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	var rec challengeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return &core.Challenge{
		Address:   address,
		Nonce:     rec.Nonce,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Delete removes the challenge for an address
func (s *RedisStore) Delete(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, s.prefix+address).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// Consume deletes the challenge if it still carries nonce
func (s *RedisStore) Consume(ctx context.Context, address, nonce string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.prefix + address}, nonce).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return n == 1, nil
}
