package ports

import (
	"context"

	"github.com/layer-3/certify/core"
)

// ChallengeStore keeps at most one live challenge per normalised address.
type ChallengeStore interface {
	// Put creates or overwrites the challenge for ch.Address.
	Put(ctx context.Context, ch *core.Challenge) error

	// Get returns core.ErrChallengeMissing when no challenge exists.
	Get(ctx context.Context, address string) (*core.Challenge, error)

	// Delete removes the challenge for address, if any.
	Delete(ctx context.Context, address string) error

	// Consume deletes the challenge only if it still carries nonce and reports
	// whether it did.
	Consume(ctx context.Context, address, nonce string) (bool, error)
}
