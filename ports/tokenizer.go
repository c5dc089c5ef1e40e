package ports

import "github.com/layer-3/certify/core"

// Tokenizer converts between capabilities and signed tokens
type Tokenizer interface {
	// CapabilityToToken signs a capability. The kind selects the audience.
	CapabilityToToken(c *core.Capability) (string, error)

	// TokenToCapability verifies a token of the expected kind.
	TokenToCapability(token string, kind core.CapabilityKind) (*core.Capability, error)
}
