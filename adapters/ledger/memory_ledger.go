package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/shopspring/decimal"
)

type memCertificate struct {
	issuer    string
	issuedAt  int64
	revoked   bool
	revokedAt int64
}

// MemoryLedger mimics both registries in memory, including their access
// rules: writes other than hash storage need the admin key, hash storage
// needs a key whose address is a valid issuer.
// This is primarily intended for testing and local runs.
type MemoryLedger struct {
	mu      sync.Mutex
	admin   string
	issuers map[string]bool
	certs   map[string]*memCertificate
	calls   map[string]int
	failure map[string]error
	block   uint64
}

// NewMemoryLedger creates a ledger administered by the given address.
func NewMemoryLedger(admin string) *MemoryLedger {
	return &MemoryLedger{
		admin:   strings.ToLower(admin),
		issuers: make(map[string]bool),
		certs:   make(map[string]*memCertificate),
		calls:   make(map[string]int),
		failure: make(map[string]error),
	}
}

var _ ports.Ledger = (*MemoryLedger)(nil)

// Fail makes every later call of op return err. A nil err clears it.
func (l *MemoryLedger) Fail(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failure, op)
		return
	}
	l.failure[op] = err
}

// Calls reports how often op was invoked.
func (l *MemoryLedger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// TotalCalls reports the number of invocations of every operation.
func (l *MemoryLedger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// SetIssuer forces the registry status of an address.
func (l *MemoryLedger) SetIssuer(address string, valid bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issuers[strings.ToLower(address)] = valid
}

// RevokeOnChain revokes a hash without going through the admin check.
func (l *MemoryLedger) RevokeOnChain(hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.certs[hash]; ok {
		c.revoked = true
		c.revokedAt = time.Now().Unix()
	}
}

func (l *MemoryLedger) enter(op string) error {
	l.calls[op]++
	if err := l.failure[op]; err != nil {
		return core.Wrap(core.KindLedger, core.ErrLedger.Msg, err)
	}
	return nil
}

func (l *MemoryLedger) IsIssuerValid(ctx context.Context, address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("isValidIssuer"); err != nil {
		return false, err
	}
	return l.issuers[strings.ToLower(address)], nil
}

func (l *MemoryLedger) GetCertificateRecord(ctx context.Context, hash string) (*core.CertificateRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("getCertificateInfo"); err != nil {
		return nil, err
	}
	c, ok := l.certs[hash]
	if !ok {
		return &core.CertificateRecord{Issuer: strings.ToLower(common.Address{}.Hex())}, nil
	}
	return &core.CertificateRecord{
		Exists:    true,
		IsValid:   !c.revoked,
		Issuer:    c.issuer,
		IssuedAt:  c.issuedAt,
		Revoked:   c.revoked,
		RevokedAt: c.revokedAt,
	}, nil
}

func (l *MemoryLedger) MapWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("mapWallet"); err != nil {
		return nil, err
	}
	if err := l.requireAdmin(admin); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)
	if l.issuers[address] {
		return nil, reverted("wallet already mapped")
	}
	l.issuers[address] = true
	return l.receipt("mapWallet", address), nil
}

func (l *MemoryLedger) RevokeWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("revokeWallet"); err != nil {
		return nil, err
	}
	if err := l.requireAdmin(admin); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)
	if !l.issuers[address] {
		return nil, reverted("wallet not mapped")
	}
	l.issuers[address] = false
	return l.receipt("revokeWallet", address), nil
}

func (l *MemoryLedger) StoreCertificateHash(ctx context.Context, hash string, issuer *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("storeCertificateHash"); err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, reverted("missing signing key")
	}
	from := eth.AddressOf(issuer)
	if !l.issuers[from] {
		return nil, reverted("not a valid issuer")
	}
	if _, ok := l.certs[hash]; ok {
		return nil, reverted("certificate already exists")
	}
	l.certs[hash] = &memCertificate{issuer: from, issuedAt: time.Now().Unix()}
	return l.receipt("storeCertificateHash", hash), nil
}

func (l *MemoryLedger) RevokeCertificate(ctx context.Context, hash string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("revokeCertificate"); err != nil {
		return nil, err
	}
	if err := l.requireAdmin(admin); err != nil {
		return nil, err
	}
	c, ok := l.certs[hash]
	if !ok {
		return nil, reverted("certificate does not exist")
	}
	if c.revoked {
		return nil, reverted("certificate already revoked")
	}
	c.revoked = true
	c.revokedAt = time.Now().Unix()
	return l.receipt("revokeCertificate", hash), nil
}

func (l *MemoryLedger) requireAdmin(key *ecdsa.PrivateKey) error {
	if key == nil || eth.AddressOf(key) != l.admin {
		return reverted("only admin")
	}
	return nil
}

func (l *MemoryLedger) receipt(op, subject string) *core.TxReceipt {
	l.block++
	ref := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d", op, subject, l.block)))
	return &core.TxReceipt{
		TxRef:       ref.Hex(),
		BlockNumber: l.block,
		GasUsed:     21000,
		Fee:         decimal.New(21000, -9),
	}
}

func reverted(reason string) error {
	return core.Wrap(core.KindLedger, core.ErrLedger.Msg, fmt.Errorf("execution reverted: %s", reason))
}
