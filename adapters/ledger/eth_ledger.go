package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const walletRegistryABI = `[
	{"type":"function","name":"mapWallet","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
	{"type":"function","name":"revokeWallet","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
	{"type":"function","name":"isValidIssuer","stateMutability":"view","inputs":[{"name":"issuer","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const certificateRegistryABI = `[
	{"type":"function","name":"storeCertificateHash","stateMutability":"nonpayable","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"revokeCertificate","stateMutability":"nonpayable","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"isValidCertificate","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getCertificateInfo","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[
		{"name":"issuer","type":"address"},
		{"name":"issuedAt","type":"uint256"},
		{"name":"revoked","type":"bool"},
		{"name":"revokedAt","type":"uint256"}
	]},
	{"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// Backend is what the gateway needs from a node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config locates the two registries.
type Config struct {
	WalletRegistry      common.Address
	CertificateRegistry common.Address
	ChainID             *big.Int
	ConfirmTimeout      time.Duration
}

// EthLedger implements ports.Ledger against deployed registry contracts.
type EthLedger struct {
	backend        Backend
	wallets        *bind.BoundContract
	certificates   *bind.BoundContract
	chainID        *big.Int
	confirmTimeout time.Duration

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewEthLedger binds both registries on backend.
func NewEthLedger(backend Backend, cfg Config, logger *zap.Logger, m *metrics.Collector) (*EthLedger, error) {
	walletABI, err := abi.JSON(strings.NewReader(walletRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet registry abi: %w", err)
	}
	certABI, err := abi.JSON(strings.NewReader(certificateRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate registry abi: %w", err)
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	return &EthLedger{
		backend:        backend,
		wallets:        bind.NewBoundContract(cfg.WalletRegistry, walletABI, backend, backend, backend),
		certificates:   bind.NewBoundContract(cfg.CertificateRegistry, certABI, backend, backend, backend),
		chainID:        cfg.ChainID,
		confirmTimeout: cfg.ConfirmTimeout,
		logger:         logger.With(zap.String("component", "ledger")),
		metrics:        m,
	}, nil
}

var _ ports.Ledger = (*EthLedger)(nil)

func (l *EthLedger) IsIssuerValid(ctx context.Context, address string) (valid bool, err error) {
	defer l.observe("isValidIssuer", time.Now(), &err)

	var out []any
	if err := l.wallets.Call(&bind.CallOpts{Context: ctx}, &out, "isValidIssuer", common.HexToAddress(address)); err != nil {
		return false, l.fail("isValidIssuer", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (l *EthLedger) GetCertificateRecord(ctx context.Context, hash string) (rec *core.CertificateRecord, err error) {
	defer l.observe("getCertificateInfo", time.Now(), &err)

	key, err := hashToBytes32(hash)
	if err != nil {
		return nil, err
	}
	opts := &bind.CallOpts{Context: ctx}

	var valid []any
	if err := l.certificates.Call(opts, &valid, "isValidCertificate", key); err != nil {
		return nil, l.fail("isValidCertificate", err)
	}
	var info []any
	if err := l.certificates.Call(opts, &info, "getCertificateInfo", key); err != nil {
		return nil, l.fail("getCertificateInfo", err)
	}

	issuer := *abi.ConvertType(info[0], new(common.Address)).(*common.Address)
	issuedAt := *abi.ConvertType(info[1], new(*big.Int)).(**big.Int)
	revoked := *abi.ConvertType(info[2], new(bool)).(*bool)
	revokedAt := *abi.ConvertType(info[3], new(*big.Int)).(**big.Int)

	return &core.CertificateRecord{
		Exists:    issuer != (common.Address{}),
		IsValid:   *abi.ConvertType(valid[0], new(bool)).(*bool),
		Issuer:    strings.ToLower(issuer.Hex()),
		IssuedAt:  issuedAt.Int64(),
		Revoked:   revoked,
		RevokedAt: revokedAt.Int64(),
	}, nil
}

func (l *EthLedger) MapWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	return l.transact(ctx, l.wallets, admin, "mapWallet", common.HexToAddress(address))
}

func (l *EthLedger) RevokeWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	return l.transact(ctx, l.wallets, admin, "revokeWallet", common.HexToAddress(address))
}

func (l *EthLedger) StoreCertificateHash(ctx context.Context, hash string, issuer *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	key, err := hashToBytes32(hash)
	if err != nil {
		return nil, err
	}
	return l.transact(ctx, l.certificates, issuer, "storeCertificateHash", key)
}

func (l *EthLedger) RevokeCertificate(ctx context.Context, hash string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error) {
	key, err := hashToBytes32(hash)
	if err != nil {
		return nil, err
	}
	return l.transact(ctx, l.certificates, admin, "revokeCertificate", key)
}

// transact submits a write and blocks until it is mined or the confirm
// timeout elapses.
func (l *EthLedger) transact(ctx context.Context, contract *bind.BoundContract, key *ecdsa.PrivateKey, method string, args ...any) (receipt *core.TxReceipt, err error) {
	defer l.observe(method, time.Now(), &err)

	if key == nil {
		return nil, core.Wrap(core.KindLedger, core.ErrLedger.Msg, errors.New("missing signing key"))
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, l.chainID)
	if err != nil {
		return nil, l.fail(method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()
	opts.Context = ctx

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, l.fail(method, err)
	}
	l.logger.Info("ledger transaction submitted", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	mined, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return nil, l.fail(method, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err))
	}
	return toReceipt(mined)
}

func (l *EthLedger) fail(method string, err error) error {
	l.logger.Error("ledger call failed", zap.String("method", method), zap.Error(err))
	return core.Wrap(core.KindLedger, core.ErrLedger.Msg, fmt.Errorf("%s: %w", method, err))
}

func (l *EthLedger) observe(op string, start time.Time, err *error) {
	l.metrics.ObserveLedger(op, start, *err)
}

// toReceipt converts a mined receipt, treating a reverted status as failure.
func toReceipt(r *types.Receipt) (*core.TxReceipt, error) {
	if r.Status != types.ReceiptStatusSuccessful {
		return nil, core.Wrap(core.KindLedger, core.ErrLedger.Msg, fmt.Errorf("transaction %s reverted", r.TxHash.Hex()))
	}

	fee := decimal.Zero
	if r.EffectiveGasPrice != nil {
		wei := new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
		fee = decimal.NewFromBigInt(wei, -18)
	}
	var block uint64
	if r.BlockNumber != nil {
		block = r.BlockNumber.Uint64()
	}
	return &core.TxReceipt{
		TxRef:       r.TxHash.Hex(),
		BlockNumber: block,
		GasUsed:     r.GasUsed,
		Fee:         fee,
	}, nil
}

func hashToBytes32(hash string) ([32]byte, error) {
	var out [32]byte
	if !core.ValidHash(hash) {
		return out, core.ErrInvalidHash
	}
	copy(out[:], common.FromHex(hash))
	return out, nil
}
