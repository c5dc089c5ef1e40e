package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/certify/adapters/artifact"
	"github.com/layer-3/certify/adapters/events"
	"github.com/layer-3/certify/adapters/ledger"
	"github.com/layer-3/certify/adapters/persistence"
	"github.com/layer-3/certify/adapters/store"
	"github.com/layer-3/certify/adapters/tokenizer"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixture wires every service against in-memory adapters with one admin,
// one issuer owning a mapped wallet, and one owner.
type fixture struct {
	t *testing.T

	store      *persistence.MemoryStore
	challenges ports.ChallengeStore
	ledger     *ledger.MemoryLedger
	tokenizer  ports.Tokenizer
	files      *artifact.LocalStore
	filesDir   string
	deps       Deps

	adminKey  *ecdsa.PrivateKey
	issuerKey *ecdsa.PrivateKey

	admin  *core.User
	issuer *core.User
	owner  *core.User
	wallet *core.Wallet

	challenge    *ChallengeService
	issuance     *IssuanceService
	verification *VerificationService
	wallets      *WalletService
	certificates *CertificateService
	accounts     *AccountService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, events.NopPublisher{})
}

func newFixtureWith(t *testing.T, publisher ports.EventPublisher) *fixture {
	t.Helper()

	tokenKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	issuerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	filesDir := t.TempDir()
	files, err := artifact.NewLocalStore(filesDir)
	require.NoError(t, err)

	f := &fixture{
		t:          t,
		store:      persistence.NewMemoryStore(),
		challenges: store.NewMemoryStore(),
		ledger:     ledger.NewMemoryLedger(eth.AddressOf(adminKey)),
		tokenizer:  tokenizer.NewJWTTokenizer(tokenKey),
		files:      files,
		filesDir:   filesDir,
		adminKey:   adminKey,
		issuerKey:  issuerKey,
	}
	f.deps = Deps{
		Store:     f.store,
		Ledger:    f.ledger,
		Tokenizer: f.tokenizer,
		Events:    publisher,
		Logger:    zap.NewNop(),
	}

	f.admin = f.addUser("admin@certify.test", core.RoleAdmin, "Ada", "Admin")
	f.issuer = f.addUser("registrar@uni.test", core.RoleIssuer, "State University", "Registrar")
	f.owner = f.addUser("alice@uni.test", core.RoleOwner, "Alice", "Doe")
	f.wallet = f.addWallet(f.issuer, f.issuerKey)

	f.challenge = NewChallengeService(f.deps, f.challenges, 0)
	f.issuance = NewIssuanceService(f.deps, NewSHA256Hasher(), artifact.NewRenderer(), f.files)
	f.verification = NewVerificationService(f.deps)
	f.wallets = NewWalletService(f.deps)
	f.certificates = NewCertificateService(f.deps, f.files)
	f.accounts = NewAccountService(f.deps, time.Hour)
	return f
}

func (f *fixture) addUser(email string, role core.Role, first, last string) *core.User {
	f.t.Helper()
	u := &core.User{Email: email, PasswordHash: "-", Role: role, FirstName: first, LastName: last, Active: true}
	require.NoError(f.t, f.store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.CreateUser(context.Background(), u)
	}))
	return u
}

// addWallet maps the address of key to user locally and on the ledger.
func (f *fixture) addWallet(user *core.User, key *ecdsa.PrivateKey) *core.Wallet {
	f.t.Helper()
	w := &core.Wallet{Address: eth.AddressOf(key), UserID: user.ID, Active: true, MappedTx: "0xmapped"}
	require.NoError(f.t, f.store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.CreateWallet(context.Background(), w)
	}))
	f.ledger.SetIssuer(w.Address, true)
	return w
}

func (f *fixture) session(u *core.User) *core.Capability {
	now := time.Now()
	return &core.Capability{
		Kind:      core.CapabilitySession,
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

// signingToken runs the wallet challenge flow for key.
func (f *fixture) signingToken(key *ecdsa.PrivateKey) string {
	f.t.Helper()
	ctx := context.Background()
	address := eth.AddressOf(key)

	ch, err := f.challenge.RequestChallenge(ctx, address)
	require.NoError(f.t, err)
	sig, err := eth.SignPersonal(ch.Message, key)
	require.NoError(f.t, err)

	grant, err := f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.NoError(f.t, err)
	return grant.Token
}

func (f *fixture) issueRequest(in core.CertificateInput) IssueRequest {
	return IssueRequest{
		Caller:       f.session(f.issuer),
		SigningToken: f.signingToken(f.issuerKey),
		ChainKey:     f.issuerKey,
		Input:        in,
	}
}

func (f *fixture) aliceInput() core.CertificateInput {
	return core.CertificateInput{
		OwnerName:  "Alice",
		OwnerEmail: "alice@uni.test",
		CourseName: "CS101",
		OwnerID:    f.owner.ID,
	}
}

func (f *fixture) audits(action string, result core.AuditResult) []core.AuditEntry {
	var out []core.AuditEntry
	for _, e := range f.store.AuditEntries() {
		if e.Action == action && e.Result == result {
			out = append(out, e)
		}
	}
	return out
}

func requireKind(t *testing.T, err error, kind core.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, core.KindOf(err), "error: %v", err)
}

// fixedHasher always derives the same hash.
type fixedHasher struct {
	hash string
}

func (h fixedHasher) Derive(core.HashInput) (core.HashResult, error) {
	return core.HashResult{Hash: h.hash, Nonce: "fixed"}, nil
}

// failingRenderer fails the document stage.
type failingRenderer struct {
	*artifact.Renderer
}

func (failingRenderer) Document(core.DocumentData, []byte) ([]byte, error) {
	return nil, core.Wrap(core.KindArtifact, core.ErrArtifact.Msg, errors.New("font missing"))
}

// failingFiles fails every save.
type failingFiles struct {
	ports.FileStore
}

func (failingFiles) Save(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}
