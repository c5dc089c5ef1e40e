package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

// ErrFileNotFound is returned when a certificate has no file of the asked type.
var ErrFileNotFound = core.E(core.KindNotFound, "certificate file not found")

type state struct {
	users       map[string]core.User
	wallets     map[string]core.Wallet
	certs       map[string]core.Certificate
	files       []core.CertificateFile
	revocations []core.Revocation
}

func newState() *state {
	return &state{
		users:   make(map[string]core.User),
		wallets: make(map[string]core.Wallet),
		certs:   make(map[string]core.Certificate),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.certs {
		c.certs[k] = v
	}
	c.files = append(c.files, s.files...)
	c.revocations = append(c.revocations, s.revocations...)
	return c
}

// MemoryStore implements ports.Store in memory. Transactions are serialised
// and work on a copy of the state that replaces the original on commit.
// This is primarily intended for testing and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state

	auditMu sync.Mutex
	audits  []core.AuditEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

// InTx runs fn against a private copy of the state
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.st.clone()
	m.mu.RUnlock()

	tx := &memTx{state: work}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.st = work
	m.mu.Unlock()

	m.auditMu.Lock()
	m.audits = append(m.audits, tx.audits...)
	m.auditMu.Unlock()
	return nil
}

// AppendAudit writes an entry outside any transaction
func (m *MemoryStore) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	stampAudit(e)
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	m.audits = append(m.audits, *e)
	return nil
}

// AuditEntries returns a copy of the committed audit trail
func (m *MemoryStore) AuditEntries() []core.AuditEntry {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	out := make([]core.AuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

// Revocations returns a copy of the committed revocation records
func (m *MemoryStore) Revocations() []core.Revocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Revocation, len(m.st.revocations))
	copy(out, m.st.revocations)
	return out
}

func (m *MemoryStore) UserByID(ctx context.Context, id string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.userByID(id)
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.userByEmail(email)
}

func (m *MemoryStore) ListUsersByRole(ctx context.Context, role core.Role) ([]core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listUsersByRole(role), nil
}

func (m *MemoryStore) WalletByID(ctx context.Context, id string) (*core.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.walletByID(id)
}

func (m *MemoryStore) WalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.walletByAddress(address, false)
}

func (m *MemoryStore) ActiveWalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.walletByAddress(address, true)
}

func (m *MemoryStore) ListWalletsByUser(ctx context.Context, userID string) ([]core.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listWalletsByUser(userID), nil
}

func (m *MemoryStore) CertificateByID(ctx context.Context, id string) (*core.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.certificateByID(id)
}

func (m *MemoryStore) CertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.certificateByHash(hash)
}

func (m *MemoryStore) ListCertificatesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]core.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listCertificatesByOwner(ownerID, limit, offset), nil
}

func (m *MemoryStore) CertificateFile(ctx context.Context, certificateID, fileType string) (*core.CertificateFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.certificateFile(certificateID, fileType)
}

// memTx is the unit of work handed to InTx callbacks.
type memTx struct {
	*state
	audits []core.AuditEntry
}

func (t *memTx) UserByID(ctx context.Context, id string) (*core.User, error) {
	return t.userByID(id)
}

func (t *memTx) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	return t.userByEmail(email)
}

func (t *memTx) ListUsersByRole(ctx context.Context, role core.Role) ([]core.User, error) {
	return t.listUsersByRole(role), nil
}

func (t *memTx) WalletByID(ctx context.Context, id string) (*core.Wallet, error) {
	return t.walletByID(id)
}

func (t *memTx) WalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	return t.walletByAddress(address, false)
}

func (t *memTx) ActiveWalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	return t.walletByAddress(address, true)
}

func (t *memTx) ListWalletsByUser(ctx context.Context, userID string) ([]core.Wallet, error) {
	return t.listWalletsByUser(userID), nil
}

func (t *memTx) CertificateByID(ctx context.Context, id string) (*core.Certificate, error) {
	return t.certificateByID(id)
}

func (t *memTx) CertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	return t.certificateByHash(hash)
}

func (t *memTx) ListCertificatesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]core.Certificate, error) {
	return t.listCertificatesByOwner(ownerID, limit, offset), nil
}

func (t *memTx) CertificateFile(ctx context.Context, certificateID, fileType string) (*core.CertificateFile, error) {
	return t.certificateFile(certificateID, fileType)
}

// Transactions are already serialised, so locking is a plain read.
func (t *memTx) LockWallet(ctx context.Context, id string) (*core.Wallet, error) {
	return t.walletByID(id)
}

func (t *memTx) LockCertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	return t.certificateByHash(hash)
}

func (t *memTx) CreateUser(ctx context.Context, u *core.User) error {
	u.Email = strings.ToLower(u.Email)
	if _, err := t.userByEmail(u.Email); err == nil {
		return core.ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	t.users[u.ID] = *u
	return nil
}

func (t *memTx) CreateWallet(ctx context.Context, w *core.Wallet) error {
	w.Address = strings.ToLower(w.Address)
	if _, err := t.walletByAddress(w.Address, false); err == nil {
		return core.ErrWalletTaken
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	t.wallets[w.ID] = *w
	return nil
}

func (t *memTx) UpdateWallet(ctx context.Context, w *core.Wallet) error {
	if _, ok := t.wallets[w.ID]; !ok {
		return core.ErrWalletNotFound
	}
	t.wallets[w.ID] = *w
	return nil
}

func (t *memTx) CreateCertificate(ctx context.Context, c *core.Certificate) error {
	if _, err := t.certificateByHash(c.Hash); err == nil {
		return core.ErrDuplicateHash
	}
	for _, existing := range t.certs {
		if existing.Number == c.Number {
			return core.ErrDuplicateNumber
		}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.certs[c.ID] = *c
	return nil
}

func (t *memTx) UpdateCertificateRevocation(ctx context.Context, c *core.Certificate) error {
	cur, ok := t.certs[c.ID]
	if !ok {
		return core.ErrCertNotFound
	}
	cur.Revoked = c.Revoked
	cur.RevokedAt = c.RevokedAt
	cur.RevocationReason = c.RevocationReason
	cur.RevocationTxRef = c.RevocationTxRef
	t.certs[c.ID] = cur
	return nil
}

func (t *memTx) CreateCertificateFile(ctx context.Context, f *core.CertificateFile) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	t.files = append(t.files, *f)
	return nil
}

func (t *memTx) CreateRevocation(ctx context.Context, r *core.Revocation) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.revocations = append(t.revocations, *r)
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	stampAudit(e)
	t.audits = append(t.audits, *e)
	return nil
}

func stampAudit(e *core.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func (s *state) userByID(id string) (*core.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &u, nil
}

func (s *state) userByEmail(email string) (*core.User, error) {
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (s *state) listUsersByRole(role core.Role) []core.User {
	var out []core.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *state) walletByID(id string) (*core.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return nil, core.ErrWalletNotFound
	}
	return &w, nil
}

func (s *state) walletByAddress(address string, activeOnly bool) (*core.Wallet, error) {
	address = strings.ToLower(address)
	for _, w := range s.wallets {
		if w.Address == address && (!activeOnly || w.Active) {
			return &w, nil
		}
	}
	return nil, core.ErrWalletNotFound
}

func (s *state) listWalletsByUser(userID string) []core.Wallet {
	var out []core.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *state) certificateByID(id string) (*core.Certificate, error) {
	c, ok := s.certs[id]
	if !ok {
		return nil, core.ErrCertNotFound
	}
	return &c, nil
}

func (s *state) certificateByHash(hash string) (*core.Certificate, error) {
	for _, c := range s.certs {
		if c.Hash == hash {
			return &c, nil
		}
	}
	return nil, core.ErrCertNotFound
}

func (s *state) listCertificatesByOwner(ownerID string, limit, offset int) []core.Certificate {
	var out []core.Certificate
	for _, c := range s.certs {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *state) certificateFile(certificateID, fileType string) (*core.CertificateFile, error) {
	for _, f := range s.files {
		if f.CertificateID == certificateID && f.FileType == fileType {
			return &f, nil
		}
	}
	return nil, ErrFileNotFound
}
