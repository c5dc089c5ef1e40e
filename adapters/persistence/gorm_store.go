package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements ports.Store on a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection. Callers should have opened it with
// TranslateError enabled so unique violations surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InTx runs fn in a database transaction.
func (s *GormStore) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{gormReader{db: db}})
	})
}

// AppendAudit writes on the root connection so it is never part of a
// rolled-back transaction.
func (s *GormStore) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	return appendAudit(s.db.WithContext(ctx), e)
}

func (s *GormStore) reader(ctx context.Context) gormReader {
	return gormReader{db: s.db.WithContext(ctx)}
}

func (s *GormStore) UserByID(ctx context.Context, id string) (*core.User, error) {
	return s.reader(ctx).UserByID(ctx, id)
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.reader(ctx).UserByEmail(ctx, email)
}

func (s *GormStore) ListUsersByRole(ctx context.Context, role core.Role) ([]core.User, error) {
	return s.reader(ctx).ListUsersByRole(ctx, role)
}

func (s *GormStore) WalletByID(ctx context.Context, id string) (*core.Wallet, error) {
	return s.reader(ctx).WalletByID(ctx, id)
}

func (s *GormStore) WalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	return s.reader(ctx).WalletByAddress(ctx, address)
}

func (s *GormStore) ActiveWalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	return s.reader(ctx).ActiveWalletByAddress(ctx, address)
}

func (s *GormStore) ListWalletsByUser(ctx context.Context, userID string) ([]core.Wallet, error) {
	return s.reader(ctx).ListWalletsByUser(ctx, userID)
}

func (s *GormStore) CertificateByID(ctx context.Context, id string) (*core.Certificate, error) {
	return s.reader(ctx).CertificateByID(ctx, id)
}

func (s *GormStore) CertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	return s.reader(ctx).CertificateByHash(ctx, hash)
}

func (s *GormStore) ListCertificatesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]core.Certificate, error) {
	return s.reader(ctx).ListCertificatesByOwner(ctx, ownerID, limit, offset)
}

func (s *GormStore) CertificateFile(ctx context.Context, certificateID, fileType string) (*core.CertificateFile, error) {
	return s.reader(ctx).CertificateFile(ctx, certificateID, fileType)
}

type gormReader struct {
	db *gorm.DB
}

func (r gormReader) first(dest any, notFound error, query string, args ...any) error {
	err := r.db.Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

func (r gormReader) UserByID(ctx context.Context, id string) (*core.User, error) {
	var m userModel
	if err := r.first(&m, core.ErrUserNotFound, "id = ?", id); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	var m userModel
	if err := r.first(&m, core.ErrUserNotFound, "email = ?", strings.ToLower(email)); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) ListUsersByRole(ctx context.Context, role core.Role) ([]core.User, error) {
	var rows []userModel
	if err := r.db.Where("role = ?", string(role)).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.User, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toCore())
	}
	return out, nil
}

func (r gormReader) WalletByID(ctx context.Context, id string) (*core.Wallet, error) {
	var m walletModel
	if err := r.first(&m, core.ErrWalletNotFound, "id = ?", id); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) WalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	var m walletModel
	if err := r.first(&m, core.ErrWalletNotFound, "address = ?", strings.ToLower(address)); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) ActiveWalletByAddress(ctx context.Context, address string) (*core.Wallet, error) {
	var m walletModel
	if err := r.first(&m, core.ErrWalletNotFound, "address = ? AND active = ?", strings.ToLower(address), true); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) ListWalletsByUser(ctx context.Context, userID string) ([]core.Wallet, error) {
	var rows []walletModel
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Wallet, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toCore())
	}
	return out, nil
}

func (r gormReader) CertificateByID(ctx context.Context, id string) (*core.Certificate, error) {
	var m certificateModel
	if err := r.first(&m, core.ErrCertNotFound, "id = ?", id); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) CertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	var m certificateModel
	if err := r.first(&m, core.ErrCertNotFound, "hash = ?", hash); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

func (r gormReader) ListCertificatesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]core.Certificate, error) {
	q := r.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []certificateModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Certificate, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toCore())
	}
	return out, nil
}

func (r gormReader) CertificateFile(ctx context.Context, certificateID, fileType string) (*core.CertificateFile, error) {
	var m certificateFileModel
	if err := r.first(&m, ErrFileNotFound, "certificate_id = ? AND file_type = ?", certificateID, fileType); err != nil {
		return nil, err
	}
	return m.toCore(), nil
}

type gormTx struct {
	gormReader
}

func (t *gormTx) forUpdate() gormReader {
	return gormReader{db: t.db.Clauses(clause.Locking{Strength: "UPDATE"})}
}

func (t *gormTx) LockWallet(ctx context.Context, id string) (*core.Wallet, error) {
	return t.forUpdate().WalletByID(ctx, id)
}

func (t *gormTx) LockCertificateByHash(ctx context.Context, hash string) (*core.Certificate, error) {
	return t.forUpdate().CertificateByHash(ctx, hash)
}

func (t *gormTx) CreateUser(ctx context.Context, u *core.User) error {
	u.Email = strings.ToLower(u.Email)
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	m := fromUser(u)
	if err := t.db.Create(m).Error; err != nil {
		return conflict(err, core.ErrEmailTaken)
	}
	u.CreatedAt, u.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (t *gormTx) CreateWallet(ctx context.Context, w *core.Wallet) error {
	w.Address = strings.ToLower(w.Address)
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	m := fromWallet(w)
	if err := t.db.Create(m).Error; err != nil {
		return conflict(err, core.ErrWalletTaken)
	}
	w.CreatedAt = m.CreatedAt
	return nil
}

func (t *gormTx) UpdateWallet(ctx context.Context, w *core.Wallet) error {
	res := t.db.Model(&walletModel{}).Where("id = ?", w.ID).Updates(map[string]any{
		"active":     w.Active,
		"mapped_tx":  w.MappedTx,
		"revoked_tx": w.RevokedTx,
		"revoked_at": w.RevokedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrWalletNotFound
	}
	return nil
}

func (t *gormTx) CreateCertificate(ctx context.Context, c *core.Certificate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	var taken int64
	if err := t.db.Model(&certificateModel{}).Where("number = ?", c.Number).Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return core.ErrDuplicateNumber
	}
	m := fromCertificate(c)
	if err := t.db.Create(m).Error; err != nil {
		return conflict(err, core.ErrDuplicateHash)
	}
	c.CreatedAt = m.CreatedAt
	return nil
}

func (t *gormTx) UpdateCertificateRevocation(ctx context.Context, c *core.Certificate) error {
	res := t.db.Model(&certificateModel{}).Where("id = ?", c.ID).Updates(map[string]any{
		"revoked":           c.Revoked,
		"revoked_at":        c.RevokedAt,
		"revocation_reason": c.RevocationReason,
		"revocation_tx_ref": c.RevocationTxRef,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrCertNotFound
	}
	return nil
}

func (t *gormTx) CreateCertificateFile(ctx context.Context, f *core.CertificateFile) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	m := &certificateFileModel{
		ID:            f.ID,
		CertificateID: f.CertificateID,
		FileType:      f.FileType,
		Path:          f.Path,
		SizeBytes:     f.SizeBytes,
		MimeType:      f.MimeType,
	}
	if err := t.db.Create(m).Error; err != nil {
		return err
	}
	f.CreatedAt = m.CreatedAt
	return nil
}

func (t *gormTx) CreateRevocation(ctx context.Context, r *core.Revocation) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	m := &revocationModel{
		ID:            r.ID,
		Type:          string(r.Type),
		WalletID:      optional(r.WalletID),
		CertificateID: optional(r.CertificateID),
		RevokedBy:     r.RevokedBy,
		Reason:        r.Reason,
		TxRef:         r.TxRef,
	}
	if err := t.db.Create(m).Error; err != nil {
		return err
	}
	r.CreatedAt = m.CreatedAt
	return nil
}

func (t *gormTx) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	return appendAudit(t.db, e)
}

func appendAudit(db *gorm.DB, e *core.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m := &auditModel{
		ID:           e.ID,
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Result:       string(e.Result),
		Metadata:     datatypes.JSON(e.Metadata),
		Error:        e.Error,
		CreatedAt:    e.CreatedAt,
	}
	if err := db.Create(m).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the trail for one resource, oldest first.
func (s *GormStore) AuditEntries(ctx context.Context, resourceType, resourceID string) ([]core.AuditEntry, error) {
	var rows []auditModel
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, core.AuditEntry{
			ID:           m.ID,
			ActorID:      m.ActorID,
			Action:       m.Action,
			ResourceType: m.ResourceType,
			ResourceID:   m.ResourceID,
			Result:       core.AuditResult(m.Result),
			Metadata:     []byte(m.Metadata),
			Error:        m.Error,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out, nil
}

func conflict(err, sentinel error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return sentinel
	}
	return err
}
