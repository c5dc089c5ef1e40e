package persistence

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storeFactory func(t *testing.T) ports.Store

func newSQLiteStore(t *testing.T) ports.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), Config(zap.NewNop()))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newMemStore(t *testing.T) ports.Store {
	return NewMemoryStore()
}

func eachStore(t *testing.T, fn func(t *testing.T, s ports.Store)) {
	for name, f := range map[string]storeFactory{
		"memory": newMemStore,
		"gorm":   newSQLiteStore,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, f(t))
		})
	}
}

func seedIssuer(t *testing.T, s ports.Store, email, address string) (*core.User, *core.Wallet) {
	t.Helper()
	u := &core.User{Email: email, PasswordHash: "x", Role: core.RoleIssuer, FirstName: "Acme", Active: true}
	w := &core.Wallet{Address: address, Active: true, MappedTx: "0x01"}
	err := s.InTx(context.Background(), func(tx ports.Tx) error {
		if err := tx.CreateUser(context.Background(), u); err != nil {
			return err
		}
		w.UserID = u.ID
		return tx.CreateWallet(context.Background(), w)
	})
	require.NoError(t, err)
	return u, w
}

func TestStore_UsersAndWallets(t *testing.T) {
	eachStore(t, func(t *testing.T, s ports.Store) {
		ctx := context.Background()
		u, w := seedIssuer(t, s, "Issuer@Acme.org", "0xAbCdEf0000000000000000000000000000000001")

		got, err := s.UserByEmail(ctx, "issuer@acme.org")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "issuer@acme.org", got.Email)

		wallet, err := s.ActiveWalletByAddress(ctx, "0xABCDEF0000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, w.ID, wallet.ID)
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", wallet.Address)

		wallets, err := s.ListWalletsByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, wallets, 1)

		issuers, err := s.ListUsersByRole(ctx, core.RoleIssuer)
		require.NoError(t, err)
		assert.Len(t, issuers, 1)

		_, err = s.UserByID(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrUserNotFound)
	})
}

func TestStore_UniqueConstraints(t *testing.T) {
	eachStore(t, func(t *testing.T, s ports.Store) {
		ctx := context.Background()
		seedIssuer(t, s, "a@acme.org", "0x00000000000000000000000000000000000000aa")

		err := s.InTx(ctx, func(tx ports.Tx) error {
			return tx.CreateUser(ctx, &core.User{Email: "A@acme.org", PasswordHash: "x", Role: core.RoleOwner, Active: true})
		})
		assert.ErrorIs(t, err, core.ErrEmailTaken)

		err = s.InTx(ctx, func(tx ports.Tx) error {
			return tx.CreateWallet(ctx, &core.Wallet{Address: "0x00000000000000000000000000000000000000AA", UserID: "u", Active: true})
		})
		assert.ErrorIs(t, err, core.ErrWalletTaken)
	})
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	eachStore(t, func(t *testing.T, s ports.Store) {
		ctx := context.Background()
		boom := fmt.Errorf("boom")

		err := s.InTx(ctx, func(tx ports.Tx) error {
			if err := tx.CreateUser(ctx, &core.User{Email: "gone@acme.org", PasswordHash: "x", Role: core.RoleOwner, Active: true}); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, core.NewAuditEntry("", core.ActionUserLogin, core.ResourceUser, "", core.AuditSuccess, nil)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.UserByEmail(ctx, "gone@acme.org")
		assert.ErrorIs(t, err, core.ErrUserNotFound)

		require.NoError(t, s.AppendAudit(ctx, core.NewAuditEntry("", core.ActionUserLogin, core.ResourceUser, "", core.AuditFailure, nil)))
	})
}

func TestStore_Certificates(t *testing.T) {
	eachStore(t, func(t *testing.T, s ports.Store) {
		ctx := context.Background()
		issuer, wallet := seedIssuer(t, s, "b@acme.org", "0x00000000000000000000000000000000000000bb")
		hash := "aa00000000000000000000000000000000000000000000000000000000000001"

		cert := &core.Certificate{
			Hash:           hash,
			Number:         "CERT-1",
			RecipientName:  "Alice",
			CourseName:     "CS101",
			IssueDate:      time.Now().UTC(),
			IssuerID:       issuer.ID,
			OwnerID:        "owner-1",
			IssuerWalletID: wallet.ID,
			TxRef:          "0xfeed",
			Nonce:          "n",
		}
		err := s.InTx(ctx, func(tx ports.Tx) error {
			if err := tx.CreateCertificate(ctx, cert); err != nil {
				return err
			}
			return tx.CreateCertificateFile(ctx, &core.CertificateFile{
				CertificateID: cert.ID,
				FileType:      core.FileTypePDF,
				Path:          cert.ID + ".pdf",
				SizeBytes:     10,
				MimeType:      "application/pdf",
			})
		})
		require.NoError(t, err)

		err = s.InTx(ctx, func(tx ports.Tx) error {
			return tx.CreateCertificate(ctx, &core.Certificate{Hash: hash, IssuerID: issuer.ID, OwnerID: "o", IssuerWalletID: wallet.ID})
		})
		assert.ErrorIs(t, err, core.ErrDuplicateHash)

		err = s.InTx(ctx, func(tx ports.Tx) error {
			return tx.CreateCertificate(ctx, &core.Certificate{
				Hash:           strings.Repeat("b", 64),
				Number:         "CERT-1",
				IssuerID:       issuer.ID,
				OwnerID:        "o",
				IssuerWalletID: wallet.ID,
			})
		})
		assert.ErrorIs(t, err, core.ErrDuplicateNumber)

		got, err := s.CertificateByHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.RecipientName)
		assert.False(t, got.Revoked)

		file, err := s.CertificateFile(ctx, cert.ID, core.FileTypePDF)
		require.NoError(t, err)
		assert.Equal(t, cert.ID+".pdf", file.Path)

		owned, err := s.ListCertificatesByOwner(ctx, "owner-1", 10, 0)
		require.NoError(t, err)
		assert.Len(t, owned, 1)

		now := time.Now().UTC()
		err = s.InTx(ctx, func(tx ports.Tx) error {
			c, err := tx.LockCertificateByHash(ctx, hash)
			if err != nil {
				return err
			}
			c.Revoked = true
			c.RevokedAt = &now
			c.RevocationReason = "fraud"
			c.RevocationTxRef = "0xdead"
			if err := tx.UpdateCertificateRevocation(ctx, c); err != nil {
				return err
			}
			return tx.CreateRevocation(ctx, &core.Revocation{
				Type:          core.RevocationCertificate,
				CertificateID: c.ID,
				RevokedBy:     "admin",
				Reason:        "fraud",
				TxRef:         "0xdead",
			})
		})
		require.NoError(t, err)

		got, err = s.CertificateByID(ctx, cert.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
		assert.Equal(t, "fraud", got.RevocationReason)
		require.NotNil(t, got.RevokedAt)
	})
}

func TestStore_WalletDeactivation(t *testing.T) {
	eachStore(t, func(t *testing.T, s ports.Store) {
		ctx := context.Background()
		_, wallet := seedIssuer(t, s, "c@acme.org", "0x00000000000000000000000000000000000000cc")

		err := s.InTx(ctx, func(tx ports.Tx) error {
			w, err := tx.LockWallet(ctx, wallet.ID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			w.Active = false
			w.RevokedAt = &now
			w.RevokedTx = "0xbeef"
			return tx.UpdateWallet(ctx, w)
		})
		require.NoError(t, err)

		_, err = s.ActiveWalletByAddress(ctx, wallet.Address)
		assert.ErrorIs(t, err, core.ErrWalletNotFound)

		w, err := s.WalletByAddress(ctx, wallet.Address)
		require.NoError(t, err)
		assert.False(t, w.Active)
		assert.Equal(t, "0xbeef", w.RevokedTx)
	})
}

func TestMemoryStore_AuditTrail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx ports.Tx) error {
		return tx.AppendAudit(ctx, core.NewAuditEntry("a", core.ActionWalletMapped, core.ResourceWallet, "w", core.AuditSuccess, map[string]string{"k": "v"}))
	}))
	_ = s.InTx(ctx, func(tx ports.Tx) error {
		_ = tx.AppendAudit(ctx, core.NewAuditEntry("a", core.ActionWalletMapped, core.ResourceWallet, "w2", core.AuditSuccess, nil))
		return fmt.Errorf("rollback")
	})

	entries := s.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "w", entries[0].ResourceID)
	assert.NotEmpty(t, entries[0].ID)
	assert.JSONEq(t, `{"k":"v"}`, string(entries[0].Metadata))
}

func TestGormStore_AuditEntries(t *testing.T) {
	s := newSQLiteStore(t).(*GormStore)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, core.NewAuditEntry("a", core.ActionCertIssued, core.ResourceCertificate, "c1", core.AuditFailure, map[string]string{"stage": "ledger"}).WithError(fmt.Errorf("boom"))))

	entries, err := s.AuditEntries(ctx, core.ResourceCertificate, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.AuditFailure, entries[0].Result)
	assert.Equal(t, "boom", entries[0].Error)
	assert.JSONEq(t, `{"stage":"ledger"}`, string(entries[0].Metadata))
}
