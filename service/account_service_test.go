package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/certify/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateIssuerAndLogin(t *testing.T) {
	f := newFixture(t)
	f.accounts.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	created, err := f.accounts.CreateIssuer(ctx, f.session(f.admin), NewAccount{
		Email:     "Registrar@College.test",
		FirstName: "City College",
		LastName:  "Jane Roe",
		Phone:     "+1 555 0100",
		Website:   "https://college.test",
	})
	require.NoError(t, err)
	assert.Equal(t, "registrar@college.test", created.User.Email)
	assert.Equal(t, core.RoleIssuer, created.User.Role)
	assert.NotEmpty(t, created.TempPassword)
	assert.NotEqual(t, created.TempPassword, created.User.PasswordHash)

	session, err := f.accounts.Login(ctx, "registrar@college.test", created.TempPassword)
	require.NoError(t, err)
	c, err := f.tokenizer.TokenToCapability(session.Token, core.CapabilitySession)
	require.NoError(t, err)
	require.NoError(t, c.Validate(core.CapabilitySession, time.Now()))
	assert.Equal(t, created.User.ID, c.UserID)
	assert.Equal(t, core.RoleIssuer, c.Role)

	me, err := f.accounts.Me(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "City College", me.FirstName)

	// Session tokens are not signing tokens.
	_, err = f.tokenizer.TokenToCapability(session.Token, core.CapabilitySigning)
	requireKind(t, err, core.KindNotAuthorized)

	issuers, err := f.accounts.ListIssuers(ctx, f.session(f.admin))
	require.NoError(t, err)
	assert.Len(t, issuers, 2)

	entries := f.audits(core.ActionIssuerCreated, core.AuditSuccess)
	require.Len(t, entries, 1)
	var metadata map[string]string
	require.NoError(t, json.Unmarshal(entries[0].Metadata, &metadata))
	assert.Equal(t, "+1 555 0100", metadata["contactPhone"])
	assert.Equal(t, "https://college.test", metadata["website"])
	assert.Equal(t, "Jane Roe", metadata["lastName"])
	assert.Len(t, f.audits(core.ActionUserLogin, core.AuditSuccess), 1)
}

func TestListIssuersWithWallets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.addUser("second@uni.test", core.RoleIssuer, "Second University", "")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	spare := f.addWallet(f.issuer, key)
	_, err = f.wallets.RevokeWallet(ctx, f.session(f.admin), spare.Address, "rotated", f.adminKey)
	require.NoError(t, err)

	issuers, err := f.accounts.ListIssuers(ctx, f.session(f.admin))
	require.NoError(t, err)
	require.Len(t, issuers, 2)

	byID := make(map[string][]string)
	for _, s := range issuers {
		byID[s.User.ID] = s.Wallets
	}
	assert.Equal(t, []string{f.wallet.Address}, byID[f.issuer.ID])
	assert.Empty(t, byID[second.ID])

	_, err = f.accounts.ListIssuers(ctx, f.session(f.issuer))
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestCreateIssuerValidation(t *testing.T) {
	f := newFixture(t)
	f.accounts.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	_, err := f.accounts.CreateIssuer(ctx, f.session(f.issuer), NewAccount{Email: "x@y.test", FirstName: "X"})
	require.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.accounts.CreateIssuer(ctx, f.session(f.admin), NewAccount{Email: "x@y.test"})
	requireKind(t, err, core.KindValidation)

	_, err = f.accounts.CreateIssuer(ctx, f.session(f.admin), NewAccount{Email: "nope", FirstName: "X"})
	requireKind(t, err, core.KindValidation)

	_, err = f.accounts.CreateIssuer(ctx, f.session(f.admin), NewAccount{Email: f.issuer.Email, FirstName: "X"})
	require.ErrorIs(t, err, core.ErrEmailTaken)
	assert.Len(t, f.audits(core.ActionIssuerCreated, core.AuditFailure), 1)
}

func TestCreateOwner(t *testing.T) {
	f := newFixture(t)
	f.accounts.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	created, err := f.accounts.CreateOwner(ctx, f.session(f.issuer), NewAccount{Email: "carol@uni.test", FirstName: "Carol"})
	require.NoError(t, err)
	assert.Equal(t, core.RoleOwner, created.User.Role)

	_, err = f.accounts.CreateOwner(ctx, f.session(f.owner), NewAccount{Email: "dave@uni.test", FirstName: "Dave"})
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.accounts.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	created, err := f.accounts.CreateOwner(ctx, f.session(f.admin), NewAccount{Email: "erin@uni.test", FirstName: "Erin"})
	require.NoError(t, err)

	_, err = f.accounts.Login(ctx, "", "")
	requireKind(t, err, core.KindValidation)

	_, err = f.accounts.Login(ctx, "nobody@uni.test", "secret")
	require.ErrorIs(t, err, core.ErrBadCredentials)

	_, err = f.accounts.Login(ctx, "erin@uni.test", "wrong")
	require.ErrorIs(t, err, core.ErrBadCredentials)

	_, err = f.accounts.Login(ctx, "ERIN@uni.test", created.TempPassword)
	require.NoError(t, err)

	assert.Len(t, f.audits(core.ActionUserLogin, core.AuditFailure), 1)
}
