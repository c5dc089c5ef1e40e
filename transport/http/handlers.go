package http

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/certify"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/service"
	"go.uber.org/zap"
)

// Handlers contains the HTTP handlers of every route
type Handlers struct {
	accounts     certify.Accounts
	challenges   certify.Challenges
	issuer       certify.Issuer
	verifier     certify.Verifier
	wallets      certify.Wallets
	certificates certify.Certificates
	logger       *zap.Logger
}

// NewHandlers creates the handlers
func NewHandlers(svc Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		accounts:     svc.Accounts,
		challenges:   svc.Challenges,
		issuer:       svc.Issuer,
		verifier:     svc.Verifier,
		wallets:      svc.Wallets,
		certificates: svc.Certificates,
		logger:       logger.With(zap.String("component", "http")),
	}
}

// parseKey returns nil for an empty key so the services report it as missing.
func parseKey(s string) (*ecdsa.PrivateKey, error) {
	if s == "" {
		return nil, nil
	}
	key, err := eth.ParsePrivateKey(s)
	if err != nil {
		return nil, core.E(core.KindValidation, "invalid private key")
	}
	return key, nil
}

// Login handles the password login
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"user":      newUserView(session.User),
	})
}

// Me returns the authenticated user
func (h *Handlers) Me(c *gin.Context) {
	user, err := h.accounts.Me(c.Request.Context(), capabilityOf(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": newUserView(user)})
}

// RequestChallenge handles the wallet challenge request
func (h *Handlers) RequestChallenge(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Wallet address is required")
		return
	}

	ch, err := h.challenges.RequestChallenge(c.Request.Context(), req.WalletAddress)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       ch.Message,
		"nonce":         ch.Nonce,
		"expiresAt":     ch.ExpiresAt,
		"walletAddress": eth.NormalizeAddress(req.WalletAddress),
	})
}

// VerifySignature exchanges a signed challenge for a signing token
func (h *Handlers) VerifySignature(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		Message       string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Wallet address, signature, and message are required")
		return
	}

	grant, err := h.challenges.VerifySignature(c.Request.Context(), req.WalletAddress, req.Signature, req.Message)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"signingToken": grant.Token,
		"expiresAt":    grant.ExpiresAt,
		"user":         newUserView(grant.User),
		"wallet":       newWalletView(grant.Wallet),
	})
}

// CreateIssuer provisions an issuer account
func (h *Handlers) CreateIssuer(c *gin.Context) {
	var req struct {
		InstitutionName string `json:"institutionName"`
		OfficialEmail   string `json:"officialEmail"`
		ContactPerson   string `json:"contactPerson"`
		ContactPhone    string `json:"contactPhone"`
		Website         string `json:"website"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	created, err := h.accounts.CreateIssuer(c.Request.Context(), capabilityOf(c), service.NewAccount{
		Email:     req.OfficialEmail,
		FirstName: req.InstitutionName,
		LastName:  req.ContactPerson,
		Phone:     req.ContactPhone,
		Website:   req.Website,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"issuer":       newUserView(created.User),
		"tempPassword": created.TempPassword,
	})
}

// CreateOwner provisions a certificate owner account
func (h *Handlers) CreateOwner(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	created, err := h.accounts.CreateOwner(c.Request.Context(), capabilityOf(c), service.NewAccount{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"owner":        newUserView(created.User),
		"tempPassword": created.TempPassword,
	})
}

// ListIssuers returns every issuer account
func (h *Handlers) ListIssuers(c *gin.Context) {
	issuers, err := h.accounts.ListIssuers(c.Request.Context(), capabilityOf(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	views := make([]issuerView, 0, len(issuers))
	for i := range issuers {
		views = append(views, newIssuerView(&issuers[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "issuers": views})
}

// MapWallet binds a wallet to an issuer on the registry and locally
func (h *Handlers) MapWallet(c *gin.Context) {
	var req struct {
		WalletAddress   string `json:"walletAddress"`
		UserID          string `json:"userId"`
		AdminPrivateKey string `json:"adminPrivateKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	key, err := parseKey(req.AdminPrivateKey)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	wallet, err := h.wallets.MapWallet(c.Request.Context(), capabilityOf(c), req.UserID, req.WalletAddress, key)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "wallet": newWalletView(wallet)})
}

// RevokeWallet revokes a mapped wallet
func (h *Handlers) RevokeWallet(c *gin.Context) {
	var req struct {
		WalletAddress   string `json:"walletAddress"`
		Reason          string `json:"reason"`
		AdminPrivateKey string `json:"adminPrivateKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	key, err := parseKey(req.AdminPrivateKey)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	wallet, err := h.wallets.RevokeWallet(c.Request.Context(), capabilityOf(c), req.WalletAddress, req.Reason, key)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"txHash":  wallet.RevokedTx,
		"wallet":  newWalletView(wallet),
	})
}

// MyWallets lists the caller's wallets
func (h *Handlers) MyWallets(c *gin.Context) {
	wallets, err := h.wallets.ListWallets(c.Request.Context(), capabilityOf(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	views := make([]*walletView, 0, len(wallets))
	for i := range wallets {
		views = append(views, newWalletView(&wallets[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "wallets": views})
}

// GetWallet returns one wallet by address
func (h *Handlers) GetWallet(c *gin.Context) {
	wallet, err := h.wallets.GetWallet(c.Request.Context(), capabilityOf(c), c.Param("address"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "wallet": newWalletView(wallet)})
}

// IssueCertificate mints a certificate. The signing token travels in its
// own header next to the session.
func (h *Handlers) IssueCertificate(c *gin.Context) {
	var req struct {
		core.CertificateInput
		IssuerPrivateKey string `json:"issuerPrivateKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	key, err := parseKey(req.IssuerPrivateKey)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	issued, err := h.issuer.Issue(c.Request.Context(), service.IssueRequest{
		Caller:       capabilityOf(c),
		SigningToken: c.GetHeader(SigningTokenHeader),
		ChainKey:     key,
		Input:        req.CertificateInput,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"certificateId": issued.CertificateID,
		"hash":          issued.Hash,
		"txHash":        issued.TxRef,
		"message":       "Certificate issued successfully",
	})
}

// MyCertificates lists the certificates owned by the caller
func (h *Handlers) MyCertificates(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	certs, err := h.certificates.ListOwned(c.Request.Context(), capabilityOf(c), limit, offset)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	views := make([]certificateView, 0, len(certs))
	for i := range certs {
		views = append(views, newCertificateView(&certs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "certificates": views})
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

// DownloadCertificate streams the certificate PDF
func (h *Handlers) DownloadCertificate(c *gin.Context) {
	doc, err := h.certificates.OpenDocument(c.Request.Context(), capabilityOf(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer doc.Body.Close()

	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.MimeType, doc.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="certificate-%s"`, doc.Name),
	})
}

// RevokeCertificate revokes a certificate on the registry and locally
func (h *Handlers) RevokeCertificate(c *gin.Context) {
	var req struct {
		Hash            string `json:"hash"`
		Reason          string `json:"reason"`
		AdminPrivateKey string `json:"adminPrivateKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	key, err := parseKey(req.AdminPrivateKey)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	cert, err := h.certificates.RevokeCertificate(c.Request.Context(), capabilityOf(c), req.Hash, req.Reason, key)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"txHash":      cert.RevocationTxRef,
		"certificate": newCertificateView(cert),
	})
}

// VerifyHash verifies one certificate hash
func (h *Handlers) VerifyHash(c *gin.Context) {
	var req struct {
		Hash string `json:"hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Hash == "" {
		badRequest(c, "Certificate hash is required")
		return
	}

	result, err := h.verifier.VerifyOne(c.Request.Context(), req.Hash)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "verification": result})
}

// VerifyBulk verifies up to a hundred hashes
func (h *Handlers) VerifyBulk(c *gin.Context) {
	var req struct {
		Hashes []string `json:"hashes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "hashes must be a non-empty array")
		return
	}

	results, summary, err := h.verifier.VerifyBulk(c.Request.Context(), req.Hashes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary, "results": results})
}
