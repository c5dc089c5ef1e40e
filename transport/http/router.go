package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/certify"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the operations exposed over HTTP
type Services struct {
	Accounts     certify.Accounts
	Challenges   certify.Challenges
	Issuer       certify.Issuer
	Verifier     certify.Verifier
	Wallets      certify.Wallets
	Certificates certify.Certificates
}

// Options carries the router's infrastructure
type Options struct {
	Tokenizer ports.Tokenizer
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	router := gin.New()
	router.Use(RequestLogger(opts.Logger, opts.Metrics), Recovery(opts.Logger))

	handlers := NewHandlers(svc, opts.Logger)
	session := SessionMiddleware(opts.Tokenizer, opts.Now)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": opts.Now().UTC()})
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/auth/login", handlers.Login)
	router.GET("/api/me", session, handlers.Me)

	walletAuth := router.Group("/wallet-auth")
	{
		walletAuth.POST("/challenge", handlers.RequestChallenge)
		walletAuth.POST("/verify", handlers.VerifySignature)
	}

	wallets := router.Group("/wallets", session)
	{
		wallets.POST("/map", RequireRole(core.RoleAdmin), handlers.MapWallet)
		wallets.POST("/revoke", RequireRole(core.RoleAdmin), handlers.RevokeWallet)
		wallets.GET("/my", handlers.MyWallets)
		wallets.GET("/:address", handlers.GetWallet)
	}

	admin := router.Group("/admin", session)
	{
		admin.POST("/issuers", RequireRole(core.RoleAdmin), handlers.CreateIssuer)
		admin.GET("/issuers", RequireRole(core.RoleAdmin), handlers.ListIssuers)
		admin.POST("/owners", RequireRole(core.RoleAdmin, core.RoleIssuer), handlers.CreateOwner)
	}

	certificates := router.Group("/certificates", session)
	{
		certificates.POST("/issue", RequireRole(core.RoleIssuer), handlers.IssueCertificate)
		certificates.POST("/revoke", RequireRole(core.RoleAdmin), handlers.RevokeCertificate)
		certificates.GET("/my", RequireRole(core.RoleOwner), handlers.MyCertificates)
		certificates.GET("/:id/download", RequireRole(core.RoleOwner, core.RoleAdmin), handlers.DownloadCertificate)
	}

	verify := router.Group("/verify")
	{
		verify.POST("/hash", handlers.VerifyHash)
		verify.POST("/bulk", handlers.VerifyBulk)
	}

	return router
}
