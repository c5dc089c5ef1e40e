package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/certify/adapters/artifact"
	"github.com/layer-3/certify/adapters/events"
	"github.com/layer-3/certify/adapters/ledger"
	"github.com/layer-3/certify/adapters/persistence"
	"github.com/layer-3/certify/adapters/store"
	"github.com/layer-3/certify/adapters/tokenizer"
	"github.com/layer-3/certify/internal/config"
	"github.com/layer-3/certify/internal/logger"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"github.com/layer-3/certify/service"
	transport "github.com/layer-3/certify/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Environment, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	config.Log(zapLogger, cfg)

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("certify stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	challenges := store.NewMemoryStore()
	var publisher ports.EventPublisher = events.NopPublisher{}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		challenges = store.NewRedisStore(redisClient)

		streamPub, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return err
		}
		defer streamPub.Close()
		publisher = events.NewWatermillPublisher(streamPub)
	} else {
		logger.Warn("redis not configured, challenges are kept in memory and events are dropped")
	}

	chain, closeChain, err := openLedger(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeChain()

	signKey, ephemeral, err := tokenizer.LoadSigningKey(cfg.Tokens.KeyFile)
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn("using an ephemeral token key, sessions end on restart")
	}
	tokens := tokenizer.NewJWTTokenizer(signKey)

	files, err := openFiles(ctx, cfg)
	if err != nil {
		return err
	}

	deps := service.Deps{
		Store:     db,
		Ledger:    chain,
		Tokenizer: tokens,
		Events:    publisher,
		Logger:    logger,
		Metrics:   m,
	}
	router := transport.SetupRouter(transport.Services{
		Accounts:     service.NewAccountService(deps, cfg.Tokens.SessionTTL),
		Challenges:   service.NewChallengeService(deps, challenges, cfg.Tokens.SigningTTL),
		Issuer:       service.NewIssuanceService(deps, service.NewSHA256Hasher(), artifact.NewRenderer(), files),
		Verifier:     service.NewVerificationService(deps),
		Wallets:      service.NewWalletService(deps),
		Certificates: service.NewCertificateService(deps, files),
	}, transport.Options{
		Tokenizer: tokens,
		Logger:    logger,
		Metrics:   m,
		Gatherer:  reg,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using the in-memory store, data is lost on restart")
		return persistence.NewMemoryStore(), func() {}, nil
	}

	db, err := persistence.OpenPostgres(cfg.Database.DSN, persistence.PoolConfig{
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	gormStore := persistence.NewGormStore(db)
	if err := gormStore.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}
	return gormStore, closeDB, nil
}

func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Collector) (ports.Ledger, func(), error) {
	if cfg.Ledger.Driver == config.DriverMemory {
		logger.Warn("using the in-memory ledger, anchors are not durable")
		return ledger.NewMemoryLedger(cfg.Ledger.MemoryAdmin), func() {}, nil
	}

	client, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	chain, err := ledger.NewEthLedger(client, ledger.Config{
		WalletRegistry:      common.HexToAddress(cfg.Ledger.WalletRegistry),
		CertificateRegistry: common.HexToAddress(cfg.Ledger.CertificateRegistry),
		ChainID:             big.NewInt(cfg.Ledger.ChainID),
		ConfirmTimeout:      cfg.Ledger.ConfirmTimeout,
	}, logger, m)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return chain, client.Close, nil
}

func openFiles(ctx context.Context, cfg *config.Config) (ports.FileStore, error) {
	if cfg.Storage.Driver == config.DriverS3 {
		s3Store, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:   cfg.Storage.Bucket,
			Prefix:   cfg.Storage.Prefix,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	}
	local, err := artifact.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	return local, nil
}
