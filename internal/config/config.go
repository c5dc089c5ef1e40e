// Package config loads the service configuration from yaml with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/certify/internal/eth"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Drivers selectable per section.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverEthereum = "ethereum"
	DriverLocal    = "local"
	DriverS3       = "s3"
)

type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Ledger      LedgerConfig   `yaml:"ledger"`
	Tokens      TokensConfig   `yaml:"tokens"`
	Storage     StorageConfig  `yaml:"storage"`
	Logging     LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig backs the challenge store and the event stream. An empty URL
// keeps challenges in memory and disables events.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type LedgerConfig struct {
	Driver              string        `yaml:"driver"`
	RPCURL              string        `yaml:"rpc_url"`
	WalletRegistry      string        `yaml:"wallet_registry"`
	CertificateRegistry string        `yaml:"certificate_registry"`
	ChainID             int64         `yaml:"chain_id"`
	ConfirmTimeout      time.Duration `yaml:"confirm_timeout"`
	// Admin address of the in-memory registry.
	MemoryAdmin string `yaml:"memory_admin"`
}

type TokensConfig struct {
	// PEM encoded P-256 key. Without one an ephemeral key is generated and
	// tokens do not survive a restart.
	KeyFile    string        `yaml:"key_file"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	SigningTTL time.Duration `yaml:"signing_ttl"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration suitable for a local run.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxIdleConns:    5,
			MaxOpenConns:    20,
			ConnMaxLifetime: time.Hour,
		},
		Ledger: LedgerConfig{
			Driver:         DriverEthereum,
			ChainID:        31337,
			ConfirmTimeout: 2 * time.Minute,
		},
		Tokens: TokensConfig{
			SessionTTL: time.Hour,
			SigningTTL: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: DriverLocal,
			Dir:    "uploads/certificates",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("CERTIFY_ENV", &c.Environment)
	setString("PORT", &c.Server.Port)
	setString("CERTIFY_DATABASE_DRIVER", &c.Database.Driver)
	setString("CERTIFY_DATABASE_DSN", &c.Database.DSN)
	setString("REDIS_URL", &c.Redis.URL)
	setString("CERTIFY_LEDGER_DRIVER", &c.Ledger.Driver)
	setString("CERTIFY_RPC_URL", &c.Ledger.RPCURL)
	setString("CERTIFY_WALLET_REGISTRY", &c.Ledger.WalletRegistry)
	setString("CERTIFY_CERT_REGISTRY", &c.Ledger.CertificateRegistry)
	setString("CERTIFY_TOKEN_KEY", &c.Tokens.KeyFile)
	setString("CERTIFY_STORAGE_DRIVER", &c.Storage.Driver)
	setString("CERTIFY_STORAGE_DIR", &c.Storage.Dir)
	setString("CERTIFY_S3_BUCKET", &c.Storage.Bucket)
	setString("LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv("CERTIFY_CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CERTIFY_CHAIN_ID: %w", err)
		}
		c.Ledger.ChainID = id
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Ledger.Driver {
	case DriverEthereum:
		if c.Ledger.RPCURL == "" {
			return errors.New("ledger.rpc_url is required for the ethereum driver")
		}
		if !eth.IsAddress(c.Ledger.WalletRegistry) || !eth.IsAddress(c.Ledger.CertificateRegistry) {
			return errors.New("ledger registry addresses must be valid addresses")
		}
		if c.Ledger.ChainID <= 0 {
			return errors.New("ledger.chain_id must be positive")
		}
	case DriverMemory:
		if !eth.IsAddress(c.Ledger.MemoryAdmin) {
			return errors.New("ledger.memory_admin must be a valid address for the memory driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}

	switch c.Storage.Driver {
	case DriverLocal:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the local driver")
		}
	case DriverS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Tokens.SessionTTL <= 0 || c.Tokens.SigningTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Environment == "production" && c.Tokens.KeyFile == "" {
		return errors.New("tokens.key_file is required in production")
	}
	return nil
}

// Log writes the effective configuration with secrets redacted.
func Log(logger *zap.Logger, c *Config) {
	logger.Info("configuration loaded",
		zap.String("environment", c.Environment),
		zap.String("port", c.Server.Port),
		zap.String("database_driver", c.Database.Driver),
		zap.String("database_dsn", redactDSN(c.Database.DSN)),
		zap.Bool("redis", c.Redis.URL != ""),
		zap.String("ledger_driver", c.Ledger.Driver),
		zap.String("rpc_url", redactDSN(c.Ledger.RPCURL)),
		zap.String("wallet_registry", c.Ledger.WalletRegistry),
		zap.String("certificate_registry", c.Ledger.CertificateRegistry),
		zap.Int64("chain_id", c.Ledger.ChainID),
		zap.Duration("confirm_timeout", c.Ledger.ConfirmTimeout),
		zap.Bool("token_key_file", c.Tokens.KeyFile != ""),
		zap.Duration("session_ttl", c.Tokens.SessionTTL),
		zap.Duration("signing_ttl", c.Tokens.SigningTTL),
		zap.String("storage_driver", c.Storage.Driver),
		zap.String("log_level", c.Logging.Level))
}

// redactDSN hides credentials and query parameters, which often carry
// passwords or API keys.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if i := strings.Index(dsn, "?"); i >= 0 {
		dsn = dsn[:i]
	}
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		scheme := ""
		if i := strings.Index(dsn, "://"); i >= 0 && i < at {
			scheme = dsn[:i+3]
		}
		return scheme + "***" + dsn[at:]
	}
	if strings.Contains(dsn, "password=") {
		return "***"
	}
	return dsn
}
