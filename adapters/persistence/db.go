package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects to postgres and applies the pool settings.
func OpenPostgres(dsn string, pool PoolConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}

// Config is the gorm configuration every dialect should be opened with.
func Config(log *zap.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:         &zapGormLogger{logger: log.Named("gorm")},
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// zapGormLogger implements gorm/logger.Interface using zap
type zapGormLogger struct {
	logger *zap.Logger
}

func (l *zapGormLogger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l *zapGormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

func (l *zapGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l *zapGormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

// Trace logs queries at debug level. Missing rows are expected and not errors.
func (l *zapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("duration", time.Since(begin)),
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.Warn("SQL query failed", append(fields, zap.Error(err))...)
		return
	}
	l.logger.Debug("SQL query", fields...)
}
