package db

import (
	"context"
	"fmt"
	"time"

	"devnewz/internal/logger"
	"devnewz/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second
)

// zerologWriter routes gorm's SQL trace through the process logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	logger.Log.Debug().Str("component", "gorm").Msgf(format, args...)
}

// Open connects to PostgreSQL, retrying while the server comes up.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	gormLog := gormlogger.New(zerologWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	var (
		conn *gorm.DB
		err  error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:  gormLog,
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			if err = Health(ctx, conn); err == nil {
				break
			}
		}
		logger.Log.Warn().Err(err).Int("attempt", attempt).Msg("database connection attempt failed")
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Log.Info().Msg("database connection established")
	return conn, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.KarmaLog{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Log.Info().Msg("database migration completed")
	return nil
}

func Health(ctx context.Context, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
