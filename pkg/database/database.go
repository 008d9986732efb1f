package database

import (
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/collab-room-system/internal/config"
	"github.com/collab-room-system/pkg/models"
)

// Open connects to the configured database, applies pool settings and runs
// migrations.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		dialector = mysql.Open(cfg.GetDSN())
	}

	logLevel := logger.Warn
	if cfg.Debug {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	zlog.Info().Str("dialect", db.Dialector.Name()).Msg("running database migrations")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Member{},
		&models.Song{},
		&models.Vote{},
		&models.QueueEntry{},
		&models.Message{},
	); err != nil {
		return err
	}

	return BackfillActiveCodes(db)
}

// BackfillActiveCodes fills active_code for active rooms created before the
// column existed.
func BackfillActiveCodes(db *gorm.DB) error {
	return db.Model(&models.Room{}).
		Where("is_active = ? AND active_code IS NULL", true).
		Update("active_code", gorm.Expr("code")).Error
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
