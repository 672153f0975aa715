package database

import (
	"fmt"
	"time"

	"marketpay/config"
	"marketpay/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	level := logger.Warn
	if cfg.Development() {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	log.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	if cfg.DBAutoMigrate {
		log.Info("starting auto-migration")
		if err := db.AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		log.Info("auto migration completed")
	}
	return db, nil
}
