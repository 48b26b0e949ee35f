package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
)

// InitGormDB initializes and returns a GORM database instance backed by SQLite.
// Foreign keys and a busy timeout are enabled through the DSN so concurrent
// uploads wait for the write lock instead of failing.
func InitGormDB(dataSourceName string, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withPragmas(dataSourceName)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Info("GORM Database initialized successfully at %s", dataSourceName)
	return db, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL"
}

// AutoMigrateModels migrates the catalog schema.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Studio{},
		&models.Model{},
		&models.Set{},
		&models.Media{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	logging.Info("GORM AutoMigrate completed successfully.")
	return nil
}
