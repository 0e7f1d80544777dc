package db

import (
	"fmt"
	stlog "log" // Alias for standard log, needed for GORM's logger.New
	"time"

	"github.com/rs/zerolog/log" // Use zerolog's global logger
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open initializes a database connection using the provided DSN.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	// Configure GORM's logger level from zerolog's global level so the two
	// stay roughly in sync.
	var gormLogLevel gormlogger.LogLevel
	switch log.Logger.GetLevel().String() {
	case "error":
		gormLogLevel = gormlogger.Error
	case "warn":
		gormLogLevel = gormlogger.Warn
	case "fatal", "panic":
		gormLogLevel = gormlogger.Silent
	default: // Includes info, debug, trace
		gormLogLevel = gormlogger.Warn
	}

	newLogger := gormlogger.New(
		stlog.New(log.Logger, "", stlog.LstdFlags), // Write GORM logs through zerolog
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond, // GORM's default slow threshold
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false, // Zerolog handles coloring if its output is console
		},
	)

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Database connection established successfully.")
	return conn, nil
}

// Migrate runs GORM's AutoMigrate for the provided models.
// It should be called after Open.
func Migrate(conn *gorm.DB, modelsToMigrate ...interface{}) error {
	if conn == nil {
		return fmt.Errorf("database not initialized, call Open first")
	}

	if len(modelsToMigrate) == 0 {
		return fmt.Errorf("no models provided for migration")
	}

	if err := conn.AutoMigrate(modelsToMigrate...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	log.Info().Int("models_migrated", len(modelsToMigrate)).Msg("Database migration completed successfully for provided models.")
	return nil
}
