package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens the SQLite database at path and migrates the users table.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// sqlite serialises writers; a single connection also keeps ":memory:" shared
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&SQLiteUser{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return db, nil
}
