// Package storage keeps task and video records in sqlite so they survive a
// restart.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"ai-video-cutter/internal/appdirs"
	"ai-video-cutter/log"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var appDirsResolver = appdirs.Resolve

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// OpenDefault opens the database at the resolved application path.
func OpenDefault() (*Store, error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	return Open(dbPath)
}

// Open opens or creates the sqlite database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// sqlite allows one writer; serialize through a single connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto Migrate the schema
	if err := db.AutoMigrate(&TaskRow{}, &VideoRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.GetLogger().Info("[Storage] database initialized", zap.String("path", dbPath))
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func resolveDBPath() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.DBPathFor(dirs), nil
}
