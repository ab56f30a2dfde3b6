// Package db wraps GORM's sqlite driver with a dual connection pool —
// one connection dedicated to writes (SQLite's single-writer constraint),
// several for concurrent reads — mirroring the separation the teacher
// repository uses for its AST cache.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flanksource/lintsvc/internal/models"

	commonsLogger "github.com/flanksource/commons/logger"
)

// DB is the Database collaborator described in spec.md §2: it persists
// cache entries, job records, and request metrics, and provides the
// indexed lookups the Cache Service and Job Manager need.
type DB struct {
	read  *gorm.DB
	write *gorm.DB
}

// Open creates (or reopens) the sqlite-backed database at path, applying
// WAL mode and the dual pool split, then runs AutoMigrate for every
// persisted model.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logMode := logger.Silent
	if commonsLogger.IsLevelEnabled(3) {
		logMode = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logMode)}

	readConnStr := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=wal&_busy_timeout=5000&_foreign_keys=on&_synchronous=normal", path)
	writeConnStr := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=wal&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_synchronous=normal", path)

	writeDB, err := gorm.Open(sqlite.Open(writeConnStr), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	writeSQL, err := writeDB.DB()
	if err != nil {
		return nil, err
	}
	writeSQL.SetMaxOpenConns(1)
	writeSQL.SetMaxIdleConns(1)

	if err := writeDB.AutoMigrate(
		&models.CacheEntry{},
		&models.JobRecord{},
		&models.MetricRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	readDB, err := gorm.Open(sqlite.Open(readConnStr), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	readSQL, err := readDB.DB()
	if err != nil {
		return nil, err
	}
	readSQL.SetMaxOpenConns(10)
	readSQL.SetMaxIdleConns(5)

	return &DB{read: readDB, write: writeDB}, nil
}

// Read returns the connection pool for read-only queries.
func (d *DB) Read() *gorm.DB { return d.read }

// Write returns the single-connection pool for mutations.
func (d *DB) Write() *gorm.DB { return d.write }

// Close closes both pools. An error closing the write pool is ignored;
// the read pool's close error is returned.
func (d *DB) Close() error {
	if sqlDB, err := d.write.DB(); err == nil {
		_ = sqlDB.Close()
	}
	sqlDB, err := d.read.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
