// Package db persists relay state in SQLite through GORM: the preferred
// network and the spin history.
package db

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/spin-relay/spinClient/store"
)

// InMemorySQLiteDSN opens an ephemeral database that lives as long as its single connection.
const InMemorySQLiteDSN = ":memory:"

const (
	dirPerm       = 0o750
	busyTimeoutMs = "5000"
)

// DB owns the GORM handle for the relay database.
type DB struct {
	client *gorm.DB
	path   string
}

// OpenFileDB opens or creates dir/filename, creating dir when missing.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}
	path := filepath.Join(dir, filename)

	pragmas := url.Values{}
	pragmas.Set("_journal_mode", "WAL")
	pragmas.Set("_busy_timeout", busyTimeoutMs)
	pragmas.Set("mode", "rwc")

	d, err := open(path+"?"+pragmas.Encode(), migrateSchema)
	if err != nil {
		return nil, err
	}
	d.path = path
	return d, nil
}

// OpenInMemoryDB opens a database that is discarded on Close.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return open(InMemorySQLiteDSN, migrateSchema)
}

func open(dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// one connection: keeps :memory: alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if migrateSchema {
		if err := client.AutoMigrate(&store.Preference{}, &store.SpinRecord{}); err != nil {
			_ = sqlDB.Close()
			return nil, errors.Wrap(err, "failed to migrate relay schema")
		}
	}
	return &DB{client: client}, nil
}

// Path returns the database file, or "" for an in-memory database.
func (d *DB) Path() string {
	return d.path
}

// Client exposes the GORM handle.
func (d *DB) Client() *gorm.DB {
	return d.client
}

func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database")
}
