package database

import (
	"database/sql"
	"errors"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration.
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	// WriteTimeout bounds how long a write waits for the writer goroutine.
	WriteTimeout time.Duration `json:"write_timeout"`
	// MigrationsPath overrides the embedded migrations when set.
	MigrationsPath string `json:"migrations_path"`
}

// DefaultConfig returns production-ready database configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/groupchat.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		WriteTimeout:    30 * time.Second,
	}
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}
	return nil
}

// DSN returns the go-sqlite3 connection string. The pragmas ride on the DSN
// so every pooled connection gets them, not only the first.
func (c *Config) DSN() string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_synchronous", "NORMAL")
	return c.DatabasePath + "?" + params.Encode()
}

const sqliteOptimizations = `
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
`

// ApplyOptimizations applies session-level pragmas that go-sqlite3 does not
// accept in the DSN.
func ApplyOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
