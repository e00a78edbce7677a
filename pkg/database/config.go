package database

import (
	"database/sql"
	"errors"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds the message store settings.
type Config struct {
	DatabasePath string `json:"database_path"`
	// MaxConnections bounds the read pool. Writes go through one goroutine
	// regardless of this value.
	MaxConnections  int           `json:"max_connections"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	// BusyTimeout is how long a reader waits on the writer's lock.
	BusyTimeout time.Duration `json:"busy_timeout"`
	// WriteQueueSize is how many message inserts may wait for the writer.
	WriteQueueSize int `json:"write_queue_size"`
	// MigrationsPath overrides the embedded migrations with a directory on disk.
	MigrationsPath string `json:"migrations_path"`
}

// DefaultConfig returns the settings used by the realtime layer.
// FUNCTIONAL DISCOVERY: chat traffic is many short reads (name lookups,
// history) against one append-only writer, so the read pool is wide and the
// write queue absorbs bursts of send_message frames
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/classbridge.db",
		MaxConnections:  10,
		ConnMaxIdleTime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		WriteQueueSize:  100,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.BusyTimeout < 0 {
		return errors.New("busy timeout cannot be negative")
	}
	if c.WriteQueueSize <= 0 {
		return errors.New("write queue size must be greater than 0")
	}
	return nil
}

// DSN builds the go-sqlite3 connection string.
// ARCHITECTURAL DISCOVERY: busy_timeout and foreign_keys are per connection
// pragmas; passing them in the DSN makes the driver apply them to every pool
// connection instead of only the one that ran a PRAGMA statement
func (c *Config) DSN() string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(c.BusyTimeout.Milliseconds(), 10))
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	return c.DatabasePath + "?" + params.Encode()
}

// Open returns a read pool sized by the config.
func Open(c *Config) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", c.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxConnections)
	db.SetMaxIdleConns(c.MaxConnections)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
