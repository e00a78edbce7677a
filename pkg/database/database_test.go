package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classbridge/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Functional Validation Tests - Config

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	assert.Equal(t, "./data/classbridge.db", config.DatabasePath)
	assert.Equal(t, 10, config.MaxConnections)
	assert.Equal(t, 5*time.Minute, config.ConnMaxIdleTime)
	assert.Equal(t, 5*time.Second, config.BusyTimeout)
	assert.Equal(t, 100, config.WriteQueueSize)
	assert.Empty(t, config.MigrationsPath, "embedded migrations are the default")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }, true},
		{"negative busy timeout", func(c *Config) { c.BusyTimeout = -time.Second }, true},
		{"zero write queue", func(c *Config) { c.WriteQueueSize = 0 }, true},
		{"busy timeout disabled", func(c *Config) { c.BusyTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Functional Validation Tests - Migration System

func TestMigrationManager_AppliesEmbeddedSchema(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db, migrations.FS)

	require.NoError(t, mgr.ApplyMigrations())
	require.NoError(t, mgr.ValidateSchema())

	versions, err := mgr.AppliedVersions()
	require.NoError(t, err)
	assert.Contains(t, versions, "001")
}

func TestMigrationManager_Idempotent(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db, migrations.FS)

	require.NoError(t, mgr.ApplyMigrations())
	require.NoError(t, mgr.ApplyMigrations())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	versions, err := mgr.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, len(versions), count)
}

func TestMigrationManager_OrdersByVersion(t *testing.T) {
	db := openTestDB(t)
	files := fstest.MapFS{
		"002_add_column.sql": {Data: []byte(`ALTER TABLE things ADD COLUMN label TEXT;`)},
		"001_things.sql":     {Data: []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)},
		"README.md":          {Data: []byte(`ignored`)},
	}

	mgr := NewMigrationManager(db, files)
	require.NoError(t, mgr.ApplyMigrations())

	_, err := db.Exec(`INSERT INTO things (id, label) VALUES ('a', 'b')`)
	assert.NoError(t, err)

	versions, err := mgr.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, versions)
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	files := fstest.MapFS{
		"001_broken.sql": {Data: []byte(`CREATE TABLE ok_table (id TEXT); THIS IS NOT SQL;`)},
	}

	mgr := NewMigrationManager(db, files)
	require.Error(t, mgr.ApplyMigrations())

	versions, err := mgr.AppliedVersions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestMigrationManager_FromDir(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_test.sql"), []byte(`CREATE TABLE test_table (id TEXT PRIMARY KEY);`), 0644))

	mgr := NewMigrationManagerFromDir(db, dir)
	require.NoError(t, mgr.ApplyMigrations())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='test_table'").Scan(&count))
	assert.Equal(t, 1, count)
}

// Technical Validation Tests - Schema Structure

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	assert.Error(t, validator.ValidateTablesExist())
	assert.Error(t, validator.ValidateIndexes())
	assert.Error(t, NewMigrationManager(db, fstest.MapFS{}).ValidateSchema())
}

func TestSchemaValidator_DetectsWrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE messages (id TEXT PRIMARY KEY, conversation_id TEXT, sender_id TEXT, message TEXT, created_at DATETIME);
	`)
	require.NoError(t, err)

	err = NewSchemaValidator(db).validateColumns("messages", requiredColumns["messages"])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column id has type TEXT")
}

func TestSchema_MessageIDsNeverReused(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db, migrations.FS).ApplyMigrations())

	insert := func() int64 {
		res, err := db.Exec(`INSERT INTO messages (conversation_id, sender_id, message, created_at) VALUES ('42', '7', 'hi', ?)`, time.Now().UTC())
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	first := insert()
	_, err := db.Exec(`DELETE FROM messages WHERE id = ?`, first)
	require.NoError(t, err)
	second := insert()

	assert.Greater(t, second, first)
}

// TECHNICAL VALIDATION TEST: every pooled connection carries the pragmas
func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	config := DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "pool.db")
	config.BusyTimeout = 1500 * time.Millisecond

	db, err := Open(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	first, err := db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var timeout, foreignKeys int
		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, 1500, timeout)
		assert.Equal(t, 1, foreignKeys)
		assert.Equal(t, "wal", mode)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(&Config{})
	assert.Error(t, err)
}
