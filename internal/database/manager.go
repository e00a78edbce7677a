package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"classbridge/migrations"
	dbconfig "classbridge/pkg/database"
	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// Directory names one of the two person tables a sender may live in.
type Directory string

const (
	DirectoryUsers Directory = "users"
	DirectoryStaff Directory = "staff"
)

// Manager implements interfaces.DatabaseManager over sqlite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

var _ interfaces.DatabaseManager = (*Manager)(nil)

type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var files fs.FS = migrations.FS
	if config.MigrationsPath != "" {
		files = os.DirFS(config.MigrationsPath)
	}
	migrator := dbconfig.NewMigrationManager(db, files)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.WriteQueueSize),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	// and serializes AUTOINCREMENT assignment, so message ids come out strictly increasing
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// Failed writes are reported to the caller as-is; the client resends.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			if err := op.ctx.Err(); err != nil {
				op.result <- err
				continue
			}
			err := op.operation(op.ctx, m.db)
			if err != nil {
				log.Printf("Database write failed: %v", err)
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}
}

// InsertMessage stores message and fills in its id and createdAt.
func (m *Manager) InsertMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		createdAt := time.Now().UTC()
		res, err := db.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sender_id, message, created_at)
			VALUES (?, ?, ?, ?)
		`,
			message.ConversationID.String(),
			message.SenderID.String(),
			message.Text,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}

		message.ID = id
		message.CreatedAt = createdAt
		return nil
	})
}

// FindPersonName looks the id up across users and staff, first match wins.
func (m *Manager) FindPersonName(ctx context.Context, personID types.ID) (string, bool, error) {
	// FUNCTIONAL DISCOVERY: users are listed first so a parent and a staff member
	// sharing an id resolve to the users row
	query := `
		SELECT name FROM (
			SELECT name, 0 AS rank FROM users WHERE id = ?
			UNION ALL
			SELECT name, 1 AS rank FROM staff WHERE id = ?
		)
		ORDER BY rank
		LIMIT 1
	`

	var name string
	err := m.db.QueryRowContext(ctx, query, personID.String(), personID.String()).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up person %s: %w", personID, err)
	}
	return name, true, nil
}

// ConversationHistory returns up to limit most recent messages, oldest first.
func (m *Manager) ConversationHistory(ctx context.Context, conversationID types.ID, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	// TECHNICAL DISCOVERY: created_at is selected as a plain column so the driver
	// sees its DATETIME declaration and scans it into time.Time
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.message,
			COALESCE(
				(SELECT name FROM users WHERE id = m.sender_id),
				(SELECT name FROM staff WHERE id = m.sender_id),
				''
			) AS sender_name,
			m.created_at
		FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, conversationID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var (
			message  types.Message
			convID   string
			senderID string
		)
		if err := rows.Scan(
			&message.ID,
			&convID,
			&senderID,
			&message.Text,
			&message.SenderName,
			&message.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		message.ConversationID = types.ID(convID)
		message.SenderID = types.ID(senderID)
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpsertPerson records a display name in the users or staff directory.
func (m *Manager) UpsertPerson(ctx context.Context, dir Directory, id types.ID, name, email, role string) error {
	if dir != DirectoryUsers && dir != DirectoryStaff {
		return fmt.Errorf("unknown directory %q", dir)
	}

	// Table name comes from the closed Directory set above.
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, email, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, role = excluded.role
	`, dir)

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, query, id.String(), name, email, role); err != nil {
			return fmt.Errorf("failed to upsert %s row: %w", dir, err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrStoreClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
