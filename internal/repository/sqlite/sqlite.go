package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens the database at dbPath, creates missing tables and seeds the
// disease guide on first use.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.seedDiseases(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to seed disease guide: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		model_name TEXT NOT NULL,
		predicted_class TEXT NOT NULL,
		confidence REAL NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		image_data TEXT,
		heatmap_data TEXT
	);

	CREATE TABLE IF NOT EXISTS disease_info (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		disease_name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		symptoms TEXT NOT NULL,
		causes TEXT NOT NULL,
		treatment TEXT NOT NULL,
		prevention TEXT NOT NULL,
		severity_level TEXT NOT NULL,
		affected_plants TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_predictions_model_name ON predictions(model_name);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
