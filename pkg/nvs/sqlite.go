package nvs

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLitePartition keeps all namespaces in one SQLite database.
// The connection runs with synchronous=FULL so every committed statement
// is on stable storage before Exec returns.
type SQLitePartition struct {
	db *sql.DB
}

// OpenSQLitePartition opens (creating if needed) the database at path.
// Use ":memory:" for a volatile partition.
func OpenSQLitePartition(path string) (*SQLitePartition, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers the same way the flash driver does.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		`CREATE TABLE IF NOT EXISTS nvs (
			namespace TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     BLOB NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	return &SQLitePartition{db: db}, nil
}

// Close closes the database.
func (p *SQLitePartition) Close() error {
	return p.db.Close()
}

// Get returns the blob stored under namespace/key.
func (p *SQLitePartition) Get(namespace, key string) ([]byte, error) {
	if err := validateEntry(namespace, key, nil); err != nil {
		return nil, err
	}
	var value []byte
	err := p.db.QueryRow(`SELECT value FROM nvs WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts the blob.
func (p *SQLitePartition) Set(namespace, key string, value []byte) error {
	if err := validateEntry(namespace, key, value); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := p.db.Exec(`
		INSERT INTO nvs (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value
	`, namespace, key, value)
	return err
}

// Delete removes the key.
func (p *SQLitePartition) Delete(namespace, key string) error {
	if err := validateEntry(namespace, key, nil); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM nvs WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// EraseNamespace removes all keys in the namespace.
func (p *SQLitePartition) EraseNamespace(namespace string) error {
	if err := validateName(namespace); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM nvs WHERE namespace = ?`, namespace)
	return err
}

var _ Partition = (*SQLitePartition)(nil)
