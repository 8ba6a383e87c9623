// Package sqlite provides the SQLite record store backend.
//
// SQLite is file-based and needs no server, making it the default backend
// for local development and single-node deployments. The full record is
// stored as a JSON document next to a few queryable columns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/recordstore"
)

// Client implements recordstore.RecordStore on SQLite.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains configuration for the SQLite record store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Table is the table name, defaulting to "memories".
	Table string
}

// NewClient opens (creating if needed) the SQLite database and ensures the
// table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("sqlite: db path is required")
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "memories"
	}

	client := &Client{db: db, table: table}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			owner_scope TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			confidence TEXT NOT NULL,
			importance TEXT NOT NULL,
			display_text TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s(owner_scope)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// Save inserts or replaces a record by id.
func (c *Client) Save(ctx context.Context, rec *record.MemoryRecord) error {
	data, err := recordstore.EncodeRecord(rec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, owner_scope, memory_type, confidence, importance, display_text, payload, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_scope = excluded.owner_scope,
			memory_type = excluded.memory_type,
			confidence = excluded.confidence,
			importance = excluded.importance,
			display_text = excluded.display_text,
			payload = excluded.payload,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerScope,
		rec.Type.Wire(),
		rec.Confidence.Wire(),
		rec.Importance.Wire(),
		rec.DisplayText,
		string(data),
		rec.CreatedAt,
		rec.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (c *Client) Get(ctx context.Context, id string) (*record.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, c.table)

	var data string
	err := c.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return recordstore.DecodeRecord([]byte(data))
}

// Delete removes a record by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.table)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// List returns every stored record. Rows whose payload no longer decodes
// are skipped rather than failing the whole load.
func (c *Client) List(ctx context.Context) ([]*record.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY created_at`, c.table)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*record.MemoryRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		rec, err := recordstore.DecodeRecord([]byte(data))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (c *Client) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)

	var count int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
