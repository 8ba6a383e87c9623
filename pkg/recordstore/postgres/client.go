// Package postgres provides the PostgreSQL record store backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/recordstore"
)

// Client implements recordstore.RecordStore on PostgreSQL.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Table    string
	SSLMode  string
}

// NewClient connects to PostgreSQL and ensures the table exists.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
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
			id VARCHAR(64) PRIMARY KEY,
			owner_scope VARCHAR(255) NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			confidence VARCHAR(16) NOT NULL,
			importance VARCHAR(16) NOT NULL,
			display_text TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed TIMESTAMPTZ
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_scope = EXCLUDED.owner_scope,
			memory_type = EXCLUDED.memory_type,
			confidence = EXCLUDED.confidence,
			importance = EXCLUDED.importance,
			display_text = EXCLUDED.display_text,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			last_accessed = EXCLUDED.last_accessed
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
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, c.table)

	var data []byte
	err := c.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return recordstore.DecodeRecord(data)
}

// Delete removes a record by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.table)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// List returns every stored record, skipping undecodable rows.
func (c *Client) List(ctx context.Context) ([]*record.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY created_at`, c.table)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*record.MemoryRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		rec, err := recordstore.DecodeRecord(data)
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
