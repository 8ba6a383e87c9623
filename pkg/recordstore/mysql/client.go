// Package mysql provides the MySQL record store backend.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/recordstore"
)

// Client implements recordstore.RecordStore on MySQL.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains MySQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Table    string
}

// NewClient connects to MySQL and ensures the table exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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
			payload JSON NOT NULL,
			created_at DATETIME(6) NOT NULL,
			last_accessed DATETIME(6),
			INDEX idx_scope (owner_scope)
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
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
		ON DUPLICATE KEY UPDATE
			owner_scope = VALUES(owner_scope),
			memory_type = VALUES(memory_type),
			confidence = VALUES(confidence),
			importance = VALUES(importance),
			display_text = VALUES(display_text),
			payload = VALUES(payload),
			created_at = VALUES(created_at),
			last_accessed = VALUES(last_accessed)
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
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.table)
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
