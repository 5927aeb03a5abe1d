package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/propsync/internal/dbx"
)

const (
	TableSecure = "secure_kv"
	TableBulk   = "bulk_kv"
)

// SQLiteBackend implements Backend over one key/value table.
type SQLiteBackend struct {
	db    dbx.DBTX
	table string
	now   func() time.Time
}

// NewSQLiteBackend binds a backend to table, which must be one of the tables
// created by the migrations.
func NewSQLiteBackend(db dbx.DBTX, table string) *SQLiteBackend {
	return &SQLiteBackend{db: db, table: table, now: time.Now}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, b.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", b.table, key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, written_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, written_at = excluded.written_at
	`, b.table)
	if _, err := b.db.ExecContext(ctx, query, key, value, b.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to set %s[%s]: %w", b.table, key, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, b.table), key); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", b.table, key, err)
	}
	return nil
}

func (b *SQLiteBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s WHERE substr(key, 1, length(?)) = ? ORDER BY key`, b.table)
	rows, err := b.db.QueryContext(ctx, query, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", b.table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", b.table, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", b.table, err)
	}
	return keys, nil
}
