package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/cryptox"
	"github.com/dmitrijs2005/propsync/internal/dbx"
)

const saltKey = "device_salt"

// SecureBackend encrypts values at rest and refuses values larger than
// MaxValueSize, mirroring the per-value ceiling of platform secure stores.
type SecureBackend struct {
	inner   Backend
	key     []byte
	maxSize int
}

// NewSecureBackend wraps inner. key must be a cryptox.KeySize key; maxSize <= 0
// disables the ceiling.
func NewSecureBackend(inner Backend, key []byte, maxSize int) *SecureBackend {
	return &SecureBackend{inner: inner, key: key, maxSize: maxSize}
}

// MaxValueSize is the largest plaintext accepted by Set.
func (s *SecureBackend) MaxValueSize() int {
	return s.maxSize
}

func (s *SecureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	plain, err := cryptox.Open(sealed, s.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", key, err)
	}
	return plain, nil
}

func (s *SecureBackend) Set(ctx context.Context, key string, value []byte) error {
	if s.maxSize > 0 && len(value) > s.maxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", common.ErrValueTooLarge, key, len(value), s.maxSize)
	}
	sealed, err := cryptox.Seal(value, s.key)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SecureBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SecureBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.Keys(ctx, prefix)
}

// DeviceKey derives the secure backend key from passphrase and the
// per-install salt kept in the metadata table.
func DeviceKey(ctx context.Context, db *sql.DB, passphrase []byte) ([]byte, error) {
	salt, err := LoadOrCreateSalt(ctx, db)
	if err != nil {
		return nil, err
	}
	return cryptox.DeriveKey(passphrase, salt), nil
}

// LoadOrCreateSalt returns the install salt, generating and storing a new
// one on first use.
func LoadOrCreateSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	var salt []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, saltKey).Scan(&salt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		salt = common.GenerateRandByteArray(32)
		_, err = tx.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)`, saltKey, salt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load device salt: %w", err)
	}
	return salt, nil
}
