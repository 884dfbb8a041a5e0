// Package store implements the passphrase-encrypted SQLite persistence layer.
//
// The database schema itself is plain SQLite, but every piece of secret
// material is encrypted at the column level with AES-256-GCM under a key
// derived from the operator passphrase, so the database file is opaque
// without it. A canary value written at creation time detects a wrong
// passphrase at open.
package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	timeFormat = "2006-01-02T15:04:05.000Z"

	// saltLen is the length of the scrypt salt in bytes.
	saltLen = 16

	// canaryPlaintext is the known value used to verify the passphrase.
	canaryPlaintext = "loker-store-canary-v1"
)

// scrypt parameters for passphrase key derivation.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// ErrDatabaseLocked is returned when the store cannot be decrypted with the
// supplied passphrase.
var ErrDatabaseLocked = errors.New("store: database is locked (wrong passphrase)")

// errConstraint wraps unique-constraint violations so callers can map them
// to ResourceExistsException.
type errConstraint struct {
	err error
}

func (e *errConstraint) Error() string { return e.err.Error() }
func (e *errConstraint) Unwrap() error { return e.err }

// IsConstraint reports whether err is a unique-constraint violation.
func IsConstraint(err error) bool {
	var ce *errConstraint
	return errors.As(err, &ce)
}

// wrapConstraint converts SQLite unique/primary-key violations into
// errConstraint, leaving other errors untouched.
func wrapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY") {
		return &errConstraint{err: err}
	}
	return err
}

// Store is the encrypted SQLite-backed persistence layer.
type Store struct {
	db   *sql.DB
	aead cipher.AEAD
}

// Open opens (or creates) the database at path and unlocks it with the
// passphrase. A wrong passphrase on an existing database yields
// ErrDatabaseLocked.
func Open(path, passphrase string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	if err := s.unlock(passphrase); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// Safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *Store) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS secrets (
			arn                 TEXT PRIMARY KEY,
			name                TEXT NOT NULL UNIQUE,
			description         TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,
			deleted_at          TEXT,
			scheduled_delete_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_secrets_name ON secrets(name);

		CREATE TABLE IF NOT EXISTS secrets_versions (
			secret_arn       TEXT NOT NULL,
			version_id       TEXT NOT NULL,
			secret_string    BLOB,
			secret_binary    BLOB,
			created_at       TEXT NOT NULL,
			last_accessed_at TEXT,

			PRIMARY KEY (secret_arn, version_id),
			FOREIGN KEY (secret_arn) REFERENCES secrets(arn) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_versions_secret ON secrets_versions(secret_arn, version_id);

		CREATE TABLE IF NOT EXISTS secret_version_stages (
			secret_arn TEXT NOT NULL,
			version_id TEXT NOT NULL,
			label      TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (secret_arn, version_id, label),
			UNIQUE (secret_arn, label),
			FOREIGN KEY (secret_arn, version_id)
				REFERENCES secrets_versions(secret_arn, version_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS secrets_tags (
			secret_arn TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (secret_arn, key),
			FOREIGN KEY (secret_arn) REFERENCES secrets(arn) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_tags_secret ON secrets_tags(secret_arn);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// unlock derives the encryption key from the passphrase and verifies it
// against the stored canary, minting salt and canary on first open.
func (s *Store) unlock(passphrase string) error {
	salt, err := s.getMeta("kdf_salt")
	if err != nil {
		return fmt.Errorf("reading kdf salt: %w", err)
	}

	var saltBytes []byte
	if salt == "" {
		saltBytes = make([]byte, saltLen)
		if _, err := rand.Read(saltBytes); err != nil {
			return fmt.Errorf("generating kdf salt: %w", err)
		}
		if err := s.setMeta("kdf_salt", hex.EncodeToString(saltBytes)); err != nil {
			return fmt.Errorf("persisting kdf salt: %w", err)
		}
	} else {
		saltBytes, err = hex.DecodeString(salt)
		if err != nil {
			return fmt.Errorf("decoding kdf salt: %w", err)
		}
	}

	key, err := scrypt.Key([]byte(passphrase), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("deriving store key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	s.aead, err = cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("creating AEAD: %w", err)
	}

	canary, err := s.getMeta("canary")
	if err != nil {
		return fmt.Errorf("reading canary: %w", err)
	}
	if canary == "" {
		sealed, err := s.encrypt([]byte(canaryPlaintext))
		if err != nil {
			return fmt.Errorf("sealing canary: %w", err)
		}
		if err := s.setMeta("canary", hex.EncodeToString(sealed)); err != nil {
			return fmt.Errorf("persisting canary: %w", err)
		}
		return nil
	}

	sealed, err := hex.DecodeString(canary)
	if err != nil {
		return fmt.Errorf("decoding canary: %w", err)
	}
	plain, err := s.decrypt(sealed)
	if err != nil {
		return ErrDatabaseLocked
	}
	if subtle.ConstantTimeCompare(plain, []byte(canaryPlaintext)) != 1 {
		return ErrDatabaseLocked
	}
	return nil
}

// getMeta reads a store_meta value, returning "" when absent.
func (s *Store) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// setMeta writes a store_meta value.
func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// encrypt seals plaintext as nonce||ciphertext.
func (s *Store) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// decrypt opens a nonce||ciphertext value.
func (s *Store) decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting value: %w", err)
	}
	return plain, nil
}

// Close closes the underlying SQLite database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithTx runs fn inside a single SQLite transaction. The whole model
// operation commits or rolls back as a unit; SQLite's writer-exclusive mode
// provides the serializable semantics the cross-row invariants rely on.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, store: s, ctx: ctx}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// formatTime renders t for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime parses a stored timestamp.
func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

// formatNullTime renders an optional timestamp.
func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseNullTime parses an optional stored timestamp.
func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
