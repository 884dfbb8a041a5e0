package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SecretRecord is a row in the secrets table.
type SecretRecord struct {
	ARN               string
	Name              string
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	ScheduledDeleteAt *time.Time
}

// Deleted reports whether the secret is soft-deleted.
func (r *SecretRecord) Deleted() bool { return r.DeletedAt != nil }

// VersionRecord is a row in the secrets_versions table. Exactly one of
// SecretString / SecretBinary is non-nil.
type VersionRecord struct {
	SecretARN      string
	VersionID      string
	SecretString   *string
	SecretBinary   []byte
	CreatedAt      time.Time
	LastAccessedAt *time.Time
}

// TagRecord is a row in the secrets_tags table.
type TagRecord struct {
	SecretARN string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tx is a transactional scope over the encrypted store. All reads and
// writes inside a Tx observe and produce a consistent snapshot.
type Tx struct {
	tx    *sql.Tx
	store *Store
	ctx   context.Context
}

// ---- Secret operations ----

// InsertSecret creates a new secret row. Name collisions surface as a
// constraint error (IsConstraint).
func (t *Tx) InsertSecret(rec *SecretRecord) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO secrets (arn, name, description, created_at, updated_at, deleted_at, scheduled_delete_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ARN,
		rec.Name,
		rec.Description,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
		formatNullTime(rec.DeletedAt),
		formatNullTime(rec.ScheduledDeleteAt),
	)
	if err != nil {
		return fmt.Errorf("inserting secret %q: %w", rec.Name, wrapConstraint(err))
	}
	return nil
}

// scanSecret scans a secrets row.
func scanSecret(row interface{ Scan(...interface{}) error }) (*SecretRecord, error) {
	var rec SecretRecord
	var createdAt, updatedAt string
	var deletedAt, scheduledAt sql.NullString
	err := row.Scan(&rec.ARN, &rec.Name, &rec.Description, &createdAt, &updatedAt, &deletedAt, &scheduledAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.DeletedAt = parseNullTime(deletedAt)
	rec.ScheduledDeleteAt = parseNullTime(scheduledAt)
	return &rec, nil
}

const secretColumns = `arn, name, description, created_at, updated_at, deleted_at, scheduled_delete_at`

// GetSecretByName retrieves a secret by its unique name. Returns nil when
// absent.
func (t *Tx) GetSecretByName(name string) (*SecretRecord, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+secretColumns+` FROM secrets WHERE name = ?`, name)
	rec, err := scanSecret(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting secret by name %q: %w", name, err)
	}
	return rec, nil
}

// GetSecretByARN retrieves a secret by ARN. Returns nil when absent.
func (t *Tx) GetSecretByARN(arn string) (*SecretRecord, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+secretColumns+` FROM secrets WHERE arn = ?`, arn)
	rec, err := scanSecret(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting secret by arn %q: %w", arn, err)
	}
	return rec, nil
}

// UpdateSecretDescription sets the description and updated_at.
func (t *Tx) UpdateSecretDescription(arn, description string, now time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE secrets SET description = ?, updated_at = ? WHERE arn = ?`,
		description, formatTime(now), arn)
	if err != nil {
		return fmt.Errorf("updating secret description %q: %w", arn, err)
	}
	return nil
}

// TouchSecret bumps updated_at.
func (t *Tx) TouchSecret(arn string, now time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE secrets SET updated_at = ? WHERE arn = ?`, formatTime(now), arn)
	if err != nil {
		return fmt.Errorf("touching secret %q: %w", arn, err)
	}
	return nil
}

// SoftDeleteSecret marks the secret deleted with a scheduled hard-delete
// instant.
func (t *Tx) SoftDeleteSecret(arn string, deletedAt, scheduledAt time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE secrets SET deleted_at = ?, scheduled_delete_at = ?, updated_at = ? WHERE arn = ?`,
		formatTime(deletedAt), formatTime(scheduledAt), formatTime(deletedAt), arn)
	if err != nil {
		return fmt.Errorf("soft-deleting secret %q: %w", arn, err)
	}
	return nil
}

// RestoreSecret clears the soft-delete fields.
func (t *Tx) RestoreSecret(arn string, now time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE secrets SET deleted_at = NULL, scheduled_delete_at = NULL, updated_at = ? WHERE arn = ?`,
		formatTime(now), arn)
	if err != nil {
		return fmt.Errorf("restoring secret %q: %w", arn, err)
	}
	return nil
}

// HardDeleteSecret removes the secret row; versions, stages, and tags
// cascade.
func (t *Tx) HardDeleteSecret(arn string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM secrets WHERE arn = ?`, arn)
	if err != nil {
		return fmt.Errorf("hard-deleting secret %q: %w", arn, err)
	}
	return nil
}

// ListSecrets returns secrets ordered by name. Soft-deleted secrets are
// excluded unless includeDeleted is set. A non-empty namePrefix filters by
// name prefix. limit/offset page through the result.
func (t *Tx) ListSecrets(includeDeleted bool, namePrefix string, limit, offset int) ([]SecretRecord, error) {
	query := `SELECT ` + secretColumns + ` FROM secrets`
	var conds []string
	var args []interface{}
	if !includeDeleted {
		conds = append(conds, `deleted_at IS NULL`)
	}
	if namePrefix != "" {
		conds = append(conds, `name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(namePrefix)+"%")
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY name LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing secrets: %w", err)
	}
	defer rows.Close()

	var out []SecretRecord
	for rows.Next() {
		rec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning secret row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating secret rows: %w", err)
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

// ---- Version operations ----

// InsertVersion creates a version row, encrypting the payload. Duplicate
// (secret_arn, version_id) pairs surface as a constraint error.
func (t *Tx) InsertVersion(rec *VersionRecord) error {
	var encString, encBinary interface{}
	if rec.SecretString != nil {
		sealed, err := t.store.encrypt([]byte(*rec.SecretString))
		if err != nil {
			return fmt.Errorf("sealing secret string: %w", err)
		}
		encString = sealed
	}
	if rec.SecretBinary != nil {
		sealed, err := t.store.encrypt(rec.SecretBinary)
		if err != nil {
			return fmt.Errorf("sealing secret binary: %w", err)
		}
		encBinary = sealed
	}

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO secrets_versions (secret_arn, version_id, secret_string, secret_binary, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SecretARN,
		rec.VersionID,
		encString,
		encBinary,
		formatTime(rec.CreatedAt),
		formatNullTime(rec.LastAccessedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting version %q/%q: %w", rec.SecretARN, rec.VersionID, wrapConstraint(err))
	}
	return nil
}

// GetVersion retrieves and decrypts a version. Returns nil when absent.
func (t *Tx) GetVersion(secretARN, versionID string) (*VersionRecord, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT secret_arn, version_id, secret_string, secret_binary, created_at, last_accessed_at
		 FROM secrets_versions WHERE secret_arn = ? AND version_id = ?`,
		secretARN, versionID)
	rec, err := t.scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting version %q/%q: %w", secretARN, versionID, err)
	}
	return rec, nil
}

// scanVersion scans and decrypts a secrets_versions row.
func (t *Tx) scanVersion(row interface{ Scan(...interface{}) error }) (*VersionRecord, error) {
	var rec VersionRecord
	var encString, encBinary []byte
	var createdAt string
	var lastAccessed sql.NullString
	err := row.Scan(&rec.SecretARN, &rec.VersionID, &encString, &encBinary, &createdAt, &lastAccessed)
	if err != nil {
		return nil, err
	}
	if encString != nil {
		plain, err := t.store.decrypt(encString)
		if err != nil {
			return nil, fmt.Errorf("unsealing secret string: %w", err)
		}
		s := string(plain)
		rec.SecretString = &s
	}
	if encBinary != nil {
		plain, err := t.store.decrypt(encBinary)
		if err != nil {
			return nil, fmt.Errorf("unsealing secret binary: %w", err)
		}
		rec.SecretBinary = plain
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.LastAccessedAt = parseNullTime(lastAccessed)
	return &rec, nil
}

// ListVersions returns all versions of a secret, newest first.
func (t *Tx) ListVersions(secretARN string) ([]VersionRecord, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT secret_arn, version_id, secret_string, secret_binary, created_at, last_accessed_at
		 FROM secrets_versions WHERE secret_arn = ?
		 ORDER BY created_at DESC, version_id`,
		secretARN)
	if err != nil {
		return nil, fmt.Errorf("listing versions for %q: %w", secretARN, err)
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		rec, err := t.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}
	return out, nil
}

// UpdateVersionAccessed sets last_accessed_at on a version.
func (t *Tx) UpdateVersionAccessed(secretARN, versionID string, at time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE secrets_versions SET last_accessed_at = ? WHERE secret_arn = ? AND version_id = ?`,
		formatTime(at), secretARN, versionID)
	if err != nil {
		return fmt.Errorf("updating version access time %q/%q: %w", secretARN, versionID, err)
	}
	return nil
}

// ---- Stage operations ----

// InsertStage attaches a stage label to a version. The UNIQUE(secret_arn,
// label) constraint enforces that a label lives on at most one version.
func (t *Tx) InsertStage(secretARN, versionID, label string, now time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO secret_version_stages (secret_arn, version_id, label, created_at)
		 VALUES (?, ?, ?, ?)`,
		secretARN, versionID, label, formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting stage %q on %q/%q: %w", label, secretARN, versionID, wrapConstraint(err))
	}
	return nil
}

// DeleteStage detaches a stage label from whichever version holds it.
func (t *Tx) DeleteStage(secretARN, label string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM secret_version_stages WHERE secret_arn = ? AND label = ?`,
		secretARN, label)
	if err != nil {
		return fmt.Errorf("deleting stage %q on %q: %w", label, secretARN, err)
	}
	return nil
}

// GetStageVersion returns the version id holding the given label, or ""
// when no version holds it.
func (t *Tx) GetStageVersion(secretARN, label string) (string, error) {
	var versionID string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT version_id FROM secret_version_stages WHERE secret_arn = ? AND label = ?`,
		secretARN, label).Scan(&versionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting stage %q on %q: %w", label, secretARN, err)
	}
	return versionID, nil
}

// ListStagesForVersion returns the labels attached to one version, sorted.
func (t *Tx) ListStagesForVersion(secretARN, versionID string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT label FROM secret_version_stages WHERE secret_arn = ? AND version_id = ? ORDER BY label`,
		secretARN, versionID)
	if err != nil {
		return nil, fmt.Errorf("listing stages for %q/%q: %w", secretARN, versionID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scanning stage row: %w", err)
		}
		out = append(out, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stage rows: %w", err)
	}
	return out, nil
}

// ListStagesForSecret returns a map of version id to its stage labels.
func (t *Tx) ListStagesForSecret(secretARN string) (map[string][]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT version_id, label FROM secret_version_stages WHERE secret_arn = ? ORDER BY version_id, label`,
		secretARN)
	if err != nil {
		return nil, fmt.Errorf("listing stages for %q: %w", secretARN, err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var versionID, label string
		if err := rows.Scan(&versionID, &label); err != nil {
			return nil, fmt.Errorf("scanning stage row: %w", err)
		}
		out[versionID] = append(out[versionID], label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stage rows: %w", err)
	}
	return out, nil
}

// ---- Tag operations ----

// UpsertTag inserts or updates a tag, preserving created_at on update.
func (t *Tx) UpsertTag(secretARN, key, value string, now time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO secrets_tags (secret_arn, key, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (secret_arn, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		secretARN, key, value, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("upserting tag %q on %q: %w", key, secretARN, err)
	}
	return nil
}

// DeleteTag removes a tag by key. Removing an absent key is a no-op.
func (t *Tx) DeleteTag(secretARN, key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM secrets_tags WHERE secret_arn = ? AND key = ?`, secretARN, key)
	if err != nil {
		return fmt.Errorf("deleting tag %q on %q: %w", key, secretARN, err)
	}
	return nil
}

// ListTags returns a secret's tags ordered by key.
func (t *Tx) ListTags(secretARN string) ([]TagRecord, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT secret_arn, key, value, created_at, updated_at
		 FROM secrets_tags WHERE secret_arn = ? ORDER BY key`,
		secretARN)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %q: %w", secretARN, err)
	}
	defer rows.Close()

	var out []TagRecord
	for rows.Next() {
		var rec TagRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.SecretARN, &rec.Key, &rec.Value, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag rows: %w", err)
	}
	return out, nil
}
