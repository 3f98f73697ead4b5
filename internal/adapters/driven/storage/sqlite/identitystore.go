package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// IdentityDB is the identity-bearing database: identity mappings plus
// the tokenization audit log, in a file of its own so the processing
// side never has to open it.
type IdentityDB struct {
	db   *sql.DB
	path string
}

// OpenIdentityDB opens identity.db under dataDir, creating and
// migrating it as needed.
func OpenIdentityDB(dataDir string) (*IdentityDB, error) {
	fsys, err := fs.Sub(migrations.Identity, "identity")
	if err != nil {
		return nil, fmt.Errorf("locating identity migrations: %w", err)
	}

	db, path, err := openDB(dataDir, "identity.db", fsys)
	if err != nil {
		return nil, err
	}
	return &IdentityDB{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *IdentityDB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *IdentityDB) Path() string {
	return d.path
}

// IdentityStore returns an IdentityStore backed by this database.
func (d *IdentityDB) IdentityStore() driven.IdentityStore {
	return &identityStore{db: d.db}
}

// AuditLog returns an AuditLog backed by this database.
func (d *IdentityDB) AuditLog() driven.AuditLog {
	return &auditLog{db: d.db}
}

type identityStore struct {
	db *sql.DB
}

var _ driven.IdentityStore = (*identityStore)(nil)

// Insert stores the mapping unless one already exists for its key hash.
// The WHERE NOT EXISTS guard makes the existence check and the insert a
// single atomic statement, which is what serializes concurrent issuance.
func (s *identityStore) Insert(ctx context.Context, mapping domain.IdentityMapping) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_mappings (key_hash, token, identity_blob, created_at, active)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM identity_mappings WHERE key_hash = ?
		)
	`, mapping.KeyHash, string(mapping.Token), mapping.IdentityBlob,
		mapping.CreatedAt.UnixNano(), boolInt(mapping.Active), mapping.KeyHash)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storeErr("inserting mapping", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("checking insert result", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// ListByKeyHash returns all mappings for a key hash, oldest first.
func (s *identityStore) ListByKeyHash(ctx context.Context, keyHash string) ([]domain.IdentityMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key_hash, token, identity_blob, created_at, active
		FROM identity_mappings WHERE key_hash = ?
		ORDER BY created_at
	`, keyHash)
	if err != nil {
		return nil, storeErr("querying mappings", err)
	}
	defer rows.Close()

	var mappings []domain.IdentityMapping //nolint:prealloc // size unknown from query
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating mappings", err)
	}
	return mappings, nil
}

// GetByToken retrieves the mapping for a token.
func (s *identityStore) GetByToken(ctx context.Context, token domain.Token) (*domain.IdentityMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key_hash, token, identity_blob, created_at, active
		FROM identity_mappings WHERE token = ?
	`, string(token))

	var mapping domain.IdentityMapping
	var tokenStr string
	var createdAt int64
	var active int
	if err := row.Scan(&mapping.KeyHash, &tokenStr, &mapping.IdentityBlob, &createdAt, &active); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("scanning mapping", err)
	}

	mapping.Token = domain.Token(tokenStr)
	mapping.CreatedAt = time.Unix(0, createdAt).UTC()
	mapping.Active = active != 0
	return &mapping, nil
}

// Deactivate marks a mapping inactive. The row remains.
func (s *identityStore) Deactivate(ctx context.Context, token domain.Token) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identity_mappings SET active = 0 WHERE token = ?
	`, string(token))
	if err != nil {
		return storeErr("deactivating mapping", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("checking deactivate result", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanMapping scans a mapping from *sql.Rows.
func scanMapping(rows *sql.Rows) (*domain.IdentityMapping, error) {
	var mapping domain.IdentityMapping
	var tokenStr string
	var createdAt int64
	var active int
	if err := rows.Scan(&mapping.KeyHash, &tokenStr, &mapping.IdentityBlob, &createdAt, &active); err != nil {
		return nil, storeErr("scanning mapping", err)
	}

	mapping.Token = domain.Token(tokenStr)
	mapping.CreatedAt = time.Unix(0, createdAt).UTC()
	mapping.Active = active != 0
	return &mapping, nil
}

type auditLog struct {
	db *sql.DB
}

var _ driven.AuditLog = (*auditLog)(nil)

// Append stores one audit entry.
func (l *auditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (caller, purpose, outcome, created_at)
		VALUES (?, ?, ?, ?)
	`, string(entry.Caller), entry.Purpose, entry.Outcome, entry.CreatedAt.UnixNano())
	if err != nil {
		return storeErr("appending audit entry", err)
	}
	return nil
}

// List returns the most recent entries, newest first. A limit of zero
// returns everything.
func (l *auditLog) List(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT caller, purpose, outcome, created_at
		FROM audit_log ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("querying audit log", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.AuditEntry
		var caller string
		var createdAt int64
		if err := rows.Scan(&caller, &entry.Purpose, &entry.Outcome, &createdAt); err != nil {
			return nil, storeErr("scanning audit entry", err)
		}
		entry.Caller = domain.Realm(caller)
		entry.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating audit log", err)
	}
	return entries, nil
}

// boolInt converts a bool for SQLite storage.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
