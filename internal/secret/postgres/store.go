/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package postgres implements secret.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/pgutil"
	"github.com/codeops-vault/vault/internal/secret"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Store implements secret.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller retains ownership.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const secretColumns = `id, team, path, name, description, type, current_version, max_versions,
	retention_days, expires_at, last_accessed_at, last_rotated_at, owner, external_ref, active,
	created_at, updated_at`

func scanSecret(row pgx.Row) (*secret.Secret, error) {
	var s secret.Secret
	var typ string
	err := row.Scan(&s.ID, &s.Team, &s.Path, &s.Name, &s.Description, &typ, &s.CurrentVersion,
		&s.MaxVersions, &s.RetentionDays, &s.ExpiresAt, &s.LastAccessed, &s.LastRotated,
		&s.Owner, &s.ExternalRef, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("secret not found")
		}
		return nil, fmt.Errorf("postgres: scan secret: %w", err)
	}
	s.Type = secret.Type(typ)
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateSecret(ctx context.Context, sec *secret.Secret) (*secret.Secret, error) {
	query := `INSERT INTO secret (team, path, name, description, type, current_version, max_versions,
		retention_days, expires_at, owner, external_ref, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + secretColumns

	row := s.pool.QueryRow(ctx, query, sec.Team, sec.Path, sec.Name, sec.Description, string(sec.Type),
		sec.CurrentVersion, sec.MaxVersions, sec.RetentionDays, sec.ExpiresAt, sec.Owner, sec.ExternalRef, sec.Active)
	created, err := scanSecret(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, vaulterr.InvalidInput("secret already exists at path %q for team %q", sec.Path, sec.Team)
		}
		return nil, fmt.Errorf("postgres: create secret: %w", err)
	}
	return created, nil
}

func (s *Store) GetSecret(ctx context.Context, id string) (*secret.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM secret WHERE id=$1`
	return scanSecret(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) UpdateSecret(ctx context.Context, sec *secret.Secret) error {
	query := `UPDATE secret SET
		name=$2, description=$3, current_version=$4, max_versions=$5, retention_days=$6,
		expires_at=$7, owner=$8, external_ref=$9, active=$10, updated_at=now()
		WHERE id=$1`
	res, err := s.pool.Exec(ctx, query, sec.ID, sec.Name, sec.Description, sec.CurrentVersion,
		sec.MaxVersions, sec.RetentionDays, sec.ExpiresAt, sec.Owner, sec.ExternalRef, sec.Active)
	if err != nil {
		return fmt.Errorf("postgres: update secret: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("secret %s not found", sec.ID)
	}
	return nil
}

func (s *Store) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE secret SET last_accessed_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: touch last-accessed: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteSecret(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `UPDATE secret SET active=false, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: soft delete secret: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("secret %s not found", id)
	}
	return nil
}

// HardDeleteSecret removes the Secret, its Versions (via ON DELETE CASCADE),
// Metadata (via ON DELETE CASCADE) and any attached Rotation Policy (via ON
// DELETE CASCADE) in a single transaction. Rotation History and Dynamic
// Lease rows have no foreign key to secret and are left untouched.
func (s *Store) HardDeleteSecret(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin hard delete: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `DELETE FROM secret WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: hard delete secret: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("secret %s not found", id)
	}
	return tx.Commit(ctx)
}

const versionColumns = `id, secret_id, version, envelope, key_id, change_desc, created_by, destroyed, created_at`

func scanVersion(row pgx.Row) (*secret.Version, error) {
	var v secret.Version
	err := row.Scan(&v.ID, &v.SecretID, &v.Version, &v.Envelope, &v.KeyID, &v.ChangeDesc, &v.CreatedBy, &v.Destroyed, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("version not found")
		}
		return nil, fmt.Errorf("postgres: scan version: %w", err)
	}
	return &v, nil
}

func (s *Store) CreateVersion(ctx context.Context, v *secret.Version) (*secret.Version, error) {
	query := `INSERT INTO secret_version (secret_id, version, envelope, key_id, change_desc, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + versionColumns

	row := s.pool.QueryRow(ctx, query, v.SecretID, v.Version, v.Envelope, v.KeyID, v.ChangeDesc, v.CreatedBy)
	created, err := scanVersion(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, vaulterr.InvalidInput("version %d already exists for secret %s", v.Version, v.SecretID)
		}
		return nil, fmt.Errorf("postgres: create version: %w", err)
	}
	return created, nil
}

func (s *Store) GetVersion(ctx context.Context, secretID string, version int) (*secret.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_version WHERE secret_id=$1 AND version=$2`
	return scanVersion(s.pool.QueryRow(ctx, query, secretID, version))
}

func (s *Store) ListVersions(ctx context.Context, secretID string) ([]*secret.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_version WHERE secret_id=$1 ORDER BY version`
	rows, err := s.pool.Query(ctx, query, secretID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list versions: %w", err)
	}
	defer rows.Close()

	var out []*secret.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate versions: %w", err)
	}
	return out, nil
}

func (s *Store) DestroyVersion(ctx context.Context, secretID string, version int) error {
	query := `UPDATE secret_version SET envelope=$3, destroyed=true, updated_at=now()
		WHERE secret_id=$1 AND version=$2`
	res, err := s.pool.Exec(ctx, query, secretID, version, secret.DestroyedCiphertext)
	if err != nil {
		return fmt.Errorf("postgres: destroy version: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("version %d of secret %s not found", version, secretID)
	}
	return nil
}

func (s *Store) SetMetadata(ctx context.Context, secretID, key, value string) error {
	query := `INSERT INTO secret_metadata (secret_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (secret_id, key) DO UPDATE SET value=$3, updated_at=now()`
	_, err := s.pool.Exec(ctx, query, secretID, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set metadata: %w", err)
	}
	return nil
}

func (s *Store) RemoveMetadata(ctx context.Context, secretID, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM secret_metadata WHERE secret_id=$1 AND key=$2`, secretID, key)
	if err != nil {
		return fmt.Errorf("postgres: remove metadata: %w", err)
	}
	return nil
}

func (s *Store) GetAllMetadata(ctx context.Context, secretID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM secret_metadata WHERE secret_id=$1`, secretID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get all metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan metadata row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate metadata: %w", err)
	}
	return out, nil
}

// ReplaceAllMetadata deletes all existing pairs and inserts kv in one transaction.
func (s *Store) ReplaceAllMetadata(ctx context.Context, secretID string, kv map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace metadata: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM secret_metadata WHERE secret_id=$1`, secretID); err != nil {
		return fmt.Errorf("postgres: clear metadata: %w", err)
	}
	for k, v := range kv {
		if _, err := tx.Exec(ctx, `INSERT INTO secret_metadata (secret_id, key, value) VALUES ($1, $2, $3)`, secretID, k, v); err != nil {
			return fmt.Errorf("postgres: insert metadata %q: %w", k, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) List(ctx context.Context, team string, filters secret.ListFilters, page secret.Page) ([]*secret.Secret, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("team = $?", team)

	switch {
	case filters.Type != "":
		qb.Add("type = $?", string(filters.Type))
	case filters.PathPrefix != "":
		qb.Add("path LIKE $?", filters.PathPrefix+"%")
	case filters.ActiveOnly:
		qb.Add("active = $?", true)
	}

	query := `SELECT ` + secretColumns + ` FROM secret WHERE 1=1` + qb.Where() + ` ORDER BY path`
	query = qb.AppendPagination(query, page.Limit, page.Offset)
	return s.queryList(ctx, query, qb.Args()...)
}

func (s *Store) Search(ctx context.Context, team, query string, page secret.Page) ([]*secret.Secret, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("team = $?", team)
	qb.Add("name ILIKE $?", "%"+query+"%")

	sqlQuery := `SELECT ` + secretColumns + ` FROM secret WHERE 1=1` + qb.Where() + ` ORDER BY name`
	sqlQuery = qb.AppendPagination(sqlQuery, page.Limit, page.Offset)
	return s.queryList(ctx, sqlQuery, qb.Args()...)
}

func (s *Store) queryList(ctx context.Context, query string, args ...any) ([]*secret.Secret, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query secrets: %w", err)
	}
	defer rows.Close()

	var out []*secret.Secret
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate secrets: %w", err)
	}
	return out, nil
}

func (s *Store) Paths(ctx context.Context, team, prefix string) ([]string, error) {
	query := `SELECT DISTINCT path FROM secret WHERE team=$1 AND path LIKE $2 ORDER BY path`
	rows, err := s.pool.Query(ctx, query, team, strings.TrimSuffix(prefix, "*")+"%")
	if err != nil {
		return nil, fmt.Errorf("postgres: paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("postgres: scan path: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate paths: %w", err)
	}
	return out, nil
}

func (s *Store) GetExpiringSecrets(ctx context.Context, team string, within time.Duration) ([]*secret.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM secret
		WHERE team=$1 AND active=true AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at`
	return s.queryList(ctx, query, team, time.Now().Add(within))
}
