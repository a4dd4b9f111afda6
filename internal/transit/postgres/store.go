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

// Package postgres implements transit.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/transit"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Store implements transit.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller retains ownership.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const keyColumns = `id, team, name, description, current_version, min_decryption_version,
	key_versions, algorithm, deletable, exportable, active, created_at, updated_at`

func scanKey(row pgx.Row) (*transit.Key, error) {
	var k transit.Key
	var material []byte
	err := row.Scan(&k.ID, &k.Team, &k.Name, &k.Description, &k.CurrentVersion, &k.MinDecryptionVersion,
		&material, &k.Algorithm, &k.Deletable, &k.Exportable, &k.Active, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("transit key not found")
		}
		return nil, fmt.Errorf("postgres: scan transit key: %w", err)
	}
	k.EncryptedMaterial = string(material)
	return &k, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateKey(ctx context.Context, k *transit.Key) (*transit.Key, error) {
	query := `INSERT INTO transit_key
		(team, name, description, current_version, min_decryption_version, key_versions,
		 algorithm, deletable, exportable, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + keyColumns

	row := s.pool.QueryRow(ctx, query, k.Team, k.Name, k.Description, k.CurrentVersion,
		k.MinDecryptionVersion, []byte(k.EncryptedMaterial), k.Algorithm, k.Deletable, k.Exportable, k.Active)
	created, err := scanKey(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, vaulterr.InvalidInput("key %q already exists for team %q", k.Name, k.Team)
		}
		return nil, fmt.Errorf("postgres: create transit key: %w", err)
	}
	return created, nil
}

func (s *Store) GetKey(ctx context.Context, team, name string) (*transit.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM transit_key WHERE team=$1 AND name=$2`
	return scanKey(s.pool.QueryRow(ctx, query, team, name))
}

func (s *Store) UpdateKey(ctx context.Context, k *transit.Key) error {
	query := `UPDATE transit_key SET
		description=$3, current_version=$4, min_decryption_version=$5, key_versions=$6,
		deletable=$7, exportable=$8, active=$9, updated_at=now()
		WHERE team=$1 AND name=$2`
	res, err := s.pool.Exec(ctx, query, k.Team, k.Name, k.Description, k.CurrentVersion,
		k.MinDecryptionVersion, []byte(k.EncryptedMaterial), k.Deletable, k.Exportable, k.Active)
	if err != nil {
		return fmt.Errorf("postgres: update transit key: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("transit key %q not found for team %q", k.Name, k.Team)
	}
	return nil
}

func (s *Store) DeleteKey(ctx context.Context, team, name string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM transit_key WHERE team=$1 AND name=$2`, team, name)
	if err != nil {
		return fmt.Errorf("postgres: delete transit key: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("transit key %q not found for team %q", name, team)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, team string) ([]*transit.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM transit_key WHERE team=$1 ORDER BY name`
	rows, err := s.pool.Query(ctx, query, team)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transit keys: %w", err)
	}
	defer rows.Close()

	var out []*transit.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate transit keys: %w", err)
	}
	return out, nil
}
