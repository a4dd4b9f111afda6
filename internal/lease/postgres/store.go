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

// Package postgres implements lease.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/lease"
	"github.com/codeops-vault/vault/internal/pgutil"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Store implements lease.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller retains ownership.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const leaseColumns = `id, lease_id, secret_id, secret_path, backend_type, credential_blob, status,
	ttl_seconds, expires_at, revoked_at, revoked_by, requester, metadata, created_at, updated_at`

func scanLease(row pgx.Row) (*lease.Lease, error) {
	var l lease.Lease
	var backendType, status string
	var metadata []byte
	err := row.Scan(&l.ID, &l.LeaseID, &l.SecretID, &l.SecretPath, &backendType, &l.CredentialBlob,
		&status, &l.TTLSeconds, &l.ExpiresAt, &l.RevokedAt, &l.RevokedBy, &l.Requester, &metadata,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("lease not found")
		}
		return nil, fmt.Errorf("postgres: scan lease: %w", err)
	}
	l.BackendType = lease.BackendType(backendType)
	l.Status = lease.Status(status)
	l.Metadata = pgutil.UnmarshalJSONB(metadata)
	return &l, nil
}

func (s *Store) CreateLease(ctx context.Context, l *lease.Lease) (*lease.Lease, error) {
	query := `INSERT INTO dynamic_lease (lease_id, secret_id, secret_path, backend_type, credential_blob,
		status, ttl_seconds, expires_at, requester, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + leaseColumns

	row := s.pool.QueryRow(ctx, query, l.LeaseID, l.SecretID, l.SecretPath, string(l.BackendType),
		l.CredentialBlob, string(l.Status), l.TTLSeconds, l.ExpiresAt, l.Requester, pgutil.MarshalJSONB(l.Metadata))
	created, err := scanLease(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: create lease: %w", err)
	}
	return created, nil
}

func (s *Store) GetLease(ctx context.Context, leaseID string) (*lease.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM dynamic_lease WHERE lease_id=$1`
	return scanLease(s.pool.QueryRow(ctx, query, leaseID))
}

func (s *Store) UpdateLease(ctx context.Context, l *lease.Lease) error {
	query := `UPDATE dynamic_lease SET status=$2, revoked_at=$3, revoked_by=$4, updated_at=now()
		WHERE lease_id=$1`
	res, err := s.pool.Exec(ctx, query, l.LeaseID, string(l.Status), l.RevokedAt, l.RevokedBy)
	if err != nil {
		return fmt.Errorf("postgres: update lease: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("lease %s not found", l.LeaseID)
	}
	return nil
}

func (s *Store) ListActiveBySecret(ctx context.Context, secretID string) ([]*lease.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM dynamic_lease WHERE secret_id=$1 AND status='ACTIVE'`
	return s.queryList(ctx, query, secretID)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*lease.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM dynamic_lease WHERE status='ACTIVE' AND expires_at < $1`
	return s.queryList(ctx, query, now)
}

func (s *Store) queryList(ctx context.Context, query string, args ...any) ([]*lease.Lease, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query leases: %w", err)
	}
	defer rows.Close()

	var out []*lease.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate leases: %w", err)
	}
	return out, nil
}
