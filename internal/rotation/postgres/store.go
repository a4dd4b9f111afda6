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

// Package postgres implements rotation.Store on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/rotation"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Store implements rotation.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller retains ownership.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const policyColumns = `id, secret_id, strategy, interval_hours, params, last_rotated_at,
	next_rotation_at, active, failure_count, max_failures, created_at, updated_at`

func scanPolicy(row pgx.Row) (*rotation.Policy, error) {
	var p rotation.Policy
	var strategy string
	var params []byte
	err := row.Scan(&p.ID, &p.SecretID, &strategy, &p.IntervalHours, &params, &p.LastRotatedAt,
		&p.NextRotation, &p.Active, &p.FailureCount, &p.MaxFailures, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("rotation policy not found")
		}
		return nil, fmt.Errorf("postgres: scan rotation policy: %w", err)
	}
	p.Strategy = rotation.Strategy(strategy)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p.Params); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal rotation params: %w", err)
		}
	}
	return &p, nil
}

func (s *Store) UpsertPolicy(ctx context.Context, in rotation.UpsertInput) (*rotation.Policy, error) {
	params, err := json.Marshal(in.Params)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal rotation params: %w", err)
	}
	nextRotation := time.Now().Add(time.Duration(in.IntervalHours) * time.Hour)

	query := `INSERT INTO rotation_policy (secret_id, strategy, interval_hours, params, next_rotation_at, failure_count)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (secret_id) DO UPDATE SET
			strategy=$2, interval_hours=$3, params=$4, next_rotation_at=$5, failure_count=0,
			active=true, updated_at=now()
		RETURNING ` + policyColumns

	row := s.pool.QueryRow(ctx, query, in.SecretID, string(in.Strategy), in.IntervalHours, params, nextRotation)
	p, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert rotation policy: %w", err)
	}
	return p, nil
}

func (s *Store) GetPolicyBySecret(ctx context.Context, secretID string) (*rotation.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM rotation_policy WHERE secret_id=$1`
	return scanPolicy(s.pool.QueryRow(ctx, query, secretID))
}

func (s *Store) UpdatePolicy(ctx context.Context, p *rotation.Policy) error {
	params, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal rotation params: %w", err)
	}
	query := `UPDATE rotation_policy SET
		strategy=$2, interval_hours=$3, params=$4, last_rotated_at=$5, next_rotation_at=$6,
		active=$7, failure_count=$8, max_failures=$9, updated_at=now()
		WHERE id=$1`
	res, err := s.pool.Exec(ctx, query, p.ID, string(p.Strategy), p.IntervalHours, params,
		p.LastRotatedAt, p.NextRotation, p.Active, p.FailureCount, p.MaxFailures)
	if err != nil {
		return fmt.Errorf("postgres: update rotation policy: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("rotation policy %s not found", p.ID)
	}
	return nil
}

func (s *Store) DuePolicies(ctx context.Context, now time.Time) ([]*rotation.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM rotation_policy WHERE active=true AND next_rotation_at < $1`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: due policies: %w", err)
	}
	defer rows.Close()

	var out []*rotation.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate due policies: %w", err)
	}
	return out, nil
}

func (s *Store) AppendHistory(ctx context.Context, h *rotation.HistoryEntry) error {
	query := `INSERT INTO rotation_history (secret_id, secret_path, strategy, success, error, previous_version, new_version, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query, h.SecretID, h.SecretPath, string(h.Strategy), h.Success, h.Error,
		h.PreviousVersion, h.NewVersion, h.DurationMS)
	if err != nil {
		return fmt.Errorf("postgres: append rotation history: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, secretID string, page rotation.Page) ([]*rotation.HistoryEntry, error) {
	query := `SELECT id, secret_id, secret_path, strategy, success, error, previous_version, new_version, duration_ms, created_at
		FROM rotation_history WHERE secret_id=$1 ORDER BY created_at DESC`
	args := []any{secretID}
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, page.Limit)
	}
	if page.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, page.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rotation history: %w", err)
	}
	defer rows.Close()

	var out []*rotation.HistoryEntry
	for rows.Next() {
		var h rotation.HistoryEntry
		var strategy string
		if err := rows.Scan(&h.ID, &h.SecretID, &h.SecretPath, &strategy, &h.Success, &h.Error,
			&h.PreviousVersion, &h.NewVersion, &h.DurationMS, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan rotation history row: %w", err)
		}
		h.Strategy = rotation.Strategy(strategy)
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rotation history: %w", err)
	}
	return out, nil
}

func (s *Store) Summarize(ctx context.Context, secretID string) (*rotation.HistorySummary, error) {
	query := `SELECT
		count(*),
		count(*) FILTER (WHERE NOT success),
		max(created_at) FILTER (WHERE success)
		FROM rotation_history WHERE secret_id=$1`
	var summary rotation.HistorySummary
	var lastSuccess *time.Time
	err := s.pool.QueryRow(ctx, query, secretID).Scan(&summary.TotalCount, &summary.FailureCount, &lastSuccess)
	if err != nil {
		return nil, fmt.Errorf("postgres: summarize rotation history: %w", err)
	}
	summary.LastSuccessfulAt = lastSuccess
	return &summary, nil
}
