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

// Package postgres implements the policy.Store interface on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/pgutil"
	"github.com/codeops-vault/vault/internal/policy"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Store implements policy.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller retains ownership.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const policyColumns = `id, team, name, path_pattern, permissions, deny, active, created_at, updated_at`

func scanPolicy(row pgx.Row) (*policy.Policy, error) {
	var p policy.Policy
	var perms []string
	err := row.Scan(&p.ID, &p.Team, &p.Name, &p.PathPattern, &perms, &p.Deny, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("policy not found")
		}
		return nil, fmt.Errorf("postgres: scan policy: %w", err)
	}
	p.Permissions = make([]policy.Permission, len(perms))
	for i, s := range perms {
		p.Permissions[i] = policy.Permission(s)
	}
	return &p, nil
}

func permStrings(perms []policy.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	query := `INSERT INTO access_policy (team, name, path_pattern, permissions, deny, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + policyColumns

	row := s.pool.QueryRow(ctx, query, p.Team, p.Name, p.PathPattern, permStrings(p.Permissions), p.Deny, p.Active)
	created, err := scanPolicy(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, vaulterr.InvalidInput("policy %q already exists for team %q", p.Name, p.Team)
		}
		return nil, fmt.Errorf("postgres: create policy: %w", err)
	}
	return created, nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM access_policy WHERE id=$1`
	return scanPolicy(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	query := `UPDATE access_policy SET
		name=$2, path_pattern=$3, permissions=$4, deny=$5, active=$6, updated_at=now()
		WHERE id=$1`
	res, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.PathPattern, permStrings(p.Permissions), p.Deny, p.Active)
	if err != nil {
		return fmt.Errorf("postgres: update policy: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("policy %s not found", p.ID)
	}
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM access_policy WHERE id=$1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete policy: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("policy %s not found", id)
	}
	return nil
}

func (s *Store) ListPolicies(ctx context.Context, team string) ([]*policy.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM access_policy WHERE team=$1 ORDER BY name`
	rows, err := s.pool.Query(ctx, query, team)
	if err != nil {
		return nil, fmt.Errorf("postgres: list policies: %w", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate policies: %w", err)
	}
	return out, nil
}

func scanBinding(row pgx.Row) (*policy.Binding, error) {
	var b policy.Binding
	err := row.Scan(&b.ID, &b.PolicyID, &b.BindingType, &b.Target, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vaulterr.NotFound("binding not found")
		}
		return nil, fmt.Errorf("postgres: scan binding: %w", err)
	}
	return &b, nil
}

const bindingColumns = `id, policy_id, binding_type, target, created_at, updated_at`

func (s *Store) Bind(ctx context.Context, b *policy.Binding) (*policy.Binding, error) {
	query := `INSERT INTO policy_binding (policy_id, binding_type, target)
		VALUES ($1, $2, $3)
		RETURNING ` + bindingColumns

	row := s.pool.QueryRow(ctx, query, b.PolicyID, string(b.BindingType), b.Target)
	created, err := scanBinding(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, vaulterr.InvalidInput("binding already exists")
		}
		return nil, fmt.Errorf("postgres: create binding: %w", err)
	}
	return created, nil
}

func (s *Store) Unbind(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM policy_binding WHERE id=$1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete binding: %w", err)
	}
	if res.RowsAffected() == 0 {
		return vaulterr.NotFound("binding %s not found", id)
	}
	return nil
}

func (s *Store) ListBindings(ctx context.Context, policyID string) ([]*policy.Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM policy_binding WHERE policy_id=$1`
	rows, err := s.pool.Query(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bindings: %w", err)
	}
	defer rows.Close()

	var out []*policy.Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bindings: %w", err)
	}
	return out, nil
}

// ActivePoliciesFor joins active bindings of bindingType targeting any of
// targets to their active policies, scoped to team.
func (s *Store) ActivePoliciesFor(ctx context.Context, team string, bindingType policy.BindingType, targets []string) ([]*policy.Policy, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("ap.team = $?", team)
	qb.Add("pb.binding_type = $?", string(bindingType))
	qb.Add("pb.target = ANY($?)", targets)

	query := `SELECT ap.id, ap.team, ap.name, ap.path_pattern, ap.permissions, ap.deny, ap.active, ap.created_at, ap.updated_at
		FROM access_policy ap
		JOIN policy_binding pb ON pb.policy_id = ap.id
		WHERE ap.active = true` + qb.Where()

	rows, err := s.pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: active policies for: %w", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate active policies: %w", err)
	}
	return out, nil
}
