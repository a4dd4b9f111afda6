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

package policy

import "context"

// Store is the persistence contract the evaluator depends on. A Postgres
// implementation lives in internal/policy/postgres.
type Store interface {
	// CreatePolicy inserts a new Access Policy.
	CreatePolicy(ctx context.Context, p *Policy) (*Policy, error)
	// GetPolicy fetches a policy by id.
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	// UpdatePolicy patches an existing policy.
	UpdatePolicy(ctx context.Context, p *Policy) error
	// DeletePolicy removes a policy and its bindings.
	DeletePolicy(ctx context.Context, id string) error
	// ListPolicies lists policies for a team.
	ListPolicies(ctx context.Context, team string) ([]*Policy, error)

	// Bind attaches a policy to a target.
	Bind(ctx context.Context, b *Binding) (*Binding, error)
	// Unbind removes a binding.
	Unbind(ctx context.Context, id string) error
	// ListBindings lists bindings for a policy.
	ListBindings(ctx context.Context, policyID string) ([]*Binding, error)

	// ActivePoliciesFor returns the active policies of team that have a
	// binding of bindingType whose target is one of targets. It does not
	// resolve team membership; Evaluate queries TEAM bindings separately.
	ActivePoliciesFor(ctx context.Context, team string, bindingType BindingType, targets []string) ([]*Policy, error)
}

// Evaluator implements the policy-evaluation algorithm (C6) on top of a Store.
type Evaluator struct {
	store Store
}

// New constructs an Evaluator backed by store.
func New(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate decides whether user (acting within team) may perform permission
// on path. Bindings considered are those for binding-type=USER targeting
// user, or binding-type=TEAM targeting team.
func (e *Evaluator) Evaluate(ctx context.Context, user, team, path string, permission Permission) (*Decision, error) {
	return e.evaluate(ctx, team, path, permission, func(ctx context.Context) ([]*Policy, error) {
		userPolicies, err := e.store.ActivePoliciesFor(ctx, team, BindingUser, []string{user})
		if err != nil {
			return nil, err
		}
		teamPolicies, err := e.store.ActivePoliciesFor(ctx, team, BindingTeam, []string{team})
		if err != nil {
			return nil, err
		}
		return append(userPolicies, teamPolicies...), nil
	})
}

// EvaluateServiceAccess is identical to Evaluate but considers
// binding-type=SERVICE bindings for the given service identifier.
func (e *Evaluator) EvaluateServiceAccess(ctx context.Context, service, team, path string, permission Permission) (*Decision, error) {
	return e.evaluate(ctx, team, path, permission, func(ctx context.Context) ([]*Policy, error) {
		return e.store.ActivePoliciesFor(ctx, team, BindingService, []string{service})
	})
}

func (e *Evaluator) evaluate(ctx context.Context, team, path string, permission Permission, collect func(context.Context) ([]*Policy, error)) (*Decision, error) {
	candidates, err := collect(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*Policy
	for _, p := range candidates {
		if !p.Active {
			continue
		}
		if !p.HasPermission(permission) {
			continue
		}
		if !pathMatches(p.PathPattern, path) {
			continue
		}
		matched = append(matched, p)
	}

	for _, p := range matched {
		if p.Deny {
			return &Decision{Allowed: false, Policy: p}, nil
		}
	}
	for _, p := range matched {
		if !p.Deny {
			return &Decision{Allowed: true, Policy: p}, nil
		}
	}
	return &Decision{Allowed: false, DefaultDenied: true}, nil
}
