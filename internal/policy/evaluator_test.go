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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory Store for evaluator tests.
type fakeStore struct {
	byBindingType map[BindingType]map[string][]*Policy
}

func newFakeStore() *fakeStore {
	return &fakeStore{byBindingType: make(map[BindingType]map[string][]*Policy)}
}

func (s *fakeStore) bind(bt BindingType, target string, p *Policy) {
	if s.byBindingType[bt] == nil {
		s.byBindingType[bt] = make(map[string][]*Policy)
	}
	s.byBindingType[bt][target] = append(s.byBindingType[bt][target], p)
}

func (s *fakeStore) CreatePolicy(ctx context.Context, p *Policy) (*Policy, error) { return p, nil }
func (s *fakeStore) GetPolicy(ctx context.Context, id string) (*Policy, error)    { return nil, nil }
func (s *fakeStore) UpdatePolicy(ctx context.Context, p *Policy) error            { return nil }
func (s *fakeStore) DeletePolicy(ctx context.Context, id string) error           { return nil }
func (s *fakeStore) ListPolicies(ctx context.Context, team string) ([]*Policy, error) {
	return nil, nil
}
func (s *fakeStore) Bind(ctx context.Context, b *Binding) (*Binding, error) { return b, nil }
func (s *fakeStore) Unbind(ctx context.Context, id string) error           { return nil }
func (s *fakeStore) ListBindings(ctx context.Context, policyID string) ([]*Binding, error) {
	return nil, nil
}

func (s *fakeStore) ActivePoliciesFor(ctx context.Context, team string, bt BindingType, targets []string) ([]*Policy, error) {
	var out []*Policy
	for _, target := range targets {
		for _, p := range s.byBindingType[bt][target] {
			if p.Team == team {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func TestEvaluate_AllowsOnMatchingAllowPolicy(t *testing.T) {
	store := newFakeStore()
	p := &Policy{ID: "p1", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermRead}, Active: true}
	store.bind(BindingUser, "alice", p)

	dec, err := New(store).Evaluate(context.Background(), "alice", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, "p1", dec.Policy.ID)
}

func TestEvaluate_DenyOverridesAllow(t *testing.T) {
	store := newFakeStore()
	allow := &Policy{ID: "allow", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermRead}, Active: true}
	deny := &Policy{ID: "deny", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermRead}, Active: true, Deny: true}
	store.bind(BindingUser, "alice", allow)
	store.bind(BindingTeam, "team-a", deny)

	dec, err := New(store).Evaluate(context.Background(), "alice", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "deny", dec.Policy.ID)
}

func TestEvaluate_DefaultDeniedWhenNoPolicyMatches(t *testing.T) {
	store := newFakeStore()
	dec, err := New(store).Evaluate(context.Background(), "alice", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.True(t, dec.DefaultDenied)
	assert.Nil(t, dec.Policy)
}

func TestEvaluate_InactivePolicyIsIgnored(t *testing.T) {
	store := newFakeStore()
	p := &Policy{ID: "p1", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermRead}, Active: false}
	store.bind(BindingUser, "alice", p)

	dec, err := New(store).Evaluate(context.Background(), "alice", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.True(t, dec.DefaultDenied)
}

func TestEvaluate_PermissionMismatchIsIgnored(t *testing.T) {
	store := newFakeStore()
	p := &Policy{ID: "p1", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermWrite}, Active: true}
	store.bind(BindingUser, "alice", p)

	dec, err := New(store).Evaluate(context.Background(), "alice", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.True(t, dec.DefaultDenied)
}

func TestEvaluateServiceAccess_UsesServiceBindings(t *testing.T) {
	store := newFakeStore()
	p := &Policy{ID: "svc", Team: "team-a", PathPattern: "/db/*", Permissions: []Permission{PermRead}, Active: true}
	store.bind(BindingService, "payments-svc", p)

	dec, err := New(store).EvaluateServiceAccess(context.Background(), "payments-svc", "team-a", "/db/creds", PermRead)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, "svc", dec.Policy.ID)
}
