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

package rotation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeops-vault/vault/internal/secret"
)

type fakeStore struct {
	policies map[string]*Policy
	history  []*HistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{policies: make(map[string]*Policy)}
}

func (s *fakeStore) UpsertPolicy(ctx context.Context, in UpsertInput) (*Policy, error) {
	p := &Policy{
		ID: "policy-" + in.SecretID, SecretID: in.SecretID, Strategy: in.Strategy,
		IntervalHours: in.IntervalHours, Params: in.Params, Active: true,
		NextRotation: time.Now().Add(time.Duration(in.IntervalHours) * time.Hour),
		MaxFailures:  3,
	}
	s.policies[in.SecretID] = p
	return p, nil
}

func (s *fakeStore) GetPolicyBySecret(ctx context.Context, secretID string) (*Policy, error) {
	p, ok := s.policies[secretID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (s *fakeStore) UpdatePolicy(ctx context.Context, p *Policy) error {
	s.policies[p.SecretID] = p
	return nil
}

func (s *fakeStore) DuePolicies(ctx context.Context, now time.Time) ([]*Policy, error) {
	var out []*Policy
	for _, p := range s.policies {
		if p.Active && p.NextRotation.Before(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	s.history = append(s.history, h)
	return nil
}

func (s *fakeStore) ListHistory(ctx context.Context, secretID string, page Page) ([]*HistoryEntry, error) {
	return s.history, nil
}

func (s *fakeStore) Summarize(ctx context.Context, secretID string) (*HistorySummary, error) {
	return &HistorySummary{}, nil
}

type fakeSecrets struct {
	secrets map[string]*secret.Secret
	failNext bool
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{secrets: make(map[string]*secret.Secret)}
}

func (f *fakeSecrets) GetSecret(ctx context.Context, id string) (*secret.Secret, error) {
	s, ok := f.secrets[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSecrets) Update(ctx context.Context, id string, patch secret.UpdatePatch) (*secret.Secret, error) {
	if f.failNext {
		f.failNext = false
		return nil, fmt.Errorf("boom")
	}
	s := f.secrets[id]
	s.CurrentVersion++
	cp := *s
	return &cp, nil
}

func TestRotateSecret_RandomGenerate_Success(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	secrets.secrets["s1"] = &secret.Secret{ID: "s1", Path: "/db", CurrentVersion: 1}

	_, err := store.UpsertPolicy(context.Background(), UpsertInput{
		SecretID: "s1", Strategy: StrategyRandomGenerate, IntervalHours: 24,
		Params: Params{RandomLength: 16, RandomCharset: "alphanumeric"},
	})
	require.NoError(t, err)

	svc := New(store, secrets, logr.Discard(), nil)
	err = svc.RotateSecret(context.Background(), "s1", "alice")
	require.NoError(t, err)

	p, _ := store.GetPolicyBySecret(context.Background(), "s1")
	assert.Equal(t, 0, p.FailureCount)
	assert.NotNil(t, p.LastRotatedAt)
	require.Len(t, store.history, 1)
	assert.True(t, store.history[0].Success)
}

func TestRotateSecret_CustomScript_NotImplemented(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	secrets.secrets["s1"] = &secret.Secret{ID: "s1", Path: "/db", CurrentVersion: 1}

	_, err := store.UpsertPolicy(context.Background(), UpsertInput{SecretID: "s1", Strategy: StrategyCustomScript, IntervalHours: 24})
	require.NoError(t, err)

	svc := New(store, secrets, logr.Discard(), nil)
	err = svc.RotateSecret(context.Background(), "s1", "alice")
	require.Error(t, err)

	p, _ := store.GetPolicyBySecret(context.Background(), "s1")
	assert.Equal(t, 1, p.FailureCount)
	require.Len(t, store.history, 1)
	assert.False(t, store.history[0].Success)
}

func TestRotateSecret_FailureDisablesPolicyAtMaxFailures(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	secrets.secrets["s1"] = &secret.Secret{ID: "s1", Path: "/db", CurrentVersion: 1}

	_, err := store.UpsertPolicy(context.Background(), UpsertInput{SecretID: "s1", Strategy: StrategyCustomScript, IntervalHours: 24})
	require.NoError(t, err)
	store.policies["s1"].MaxFailures = 2

	svc := New(store, secrets, logr.Discard(), nil)
	require.Error(t, svc.RotateSecret(context.Background(), "s1", "alice"))
	require.Error(t, svc.RotateSecret(context.Background(), "s1", "alice"))

	p, _ := store.GetPolicyBySecret(context.Background(), "s1")
	assert.False(t, p.Active)
	assert.Equal(t, 2, p.FailureCount)
}

func TestCreateOrUpdatePolicy_RequiresStrategyParams(t *testing.T) {
	svc := New(newFakeStore(), newFakeSecrets(), logr.Discard(), nil)

	_, err := svc.CreateOrUpdatePolicy(context.Background(), UpsertInput{SecretID: "s1", Strategy: StrategyRandomGenerate, IntervalHours: 24})
	require.Error(t, err)

	_, err = svc.CreateOrUpdatePolicy(context.Background(), UpsertInput{SecretID: "s1", Strategy: StrategyExternalAPI, IntervalHours: 24})
	require.Error(t, err)
}

func TestProcessDueRotations_ContinuesPastIndividualFailures(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	secrets.secrets["ok"] = &secret.Secret{ID: "ok", Path: "/ok", CurrentVersion: 1}
	secrets.secrets["bad"] = &secret.Secret{ID: "bad", Path: "/bad", CurrentVersion: 1}

	past := time.Now().Add(-time.Hour)
	_, err := store.UpsertPolicy(context.Background(), UpsertInput{
		SecretID: "ok", Strategy: StrategyRandomGenerate, IntervalHours: 24,
		Params: Params{RandomLength: 8, RandomCharset: "hex"},
	})
	require.NoError(t, err)
	store.policies["ok"].NextRotation = past

	_, err = store.UpsertPolicy(context.Background(), UpsertInput{SecretID: "bad", Strategy: StrategyCustomScript, IntervalHours: 24})
	require.NoError(t, err)
	store.policies["bad"].NextRotation = past

	svc := New(store, secrets, logr.Discard(), nil)
	count, err := svc.ProcessDueRotations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.True(t, store.policies["ok"].Active)
	assert.Equal(t, 1, store.policies["bad"].FailureCount)
}
