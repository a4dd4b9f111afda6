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

package lease

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

type fakeEngine struct{}

func (fakeEngine) Encrypt(plaintext []byte) (string, error) { return "env:" + string(plaintext), nil }
func (fakeEngine) Decrypt(env string) ([]byte, error)       { return []byte(env[len("env:"):]), nil }

type fakeSecrets struct {
	secrets  map[string]*secret.Secret
	metadata map[string]map[string]string
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{secrets: make(map[string]*secret.Secret), metadata: make(map[string]map[string]string)}
}

func (f *fakeSecrets) GetSecret(ctx context.Context, id string) (*secret.Secret, error) {
	s, ok := f.secrets[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s, nil
}

func (f *fakeSecrets) GetAllMetadata(ctx context.Context, id string) (map[string]string, error) {
	return f.metadata[id], nil
}

type fakeStore struct {
	leases map[string]*Lease
}

func newFakeStore() *fakeStore { return &fakeStore{leases: make(map[string]*Lease)} }

func (s *fakeStore) CreateLease(ctx context.Context, l *Lease) (*Lease, error) {
	cp := *l
	s.leases[cp.LeaseID] = &cp
	return &cp, nil
}
func (s *fakeStore) GetLease(ctx context.Context, leaseID string) (*Lease, error) {
	l, ok := s.leases[leaseID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *l
	return &cp, nil
}
func (s *fakeStore) UpdateLease(ctx context.Context, l *Lease) error {
	cp := *l
	s.leases[l.LeaseID] = &cp
	return nil
}
func (s *fakeStore) ListActiveBySecret(ctx context.Context, secretID string) ([]*Lease, error) {
	var out []*Lease
	for _, l := range s.leases {
		if l.SecretID == secretID && l.Status == StatusActive {
			out = append(out, l)
		}
	}
	return out, nil
}
func (s *fakeStore) ListExpired(ctx context.Context, now time.Time) ([]*Lease, error) {
	var out []*Lease
	for _, l := range s.leases {
		if l.Status == StatusActive && l.ExpiresAt.Before(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeBackend struct {
	created, dropped []string
}

func (b *fakeBackend) CreateUser(ctx context.Context, cfg ConnectionConfig, username, password string) error {
	b.created = append(b.created, username)
	return nil
}
func (b *fakeBackend) DropUser(ctx context.Context, cfg ConnectionConfig, username string) error {
	b.dropped = append(b.dropped, username)
	return nil
}

func setupSecret(secrets *fakeSecrets, id string) {
	secrets.secrets[id] = &secret.Secret{ID: id, Name: "Prod DB", Type: secret.TypeDynamic}
	secrets.metadata[id] = map[string]string{
		"connection": `{"backendType":"postgresql","host":"db.internal","port":5432,"database":"app","adminUsername":"admin","adminPassword":"x","usernamePrefix":"vault_"}`,
	}
}

func TestCreateLease_IssuesCredentialsAndProvisionsBackend(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	setupSecret(secrets, "s1")
	backend := &fakeBackend{}

	svc := New(store, secrets, fakeEngine{}, backend, logr.Discard(), nil)
	result, err := svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 3600, Requester: "alice"})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, result.Lease.Status)
	assert.Len(t, backend.created, 1)
	assert.Contains(t, result.Credentials.Username, "vault_prod_db_")
	assert.LessOrEqual(t, len(result.Credentials.Username), 63)
}

func TestCreateLease_RejectsTTLOutOfRange(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	setupSecret(secrets, "s1")
	svc := New(store, secrets, fakeEngine{}, &fakeBackend{}, logr.Discard(), nil)

	_, err := svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 30})
	require.Error(t, err)

	_, err = svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 90000})
	require.Error(t, err)
}

func TestCreateLease_RejectsNonDynamicSecret(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	secrets.secrets["s1"] = &secret.Secret{ID: "s1", Name: "static", Type: secret.TypeStatic}
	svc := New(store, secrets, fakeEngine{}, &fakeBackend{}, logr.Discard(), nil)

	_, err := svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 300})
	require.Error(t, err)
}

func TestRevoke_DropsBackendUserAndTransitionsStatus(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	setupSecret(secrets, "s1")
	backend := &fakeBackend{}
	svc := New(store, secrets, fakeEngine{}, backend, logr.Discard(), nil)

	result, err := svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 3600})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), result.Lease.LeaseID, "bob"))

	reloaded, err := store.GetLease(context.Background(), result.Lease.LeaseID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, reloaded.Status)
	assert.Equal(t, "bob", reloaded.RevokedBy)
	assert.Len(t, backend.dropped, 1)
}

func TestProcessExpiredLeases_TransitionsPastExpiry(t *testing.T) {
	store := newFakeStore()
	secrets := newFakeSecrets()
	setupSecret(secrets, "s1")
	backend := &fakeBackend{}
	now := time.Now()
	svc := New(store, secrets, fakeEngine{}, backend, logr.Discard(), func() time.Time { return now })

	result, err := svc.CreateLease(context.Background(), CreateInput{SecretID: "s1", TTLSeconds: 60})
	require.NoError(t, err)

	later := now.Add(2 * time.Minute)
	svc2 := New(store, secrets, fakeEngine{}, backend, logr.Discard(), func() time.Time { return later })
	count, err := svc2.ProcessExpiredLeases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reloaded, err := store.GetLease(context.Background(), result.Lease.LeaseID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, reloaded.Status)
}
