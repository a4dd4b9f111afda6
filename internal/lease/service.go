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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/secret"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Engine is the subset of envelope.Engine the Service needs to seal
// credential blobs under the storage KEK.
type Engine interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(env string) ([]byte, error)
}

// SecretGetter is the subset of secret.Service the Service needs to
// validate that a lease's source secret exists and is DYNAMIC.
type SecretGetter interface {
	GetSecret(ctx context.Context, id string) (*secret.Secret, error)
	GetAllMetadata(ctx context.Context, id string) (map[string]string, error)
}

// Service implements the dynamic-lease engine (C9).
type Service struct {
	store   Store
	secrets SecretGetter
	crypt   Engine
	backend Backend
	now     func() time.Time
	log     logr.Logger
}

// New constructs a Service. backend should be NewNoopBackend() unless the
// execute-SQL configuration toggle is enabled, in which case it should be
// NewSQLBackend().
func New(store Store, secrets SecretGetter, crypt Engine, backend Backend, log logr.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, secrets: secrets, crypt: crypt, backend: backend, log: log, now: now}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// CreateLease issues a new leased credential set for a DYNAMIC secret.
func (s *Service) CreateLease(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.TTLSeconds < MinTTLSeconds || in.TTLSeconds > MaxTTLSeconds {
		return nil, vaulterr.InvalidInput("ttlSeconds must be in [%d, %d]", MinTTLSeconds, MaxTTLSeconds)
	}

	sec, err := s.secrets.GetSecret(ctx, in.SecretID)
	if err != nil {
		return nil, err
	}
	if sec.Type != secret.TypeDynamic {
		return nil, vaulterr.InvalidInput("secret %s is not of type DYNAMIC", sec.ID)
	}

	meta, err := s.secrets.GetAllMetadata(ctx, sec.ID)
	if err != nil {
		return nil, err
	}
	cfg, err := parseConnectionConfig(meta)
	if err != nil {
		return nil, err
	}

	username, err := generateUsername(cfg.UsernamePrefix, sec.Name)
	if err != nil {
		return nil, err
	}
	password, err := envelope.GenerateRandomString(passwordLength, "alphanumeric")
	if err != nil {
		return nil, err
	}

	if err := s.backend.CreateUser(ctx, cfg, username, password); err != nil {
		return nil, fmt.Errorf("lease: provision backend user: %w", err)
	}

	creds := Credentials{Username: username, Password: password, Host: cfg.Host, Port: cfg.Port,
		Database: cfg.Database, Backend: string(cfg.BackendType)}
	blob, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("lease: marshal credential blob: %w", err)
	}
	env, err := s.crypt.Encrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("lease: seal credential blob: %w", err)
	}

	leaseID := uuid.NewString()
	now := s.now()
	l := &Lease{
		LeaseID:        leaseID,
		SecretID:       sec.ID,
		SecretPath:     sec.Path,
		BackendType:    cfg.BackendType,
		CredentialBlob: env,
		Status:         StatusActive,
		TTLSeconds:     in.TTLSeconds,
		ExpiresAt:      now.Add(time.Duration(in.TTLSeconds) * time.Second),
		Requester:      in.Requester,
	}
	created, err := s.store.CreateLease(ctx, l)
	if err != nil {
		return nil, err
	}

	return &CreateResult{Lease: created, Credentials: creds}, nil
}

func generateUsername(prefix, secretName string) (string, error) {
	var idBytes [4]byte
	if _, err := rand.Read(idBytes[:]); err != nil {
		return "", fmt.Errorf("lease: generate username suffix: %w", err)
	}
	username := prefix + slugify(secretName) + "_" + hex.EncodeToString(idBytes[:])
	if len(username) > 63 {
		username = username[:63]
	}
	return username, nil
}

func parseConnectionConfig(meta map[string]string) (ConnectionConfig, error) {
	raw, ok := meta["connection"]
	if !ok {
		return ConnectionConfig{}, vaulterr.InvalidInput("secret metadata missing \"connection\" key")
	}
	var cfg ConnectionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return ConnectionConfig{}, vaulterr.InvalidInput("secret metadata \"connection\" is not valid JSON: %v", err)
	}
	if cfg.BackendType != BackendPostgreSQL && cfg.BackendType != BackendMySQL {
		return ConnectionConfig{}, vaulterr.InvalidInput("unsupported backendType %q", cfg.BackendType)
	}
	if cfg.Host == "" || cfg.Port == 0 || cfg.Database == "" || cfg.AdminUsername == "" {
		return ConnectionConfig{}, vaulterr.InvalidInput("connection config missing host/port/database/adminUsername")
	}
	return cfg, nil
}

// Revoke transitions an ACTIVE lease to REVOKED, dropping its backend user.
func (s *Service) Revoke(ctx context.Context, leaseID, actor string) error {
	l, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return err
	}
	if l.Status != StatusActive {
		return vaulterr.InvalidInput("lease %s is not ACTIVE", leaseID)
	}

	s.dropBackendUser(ctx, l)

	now := s.now()
	l.Status = StatusRevoked
	l.RevokedAt = &now
	l.RevokedBy = actor
	return s.store.UpdateLease(ctx, l)
}

// RevokeAll revokes every ACTIVE lease for a secret.
func (s *Service) RevokeAll(ctx context.Context, secretID, actor string) error {
	leases, err := s.store.ListActiveBySecret(ctx, secretID)
	if err != nil {
		return err
	}
	for _, l := range leases {
		if err := s.Revoke(ctx, l.LeaseID, actor); err != nil {
			s.log.Error(err, "revoke lease during revokeAll", "leaseID", l.LeaseID)
		}
	}
	return nil
}

// ProcessExpiredLeases transitions ACTIVE leases past their expiry to EXPIRED.
func (s *Service) ProcessExpiredLeases(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("lease: list expired: %w", err)
	}

	for _, l := range expired {
		s.dropBackendUser(ctx, l)
		l.Status = StatusExpired
		if err := s.store.UpdateLease(ctx, l); err != nil {
			s.log.Error(err, "expire lease", "leaseID", l.LeaseID)
		}
	}
	return len(expired), nil
}

func (s *Service) dropBackendUser(ctx context.Context, l *Lease) {
	plaintext, err := s.crypt.Decrypt(l.CredentialBlob)
	if err != nil {
		s.log.Error(err, "decrypt credential blob for teardown", "leaseID", l.LeaseID)
		return
	}
	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		s.log.Error(err, "unmarshal credential blob for teardown", "leaseID", l.LeaseID)
		return
	}

	meta, err := s.secrets.GetAllMetadata(ctx, l.SecretID)
	if err != nil {
		s.log.Error(err, "load secret metadata for teardown", "leaseID", l.LeaseID)
		return
	}
	cfg, err := parseConnectionConfig(meta)
	if err != nil {
		s.log.Error(err, "parse connection config for teardown", "leaseID", l.LeaseID)
		return
	}

	if err := s.backend.DropUser(ctx, cfg, creds.Username); err != nil {
		s.log.Error(err, "drop backend user", "leaseID", l.LeaseID)
	}
}
