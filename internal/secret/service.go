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

package secret

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Engine is the subset of envelope.Engine the Service needs.
type Engine interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(env string) ([]byte, error)
}

// Service implements the secret store operations (C7) over a Store and an
// envelope Engine.
type Service struct {
	store Store
	crypt Engine
	now   func() time.Time
}

// New constructs a Service. now defaults to time.Now when nil; tests may
// override it for deterministic retention checks.
func New(store Store, crypt Engine, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, crypt: crypt, now: now}
}

// Create allocates a new Secret at current-version=1, optionally sealing an
// initial value as Version 1, and upserts metadata atomically.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Secret, error) {
	if !strings.HasPrefix(in.Path, "/") {
		return nil, vaulterr.InvalidInput("path must start with /")
	}
	if len(in.Path) > 500 {
		return nil, vaulterr.InvalidInput("path exceeds 500 characters")
	}

	sec := &Secret{
		Team:           in.Team,
		Path:           in.Path,
		Name:           in.Name,
		Description:    in.Description,
		Type:           in.Type,
		CurrentVersion: 1,
		MaxVersions:    in.MaxVersions,
		RetentionDays:  in.RetentionDays,
		ExpiresAt:      in.ExpiresAt,
		Owner:          in.Owner,
		ExternalRef:    in.ExternalRef,
		Active:         true,
	}
	created, err := s.store.CreateSecret(ctx, sec)
	if err != nil {
		return nil, err
	}

	if len(in.Value) > 0 {
		env, err := s.crypt.Encrypt(in.Value)
		if err != nil {
			return nil, fmt.Errorf("secret: seal initial value: %w", err)
		}
		if _, err := s.store.CreateVersion(ctx, &Version{
			SecretID:   created.ID,
			Version:    1,
			Envelope:   env,
			KeyID:      "master-v1",
			CreatedBy:  in.CreatedBy,
			ChangeDesc: "initial value",
		}); err != nil {
			return nil, fmt.Errorf("secret: store initial version: %w", err)
		}
	}

	for k, v := range in.Metadata {
		if err := s.store.SetMetadata(ctx, created.ID, k, v); err != nil {
			return nil, fmt.Errorf("secret: set metadata %q: %w", k, err)
		}
	}

	return created, nil
}

// GetSecret fetches a Secret record without touching its value or last-accessed time.
func (s *Service) GetSecret(ctx context.Context, id string) (*Secret, error) {
	return s.store.GetSecret(ctx, id)
}

// ReadCurrentValue decrypts the secret's current version and bumps last-accessed.
func (s *Service) ReadCurrentValue(ctx context.Context, id string) ([]byte, error) {
	sec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.readVersion(ctx, sec, sec.CurrentVersion)
}

// ReadValueAtVersion decrypts a specific version, rejecting destroyed ones.
func (s *Service) ReadValueAtVersion(ctx context.Context, id string, version int) ([]byte, error) {
	sec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.readVersion(ctx, sec, version)
}

func (s *Service) readVersion(ctx context.Context, sec *Secret, version int) ([]byte, error) {
	v, err := s.store.GetVersion(ctx, sec.ID, version)
	if err != nil {
		return nil, err
	}
	if v.Destroyed {
		return nil, vaulterr.InvalidInput("version %d of secret %s has been destroyed", version, sec.ID)
	}
	plaintext, err := s.crypt.Decrypt(v.Envelope)
	if err != nil {
		return nil, fmt.Errorf("secret: decrypt version %d: %w", version, err)
	}
	if err := s.store.TouchLastAccessed(ctx, sec.ID, s.now()); err != nil {
		return nil, fmt.Errorf("secret: touch last-accessed: %w", err)
	}
	return plaintext, nil
}

// Update applies patch to a Secret. A non-nil Value allocates a new version
// and runs retention afterward. Other fields patch in place.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch) (*Secret, error) {
	sec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		sec.Name = *patch.Name
	}
	if patch.Description != nil {
		sec.Description = *patch.Description
	}
	if patch.MaxVersions != nil {
		sec.MaxVersions = patch.MaxVersions
	}
	if patch.RetentionDays != nil {
		sec.RetentionDays = patch.RetentionDays
	}
	if patch.ExpiresAt != nil {
		sec.ExpiresAt = patch.ExpiresAt
	}
	if patch.Owner != nil {
		sec.Owner = *patch.Owner
	}
	if patch.ExternalRef != nil {
		sec.ExternalRef = *patch.ExternalRef
	}

	if patch.Value != nil {
		env, err := s.crypt.Encrypt(patch.Value)
		if err != nil {
			return nil, fmt.Errorf("secret: seal updated value: %w", err)
		}
		nextVersion := sec.CurrentVersion + 1
		if _, err := s.store.CreateVersion(ctx, &Version{
			SecretID:   sec.ID,
			Version:    nextVersion,
			Envelope:   env,
			KeyID:      "master-v1",
			CreatedBy:  patch.ChangedBy,
			ChangeDesc: patch.ChangeDesc,
		}); err != nil {
			return nil, fmt.Errorf("secret: store new version: %w", err)
		}
		sec.CurrentVersion = nextVersion
	}

	if err := s.store.UpdateSecret(ctx, sec); err != nil {
		return nil, err
	}

	if patch.Value != nil {
		if err := s.ApplyRetention(ctx, sec.ID); err != nil {
			return nil, fmt.Errorf("secret: apply retention: %w", err)
		}
	}

	return sec, nil
}

// SoftDelete clears the active flag.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	return s.store.SoftDeleteSecret(ctx, id)
}

// HardDelete removes the Secret, its Versions, Metadata, and any Rotation
// Policy. Rotation History and Dynamic Leases survive by plain-id reference.
func (s *Service) HardDelete(ctx context.Context, id string) error {
	return s.store.HardDeleteSecret(ctx, id)
}

// DestroyVersion terminally overwrites a non-current, non-destroyed version.
func (s *Service) DestroyVersion(ctx context.Context, id string, version int) error {
	sec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return err
	}
	if version == sec.CurrentVersion {
		return vaulterr.InvalidInput("cannot destroy the current version")
	}
	v, err := s.store.GetVersion(ctx, sec.ID, version)
	if err != nil {
		return err
	}
	if v.Destroyed {
		return vaulterr.InvalidInput("version %d is already destroyed", version)
	}
	return s.store.DestroyVersion(ctx, sec.ID, version)
}

// ApplyRetention destroys versions made eligible by maxVersions/retentionDays,
// always excluding the current version.
func (s *Service) ApplyRetention(ctx context.Context, id string) error {
	sec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return err
	}
	if sec.MaxVersions == nil && sec.RetentionDays == nil {
		return nil
	}

	versions, err := s.store.ListVersions(ctx, sec.ID)
	if err != nil {
		return err
	}

	var live []*Version
	for _, v := range versions {
		if !v.Destroyed && v.Version != sec.CurrentVersion {
			live = append(live, v)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Version < live[j].Version })

	toDestroy := make(map[int]bool)

	if sec.MaxVersions != nil {
		totalLive := len(live) + 1 // +1 for the current version, never destroyed
		excess := totalLive - *sec.MaxVersions
		for i := 0; i < excess && i < len(live); i++ {
			toDestroy[live[i].Version] = true
		}
	}

	if sec.RetentionDays != nil {
		cutoff := s.now().AddDate(0, 0, -*sec.RetentionDays)
		for _, v := range live {
			if v.CreatedAt.Before(cutoff) {
				toDestroy[v.Version] = true
			}
		}
	}

	for version := range toDestroy {
		if err := s.store.DestroyVersion(ctx, sec.ID, version); err != nil {
			return err
		}
	}
	return nil
}

// List applies exactly one filter, in priority order: Type > PathPrefix > ActiveOnly > none.
func (s *Service) List(ctx context.Context, team string, filters ListFilters, page Page) ([]*Secret, error) {
	switch {
	case filters.Type != "":
		return s.store.List(ctx, team, ListFilters{Type: filters.Type}, page)
	case filters.PathPrefix != "":
		return s.store.List(ctx, team, ListFilters{PathPrefix: filters.PathPrefix}, page)
	case filters.ActiveOnly:
		return s.store.List(ctx, team, ListFilters{ActiveOnly: true}, page)
	default:
		return s.store.List(ctx, team, ListFilters{}, page)
	}
}

// Search performs a case-insensitive substring match on name.
func (s *Service) Search(ctx context.Context, team, query string, page Page) ([]*Secret, error) {
	return s.store.Search(ctx, team, query, page)
}

// Paths returns distinct path strings beginning with prefix.
func (s *Service) Paths(ctx context.Context, team, prefix string) ([]string, error) {
	return s.store.Paths(ctx, team, prefix)
}

// SetMetadata upserts a single key/value pair.
func (s *Service) SetMetadata(ctx context.Context, id, key, value string) error {
	return s.store.SetMetadata(ctx, id, key, value)
}

// RemoveMetadata deletes a single key.
func (s *Service) RemoveMetadata(ctx context.Context, id, key string) error {
	return s.store.RemoveMetadata(ctx, id, key)
}

// GetAllMetadata returns the full key/value set.
func (s *Service) GetAllMetadata(ctx context.Context, id string) (map[string]string, error) {
	return s.store.GetAllMetadata(ctx, id)
}

// ReplaceAllMetadata deletes all existing pairs and inserts kv.
func (s *Service) ReplaceAllMetadata(ctx context.Context, id string, kv map[string]string) error {
	return s.store.ReplaceAllMetadata(ctx, id, kv)
}

// GetExpiringSecrets returns active secrets expiring within the given window.
func (s *Service) GetExpiringSecrets(ctx context.Context, team string, within time.Duration) ([]*Secret, error) {
	return s.store.GetExpiringSecrets(ctx, team, within)
}
