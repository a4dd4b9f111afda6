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

package transit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Engine is the subset of envelope crypto the Service depends on. Key
// material at rest is sealed under the storage KEK via Encrypt/Decrypt;
// caller data is sealed under a specific key version via EncryptWithKey/
// DecryptWithKey.
type Engine interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(env string) ([]byte, error)
	EncryptWithKey(plaintext []byte, keyID string, keyBytes []byte) (string, error)
	DecryptWithKey(env string, keyBytes []byte) ([]byte, error)
	GenerateDataKey() ([]byte, error)
}

// Service implements the transit-key engine: team-owned named keys with
// versioned material, used to encrypt/decrypt caller data without the
// plaintext key material ever leaving this package.
type Service struct {
	store Store
	crypt Engine
	now   func() time.Time
}

// New builds a Service. now defaults to time.Now when nil.
func New(store Store, crypt Engine, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, crypt: crypt, now: now}
}

func keyID(name string, version int) string {
	return name + ":v" + strconv.Itoa(version)
}

func splitKeyID(id string) (name string, version int, err error) {
	idx := strings.LastIndex(id, ":v")
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed key id %q", id)
	}
	version, err = strconv.Atoi(id[idx+2:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed key id %q: %w", id, err)
	}
	return id[:idx], version, nil
}

// loadVersions decrypts a Key's material into its ordered KeyVersion list.
func (s *Service) loadVersions(k *Key) ([]KeyVersion, error) {
	plaintext, err := s.crypt.Decrypt(k.EncryptedMaterial)
	if err != nil {
		return nil, vaulterr.Internal("decrypt key material: %v", err)
	}
	var versions []KeyVersion
	if err := json.Unmarshal(plaintext, &versions); err != nil {
		return nil, vaulterr.Internal("unmarshal key material: %v", err)
	}
	return versions, nil
}

func (s *Service) sealVersions(versions []KeyVersion) (string, error) {
	raw, err := json.Marshal(versions)
	if err != nil {
		return "", vaulterr.Internal("marshal key material: %v", err)
	}
	env, err := s.crypt.Encrypt(raw)
	if err != nil {
		return "", vaulterr.Internal("seal key material: %v", err)
	}
	return env, nil
}

func (s *Service) versionKey(versions []KeyVersion, version int) ([]byte, error) {
	for _, v := range versions {
		if v.Version == version {
			return base64.StdEncoding.DecodeString(v.Key)
		}
	}
	return nil, vaulterr.NotFound("key version %d not found", version)
}

// CreateKey provisions a new named key for a team at version 1.
func (s *Service) CreateKey(ctx context.Context, team, name, description string) (*Key, error) {
	if team == "" || name == "" {
		return nil, vaulterr.InvalidInput("team and name are required")
	}
	raw, err := s.crypt.GenerateDataKey()
	if err != nil {
		return nil, vaulterr.Internal("generate key material: %v", err)
	}
	versions := []KeyVersion{{Version: 1, Key: base64.StdEncoding.EncodeToString(raw)}}
	sealed, err := s.sealVersions(versions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	k := &Key{
		Team:                 team,
		Name:                 name,
		Description:          description,
		CurrentVersion:       1,
		MinDecryptionVersion: 1,
		EncryptedMaterial:    sealed,
		Algorithm:            "AES-256-GCM",
		Deletable:            false,
		Exportable:           false,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return s.store.CreateKey(ctx, k)
}

// RotateKey appends a new key version and advances CurrentVersion to it.
func (s *Service) RotateKey(ctx context.Context, team, name string) (*Key, error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return nil, err
	}
	if !k.Active {
		return nil, vaulterr.InvalidInput("key %q is not active", name)
	}
	versions, err := s.loadVersions(k)
	if err != nil {
		return nil, err
	}
	raw, err := s.crypt.GenerateDataKey()
	if err != nil {
		return nil, vaulterr.Internal("generate key material: %v", err)
	}
	newVersion := k.CurrentVersion + 1
	versions = append(versions, KeyVersion{Version: newVersion, Key: base64.StdEncoding.EncodeToString(raw)})

	sealed, err := s.sealVersions(versions)
	if err != nil {
		return nil, err
	}
	k.EncryptedMaterial = sealed
	k.CurrentVersion = newVersion
	k.UpdatedAt = s.now()

	if err := s.store.UpdateKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Encrypt seals plaintext under the key's current version, producing a
// self-identifying ciphertext that carries "<name>:v<version>" as its key id.
func (s *Service) Encrypt(ctx context.Context, team, name string, plaintext []byte) (string, error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return "", err
	}
	if !k.Active {
		return "", vaulterr.InvalidInput("key %q is not active", name)
	}
	versions, err := s.loadVersions(k)
	if err != nil {
		return "", err
	}
	raw, err := s.versionKey(versions, k.CurrentVersion)
	if err != nil {
		return "", err
	}
	return s.crypt.EncryptWithKey(plaintext, keyID(name, k.CurrentVersion), raw)
}

// Decrypt opens a ciphertext previously produced by Encrypt, rejecting
// ciphertexts sealed under a version below the key's MinDecryptionVersion.
func (s *Service) Decrypt(ctx context.Context, team, name, ciphertext string) ([]byte, error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return nil, err
	}
	return s.decryptAtKeyID(ctx, k, ciphertext)
}

func (s *Service) decryptAtKeyID(ctx context.Context, k *Key, ciphertext string) ([]byte, error) {
	id, err := envelope.ExtractKeyID(ciphertext)
	if err != nil {
		return nil, vaulterr.InvalidInput("cannot extract key id: %v", err)
	}
	_, version, err := splitKeyID(id)
	if err != nil {
		return nil, vaulterr.InvalidInput("%v", err)
	}
	if version < k.MinDecryptionVersion {
		return nil, vaulterr.InvalidInput("version %d is below minimum decryption version %d", version, k.MinDecryptionVersion)
	}
	versions, err := s.loadVersions(k)
	if err != nil {
		return nil, err
	}
	raw, err := s.versionKey(versions, version)
	if err != nil {
		return nil, err
	}
	return s.crypt.DecryptWithKey(ciphertext, raw)
}

// Rewrap re-encrypts a ciphertext under the key's current version without
// exposing plaintext to the caller. It is a no-op in effect if the
// ciphertext is already sealed under the current version.
func (s *Service) Rewrap(ctx context.Context, team, name, ciphertext string) (string, error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return "", err
	}
	plaintext, err := s.decryptAtKeyID(ctx, k, ciphertext)
	if err != nil {
		return "", err
	}
	versions, err := s.loadVersions(k)
	if err != nil {
		return "", err
	}
	raw, err := s.versionKey(versions, k.CurrentVersion)
	if err != nil {
		return "", err
	}
	return s.crypt.EncryptWithKey(plaintext, keyID(name, k.CurrentVersion), raw)
}

// GenerateDataKey returns a fresh symmetric key wrapped under the transit
// key's current version, for callers that want envelope encryption of their
// own without routing every operation through this service.
func (s *Service) GenerateDataKey(ctx context.Context, team, name string) (plaintextB64, wrapped string, err error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return "", "", err
	}
	raw, err := s.crypt.GenerateDataKey()
	if err != nil {
		return "", "", vaulterr.Internal("generate data key: %v", err)
	}
	versions, err := s.loadVersions(k)
	if err != nil {
		return "", "", err
	}
	kekBytes, err := s.versionKey(versions, k.CurrentVersion)
	if err != nil {
		return "", "", err
	}
	wrapped, err = s.crypt.EncryptWithKey(raw, keyID(name, k.CurrentVersion), kekBytes)
	if err != nil {
		return "", "", vaulterr.Internal("wrap data key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw), wrapped, nil
}

// DeleteKey removes a key, provided it was created with Deletable set.
func (s *Service) DeleteKey(ctx context.Context, team, name string) error {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return err
	}
	if !k.Deletable {
		return vaulterr.InvalidInput("key %q is not deletable", name)
	}
	return s.store.DeleteKey(ctx, team, name)
}

// UpdateKey applies a metadata-only patch. Raising MinDecryptionVersion
// above CurrentVersion is rejected.
func (s *Service) UpdateKey(ctx context.Context, team, name string, patch UpdatePatch) (*Key, error) {
	k, err := s.store.GetKey(ctx, team, name)
	if err != nil {
		return nil, err
	}
	if patch.MinDecryptionVersion != nil {
		if *patch.MinDecryptionVersion > k.CurrentVersion {
			return nil, vaulterr.InvalidInput("min decryption version %d exceeds current version %d", *patch.MinDecryptionVersion, k.CurrentVersion)
		}
		k.MinDecryptionVersion = *patch.MinDecryptionVersion
	}
	if patch.Description != nil {
		k.Description = *patch.Description
	}
	if patch.Deletable != nil {
		k.Deletable = *patch.Deletable
	}
	if patch.Exportable != nil {
		k.Exportable = *patch.Exportable
	}
	if patch.Active != nil {
		k.Active = *patch.Active
	}
	k.UpdatedAt = s.now()
	if err := s.store.UpdateKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// ListKeys returns every key owned by a team.
func (s *Service) ListKeys(ctx context.Context, team string) ([]*Key, error) {
	return s.store.ListKeys(ctx, team)
}
