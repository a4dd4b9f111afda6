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

// Package autounseal implements the vault's auto-unseal abstraction: an
// external KMS that unwraps the master key directly at startup, bypassing
// Shamir reconstruction, analogous to a "seal" stanza in other secrets
// managers. AWS KMS, Azure Key Vault, and GCP Cloud KMS each implement
// KeyManager below; Provider adapts whichever one is configured to the
// single Unwrap call the seal service needs.
package autounseal

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for KMS provider operations.
var (
	// ErrProviderNotImplemented indicates the requested KMS provider is not yet available.
	ErrProviderNotImplemented = errors.New("KMS provider not implemented")
	// ErrKeyNotFound indicates the wrapping key was not found in the KMS.
	ErrKeyNotFound = errors.New("encryption key not found")
	// ErrEncryptionFailed indicates a wrap operation failed.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed indicates an unwrap operation failed.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrRotationFailed indicates key rotation failed.
	ErrRotationFailed = errors.New("key rotation failed")
)

// KeyMetadata describes the KMS key a KeyManager wraps/unwraps with.
type KeyMetadata struct {
	KeyID      string
	KeyVersion string
	Algorithm  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Enabled    bool
}

// KeyRotationResult is returned by a KeyManager's RotateKey.
type KeyRotationResult struct {
	PreviousKeyVersion string
	NewKeyVersion      string
	RotatedAt          time.Time
}

// KeyManager is the full KMS surface each cloud provider implements: wrap
// and unwrap the master key, report key metadata, and rotate the
// underlying KMS key. The seal service itself only needs Unwrap (see
// Provider below); Wrap, KeyMetadata and RotateKey have no caller outside
// this package and its tests.
type KeyManager interface {
	// Wrap encrypts plaintext (the master key) using the configured KMS key.
	Wrap(ctx context.Context, plaintext []byte) (ciphertext []byte, err error)
	// Unwrap decrypts ciphertext that was encrypted by this provider's Wrap.
	Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error)
	// KeyMetadata returns metadata about the configured KMS key.
	KeyMetadata(ctx context.Context) (*KeyMetadata, error)
	// RotateKey triggers key rotation in the KMS, returning the new key version.
	RotateKey(ctx context.Context) (*KeyRotationResult, error)
	// Close releases any resources held by the manager.
	Close() error
}

// Provider is the narrow interface the seal service depends on: given the
// wrapped master key bytes from configuration, recover the plaintext
// master key once at startup.
type Provider interface {
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// keyManagerProvider adapts a KeyManager to the narrow Provider interface.
type keyManagerProvider struct {
	km KeyManager
}

// NewProvider wraps a KeyManager as a Provider.
func NewProvider(km KeyManager) Provider {
	return &keyManagerProvider{km: km}
}

func (p *keyManagerProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	return p.km.Unwrap(ctx, wrapped)
}
