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

// Package envelope implements the vault's envelope-encryption engine: key
// derivation from a master key via HKDF, per-operation data-encryption
// keys wrapped under a key-encryption key, and a versioned, self-describing
// ciphertext format that travels as base64 text. It is the only package
// in the repository that touches AES directly.
package envelope

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/go-logr/logr"

	"github.com/codeops-vault/vault/internal/crypto/hkdf"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

const (
	// MasterKeyMinLength is the minimum acceptable master-key length in
	// bytes; the process refuses to start below this.
	MasterKeyMinLength = 32

	// MaxPlaintextSize bounds encrypt() input; secrets are not a bulk-data
	// store.
	MaxPlaintextSize = 1 << 20 // 1 MiB

	// defaultKeyID names the key derived for the secret-storage purpose.
	defaultKeyID = "master-v1"

	// storagePurpose is the HKDF info string for the default KEK.
	storagePurpose = "secret-storage"

	infoPrefix = "codeops-vault-"
)

// Engine is the envelope-encryption engine (C3). It holds the master key
// in memory only; every derived key is recomputed from it via HKDF rather
// than cached, so there is nothing beyond the master key to zeroize.
type Engine struct {
	masterKey []byte
	log       logr.Logger
}

// New constructs an Engine from a master key, validating its length and
// running a round-trip probe encrypt/decrypt before returning. A failure
// here means the process should refuse to start rather than run
// sealed-and-broken.
func New(masterKey string, log logr.Logger) (*Engine, error) {
	if len(masterKey) < MasterKeyMinLength {
		return nil, vaulterr.InvalidInput("master key must be at least %d bytes, got %d", MasterKeyMinLength, len(masterKey))
	}
	e := &Engine{masterKey: []byte(masterKey), log: log.WithName("envelope")}

	probe := []byte("codeops-vault-startup-probe")
	env, err := e.Encrypt(probe)
	if err != nil {
		return nil, vaulterr.Internal("startup encryption probe failed: %v", err)
	}
	got, err := e.Decrypt(env)
	if err != nil {
		return nil, vaulterr.Internal("startup decryption probe failed: %v", err)
	}
	if string(got) != string(probe) {
		return nil, vaulterr.Internal("startup probe round-trip mismatch")
	}
	e.log.V(1).Info("envelope engine validated master key at startup")
	return e, nil
}

// deriveKey derives a 32-byte key for the given purpose from the master
// key via HKDF-SHA256 with a zero salt, matching every other KEK this
// engine derives so that "secret-storage" has no special casing beyond
// its constant purpose string.
func (e *Engine) deriveKey(purpose string) ([]byte, error) {
	key, err := hkdf.Derive(e.masterKey, nil, []byte(infoPrefix+purpose), 32)
	if err != nil {
		return nil, vaulterr.Internal("deriving key for purpose %q: %v", purpose, err)
	}
	return key, nil
}

// Encrypt seals plaintext under the default storage KEK.
func (e *Engine) Encrypt(plaintext []byte) (string, error) {
	kek, err := e.deriveKey(storagePurpose)
	if err != nil {
		return "", err
	}
	return e.encryptWithKEK(plaintext, defaultKeyID, kek)
}

// Decrypt opens an envelope produced by Encrypt, using the default
// storage KEK.
func (e *Engine) Decrypt(env string) ([]byte, error) {
	kek, err := e.deriveKey(storagePurpose)
	if err != nil {
		return nil, err
	}
	return e.decryptWithKEK(env, kek)
}

// EncryptWithKey seals plaintext under a caller-supplied KEK, identified
// by keyID in the resulting envelope. Used by the transit engine, whose
// keys are not derived from the master key.
func (e *Engine) EncryptWithKey(plaintext []byte, keyID string, keyBytes []byte) (string, error) {
	return e.encryptWithKEK(plaintext, keyID, keyBytes)
}

// DecryptWithKey opens an envelope using a caller-supplied KEK. The
// envelope's declared key id is not checked against keyID here; callers
// that care about self-identifying key names (the transit engine) check
// ExtractKeyID themselves before choosing which key to pass in.
func (e *Engine) DecryptWithKey(env string, keyBytes []byte) ([]byte, error) {
	return e.decryptWithKEK(env, keyBytes)
}

func (e *Engine) encryptWithKEK(plaintext []byte, keyID string, kek []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", vaulterr.InvalidInput("plaintext must not be empty")
	}
	if len(plaintext) > MaxPlaintextSize {
		return "", vaulterr.InvalidInput("plaintext of %d bytes exceeds maximum of %d", len(plaintext), MaxPlaintextSize)
	}

	dek, err := randomBytes(dekSize)
	if err != nil {
		return "", vaulterr.Internal("generating data key: %v", err)
	}
	dekIV, wrappedDEK, err := aesGCMSeal(kek, dek)
	if err != nil {
		return "", err
	}
	dataIV, dataCiphertext, err := aesGCMSeal(dek, plaintext)
	if err != nil {
		return "", err
	}
	return encode(keyID, dekIV, wrappedDEK, dataIV, dataCiphertext), nil
}

func (e *Engine) decryptWithKEK(env string, kek []byte) ([]byte, error) {
	p, err := decode(env)
	if err != nil {
		return nil, err
	}
	dek, err := aesGCMOpen(kek, p.dekIV, p.wrappedDEK)
	if err != nil {
		return nil, err
	}
	plaintext, err := aesGCMOpen(dek, p.dataIV, p.dataCiphertext)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Rewrap decrypts env under oldKEK and re-encrypts the plaintext under
// newKEK with newKeyID, without returning the plaintext to the caller.
func (e *Engine) Rewrap(env string, oldKEK, newKEK []byte, newKeyID string) (string, error) {
	plaintext, err := e.decryptWithKEK(env, oldKEK)
	if err != nil {
		return "", err
	}
	rewrapped, err := e.encryptWithKEK(plaintext, newKeyID, newKEK)
	for i := range plaintext {
		plaintext[i] = 0
	}
	return rewrapped, err
}

// ExtractKeyID parses only the envelope header to recover its key id,
// performing no cryptographic operation.
func ExtractKeyID(env string) (string, error) {
	p, err := decode(env)
	if err != nil {
		return "", err
	}
	return p.keyID, nil
}

// GenerateDataKey returns 32 fresh random bytes suitable for use as a
// transit data key.
func (e *Engine) GenerateDataKey() ([]byte, error) {
	dek, err := randomBytes(dekSize)
	if err != nil {
		return nil, vaulterr.Internal("generating data key: %v", err)
	}
	return dek, nil
}

// GenerateAndWrapDataKey returns a fresh data key both as base64 plaintext
// and as a storage-envelope-encrypted ciphertext, so callers can hand the
// plaintext form to a consumer while persisting only the wrapped form.
func (e *Engine) GenerateAndWrapDataKey() (plaintextB64, wrapped string, err error) {
	dek, err := e.GenerateDataKey()
	if err != nil {
		return "", "", err
	}
	wrapped, err = e.Encrypt(dek)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(dek), wrapped, nil
}

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
