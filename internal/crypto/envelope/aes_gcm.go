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

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/codeops-vault/vault/internal/vaulterr"
)

const gcmNonceSize = 12

// aesGCMSeal encrypts plaintext under key with a freshly generated nonce,
// returning the nonce and the ciphertext-with-appended-tag.
func aesGCMSeal(key, plaintext []byte) (nonce, sealed []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, vaulterr.Internal("generating nonce: %v", err)
	}
	sealed = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, sealed, nil
}

// aesGCMOpen decrypts a ciphertext-with-appended-tag under key and nonce.
// Any tag mismatch or corruption is classified as an integrity failure.
func aesGCMOpen(key, nonce, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, vaulterr.IntegrityFailure("nonce has wrong length")
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, vaulterr.IntegrityFailure("authentication tag mismatch")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vaulterr.Internal("constructing AES cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, vaulterr.Internal("constructing GCM mode: %v", err)
	}
	return gcm, nil
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
