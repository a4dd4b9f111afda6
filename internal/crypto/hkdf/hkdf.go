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

// Package hkdf implements RFC 5869 HMAC-based key derivation with
// HMAC-SHA-256 as the underlying hash. It is the sole key-derivation
// primitive used to turn the vault's master key into purpose-scoped
// encryption keys.
package hkdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

const hashSize = sha256.Size

// maxLength is the largest output Expand will produce: 255 rounds of one
// hash-output block each, per RFC 5869 §2.3.
const maxLength = 255 * hashSize

// Derive runs Extract followed by Expand, the common single-call path.
// salt may be nil, in which case a zero-filled block of hash-size length
// is used, per RFC 5869 §2.2.
func Derive(ikm, salt, info []byte, length int) ([]byte, error) {
	prk := Extract(salt, ikm)
	return Expand(prk, info, length)
}

// Extract is the RFC 5869 "extract" step: PRK = HMAC-Hash(salt, IKM).
// A nil or empty salt is replaced with a zero-filled string of hash-output
// length (32 bytes), matching the RFC's default when no salt is provided.
func Extract(salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, hashSize)
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// Expand is the RFC 5869 "expand" step, producing length bytes of output
// key material from a pseudorandom key and context info. length must lie
// in [0, 255*HashLen]; a request outside that range is rejected rather
// than silently truncated.
func Expand(prk, info []byte, length int) ([]byte, error) {
	if length < 0 || length > maxLength {
		return nil, fmt.Errorf("hkdf: requested length %d exceeds maximum %d", length, maxLength)
	}
	if length == 0 {
		return []byte{}, nil
	}

	var (
		out  = make([]byte, 0, length+hashSize)
		prev []byte
	)
	for counter := byte(1); len(out) < length; counter++ {
		mac := hmac.New(sha256.New, prk)
		mac.Write(prev)
		mac.Write(info)
		mac.Write([]byte{counter})
		prev = mac.Sum(nil)
		out = append(out, prev...)
	}
	return out[:length], nil
}
