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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTripsHeaderFields(t *testing.T) {
	dekIV := make([]byte, gcmNonceSize)
	wrappedDEK := make([]byte, dekSize+gcmTagSize)
	dataIV := make([]byte, gcmNonceSize)
	dataCiphertext := append([]byte("ciphertext"), make([]byte, gcmTagSize)...)

	env := encode("my-key:v3", dekIV, wrappedDEK, dataIV, dataCiphertext)
	p, err := decode(env)
	require.NoError(t, err)

	assert.Equal(t, "my-key:v3", p.keyID)
	assert.Equal(t, dekIV, p.dekIV)
	assert.Equal(t, wrappedDEK, p.wrappedDEK)
	assert.Equal(t, dataIV, p.dataIV)
	assert.Equal(t, dataCiphertext, p.dataCiphertext)
}

func TestDecode_RejectsEmptyString(t *testing.T) {
	_, err := decode("")
	assert.Error(t, err)
}

func TestDecode_RejectsDeclaredLengthExceedingBuffer(t *testing.T) {
	dekIV := make([]byte, gcmNonceSize)
	wrappedDEK := make([]byte, dekSize+gcmTagSize)
	dataIV := make([]byte, gcmNonceSize)
	dataCiphertext := make([]byte, gcmTagSize)
	env := encode("k", dekIV, wrappedDEK, dataIV, dataCiphertext)

	raw, err := decodeB64(t, env)
	require.NoError(t, err)

	// Overwrite the key-id length prefix (bytes 1-4) to claim a length
	// far larger than the remaining buffer.
	binary.BigEndian.PutUint32(raw[1:5], 0xFFFFFFF)
	tampered := encodeB64(raw)

	_, err = decode(tampered)
	assert.Error(t, err)
}

func TestDecode_RejectsShortDEKBlock(t *testing.T) {
	dekIV := make([]byte, gcmNonceSize)
	tooShortWrappedDEK := make([]byte, 4)
	dataIV := make([]byte, gcmNonceSize)
	dataCiphertext := make([]byte, gcmTagSize)

	env := encode("k", dekIV, tooShortWrappedDEK, dataIV, dataCiphertext)
	_, err := decode(env)
	assert.Error(t, err)
}
