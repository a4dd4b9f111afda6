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

package shamir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGFArithmetic_MulDivIdentity(t *testing.T) {
	for a := 1; a < 256; a++ {
		for _, b := range []int{1, 2, 3, 17, 255} {
			product := gfMul(byte(a), byte(b))
			quotient := gfDiv(product, byte(b))
			assert.Equal(t, byte(a), quotient, "a=%d b=%d", a, b)
		}
	}
}

func TestGFMul_ZeroIsAbsorbing(t *testing.T) {
	assert.Equal(t, byte(0), gfMul(0, 200))
	assert.Equal(t, byte(0), gfMul(200, 0))
}

func TestSplitCombine_RoundTrip(t *testing.T) {
	secret := []byte("master-key-material-32-bytes!!!")
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	reconstructed, err := Combine(shares[:3])
	require.NoError(t, err)
	assert.Equal(t, secret, reconstructed)
}

func TestSplitCombine_AnyThresholdSubsetWorks(t *testing.T) {
	secret := []byte("another-secret-value")
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	subsets := [][]Share{
		{shares[0], shares[1], shares[2]},
		{shares[0], shares[2], shares[4]},
		{shares[1], shares[3], shares[4]},
	}
	for _, subset := range subsets {
		reconstructed, err := Combine(subset)
		require.NoError(t, err)
		assert.Equal(t, secret, reconstructed)
	}
}

func TestCombine_BelowThresholdYieldsWrongSecret(t *testing.T) {
	secret := []byte("12345678901234567890123456789012")
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	// Reconstructing with fewer than k shares has no protocol-level check;
	// it simply yields an incorrect result, which is how the seal service
	// detects a too-small or wrong share set.
	wrong, err := Combine(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, secret, wrong)
}

func TestSplit_RejectsEmptySecret(t *testing.T) {
	_, err := Split(nil, 5, 3)
	assert.Error(t, err)
}

func TestSplit_RejectsThresholdBelowTwo(t *testing.T) {
	_, err := Split([]byte("x"), 5, 1)
	assert.Error(t, err)
}

func TestSplit_RejectsSharesBelowThreshold(t *testing.T) {
	_, err := Split([]byte("x"), 2, 3)
	assert.Error(t, err)
}

func TestCombine_RejectsDuplicateIndices(t *testing.T) {
	shares, err := Split([]byte("some secret"), 5, 3)
	require.NoError(t, err)
	dup := []Share{shares[0], shares[0], shares[1]}
	_, err = Combine(dup)
	assert.Error(t, err)
}

func TestCombine_RejectsMismatchedLengths(t *testing.T) {
	bad := []Share{
		{Index: 1, Bytes: []byte("abc")},
		{Index: 2, Bytes: []byte("ab")},
	}
	_, err := Combine(bad)
	assert.Error(t, err)
}

func TestEncodeDecodeShare_RoundTrip(t *testing.T) {
	shares, err := Split([]byte("round trip me please"), 3, 2)
	require.NoError(t, err)

	for _, s := range shares {
		encoded := EncodeShare(s)
		decoded, err := DecodeShare(encoded)
		require.NoError(t, err)
		assert.Equal(t, s.Index, decoded.Index)
		assert.Equal(t, s.Bytes, decoded.Bytes)
	}
}

func TestDecodeShare_RejectsInvalidBase64(t *testing.T) {
	_, err := DecodeShare("not-valid-base64!!!")
	assert.Error(t, err)
}

func TestDecodeShare_RejectsTooShort(t *testing.T) {
	_, err := DecodeShare("")
	assert.Error(t, err)
}

func TestSplit_SingleByteSecret(t *testing.T) {
	shares, err := Split([]byte{0x00}, 3, 2)
	require.NoError(t, err)
	reconstructed, err := Combine(shares[:2])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, reconstructed)
}
