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

// Package shamir splits a byte string into n shares such that any k of
// them reconstruct the original, over GF(2^8) with reduction polynomial
// 0x11B (the AES field). Each byte of the secret is split independently
// using a degree-(k-1) polynomial whose constant term is that byte; a
// share is the set of (x, poly(x)) points for one fixed x across every
// byte of the secret.
package shamir

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// reductionPoly is the AES/GF(2^8) reduction polynomial x^8+x^4+x^3+x+1.
const reductionPoly = 0x11B

var (
	expTable [510]byte // exp[i] = g^i, doubled to avoid a modulo in mul
	logTable [256]byte // log[g^i] = i
)

func init() {
	// g=3 is a generator of GF(2^8) under reductionPoly.
	x := byte(1)
	for i := 0; i < 255; i++ {
		expTable[i] = x
		logTable[x] = byte(i)
		x = gfMulNoTable(x, 3)
	}
	for i := 255; i < 510; i++ {
		expTable[i] = expTable[i-255]
	}
}

// gfMulNoTable multiplies two field elements by hand; used only to build
// the log/exp tables during init.
func gfMulNoTable(a, b byte) byte {
	var result byte
	for b > 0 {
		if b&1 != 0 {
			result ^= a
		}
		hiBitSet := a & 0x80
		a <<= 1
		if hiBitSet != 0 {
			a ^= byte(reductionPoly & 0xFF)
		}
		b >>= 1
	}
	return result
}

// gfAdd is addition (and subtraction) in GF(2^8): XOR.
func gfAdd(a, b byte) byte { return a ^ b }

// gfMul multiplies two field elements using precomputed log/exp tables.
func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[int(logTable[a])+int(logTable[b])]
}

// gfDiv divides a by b in GF(2^8) using log/exp tables. b must be non-zero.
func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("shamir: division by zero in GF(2^8)")
	}
	diff := int(logTable[a]) - int(logTable[b])
	if diff < 0 {
		diff += 255
	}
	return expTable[diff]
}

// evalPoly evaluates a polynomial, given in order [constant, x^1, x^2, ...],
// at the field element x using Horner's method.
func evalPoly(coeffs []byte, x byte) byte {
	result := byte(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gfAdd(gfMul(result, x), coeffs[i])
	}
	return result
}

// Share is one participant's fragment of a split secret: a 1-based index
// and the polynomial evaluations, one per byte of the original secret.
type Share struct {
	Index byte
	Bytes []byte
}

// Split divides secret into n shares such that any k reconstruct it.
// Requires 2 <= k <= n <= 255.
func Split(secret []byte, n, k int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("shamir: secret must not be empty")
	}
	if k < 2 {
		return nil, fmt.Errorf("shamir: threshold must be at least 2, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("shamir: total shares %d must be >= threshold %d", n, k)
	}
	if n > 255 {
		return nil, fmt.Errorf("shamir: total shares must not exceed 255, got %d", n)
	}

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{Index: byte(i + 1), Bytes: make([]byte, len(secret))}
	}

	coeffs := make([]byte, k)
	for byteIdx, secretByte := range secret {
		coeffs[0] = secretByte
		if _, err := rand.Read(coeffs[1:]); err != nil {
			return nil, fmt.Errorf("shamir: generating random coefficients: %w", err)
		}
		for _, share := range shares {
			share.Bytes[byteIdx] = evalPoly(coeffs, share.Index)
		}
	}
	return shares, nil
}

// Combine reconstructs the secret from at least k shares via Lagrange
// interpolation at x=0. Shares must have distinct indices and equal
// length; callers are responsible for supplying at least the configured
// threshold.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("shamir: at least 2 shares are required to reconstruct")
	}
	secretLen := len(shares[0].Bytes)
	if secretLen == 0 {
		return nil, fmt.Errorf("shamir: shares carry no data")
	}
	seen := make(map[byte]bool, len(shares))
	for _, s := range shares {
		if len(s.Bytes) != secretLen {
			return nil, fmt.Errorf("shamir: shares have mismatched lengths")
		}
		if s.Index == 0 {
			return nil, fmt.Errorf("shamir: share index must be in 1..255")
		}
		if seen[s.Index] {
			return nil, fmt.Errorf("shamir: duplicate share index %d", s.Index)
		}
		seen[s.Index] = true
	}

	secret := make([]byte, secretLen)
	for byteIdx := 0; byteIdx < secretLen; byteIdx++ {
		secret[byteIdx] = lagrangeAtZero(shares, byteIdx)
	}
	return secret, nil
}

// lagrangeAtZero evaluates the Lagrange interpolation polynomial for the
// given shares at x=0, for a single byte position.
func lagrangeAtZero(shares []Share, byteIdx int) byte {
	result := byte(0)
	for i, si := range shares {
		term := si.Bytes[byteIdx]
		for j, sj := range shares {
			if i == j {
				continue
			}
			// term *= sj.Index / (sj.Index - si.Index), and since
			// subtraction is XOR in GF(2^8), (sj.Index - si.Index) is
			// just sj.Index ^ si.Index.
			denom := gfAdd(sj.Index, si.Index)
			term = gfMul(term, gfDiv(sj.Index, denom))
		}
		result = gfAdd(result, term)
	}
	return result
}

// EncodeShare produces the transport representation of a share:
// base64(1-byte index || share bytes).
func EncodeShare(s Share) string {
	buf := make([]byte, 1+len(s.Bytes))
	buf[0] = s.Index
	copy(buf[1:], s.Bytes)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeShare parses the transport representation produced by EncodeShare.
func DecodeShare(encoded string) (Share, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Share{}, fmt.Errorf("shamir: invalid base64 share: %w", err)
	}
	if len(buf) < 2 {
		return Share{}, fmt.Errorf("shamir: share too short")
	}
	return Share{Index: buf[0], Bytes: buf[1:]}, nil
}
