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

package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-at-least-32-bytes!"

func signToken(t *testing.T, key string, c claims, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, c)
	s, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestNew_RejectsShortSigningKey(t *testing.T) {
	_, err := New("too-short")
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedToken(t *testing.T) {
	a, err := New(testSigningKey)
	require.NoError(t, err)

	token := signToken(t, testSigningKey, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TeamID:      "team-a",
		Roles:       []string{"admin"},
		Permissions: []string{"secret:read", "secret:write"},
	}, jwt.SigningMethodHS256)

	principal, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, "team-a", principal.TeamID)
	assert.True(t, principal.HasRole("admin"))
	assert.True(t, principal.HasPermission("secret:read"))
	assert.False(t, principal.HasPermission("secret:delete"))
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	a, err := New(testSigningKey)
	require.NoError(t, err)

	token := signToken(t, testSigningKey, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, jwt.SigningMethodHS256)

	_, err = a.Validate(token)
	require.Error(t, err)
}

func TestValidate_RejectsWrongSigningKey(t *testing.T) {
	a, err := New(testSigningKey)
	require.NoError(t, err)

	token := signToken(t, "a-completely-different-32-byte-key!", claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256)

	_, err = a.Validate(token)
	require.Error(t, err)
}

func TestValidate_RejectsMissingSubject(t *testing.T) {
	a, err := New(testSigningKey)
	require.NoError(t, err)

	token := signToken(t, testSigningKey, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256)

	_, err = a.Validate(token)
	require.Error(t, err)
}

func TestValidate_RejectsMalformedToken(t *testing.T) {
	a, err := New(testSigningKey)
	require.NoError(t, err)

	_, err = a.Validate("not-a-jwt")
	require.Error(t, err)
}
