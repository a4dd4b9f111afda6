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

// Package identity validates externally issued bearer tokens (C11). It
// never issues tokens and keeps no blacklist: a token is trusted until its
// embedded expiry, same as the signing party intends.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinSigningKeyLength is the minimum acceptable HMAC signing-key length in
// bytes; the adapter refuses to start below this.
const MinSigningKeyLength = 32

// Principal is what a validated token yields: the caller's identity, team,
// and the roles/permissions the issuer attached to it.
type Principal struct {
	UserID      string
	TeamID      string
	Roles       []string
	Permissions []string
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal carries the named permission.
func (p Principal) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// claims is the JWT claim set the issuer is expected to populate.
type claims struct {
	jwt.RegisteredClaims
	TeamID      string   `json:"teamId"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Adapter validates HMAC-SHA-256 signed bearer tokens against a shared
// signing key. It holds no token state beyond the key itself.
type Adapter struct {
	signingKey []byte
}

// New builds an Adapter from the signing key shared with the token issuer.
func New(signingKey string) (*Adapter, error) {
	if len(signingKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("identity: signing key must be at least %d bytes, got %d", MinSigningKeyLength, len(signingKey))
	}
	return &Adapter{signingKey: []byte(signingKey)}, nil
}

// Validate parses and verifies a bearer token, returning its principal.
// Expired, malformed, or badly-signed tokens yield no principal — callers
// should treat a non-nil error as "anonymous", not distinguish further.
func (a *Adapter) Validate(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("identity: token expired")
		}
		return nil, fmt.Errorf("identity: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("identity: token invalid")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("identity: token missing subject")
	}

	return &Principal{
		UserID:      c.Subject,
		TeamID:      c.TeamID,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}, nil
}
