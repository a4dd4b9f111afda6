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

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeops-vault/vault/internal/identity"
	"github.com/codeops-vault/vault/internal/seal"
)

const testSigningKey = "middleware-test-signing-key-32-bytes!!"

func signTestToken(t *testing.T, subject, team string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    subject,
		"teamId": team,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_AttachesPrincipalOnValidToken(t *testing.T) {
	adapter, err := identity.New(testSigningKey)
	require.NoError(t, err)

	var sawPrincipal bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromCtx(r.Context())
		sawPrincipal = ok && p.UserID == "alice"
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "alice", "team-a"))
	rec := httptest.NewRecorder()

	authMiddleware(adapter)(next).ServeHTTP(rec, req)
	assert.True(t, sawPrincipal)
}

func TestAuthMiddleware_PassesThroughWithoutToken(t *testing.T) {
	adapter, err := identity.New(testSigningKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()

	authMiddleware(adapter)(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_IgnoresInvalidToken(t *testing.T) {
	adapter, err := identity.New(testSigningKey)
	require.NoError(t, err)

	var sawPrincipal bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawPrincipal = principalFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	authMiddleware(adapter)(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sawPrincipal)
}

func TestRequireAuthForMutations_AllowsUnauthenticatedReads(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	rec := httptest.NewRecorder()

	requireAuthForMutations(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthForMutations_RejectsUnauthenticatedWrite(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/secrets", nil)
	rec := httptest.NewRecorder()

	requireAuthForMutations(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthForMutations_AllowsAuthenticatedWrite(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/secrets", nil)
	ctx := withPrincipal(req.Context(), &identity.Principal{UserID: "alice", TeamID: "team-a"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	requireAuthForMutations(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSealGateMiddleware_BlocksWhileSealed(t *testing.T) {
	svc, err := seal.New(context.Background(), seal.Config{
		MasterKey: []byte("0123456789abcdef0123456789abcdef"), TotalShares: 5, Threshold: 3,
	}, logr.Discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	rec := httptest.NewRecorder()

	sealGateMiddleware(svc)(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSealGateMiddleware_AllowsWhenUnsealed(t *testing.T) {
	svc, err := seal.New(context.Background(), seal.Config{
		MasterKey: []byte("0123456789abcdef0123456789abcdef"), TotalShares: 5, Threshold: 3, AutoUnseal: true,
	}, logr.Discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	rec := httptest.NewRecorder()

	sealGateMiddleware(svc)(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestContextMiddleware_AttachesClientIPAndCorrelationID(t *testing.T) {
	var gotIP, gotCorrelation string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestContextFromCtx(r.Context())
		gotIP = rc.ClientIP
		gotCorrelation = rc.CorrelationID
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()

	requestContextMiddleware(next).ServeHTTP(rec, req)
	assert.Equal(t, "203.0.113.5", gotIP)
	assert.Equal(t, "corr-123", gotCorrelation)
}

func TestParseListLimit_CapsAtMax(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/secrets?limit=9999", nil)
	assert.Equal(t, maxListLimit, parseListLimit(req))
}

func TestParseListLimit_DefaultsWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	assert.Equal(t, defaultListLimit, parseListLimit(req))
}
