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
	"net/http"
	"strconv"
	"strings"

	"github.com/codeops-vault/vault/internal/identity"
	"github.com/codeops-vault/vault/internal/seal"
	"github.com/codeops-vault/vault/pkg/logctx"
)

const defaultListLimit = 20
const maxListLimit = 100

// requestContextMiddleware attaches RequestContext (client IP, correlation
// id) to every request, and mirrors both values into logctx, where the
// audit sink reads them.
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := extractRequestContext(r)
		ctx := withRequestContext(r.Context(), rc)
		ctx = logctx.WithClientIP(ctx, rc.ClientIP)
		ctx = logctx.WithCorrelationID(ctx, rc.CorrelationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware validates the bearer token on every request and, on
// success, attaches the resulting Principal to the request context. A
// missing or invalid token is not rejected here: reads stay open to any
// caller per the spec's identity Non-goals, and requireAuthForMutations
// is what actually gates writes on the attached Principal.
func authMiddleware(adapter *identity.Adapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" {
				if principal, err := adapter.Validate(token); err == nil {
					r = r.WithContext(withPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireAuthForMutations rejects any non-GET request lacking a validated
// Principal with 401. Reads stay open to any caller holding a bearer token
// or not — the spec's identity Non-goals stop at "no revocation, no policy
// enforcement mandate", not at "no authentication required to mutate state".
func requireAuthForMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			if _, ok := principalFromCtx(r.Context()); !ok {
				writeError(w, ErrMissingPrincipal)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sealGateMiddleware enforces C4 first: every protected operation is
// refused while the vault is not UNSEALED. Seal-management routes
// (registered on a separate mux, see router.go) bypass this gate since
// they are exactly how the vault transitions out of SEALED.
func sealGateMiddleware(sealSvc *seal.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sealSvc.RequireUnsealed(); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

func parseListLimit(r *http.Request) int {
	return min(parseIntParam(r, "limit", defaultListLimit), maxListLimit)
}
