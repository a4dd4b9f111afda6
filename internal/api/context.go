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
	"net"
	"net/http"
	"strings"

	"github.com/codeops-vault/vault/internal/identity"
)

// requestContextKey is the context key for RequestContext.
type requestContextKey struct{}

// RequestContext holds request metadata the audit sink reads ambiently
// rather than taking as explicit Entry fields.
type RequestContext struct {
	ClientIP      string
	CorrelationID string
}

func withRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// requestContextFromCtx extracts RequestContext from the context, returning
// the zero value if none was attached.
func requestContextFromCtx(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(RequestContext)
	return rc
}

// extractRequestContext derives RequestContext from request headers.
func extractRequestContext(r *http.Request) RequestContext {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		if idx := strings.IndexByte(ip, ','); idx != -1 {
			ip = strings.TrimSpace(ip[:idx])
		}
	} else {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return RequestContext{
		ClientIP:      ip,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}
}

// principalContextKey is the context key for an identity.Principal.
type principalContextKey struct{}

func withPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// principalFromCtx extracts the caller's Principal, attached by authMiddleware.
func principalFromCtx(ctx context.Context) (*identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*identity.Principal)
	return p, ok
}
