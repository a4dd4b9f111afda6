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

// Package api is the handler surface (C13): a thin HTTP translation over
// the core engines. It authenticates bearer tokens, enforces the seal
// gate every protected operation is required to pass, and records an
// audit entry for every mutating call — then gets out of the way.
package api

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/codeops-vault/vault/internal/audit"
	"github.com/codeops-vault/vault/internal/identity"
	"github.com/codeops-vault/vault/internal/lease"
	"github.com/codeops-vault/vault/internal/policy"
	"github.com/codeops-vault/vault/internal/rotation"
	"github.com/codeops-vault/vault/internal/seal"
	"github.com/codeops-vault/vault/internal/secret"
	"github.com/codeops-vault/vault/internal/transit"
)

// Deps bundles every engine the handler surface depends on. All fields are
// required except PolicyEvaluator (nil disables /api/v1/policies/evaluate)
// and AuditSink (nil disables audit recording entirely, used in tests).
type Deps struct {
	Secrets         *secret.Service
	Transit         *transit.Service
	Leases          *lease.Service
	Rotation        *rotation.Service
	PolicyStore     policy.Store
	PolicyEvaluator *policy.Evaluator
	Seal            *seal.Service
	AuditSink       *audit.Sink
	Identity        *identity.Adapter
	Log             logr.Logger
}

// NewRouter builds the full HTTP surface: seal-management routes are
// reachable regardless of seal state (submitting a share is how the vault
// becomes UNSEALED), every other route runs behind the seal gate.
func NewRouter(deps Deps) http.Handler {
	root := http.NewServeMux()

	sealHandler := NewSealHandler(deps.Seal, deps.AuditSink, deps.Log)
	sealHandler.RegisterRoutes(root)

	protected := http.NewServeMux()
	NewSecretHandler(deps.Secrets, deps.AuditSink, deps.Log).RegisterRoutes(protected)
	NewTransitHandler(deps.Transit, deps.AuditSink, deps.Log).RegisterRoutes(protected)
	NewLeaseHandler(deps.Leases, deps.AuditSink, deps.Log).RegisterRoutes(protected)
	NewRotationHandler(deps.Rotation, deps.AuditSink, deps.Log).RegisterRoutes(protected)
	NewPolicyHandler(deps.PolicyStore, deps.PolicyEvaluator, deps.AuditSink, deps.Log).RegisterRoutes(protected)
	NewAuditHandler(deps.AuditSink, deps.Log).RegisterRoutes(protected)

	root.Handle("/", sealGateMiddleware(deps.Seal)(requireAuthForMutations(protected)))

	var handler http.Handler = root
	handler = authMiddleware(deps.Identity)(handler)
	handler = requestContextMiddleware(handler)
	return handler
}
