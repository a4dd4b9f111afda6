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

	"github.com/go-logr/logr"

	"github.com/codeops-vault/vault/internal/audit"
	"github.com/codeops-vault/vault/internal/lease"
)

// LeaseHandler exposes the dynamic-lease engine (C9) over HTTP.
type LeaseHandler struct {
	svc   *lease.Service
	audit *audit.Sink
	log   logr.Logger
}

// NewLeaseHandler builds a LeaseHandler.
func NewLeaseHandler(svc *lease.Service, auditSink *audit.Sink, log logr.Logger) *LeaseHandler {
	return &LeaseHandler{svc: svc, audit: auditSink, log: log.WithName("lease-handler")}
}

// RegisterRoutes registers the lease API routes on mux.
func (h *LeaseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/leases", h.handleCreate)
	mux.HandleFunc("POST /api/v1/leases/{leaseID}/revoke", h.handleRevoke)
	mux.HandleFunc("POST /api/v1/secrets/{secretID}/leases/revoke-all", h.handleRevokeAll)
}

// CreateLeaseRequest is the JSON body for POST /api/v1/leases.
type CreateLeaseRequest struct {
	SecretID   string `json:"secretId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// CreateLeaseResponse carries the created lease and its one-time credentials.
type CreateLeaseResponse struct {
	Lease       *lease.Lease      `json:"lease"`
	Credentials lease.Credentials `json:"credentials"`
}

func (h *LeaseHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, team := actorFromCtx(r.Context())

	var req CreateLeaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.CreateLease(r.Context(), lease.CreateInput{
		SecretID:   req.SecretID,
		TTLSeconds: req.TTLSeconds,
		Requester:  user,
	})
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpLeaseCreate, ResourceType: "secret", ResourceID: req.SecretID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateLeaseResponse{Lease: result.Lease, Credentials: result.Credentials})
}

func (h *LeaseHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	leaseID := r.PathValue("leaseID")
	user, team := actorFromCtx(r.Context())

	err := h.svc.Revoke(r.Context(), leaseID, user)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpLeaseRevoke, ResourceType: "lease", ResourceID: leaseID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *LeaseHandler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	secretID := r.PathValue("secretID")
	user, team := actorFromCtx(r.Context())

	err := h.svc.RevokeAll(r.Context(), secretID, user)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpLeaseRevoke, ResourceType: "secret", ResourceID: secretID,
		Details: map[string]any{"revokeAll": true},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
