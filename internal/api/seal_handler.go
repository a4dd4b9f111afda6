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
	"github.com/codeops-vault/vault/internal/seal"
)

// SealHandler exposes the seal service (C4) over HTTP. Its routes are
// registered on a mux that bypasses sealGateMiddleware — submitting a
// share is exactly how the vault leaves SEALED, so the gate can't apply
// to this handler's own routes.
type SealHandler struct {
	svc   *seal.Service
	audit *audit.Sink
	log   logr.Logger
}

// NewSealHandler builds a SealHandler.
func NewSealHandler(svc *seal.Service, auditSink *audit.Sink, log logr.Logger) *SealHandler {
	return &SealHandler{svc: svc, audit: auditSink, log: log.WithName("seal-handler")}
}

// RegisterRoutes registers the seal API routes on mux.
func (h *SealHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/seal/status", h.handleStatus)
	mux.HandleFunc("POST /api/v1/seal/unseal", h.handleSubmitShare)
	mux.HandleFunc("POST /api/v1/seal/seal", h.handleSeal)
	mux.HandleFunc("POST /api/v1/seal/init", h.handleInit)
}

// SubmitShareRequest is the JSON body for POST /api/v1/seal/unseal.
type SubmitShareRequest struct {
	Share string `json:"share"`
}

// StatusResponse wraps seal.Status for a JSON response.
type StatusResponse struct {
	Status seal.Status `json:"status"`
}

// InfoResponse wraps seal.Info for a JSON response.
type InfoResponse struct {
	Info seal.Info `json:"info"`
}

// GenerateSharesResponse carries newly generated Shamir shares. Callers must
// distribute and store these themselves — the vault keeps none of them.
type GenerateSharesResponse struct {
	Shares []string `json:"shares"`
}

func (h *SealHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{Info: h.svc.GetSealInfo()})
}

func (h *SealHandler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	user, team := actorFromCtx(r.Context())

	var req SubmitShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	status, err := h.svc.SubmitKeyShare(r.Context(), req.Share)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpUnseal, ResourceType: "seal",
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: status})
}

func (h *SealHandler) handleSeal(w http.ResponseWriter, r *http.Request) {
	user, team := actorFromCtx(r.Context())

	err := h.svc.Seal()
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpSeal, ResourceType: "seal",
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SealHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	shares, err := h.svc.GenerateKeyShares()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateSharesResponse{Shares: shares})
}
