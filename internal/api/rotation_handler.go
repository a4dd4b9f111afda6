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
	"github.com/codeops-vault/vault/internal/rotation"
)

// RotationHandler exposes the rotation engine (C8) over HTTP.
type RotationHandler struct {
	svc   *rotation.Service
	audit *audit.Sink
	log   logr.Logger
}

// NewRotationHandler builds a RotationHandler.
func NewRotationHandler(svc *rotation.Service, auditSink *audit.Sink, log logr.Logger) *RotationHandler {
	return &RotationHandler{svc: svc, audit: auditSink, log: log.WithName("rotation-handler")}
}

// RegisterRoutes registers the rotation API routes on mux.
func (h *RotationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/secrets/{secretID}/rotation-policy", h.handleUpsertPolicy)
	mux.HandleFunc("POST /api/v1/secrets/{secretID}/rotate", h.handleRotateNow)
	mux.HandleFunc("GET /api/v1/secrets/{secretID}/rotation-history", h.handleHistory)
	mux.HandleFunc("GET /api/v1/secrets/{secretID}/rotation-summary", h.handleSummary)
}

// UpsertPolicyRequest is the JSON body for PUT .../rotation-policy.
type UpsertPolicyRequest struct {
	Strategy      rotation.Strategy `json:"strategy"`
	IntervalHours int               `json:"intervalHours"`
	Params        rotation.Params   `json:"params"`
}

// PolicyResponse wraps a Policy for a JSON response.
type PolicyResponse struct {
	Policy *rotation.Policy `json:"policy"`
}

// HistoryResponse wraps a page of rotation history entries.
type HistoryResponse struct {
	History []*rotation.HistoryEntry `json:"history"`
}

func (h *RotationHandler) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	secretID := r.PathValue("secretID")
	user, team := actorFromCtx(r.Context())

	var req UpsertPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.svc.CreateOrUpdatePolicy(r.Context(), rotation.UpsertInput{
		SecretID:      secretID,
		Strategy:      req.Strategy,
		IntervalHours: req.IntervalHours,
		Params:        req.Params,
	})
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "rotation_policy", ResourceID: secretID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{Policy: p})
}

func (h *RotationHandler) handleRotateNow(w http.ResponseWriter, r *http.Request) {
	secretID := r.PathValue("secretID")
	user, team := actorFromCtx(r.Context())

	err := h.svc.RotateSecret(r.Context(), secretID, user)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpRotate, ResourceType: "secret", ResourceID: secretID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *RotationHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	secretID := r.PathValue("secretID")
	page := rotation.Page{Limit: parseListLimit(r), Offset: parseIntParam(r, "offset", 0)}

	entries, err := h.svc.ListHistory(r.Context(), secretID, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: entries})
}

func (h *RotationHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	secretID := r.PathValue("secretID")

	summary, err := h.svc.Summarize(r.Context(), secretID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
