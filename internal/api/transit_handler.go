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
	"github.com/codeops-vault/vault/internal/transit"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// TransitHandler exposes the transit-key engine (C10) over HTTP.
type TransitHandler struct {
	svc   *transit.Service
	audit *audit.Sink
	log   logr.Logger
}

// NewTransitHandler builds a TransitHandler.
func NewTransitHandler(svc *transit.Service, auditSink *audit.Sink, log logr.Logger) *TransitHandler {
	return &TransitHandler{svc: svc, audit: auditSink, log: log.WithName("transit-handler")}
}

// RegisterRoutes registers the transit API routes on mux.
func (h *TransitHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/transit/keys", h.handleList)
	mux.HandleFunc("POST /api/v1/transit/keys", h.handleCreate)
	mux.HandleFunc("GET /api/v1/transit/keys/{name}", h.handleGetByQuery)
	mux.HandleFunc("PATCH /api/v1/transit/keys/{name}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/transit/keys/{name}", h.handleDelete)
	mux.HandleFunc("POST /api/v1/transit/keys/{name}/rotate", h.handleRotate)
	mux.HandleFunc("POST /api/v1/transit/keys/{name}/encrypt", h.handleEncrypt)
	mux.HandleFunc("POST /api/v1/transit/keys/{name}/decrypt", h.handleDecrypt)
	mux.HandleFunc("POST /api/v1/transit/keys/{name}/rewrap", h.handleRewrap)
	mux.HandleFunc("POST /api/v1/transit/keys/{name}/datakey", h.handleDataKey)
}

// CreateKeyRequest is the JSON body for POST /api/v1/transit/keys.
type CreateKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateKeyRequest is the JSON body for PATCH /api/v1/transit/keys/{name}.
type UpdateKeyRequest struct {
	Description          *string `json:"description,omitempty"`
	MinDecryptionVersion *int    `json:"minDecryptionVersion,omitempty"`
	Deletable            *bool   `json:"deletable,omitempty"`
	Exportable           *bool   `json:"exportable,omitempty"`
	Active               *bool   `json:"active,omitempty"`
}

// KeyResponse wraps a Key for a JSON response.
type KeyResponse struct {
	Key *transit.Key `json:"key"`
}

// KeyListResponse wraps a page of Keys.
type KeyListResponse struct {
	Keys []*transit.Key `json:"keys"`
}

// CipherRequest is the JSON body for an encrypt/decrypt/rewrap call.
type CipherRequest struct {
	Plaintext  string `json:"plaintext,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

// CipherResponse carries either a produced ciphertext or recovered plaintext.
type CipherResponse struct {
	Ciphertext string `json:"ciphertext,omitempty"`
	Plaintext  string `json:"plaintext,omitempty"`
}

// DataKeyResponse carries a generated data key in both forms.
type DataKeyResponse struct {
	Plaintext string `json:"plaintext"`
	Wrapped   string `json:"wrapped"`
}

func (h *TransitHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, team := actorFromCtx(r.Context())

	var req CreateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	k, err := h.svc.CreateKey(r.Context(), team, req.Name, req.Description)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "transit_key", ResourceID: req.Name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, KeyResponse{Key: k})
}

func (h *TransitHandler) handleGetByQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	_, team := actorFromCtx(r.Context())

	keys, err := h.svc.ListKeys(r.Context(), team)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, k := range keys {
		if k.Name == name {
			writeJSON(w, http.StatusOK, KeyResponse{Key: k})
			return
		}
	}
	writeError(w, vaulterr.NotFound("transit key %q", name))
}

func (h *TransitHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	var req UpdateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := transit.UpdatePatch{
		Description:          req.Description,
		MinDecryptionVersion: req.MinDecryptionVersion,
		Deletable:            req.Deletable,
		Exportable:           req.Exportable,
		Active:               req.Active,
	}

	k, err := h.svc.UpdateKey(r.Context(), team, name, patch)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "transit_key", ResourceID: name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: k})
}

func (h *TransitHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	err := h.svc.DeleteKey(r.Context(), team, name)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "transit_key", ResourceID: name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransitHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	k, err := h.svc.RotateKey(r.Context(), team, name)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpRotate, ResourceType: "transit_key", ResourceID: name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: k})
}

func (h *TransitHandler) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	var req CipherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ct, err := h.svc.Encrypt(r.Context(), team, name, []byte(req.Plaintext))
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpTransitEncrypt, ResourceType: "transit_key", ResourceID: name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CipherResponse{Ciphertext: ct})
}

func (h *TransitHandler) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	var req CipherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pt, err := h.svc.Decrypt(r.Context(), team, name, req.Ciphertext)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpTransitDecrypt, ResourceType: "transit_key", ResourceID: name,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CipherResponse{Plaintext: string(pt)})
}

func (h *TransitHandler) handleRewrap(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	var req CipherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ct, err := h.svc.Rewrap(r.Context(), team, name, req.Ciphertext)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpTransitEncrypt, ResourceType: "transit_key", ResourceID: name,
		Details: map[string]any{"rewrap": true},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CipherResponse{Ciphertext: ct})
}

func (h *TransitHandler) handleDataKey(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	user, team := actorFromCtx(r.Context())

	plaintext, wrapped, err := h.svc.GenerateDataKey(r.Context(), team, name)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpTransitEncrypt, ResourceType: "transit_key", ResourceID: name,
		Details: map[string]any{"datakey": true},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataKeyResponse{Plaintext: plaintext, Wrapped: wrapped})
}

func (h *TransitHandler) handleList(w http.ResponseWriter, r *http.Request) {
	_, team := actorFromCtx(r.Context())
	keys, err := h.svc.ListKeys(r.Context(), team)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyListResponse{Keys: keys})
}

