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
	"time"

	"github.com/go-logr/logr"

	"github.com/codeops-vault/vault/internal/audit"
	"github.com/codeops-vault/vault/internal/secret"
)

// SecretHandler exposes the secret store (C7) over HTTP.
type SecretHandler struct {
	svc   *secret.Service
	audit *audit.Sink
	log   logr.Logger
}

// NewSecretHandler builds a SecretHandler. audit may be nil, in which case
// mutating operations are simply not audited (used in tests).
func NewSecretHandler(svc *secret.Service, auditSink *audit.Sink, log logr.Logger) *SecretHandler {
	return &SecretHandler{svc: svc, audit: auditSink, log: log.WithName("secret-handler")}
}

// RegisterRoutes registers the secret API routes on mux.
func (h *SecretHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/secrets", h.handleList)
	mux.HandleFunc("GET /api/v1/secrets/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/secrets/paths", h.handlePaths)
	mux.HandleFunc("GET /api/v1/secrets/expiring", h.handleExpiring)
	mux.HandleFunc("POST /api/v1/secrets", h.handleCreate)
	mux.HandleFunc("GET /api/v1/secrets/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/v1/secrets/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/secrets/{id}", h.handleSoftDelete)
	mux.HandleFunc("DELETE /api/v1/secrets/{id}/hard", h.handleHardDelete)
	mux.HandleFunc("GET /api/v1/secrets/{id}/value", h.handleReadCurrentValue)
	mux.HandleFunc("GET /api/v1/secrets/{id}/versions/{version}/value", h.handleReadVersionValue)
	mux.HandleFunc("POST /api/v1/secrets/{id}/versions/{version}/destroy", h.handleDestroyVersion)
	mux.HandleFunc("POST /api/v1/secrets/{id}/retention", h.handleApplyRetention)
	mux.HandleFunc("GET /api/v1/secrets/{id}/metadata", h.handleGetMetadata)
	mux.HandleFunc("PUT /api/v1/secrets/{id}/metadata", h.handleReplaceMetadata)
	mux.HandleFunc("PUT /api/v1/secrets/{id}/metadata/{key}", h.handleSetMetadataKey)
	mux.HandleFunc("DELETE /api/v1/secrets/{id}/metadata/{key}", h.handleRemoveMetadataKey)
}

// CreateSecretRequest is the JSON body for POST /api/v1/secrets.
type CreateSecretRequest struct {
	Team          string            `json:"team"`
	Path          string            `json:"path"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Type          secret.Type       `json:"type"`
	Value         string            `json:"value"`
	Owner         string            `json:"owner,omitempty"`
	ExternalRef   string            `json:"externalRef,omitempty"`
	MaxVersions   *int              `json:"maxVersions,omitempty"`
	RetentionDays *int              `json:"retentionDays,omitempty"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SecretResponse wraps a Secret for a JSON response.
type SecretResponse struct {
	Secret *secret.Secret `json:"secret"`
}

// SecretListResponse wraps a page of Secrets.
type SecretListResponse struct {
	Secrets []*secret.Secret `json:"secrets"`
}

// ValueResponse carries a decrypted secret value. The value is always
// returned raw, never base64-wrapped again on top of whatever encoding the
// caller originally stored — callers own their own value's shape.
type ValueResponse struct {
	Value string `json:"value"`
}

// UpdateSecretRequest is the JSON body for PATCH /api/v1/secrets/{id}.
type UpdateSecretRequest struct {
	Name          *string    `json:"name,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Value         string     `json:"value,omitempty"`
	ChangeDesc    string     `json:"changeDesc,omitempty"`
	MaxVersions   *int       `json:"maxVersions,omitempty"`
	RetentionDays *int       `json:"retentionDays,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Owner         *string    `json:"owner,omitempty"`
	ExternalRef   *string    `json:"externalRef,omitempty"`
}

// ReplaceMetadataRequest is the JSON body for PUT /api/v1/secrets/{id}/metadata.
type ReplaceMetadataRequest struct {
	Metadata map[string]string `json:"metadata"`
}

// SetMetadataRequest is the JSON body for PUT /api/v1/secrets/{id}/metadata/{key}.
type SetMetadataRequest struct {
	Value string `json:"value"`
}

func (h *SecretHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := actorFromCtx(r.Context())

	var req CreateSecretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := secret.CreateInput{
		Team:          req.Team,
		Path:          req.Path,
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Value:         []byte(req.Value),
		CreatedBy:     user,
		Owner:         req.Owner,
		ExternalRef:   req.ExternalRef,
		MaxVersions:   req.MaxVersions,
		RetentionDays: req.RetentionDays,
		ExpiresAt:     req.ExpiresAt,
		Metadata:      req.Metadata,
	}

	sec, err := h.svc.Create(r.Context(), in)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: req.Team, User: user, Operation: audit.OpWrite, Path: req.Path,
		ResourceType: "secret",
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SecretResponse{Secret: sec})
}

func (h *SecretHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sec, err := h.svc.GetSecret(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretResponse{Secret: sec})
}

func (h *SecretHandler) handleReadCurrentValue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	val, err := h.svc.ReadCurrentValue(r.Context(), id)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpRead, ResourceType: "secret", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: string(val)})
}

func (h *SecretHandler) handleReadVersionValue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version := pathIntValue(r, "version")
	user, team := actorFromCtx(r.Context())

	val, err := h.svc.ReadValueAtVersion(r.Context(), id, version)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpRead, ResourceType: "secret", ResourceID: id,
		Details: map[string]any{"version": version},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: string(val)})
}

func (h *SecretHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	var req UpdateSecretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := secret.UpdatePatch{
		Name:          req.Name,
		Description:   req.Description,
		ChangedBy:     user,
		ChangeDesc:    req.ChangeDesc,
		MaxVersions:   req.MaxVersions,
		RetentionDays: req.RetentionDays,
		ExpiresAt:     req.ExpiresAt,
		Owner:         req.Owner,
		ExternalRef:   req.ExternalRef,
	}
	if req.Value != "" {
		patch.Value = []byte(req.Value)
	}

	sec, err := h.svc.Update(r.Context(), id, patch)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "secret", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretResponse{Secret: sec})
}

func (h *SecretHandler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	err := h.svc.SoftDelete(r.Context(), id)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "secret", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SecretHandler) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	err := h.svc.HardDelete(r.Context(), id)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "secret", ResourceID: id,
		Details: map[string]any{"hard": true},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SecretHandler) handleDestroyVersion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version := pathIntValue(r, "version")
	user, team := actorFromCtx(r.Context())

	err := h.svc.DestroyVersion(r.Context(), id, version)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "secret_version", ResourceID: id,
		Details: map[string]any{"version": version},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SecretHandler) handleApplyRetention(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	err := h.svc.ApplyRetention(r.Context(), id)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "secret_version", ResourceID: id,
		Details: map[string]any{"retention": true},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SecretHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := secret.ListFilters{
		Type:       secret.Type(q.Get("type")),
		PathPrefix: q.Get("pathPrefix"),
		ActiveOnly: q.Get("activeOnly") == "true",
	}
	page := secret.Page{Limit: parseListLimit(r), Offset: parseIntParam(r, "offset", 0)}

	secrets, err := h.svc.List(r.Context(), q.Get("team"), filters, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretListResponse{Secrets: secrets})
}

func (h *SecretHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := secret.Page{Limit: parseListLimit(r), Offset: parseIntParam(r, "offset", 0)}

	secrets, err := h.svc.Search(r.Context(), q.Get("team"), q.Get("q"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretListResponse{Secrets: secrets})
}

func (h *SecretHandler) handlePaths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paths, err := h.svc.Paths(r.Context(), q.Get("team"), q.Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paths": paths})
}

func (h *SecretHandler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	withinHours := parseIntParam(r, "withinHours", 24)

	secrets, err := h.svc.GetExpiringSecrets(r.Context(), q.Get("team"), time.Duration(withinHours)*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretListResponse{Secrets: secrets})
}

func (h *SecretHandler) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	md, err := h.svc.GetAllMetadata(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metadata": md})
}

func (h *SecretHandler) handleReplaceMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	var req ReplaceMetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.svc.ReplaceAllMetadata(r.Context(), id, req.Metadata)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "secret_metadata", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SecretHandler) handleSetMetadataKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.PathValue("key")
	user, team := actorFromCtx(r.Context())

	var req SetMetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.svc.SetMetadata(r.Context(), id, key, req.Value)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "secret_metadata", ResourceID: id,
		Details: map[string]any{"key": key},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SecretHandler) handleRemoveMetadataKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.PathValue("key")
	user, team := actorFromCtx(r.Context())

	err := h.svc.RemoveMetadata(r.Context(), id, key)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "secret_metadata", ResourceID: id,
		Details: map[string]any{"key": key},
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathIntValue parses an integer {version}-style path value, defaulting to
// 0 (an always-invalid version, rejected by the underlying service) on
// malformed input rather than panicking the handler.
func pathIntValue(r *http.Request, name string) int {
	s := r.PathValue(name)
	if s == "" {
		return 0
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
