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
)

// AuditHandler exposes the audit sink's query surface (C5) over HTTP.
// Writes happen implicitly, from every other handler's recordAudit calls —
// this handler is read-only.
type AuditHandler struct {
	sink *audit.Sink
	log  logr.Logger
}

// NewAuditHandler builds an AuditHandler.
func NewAuditHandler(sink *audit.Sink, log logr.Logger) *AuditHandler {
	return &AuditHandler{sink: sink, log: log.WithName("audit-handler")}
}

// RegisterRoutes registers the audit query route on mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/audit", h.handleQuery)
}

func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := audit.QueryOpts{
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		User:         q.Get("user"),
		Operation:    q.Get("operation"),
		Path:         q.Get("path"),
		FailuresOnly: q.Get("failuresOnly") == "true",
		Limit:        parseListLimit(r),
		Offset:       parseIntParam(r, "offset", 0),
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			opts.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			opts.To = t
		}
	}

	result, err := h.sink.Query(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
