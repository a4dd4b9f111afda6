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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codeops-vault/vault/internal/httputil"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// ErrorResponse is the JSON body written for any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrMissingBody, ErrMissingPrincipal and friends are handler-surface-local
// errors that never reach a core engine; writeError maps them to 400/401
// alongside the vaulterr taxonomy.
var (
	ErrMissingBody      = errors.New("request body is required")
	ErrMissingPrincipal = errors.New("missing or invalid bearer token")
	ErrMissingPathParam = errors.New("missing required path parameter")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httputil.WriteJSON(w, status, v); err != nil {
		_ = err // response already partially written; nothing more to do
	}
}

// writeError maps an error to an HTTP status using the vaulterr taxonomy,
// falling back to the handler-local sentinels above, and writes a JSON
// ErrorResponse. The message sent to the caller is always SafeMessage'd —
// internal errors never leak their detail across the wire.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingBody), errors.Is(err, ErrMissingPathParam):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, ErrMissingPrincipal):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch vaulterr.Kind(err) {
	case vaulterr.ErrNotFound:
		status = http.StatusNotFound
	case vaulterr.ErrInvalidInput:
		status = http.StatusBadRequest
	case vaulterr.ErrForbidden:
		status = http.StatusForbidden
	case vaulterr.ErrIntegrityFailure:
		status = http.StatusConflict
	case vaulterr.ErrSealed:
		status = http.StatusServiceUnavailable
	case vaulterr.ErrNotImplemented:
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, ErrorResponse{Error: vaulterr.SafeMessage(err)})
}

// decodeJSON decodes r's body into v, translating a decode failure into
// ErrMissingBody so writeError maps it to 400 without leaking the JSON
// library's error text.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrMissingBody
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrMissingBody
	}
	return nil
}
