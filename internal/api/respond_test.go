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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeops-vault/vault/internal/vaulterr"
)

func TestWriteError_MapsTaxonomyToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", vaulterr.NotFound("secret %q", "x"), 404},
		{"invalid input", vaulterr.InvalidInput("bad path"), 400},
		{"forbidden", vaulterr.Forbidden("nope"), 403},
		{"integrity failure", vaulterr.IntegrityFailure("tag mismatch"), 409},
		{"sealed", vaulterr.Sealed("vault is SEALED"), 503},
		{"not implemented", vaulterr.NotImplemented("custom script"), 501},
		{"internal", vaulterr.Internal("boom"), 500},
		{"missing body", ErrMissingBody, 400},
		{"missing principal", ErrMissingPrincipal, 401},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestWriteError_InternalErrorsDoNotLeakDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, vaulterr.Internal("connection string: postgres://admin:hunter2@db"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "internal error occurred")
}
