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
	"github.com/codeops-vault/vault/internal/policy"
)

// PolicyHandler exposes access-policy CRUD and the evaluator (C6) over
// HTTP. The spec's Non-goals explicitly leave evaluator enforcement at
// request boundaries out of scope — this handler exposes /evaluate as a
// diagnostic endpoint, it does not gate any other route with it.
type PolicyHandler struct {
	store policy.Store
	eval  *policy.Evaluator
	audit *audit.Sink
	log   logr.Logger
}

// NewPolicyHandler builds a PolicyHandler over a Store and its Evaluator.
func NewPolicyHandler(store policy.Store, eval *policy.Evaluator, auditSink *audit.Sink, log logr.Logger) *PolicyHandler {
	return &PolicyHandler{store: store, eval: eval, audit: auditSink, log: log.WithName("policy-handler")}
}

// RegisterRoutes registers the policy API routes on mux.
func (h *PolicyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/policies", h.handleList)
	mux.HandleFunc("POST /api/v1/policies", h.handleCreate)
	mux.HandleFunc("GET /api/v1/policies/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/v1/policies/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/policies/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/v1/policies/{id}/bindings", h.handleListBindings)
	mux.HandleFunc("POST /api/v1/policies/{id}/bindings", h.handleBind)
	mux.HandleFunc("DELETE /api/v1/policies/bindings/{bindingID}", h.handleUnbind)
	if h.eval != nil {
		mux.HandleFunc("POST /api/v1/policies/evaluate", h.handleEvaluate)
	}
}

// CreatePolicyRequest is the JSON body for POST /api/v1/policies.
type CreatePolicyRequest struct {
	Team        string              `json:"team"`
	Name        string              `json:"name"`
	PathPattern string              `json:"pathPattern"`
	Permissions []policy.Permission `json:"permissions"`
	Deny        bool                `json:"deny"`
}

// UpdatePolicyRequest is the JSON body for PATCH /api/v1/policies/{id}.
type UpdatePolicyRequest struct {
	Name        string              `json:"name"`
	PathPattern string              `json:"pathPattern"`
	Permissions []policy.Permission `json:"permissions"`
	Deny        bool                `json:"deny"`
	Active      bool                `json:"active"`
}

// BindRequest is the JSON body for POST /api/v1/policies/{id}/bindings.
type BindRequest struct {
	BindingType policy.BindingType `json:"bindingType"`
	Target      string             `json:"target"`
}

// EvaluateRequest is the JSON body for POST /api/v1/policies/evaluate.
type EvaluateRequest struct {
	User       string            `json:"user,omitempty"`
	Service    string            `json:"service,omitempty"`
	Team       string            `json:"team"`
	Path       string            `json:"path"`
	Permission policy.Permission `json:"permission"`
}

// PolicyResp wraps a Policy for a JSON response.
type PolicyResp struct {
	Policy *policy.Policy `json:"policy"`
}

// PolicyListResp wraps a page of Policies.
type PolicyListResp struct {
	Policies []*policy.Policy `json:"policies"`
}

// BindingResp wraps a Binding for a JSON response.
type BindingResp struct {
	Binding *policy.Binding `json:"binding"`
}

// BindingListResp wraps a page of Bindings.
type BindingListResp struct {
	Bindings []*policy.Binding `json:"bindings"`
}

// EvaluateResponse carries an evaluator Decision.
type EvaluateResponse struct {
	Allowed       bool           `json:"allowed"`
	DefaultDenied bool           `json:"defaultDenied"`
	Policy        *policy.Policy `json:"policy,omitempty"`
}

func (h *PolicyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := actorFromCtx(r.Context())

	var req CreatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	p, err := h.store.CreatePolicy(r.Context(), &policy.Policy{
		Team:        req.Team,
		Name:        req.Name,
		PathPattern: req.PathPattern,
		Permissions: req.Permissions,
		Deny:        req.Deny,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: req.Team, User: user, Operation: audit.OpPolicyCreate, ResourceType: "policy",
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PolicyResp{Policy: p})
}

func (h *PolicyHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.store.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResp{Policy: p})
}

func (h *PolicyHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	existing, err := h.store.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	existing.Name = req.Name
	existing.PathPattern = req.PathPattern
	existing.Permissions = req.Permissions
	existing.Deny = req.Deny
	existing.Active = req.Active
	existing.UpdatedAt = time.Now()

	err = h.store.UpdatePolicy(r.Context(), existing)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpWrite, ResourceType: "policy", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResp{Policy: existing})
}

func (h *PolicyHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	err := h.store.DeletePolicy(r.Context(), id)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpDelete, ResourceType: "policy", ResourceID: id,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PolicyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	team := r.URL.Query().Get("team")
	policies, err := h.store.ListPolicies(r.Context(), team)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyListResp{Policies: policies})
}

func (h *PolicyHandler) handleBind(w http.ResponseWriter, r *http.Request) {
	policyID := r.PathValue("id")
	user, team := actorFromCtx(r.Context())

	var req BindRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	b, err := h.store.Bind(r.Context(), &policy.Binding{
		PolicyID:    policyID,
		BindingType: req.BindingType,
		Target:      req.Target,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpBind, ResourceType: "policy_binding", ResourceID: policyID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BindingResp{Binding: b})
}

func (h *PolicyHandler) handleUnbind(w http.ResponseWriter, r *http.Request) {
	bindingID := r.PathValue("bindingID")
	user, team := actorFromCtx(r.Context())

	err := h.store.Unbind(r.Context(), bindingID)
	recordAudit(r.Context(), h.audit, audit.Entry{
		Team: team, User: user, Operation: audit.OpUnbind, ResourceType: "policy_binding", ResourceID: bindingID,
	}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PolicyHandler) handleListBindings(w http.ResponseWriter, r *http.Request) {
	policyID := r.PathValue("id")
	bindings, err := h.store.ListBindings(r.Context(), policyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BindingListResp{Bindings: bindings})
}

func (h *PolicyHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		decision *policy.Decision
		err      error
	)
	if req.Service != "" {
		decision, err = h.eval.EvaluateServiceAccess(r.Context(), req.Service, req.Team, req.Path, req.Permission)
	} else {
		decision, err = h.eval.Evaluate(r.Context(), req.User, req.Team, req.Path, req.Permission)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{
		Allowed:       decision.Allowed,
		DefaultDenied: decision.DefaultDenied,
		Policy:        decision.Policy,
	})
}
