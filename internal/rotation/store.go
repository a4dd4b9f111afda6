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

package rotation

import (
	"context"
	"time"
)

// Store is the persistence contract the Service depends on. A PostgreSQL
// implementation lives in internal/rotation/postgres.
type Store interface {
	// UpsertPolicy creates or replaces the single Rotation Policy for a secret.
	UpsertPolicy(ctx context.Context, in UpsertInput) (*Policy, error)
	GetPolicyBySecret(ctx context.Context, secretID string) (*Policy, error)
	UpdatePolicy(ctx context.Context, p *Policy) error
	// DuePolicies returns active policies whose NextRotation is before now.
	DuePolicies(ctx context.Context, now time.Time) ([]*Policy, error)

	AppendHistory(ctx context.Context, h *HistoryEntry) error
	ListHistory(ctx context.Context, secretID string, page Page) ([]*HistoryEntry, error)
	Summarize(ctx context.Context, secretID string) (*HistorySummary, error)
}
