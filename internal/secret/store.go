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

package secret

import (
	"context"
	"time"
)

// Store is the persistence contract the Service depends on. A PostgreSQL
// implementation lives in internal/secret/postgres.
type Store interface {
	// CreateSecret inserts a Secret row. Returns invalid-input on a (team, path) clash.
	CreateSecret(ctx context.Context, s *Secret) (*Secret, error)
	GetSecret(ctx context.Context, id string) (*Secret, error)
	// UpdateSecret persists mutated fields of an already-loaded Secret.
	UpdateSecret(ctx context.Context, s *Secret) error
	// TouchLastAccessed bumps the last-accessed timestamp without a full update.
	TouchLastAccessed(ctx context.Context, id string, at time.Time) error
	SoftDeleteSecret(ctx context.Context, id string) error
	// HardDeleteSecret removes the Secret, its Versions, and its Metadata in
	// one transaction. Rotation History and Dynamic Lease rows are untouched.
	HardDeleteSecret(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, v *Version) (*Version, error)
	GetVersion(ctx context.Context, secretID string, version int) (*Version, error)
	ListVersions(ctx context.Context, secretID string) ([]*Version, error)
	// DestroyVersion overwrites the ciphertext with DestroyedCiphertext and sets destroyed=true.
	DestroyVersion(ctx context.Context, secretID string, version int) error

	SetMetadata(ctx context.Context, secretID, key, value string) error
	RemoveMetadata(ctx context.Context, secretID, key string) error
	GetAllMetadata(ctx context.Context, secretID string) (map[string]string, error)
	ReplaceAllMetadata(ctx context.Context, secretID string, kv map[string]string) error

	List(ctx context.Context, team string, filters ListFilters, page Page) ([]*Secret, error)
	Search(ctx context.Context, team, query string, page Page) ([]*Secret, error)
	Paths(ctx context.Context, team, prefix string) ([]string, error)
	GetExpiringSecrets(ctx context.Context, team string, within time.Duration) ([]*Secret, error)
}
