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

// Package secret implements the secret store (C7): CRUD, versioning,
// retention, metadata, and search over team-owned secrets.
package secret

import "time"

// Type distinguishes how a Secret's value is sourced.
type Type string

const (
	TypeStatic    Type = "STATIC"
	TypeDynamic   Type = "DYNAMIC"
	TypeReference Type = "REFERENCE"
)

// Secret is a team-owned entity at a hierarchical path.
type Secret struct {
	ID             string
	Team           string
	Path           string
	Name           string
	Description    string
	Type           Type
	CurrentVersion int
	MaxVersions    *int
	RetentionDays  *int
	ExpiresAt      *time.Time
	LastAccessed   *time.Time
	LastRotated    *time.Time
	Owner          string
	ExternalRef    string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Version is an immutable encrypted value of a Secret at a point in time.
type Version struct {
	ID          string
	SecretID    string
	Version     int
	Envelope    string
	KeyID       string
	ChangeDesc  string
	CreatedBy   string
	Destroyed   bool
	CreatedAt   time.Time
}

// DestroyedCiphertext is written over a Version's envelope on destruction.
const DestroyedCiphertext = "DESTROYED"

// CreateInput describes a new Secret plus its optional first value.
type CreateInput struct {
	Team          string
	Path          string
	Name          string
	Description   string
	Type          Type
	Value         []byte
	CreatedBy     string
	Owner         string
	ExternalRef   string
	MaxVersions   *int
	RetentionDays *int
	ExpiresAt     *time.Time
	Metadata      map[string]string
}

// UpdatePatch carries optional field updates; nil means "no change".
type UpdatePatch struct {
	Name          *string
	Description   *string
	Value         []byte
	ChangedBy     string
	ChangeDesc    string
	MaxVersions   *int
	RetentionDays *int
	ExpiresAt     *time.Time
	Owner         *string
	ExternalRef   *string
}

// ListFilters selects exactly one of its non-empty fields, in priority
// order: Type > PathPrefix > ActiveOnly > none.
type ListFilters struct {
	Type       Type
	PathPrefix string
	ActiveOnly bool
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}
