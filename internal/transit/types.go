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

// Package transit implements the transit-key engine (C10): team-owned named
// keys with versioned material, used to encrypt/decrypt caller data without
// ever persisting the plaintext.
package transit

import "time"

// KeyVersion is one generation of a Transit Key's material.
type KeyVersion struct {
	Version int    `json:"version"`
	Key     string `json:"key"` // base64(32B)
}

// Key is a team-owned named key with versioned material. The KeyVersion
// list is decrypted from EncryptedMaterial on demand; callers never see it
// directly.
type Key struct {
	ID                   string
	Team                 string
	Name                 string
	Description          string
	CurrentVersion       int
	MinDecryptionVersion int
	EncryptedMaterial    string // envelope-encrypted JSON array of KeyVersion
	Algorithm            string
	Deletable            bool
	Exportable           bool
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// UpdatePatch carries optional metadata-only field updates; nil means "no change".
type UpdatePatch struct {
	Description          *string
	MinDecryptionVersion *int
	Deletable            *bool
	Exportable           *bool
	Active               *bool
}
