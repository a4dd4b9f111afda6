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

// Package lease implements the dynamic-lease engine (C9): issuing,
// revoking, and expiring leased database credentials.
package lease

import "time"

// Status is a Dynamic Lease's lifecycle state. ACTIVE is the only
// non-terminal value.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// BackendType names the database engine a lease provisions credentials on.
type BackendType string

const (
	BackendPostgreSQL BackendType = "postgresql"
	BackendMySQL      BackendType = "mysql"
)

// Lease is a leased credential set.
type Lease struct {
	ID             string
	LeaseID        string
	SecretID       string
	SecretPath     string
	BackendType    BackendType
	CredentialBlob string
	Status         Status
	TTLSeconds     int
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	RevokedBy      string
	Requester      string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConnectionConfig is parsed from a DYNAMIC Secret's metadata blob.
type ConnectionConfig struct {
	BackendType    BackendType `json:"backendType"`
	Host           string      `json:"host"`
	Port           int         `json:"port"`
	Database       string      `json:"database"`
	AdminUsername  string      `json:"adminUsername"`
	AdminPassword  string      `json:"adminPassword"`
	UsernamePrefix string      `json:"usernamePrefix"`
}

// Credentials is the plaintext issued once, in the create-response only.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Backend  string `json:"backend"`
}

// CreateInput describes a new lease request.
type CreateInput struct {
	SecretID   string
	TTLSeconds int
	Requester  string
}

// CreateResult carries the lease record plus its one-time plaintext credentials.
type CreateResult struct {
	Lease       *Lease
	Credentials Credentials
}

const (
	MinTTLSeconds = 60
	MaxTTLSeconds = 86400

	passwordLength = 24
)
