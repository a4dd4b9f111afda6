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

// Package rotation implements the rotation engine (C8): policy upsert,
// single-secret rotation, due-rotation sweeps, and history queries.
package rotation

import "time"

// Strategy selects how a new secret value is produced.
type Strategy string

const (
	StrategyRandomGenerate Strategy = "RANDOM_GENERATE"
	StrategyExternalAPI    Strategy = "EXTERNAL_API"
	StrategyCustomScript   Strategy = "CUSTOM_SCRIPT"
)

// Policy is at most one per Secret.
type Policy struct {
	ID            string
	SecretID      string
	Strategy      Strategy
	IntervalHours int
	Params        Params
	LastRotatedAt *time.Time
	NextRotation  time.Time
	Active        bool
	FailureCount  int
	MaxFailures   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Params carries strategy-specific parameters. Only the fields relevant to
// the policy's Strategy need be populated.
type Params struct {
	RandomLength  int               `json:"randomLength,omitempty"`
	RandomCharset string            `json:"randomCharset,omitempty"`
	ExternalAPIURL string           `json:"externalApiUrl,omitempty"`
	ExternalHeaders map[string]string `json:"externalHeaders,omitempty"`
}

// HistoryEntry is an append-only record of one rotation attempt.
type HistoryEntry struct {
	ID              string
	SecretID        string
	SecretPath      string
	Strategy        Strategy
	Success         bool
	Error           string
	PreviousVersion *int
	NewVersion      *int
	DurationMS      int
	CreatedAt       time.Time
}

// HistorySummary reports aggregate rotation outcomes for a secret.
type HistorySummary struct {
	TotalCount         int
	FailureCount       int
	LastSuccessfulAt   *time.Time
}

// Page bounds a history listing.
type Page struct {
	Limit  int
	Offset int
}

// UpsertInput describes a create-or-update of a Rotation Policy.
type UpsertInput struct {
	SecretID      string
	Strategy      Strategy
	IntervalHours int
	Params        Params
}
