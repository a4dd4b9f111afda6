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
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/codeops-vault/vault/internal/secret"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// SecretUpdater is the subset of secret.Service the rotation engine needs.
type SecretUpdater interface {
	Update(ctx context.Context, id string, patch secret.UpdatePatch) (*secret.Secret, error)
	GetSecret(ctx context.Context, id string) (*secret.Secret, error)
}

// Service implements the rotation engine (C8).
type Service struct {
	store     Store
	secrets   SecretUpdater
	executors map[Strategy]StrategyExecutor
	now       func() time.Time
	log       logr.Logger
}

// New constructs a Service. now defaults to time.Now when nil.
func New(store Store, secrets SecretUpdater, log logr.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, secrets: secrets, executors: defaultExecutors(), now: now, log: log}
}

// CreateOrUpdatePolicy upserts by secret id, setting nextRotationAt =
// now + intervalHours and resetting failureCount to 0.
func (s *Service) CreateOrUpdatePolicy(ctx context.Context, in UpsertInput) (*Policy, error) {
	switch in.Strategy {
	case StrategyRandomGenerate:
		if in.Params.RandomLength <= 0 || in.Params.RandomCharset == "" {
			return nil, vaulterr.InvalidInput("randomLength and randomCharset are required for RANDOM_GENERATE")
		}
	case StrategyExternalAPI:
		if in.Params.ExternalAPIURL == "" {
			return nil, vaulterr.InvalidInput("externalApiUrl is required for EXTERNAL_API")
		}
	case StrategyCustomScript:
		// no required parameters; any rotation attempt fails not-implemented.
	default:
		return nil, vaulterr.InvalidInput("unknown rotation strategy %q", in.Strategy)
	}
	if in.IntervalHours <= 0 {
		return nil, vaulterr.InvalidInput("intervalHours must be positive")
	}
	return s.store.UpsertPolicy(ctx, in)
}

// RotateSecret executes the configured strategy for secretID and records
// the outcome in Rotation History, advancing the policy's schedule either way.
func (s *Service) RotateSecret(ctx context.Context, secretID, actor string) error {
	policy, err := s.store.GetPolicyBySecret(ctx, secretID)
	if err != nil {
		return err
	}

	sec, err := s.secrets.GetSecret(ctx, secretID)
	if err != nil {
		return err
	}

	start := s.now()
	executor, ok := s.executors[policy.Strategy]
	if !ok {
		return vaulterr.InvalidInput("no executor registered for strategy %q", policy.Strategy)
	}

	newValue, execErr := executor.Execute(ctx, policy)
	var updated *secret.Secret
	if execErr == nil {
		updated, execErr = s.secrets.Update(ctx, secretID, secret.UpdatePatch{
			Value:      newValue,
			ChangedBy:  actor,
			ChangeDesc: "rotation",
		})
	}
	duration := s.now().Sub(start)

	if execErr != nil {
		s.recordFailure(ctx, policy, sec, duration, execErr)
		return execErr
	}

	s.recordSuccess(ctx, policy, sec, updated, duration)
	return nil
}

func (s *Service) recordSuccess(ctx context.Context, policy *Policy, before *secret.Secret, after *secret.Secret, duration time.Duration) {
	prev := before.CurrentVersion
	next := after.CurrentVersion
	now := s.now()

	if err := s.store.AppendHistory(ctx, &HistoryEntry{
		SecretID:        policy.SecretID,
		SecretPath:      before.Path,
		Strategy:        policy.Strategy,
		Success:         true,
		PreviousVersion: &prev,
		NewVersion:      &next,
		DurationMS:      int(duration.Milliseconds()),
	}); err != nil {
		s.log.Error(err, "append rotation history (success)", "secretID", policy.SecretID)
	}

	policy.LastRotatedAt = &now
	policy.NextRotation = now.Add(time.Duration(policy.IntervalHours) * time.Hour)
	policy.FailureCount = 0
	if err := s.store.UpdatePolicy(ctx, policy); err != nil {
		s.log.Error(err, "advance rotation policy (success)", "secretID", policy.SecretID)
	}
}

func (s *Service) recordFailure(ctx context.Context, policy *Policy, sec *secret.Secret, duration time.Duration, execErr error) {
	prev := sec.CurrentVersion
	now := s.now()

	if err := s.store.AppendHistory(ctx, &HistoryEntry{
		SecretID:        policy.SecretID,
		SecretPath:      sec.Path,
		Strategy:        policy.Strategy,
		Success:         false,
		Error:           execErr.Error(),
		PreviousVersion: &prev,
		DurationMS:      int(duration.Milliseconds()),
	}); err != nil {
		s.log.Error(err, "append rotation history (failure)", "secretID", policy.SecretID)
	}

	// Advance nextRotationAt regardless of outcome to avoid a retry storm.
	policy.NextRotation = now.Add(time.Duration(policy.IntervalHours) * time.Hour)
	policy.FailureCount++
	if policy.FailureCount >= policy.MaxFailures {
		policy.Active = false
	}
	if err := s.store.UpdatePolicy(ctx, policy); err != nil {
		s.log.Error(err, "advance rotation policy (failure)", "secretID", policy.SecretID)
	}
}

// ProcessDueRotations rotates every active policy whose schedule has come
// due. Failures in one rotation do not abort the sweep. Returns the count
// of policies processed.
func (s *Service) ProcessDueRotations(ctx context.Context) (int, error) {
	due, err := s.store.DuePolicies(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("rotation: list due policies: %w", err)
	}

	for _, p := range due {
		if err := s.RotateSecret(ctx, p.SecretID, "scheduler"); err != nil {
			s.log.Error(err, "scheduled rotation failed", "secretID", p.SecretID)
		}
	}
	return len(due), nil
}

// ListHistory returns paginated Rotation History rows for a secret.
func (s *Service) ListHistory(ctx context.Context, secretID string, page Page) ([]*HistoryEntry, error) {
	return s.store.ListHistory(ctx, secretID, page)
}

// Summarize reports last-successful rotation, total count, and failure
// count for a secret.
func (s *Service) Summarize(ctx context.Context, secretID string) (*HistorySummary, error) {
	return s.store.Summarize(ctx, secretID)
}
