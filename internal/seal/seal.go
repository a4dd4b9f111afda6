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

// Package seal implements the vault's lifecycle gate: a process-local
// state machine that tracks whether the master key is available, and
// reconstructs it from Shamir shares (or an auto-unseal provider) before
// any other engine may operate.
package seal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"github.com/codeops-vault/vault/internal/crypto/shamir"
	"github.com/codeops-vault/vault/internal/seal/autounseal"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// Status is the seal lifecycle state.
type Status string

const (
	StatusSealed    Status = "SEALED"
	StatusUnsealing Status = "UNSEALING"
	StatusUnsealed  Status = "UNSEALED"
)

// Info is a non-mutating snapshot of the seal state, safe to hand to
// callers without exposing accumulated share bytes.
type Info struct {
	Status          Status
	TotalShares     int
	Threshold       int
	SharesSubmitted int
	LastSealedAt    time.Time
	LastUnsealedAt  time.Time
}

// Service is the seal service (C4). All mutating operations are
// serialized under mu; status reads take the same lock and return a copy.
type Service struct {
	mu sync.Mutex

	status      Status
	totalShares int
	threshold   int

	masterKey []byte
	shares    map[byte][]byte // share index -> share bytes, pending reconstruction

	lastSealedAt   time.Time
	lastUnsealedAt time.Time

	autoUnsealProvider autounseal.Provider

	// limiter throttles submitKeyShare to slow brute-force guessing of
	// the threshold; it is not part of the original contract but closes
	// an explicitly flagged open question in favor of "yes".
	limiter *rate.Limiter

	log logr.Logger
}

// Config configures a new seal Service.
type Config struct {
	MasterKey   []byte
	TotalShares int
	Threshold   int
	AutoUnseal  bool
	Provider    autounseal.Provider
}

// New constructs a Service in SEALED state, or in UNSEALED state
// immediately if cfg.AutoUnseal is true, in which case the auto-unseal
// provider (or the configured master key, if no provider is set) is used
// in place of Shamir reconstruction.
func New(ctx context.Context, cfg Config, log logr.Logger) (*Service, error) {
	if cfg.Threshold < 1 || cfg.Threshold > cfg.TotalShares || cfg.TotalShares > 255 {
		return nil, vaulterr.InvalidInput("invalid shamir parameters: threshold=%d total=%d", cfg.Threshold, cfg.TotalShares)
	}

	s := &Service{
		status:             StatusSealed,
		totalShares:        cfg.TotalShares,
		threshold:          cfg.Threshold,
		masterKey:          cfg.MasterKey,
		shares:             make(map[byte][]byte),
		autoUnsealProvider: cfg.Provider,
		limiter:            rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		log:                log.WithName("seal"),
	}

	if cfg.AutoUnseal {
		if err := s.autoUnseal(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) autoUnseal(ctx context.Context) error {
	if s.autoUnsealProvider != nil {
		unwrapped, err := s.autoUnsealProvider.Unwrap(ctx, s.masterKey)
		if err != nil {
			return vaulterr.Internal("auto-unseal provider failed: %v", err)
		}
		s.masterKey = unwrapped
	}
	s.status = StatusUnsealed
	s.lastUnsealedAt = time.Now()
	s.log.Info("seal started unsealed via auto-unseal")
	return nil
}

// RequireUnsealed is the gate every protected operation calls first.
func (s *Service) RequireUnsealed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUnsealed {
		return vaulterr.Sealed("vault is %s", s.status)
	}
	return nil
}

// Seal transitions from UNSEALED or UNSEALING back to SEALED, discarding
// any partially accumulated shares.
func (s *Service) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusSealed {
		return vaulterr.InvalidInput("vault is already sealed")
	}
	s.resetLocked()
	s.lastSealedAt = time.Now()
	s.log.Info("vault sealed")
	return nil
}

func (s *Service) resetLocked() {
	s.status = StatusSealed
	s.shares = make(map[byte][]byte)
}

// SubmitKeyShare decodes and accumulates one Shamir share. Once the
// threshold is reached it reconstructs the master key and compares it
// against the configured value; on mismatch the service resets to
// SEALED and returns an integrity-failure error.
func (s *Service) SubmitKeyShare(ctx context.Context, encoded string) (Status, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", vaulterr.Internal("rate limiter: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusUnsealed {
		return s.status, vaulterr.InvalidInput("vault is already unsealed")
	}

	share, err := shamir.DecodeShare(encoded)
	if err != nil {
		return s.status, vaulterr.InvalidInput("invalid share: %v", err)
	}
	if share.Index < 1 || int(share.Index) > s.totalShares {
		return s.status, vaulterr.InvalidInput("share index %d out of range [1, %d]", share.Index, s.totalShares)
	}
	if _, dup := s.shares[share.Index]; dup {
		return s.status, vaulterr.InvalidInput("share index %d already submitted", share.Index)
	}

	s.shares[share.Index] = share.Bytes
	s.status = StatusUnsealing

	if len(s.shares) < s.threshold {
		return s.status, nil
	}

	reconstructed, err := shamir.Combine(collectShares(s.shares))
	if err != nil {
		s.resetLocked()
		return s.status, vaulterr.IntegrityFailure("reconstruction failed: %v", err)
	}
	if len(reconstructed) < len(s.masterKey) || string(reconstructed[:len(s.masterKey)]) != string(s.masterKey) {
		s.resetLocked()
		return s.status, vaulterr.IntegrityFailure("reconstructed key does not match the configured master key")
	}

	s.status = StatusUnsealed
	s.lastUnsealedAt = time.Now()
	s.shares = make(map[byte][]byte)
	s.log.Info("vault unsealed")
	return s.status, nil
}

func collectShares(m map[byte][]byte) []shamir.Share {
	out := make([]shamir.Share, 0, len(m))
	for idx, bytes := range m {
		out = append(out, shamir.Share{Index: idx, Bytes: bytes})
	}
	return out
}

// GenerateKeyShares splits the master key into n shares and returns their
// transport-encoded form. Permitted only while UNSEALED; the shares are
// advisory output the caller is responsible for distributing and storing
// externally — the service keeps none of them.
func (s *Service) GenerateKeyShares() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUnsealed {
		return nil, vaulterr.Sealed("vault must be unsealed to generate shares, is %s", s.status)
	}

	shares, err := shamir.Split(s.masterKey, s.totalShares, s.threshold)
	if err != nil {
		return nil, vaulterr.Internal("splitting master key: %v", err)
	}
	encoded := make([]string, len(shares))
	for i, sh := range shares {
		encoded[i] = shamir.EncodeShare(sh)
	}
	return encoded, nil
}

// GetStatus returns the current lifecycle status only.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GetSealInfo returns a full, non-mutating snapshot of the seal state.
func (s *Service) GetSealInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Status:          s.status,
		TotalShares:     s.totalShares,
		Threshold:       s.threshold,
		SharesSubmitted: len(s.shares),
		LastSealedAt:    s.lastSealedAt,
		LastUnsealedAt:  s.lastUnsealedAt,
	}
}

// MasterKey returns the reconstructed master key bytes. It must only be
// called by engines that have already confirmed RequireUnsealed; it
// panics otherwise to surface a programming error immediately rather than
// leak sealed state.
func (s *Service) MasterKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUnsealed {
		panic(fmt.Sprintf("seal: MasterKey() called while status is %s", s.status))
	}
	return s.masterKey
}
