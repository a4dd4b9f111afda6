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

package seal

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeops-vault/vault/internal/crypto/shamir"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

const testMasterKey = "01234567890123456789012345678901" // 32 bytes

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(context.Background(), Config{
		MasterKey:   []byte(testMasterKey),
		TotalShares: 5,
		Threshold:   3,
	}, logr.Discard())
	require.NoError(t, err)
	return svc
}

func TestNew_StartsSealed(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, StatusSealed, svc.GetStatus())
}

func TestNew_AutoUnsealStartsUnsealed(t *testing.T) {
	svc, err := New(context.Background(), Config{
		MasterKey:   []byte(testMasterKey),
		TotalShares: 5,
		Threshold:   3,
		AutoUnseal:  true,
	}, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, StatusUnsealed, svc.GetStatus())
}

func TestNew_RejectsInvalidShamirParameters(t *testing.T) {
	_, err := New(context.Background(), Config{
		MasterKey:   []byte(testMasterKey),
		TotalShares: 3,
		Threshold:   5,
	}, logr.Discard())
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
}

func TestRequireUnsealed_FailsWhenSealed(t *testing.T) {
	svc := newTestService(t)
	err := svc.RequireUnsealed()
	assert.ErrorIs(t, err, vaulterr.ErrSealed)
}

// TestSubmitKeyShare_ThreeOfFiveUnseals mirrors the spec's canonical
// Shamir 3-of-5 scenario: two shares leave the vault UNSEALING, a third
// matching share flips it to UNSEALED.
func TestSubmitKeyShare_ThreeOfFiveUnseals(t *testing.T) {
	svc := newTestService(t)

	shares, err := shamir.Split([]byte(testMasterKey), 5, 3)
	require.NoError(t, err)
	encoded := make([]string, len(shares))
	for i, s := range shares {
		encoded[i] = shamir.EncodeShare(s)
	}

	ctx := context.Background()
	status, err := svc.SubmitKeyShare(ctx, encoded[0])
	require.NoError(t, err)
	assert.Equal(t, StatusUnsealing, status)

	status, err = svc.SubmitKeyShare(ctx, encoded[1])
	require.NoError(t, err)
	assert.Equal(t, StatusUnsealing, status)

	status, err = svc.SubmitKeyShare(ctx, encoded[2])
	require.NoError(t, err)
	assert.Equal(t, StatusUnsealed, status)

	require.NoError(t, svc.RequireUnsealed())
}

func TestSubmitKeyShare_WrongShareSetResetsToSealed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	otherShares, err := shamir.Split([]byte("a-totally-different-master-key!!"), 5, 3)
	require.NoError(t, err)

	_, err = svc.SubmitKeyShare(ctx, shamir.EncodeShare(otherShares[0]))
	require.NoError(t, err)
	_, err = svc.SubmitKeyShare(ctx, shamir.EncodeShare(otherShares[1]))
	require.NoError(t, err)
	status, err := svc.SubmitKeyShare(ctx, shamir.EncodeShare(otherShares[2]))
	require.Error(t, err)
	assert.ErrorIs(t, err, vaulterr.ErrIntegrityFailure)
	assert.Equal(t, StatusSealed, status)
}

func TestSubmitKeyShare_RejectsDuplicateIndex(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	shares, err := shamir.Split([]byte(testMasterKey), 5, 3)
	require.NoError(t, err)
	encoded := shamir.EncodeShare(shares[0])

	_, err = svc.SubmitKeyShare(ctx, encoded)
	require.NoError(t, err)

	_, err = svc.SubmitKeyShare(ctx, encoded)
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
}

func TestSeal_ClearsSharesAndReturnsToSealed(t *testing.T) {
	svc, err := New(context.Background(), Config{
		MasterKey:   []byte(testMasterKey),
		TotalShares: 5,
		Threshold:   3,
		AutoUnseal:  true,
	}, logr.Discard())
	require.NoError(t, err)

	require.NoError(t, svc.Seal())
	assert.Equal(t, StatusSealed, svc.GetStatus())
}

func TestSeal_RejectsWhenAlreadySealed(t *testing.T) {
	svc := newTestService(t)
	err := svc.Seal()
	assert.Error(t, err)
}

func TestGenerateKeyShares_RequiresUnsealed(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GenerateKeyShares()
	assert.ErrorIs(t, err, vaulterr.ErrSealed)
}

func TestGenerateKeyShares_ProducesReconstructableShares(t *testing.T) {
	svc, err := New(context.Background(), Config{
		MasterKey:   []byte(testMasterKey),
		TotalShares: 5,
		Threshold:   3,
		AutoUnseal:  true,
	}, logr.Discard())
	require.NoError(t, err)

	encoded, err := svc.GenerateKeyShares()
	require.NoError(t, err)
	require.Len(t, encoded, 5)

	var shares []shamir.Share
	for _, e := range encoded[:3] {
		s, err := shamir.DecodeShare(e)
		require.NoError(t, err)
		shares = append(shares, s)
	}
	reconstructed, err := shamir.Combine(shares)
	require.NoError(t, err)
	assert.Equal(t, []byte(testMasterKey), reconstructed)
}

func TestGetSealInfo_ReflectsAccumulatedShares(t *testing.T) {
	svc := newTestService(t)
	shares, err := shamir.Split([]byte(testMasterKey), 5, 3)
	require.NoError(t, err)

	_, err = svc.SubmitKeyShare(context.Background(), shamir.EncodeShare(shares[0]))
	require.NoError(t, err)

	info := svc.GetSealInfo()
	assert.Equal(t, StatusUnsealing, info.Status)
	assert.Equal(t, 1, info.SharesSubmitted)
	assert.Equal(t, 5, info.TotalShares)
	assert.Equal(t, 3, info.Threshold)
}

func TestMasterKey_PanicsWhenSealed(t *testing.T) {
	svc := newTestService(t)
	assert.Panics(t, func() { svc.MasterKey() })
}
