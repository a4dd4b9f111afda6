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

package autounseal

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAzKeysClient struct {
	wrapFn   func(ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters) (azkeys.WrapKeyResponse, error)
	unwrapFn func(ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters) (azkeys.UnwrapKeyResponse, error)
	getKeyFn func(ctx context.Context, keyName, keyVersion string) (azkeys.GetKeyResponse, error)
}

func (f *fakeAzKeysClient) WrapKey(
	ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters, _ *azkeys.WrapKeyOptions,
) (azkeys.WrapKeyResponse, error) {
	return f.wrapFn(ctx, keyName, keyVersion, params)
}

func (f *fakeAzKeysClient) UnwrapKey(
	ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters, _ *azkeys.UnwrapKeyOptions,
) (azkeys.UnwrapKeyResponse, error) {
	return f.unwrapFn(ctx, keyName, keyVersion, params)
}

func (f *fakeAzKeysClient) GetKey(ctx context.Context, keyName, keyVersion string, _ *azkeys.GetKeyOptions) (azkeys.GetKeyResponse, error) {
	return f.getKeyFn(ctx, keyName, keyVersion)
}

func TestAzureKeyVaultManager_WrapUnwrapRoundTrip(t *testing.T) {
	plaintext := []byte("master-key-bytes")
	wrapped := []byte("rsa-oaep-wrapped")

	client := &fakeAzKeysClient{
		wrapFn: func(_ context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters) (azkeys.WrapKeyResponse, error) {
			assert.Equal(t, "master-unseal-key", keyName)
			assert.Equal(t, plaintext, params.Value)
			return azkeys.WrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: wrapped}}, nil
		},
		unwrapFn: func(_ context.Context, _, _ string, params azkeys.KeyOperationParameters) (azkeys.UnwrapKeyResponse, error) {
			assert.Equal(t, wrapped, params.Value)
			return azkeys.UnwrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: plaintext}}, nil
		},
	}
	mgr := newAzureKeyVaultManagerWithClient(client, "master-unseal-key", "")

	out, err := mgr.Wrap(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, wrapped, out)

	back, err := mgr.Unwrap(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, plaintext, back)
}

func TestAzureKeyVaultManager_UnwrapFailurePropagates(t *testing.T) {
	client := &fakeAzKeysClient{
		unwrapFn: func(context.Context, string, string, azkeys.KeyOperationParameters) (azkeys.UnwrapKeyResponse, error) {
			return azkeys.UnwrapKeyResponse{}, assert.AnError
		},
	}
	mgr := newAzureKeyVaultManagerWithClient(client, "key", "")

	_, err := mgr.Unwrap(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestAzureKeyVaultManager_RotateKeyNotSupported(t *testing.T) {
	mgr := newAzureKeyVaultManagerWithClient(&fakeAzKeysClient{}, "key", "")
	_, err := mgr.RotateKey(context.Background())
	assert.ErrorIs(t, err, ErrRotationFailed)
}
