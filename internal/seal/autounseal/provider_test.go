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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyManager struct {
	unwrapFn func(ctx context.Context, wrapped []byte) ([]byte, error)
}

func (f *fakeKeyManager) Wrap(context.Context, []byte) ([]byte, error) { return nil, nil }
func (f *fakeKeyManager) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	return f.unwrapFn(ctx, wrapped)
}
func (f *fakeKeyManager) KeyMetadata(context.Context) (*KeyMetadata, error) { return nil, nil }
func (f *fakeKeyManager) RotateKey(context.Context) (*KeyRotationResult, error) {
	return nil, nil
}
func (f *fakeKeyManager) Close() error { return nil }

func TestNewProvider_DelegatesUnwrapToKeyManager(t *testing.T) {
	plaintext := []byte("unwrapped-master-key")
	km := &fakeKeyManager{
		unwrapFn: func(_ context.Context, wrapped []byte) ([]byte, error) {
			assert.Equal(t, []byte("wrapped"), wrapped)
			return plaintext, nil
		},
	}
	provider := NewProvider(km)

	out, err := provider.Unwrap(context.Background(), []byte("wrapped"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestNewKeyManager_UnknownTypeIsRejected(t *testing.T) {
	_, err := NewKeyManager(KeyManagerConfig{Type: "not-a-real-provider"})
	assert.Error(t, err)
}

func TestNewKeyManager_MissingKeyIDIsRejected(t *testing.T) {
	_, err := NewKeyManager(KeyManagerConfig{Type: KeyManagerAWSKMS, Credentials: map[string]string{"region": "us-east-1"}})
	assert.Error(t, err)
}
