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
	"fmt"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/option"
)

// gcpKMSClient abstracts the GCP Cloud KMS operations for testability.
type gcpKMSClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	GetCryptoKey(ctx context.Context, req *kmspb.GetCryptoKeyRequest) (*kmspb.CryptoKey, error)
	CreateCryptoKeyVersion(ctx context.Context, req *kmspb.CreateCryptoKeyVersionRequest) (*kmspb.CryptoKeyVersion, error)
	UpdateCryptoKeyPrimaryVersion(
		ctx context.Context, req *kmspb.UpdateCryptoKeyPrimaryVersionRequest,
	) (*kmspb.CryptoKey, error)
	Close() error
}

// gcpKMSClientWrapper wraps the real KMS client to satisfy the gcpKMSClient interface.
type gcpKMSClientWrapper struct {
	client *kms.KeyManagementClient
}

func (w *gcpKMSClientWrapper) Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	return w.client.Encrypt(ctx, req)
}

func (w *gcpKMSClientWrapper) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return w.client.Decrypt(ctx, req)
}

func (w *gcpKMSClientWrapper) GetCryptoKey(ctx context.Context, req *kmspb.GetCryptoKeyRequest) (*kmspb.CryptoKey, error) {
	return w.client.GetCryptoKey(ctx, req)
}

func (w *gcpKMSClientWrapper) CreateCryptoKeyVersion(
	ctx context.Context, req *kmspb.CreateCryptoKeyVersionRequest,
) (*kmspb.CryptoKeyVersion, error) {
	return w.client.CreateCryptoKeyVersion(ctx, req)
}

func (w *gcpKMSClientWrapper) UpdateCryptoKeyPrimaryVersion(
	ctx context.Context, req *kmspb.UpdateCryptoKeyPrimaryVersionRequest,
) (*kmspb.CryptoKey, error) {
	return w.client.UpdateCryptoKeyPrimaryVersion(ctx, req)
}

func (w *gcpKMSClientWrapper) Close() error { return w.client.Close() }

// gcpKMSManager wraps/unwraps the master key directly against a GCP Cloud
// KMS symmetric key. GCP's Encrypt/Decrypt RPCs accept arbitrary-size
// plaintext directly (no RSA size ceiling as with Azure's RSA-OAEP wrap),
// so no local DEK layer is needed here either.
type gcpKMSManager struct {
	client gcpKMSClient
	keyID  string
}

func newGCPKMSManager(cfg KeyManagerConfig) (*gcpKMSManager, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("gcp-kms: key ID is required")
	}

	var opts []option.ClientOption
	if creds := cfg.Credentials["credentials-json"]; creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}

	client, err := kms.NewKeyManagementClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("gcp-kms: creating client: %w", err)
	}
	return &gcpKMSManager{client: &gcpKMSClientWrapper{client: client}, keyID: cfg.KeyID}, nil
}

func (m *gcpKMSManager) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		resp, err := m.client.Encrypt(ctx, &kmspb.EncryptRequest{Name: m.keyID, Plaintext: plaintext})
		if err != nil {
			return fmt.Errorf("%w: KMS Encrypt failed: %v", ErrEncryptionFailed, err)
		}
		out = resp.Ciphertext
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *gcpKMSManager) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		resp, err := m.client.Decrypt(ctx, &kmspb.DecryptRequest{Name: m.keyID, Ciphertext: ciphertext})
		if err != nil {
			return fmt.Errorf("%w: KMS Decrypt failed: %v", ErrDecryptionFailed, err)
		}
		out = resp.Plaintext
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *gcpKMSManager) KeyMetadata(ctx context.Context) (*KeyMetadata, error) {
	resp, err := m.client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: m.keyID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	meta := &KeyMetadata{KeyID: m.keyID, Enabled: true}
	if resp.Primary != nil {
		meta.Algorithm = resp.Primary.Algorithm.String()
		if resp.Primary.CreateTime != nil {
			meta.CreatedAt = resp.Primary.CreateTime.AsTime()
		}
		if resp.Primary.State == kmspb.CryptoKeyVersion_CRYPTO_KEY_VERSION_STATE_UNSPECIFIED ||
			resp.Primary.State == kmspb.CryptoKeyVersion_DESTROYED ||
			resp.Primary.State == kmspb.CryptoKeyVersion_DESTROY_SCHEDULED {
			meta.Enabled = false
		}
	}
	if resp.DestroyScheduledDuration != nil {
		meta.ExpiresAt = resp.CreateTime.AsTime().Add(resp.DestroyScheduledDuration.AsDuration())
	}
	return meta, nil
}

func (m *gcpKMSManager) RotateKey(ctx context.Context) (*KeyRotationResult, error) {
	prevMeta, err := m.KeyMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: getting current key version: %v", ErrRotationFailed, err)
	}

	newVer, err := m.client.CreateCryptoKeyVersion(ctx, &kmspb.CreateCryptoKeyVersionRequest{Parent: m.keyID})
	if err != nil {
		return nil, fmt.Errorf("%w: CreateCryptoKeyVersion failed: %v", ErrRotationFailed, err)
	}

	if _, err := m.client.UpdateCryptoKeyPrimaryVersion(ctx, &kmspb.UpdateCryptoKeyPrimaryVersionRequest{
		Name:               m.keyID,
		CryptoKeyVersionId: newVer.Name,
	}); err != nil {
		return nil, fmt.Errorf("%w: UpdateCryptoKeyPrimaryVersion failed: %v", ErrRotationFailed, err)
	}

	return &KeyRotationResult{
		PreviousKeyVersion: prevMeta.KeyVersion,
		NewKeyVersion:      newVer.Name,
		RotatedAt:          time.Now(),
	}, nil
}

func (m *gcpKMSManager) Close() error { return m.client.Close() }

// newGCPKMSManagerWithClient constructs a manager with an injected client, for testing.
func newGCPKMSManagerWithClient(client gcpKMSClient, keyID string) *gcpKMSManager {
	return &gcpKMSManager{client: client, keyID: keyID}
}
