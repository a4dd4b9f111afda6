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

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/cenkalti/backoff/v4"
)

// azkeysClient abstracts the Azure Key Vault key operations for testability.
type azkeysClient interface {
	WrapKey(
		ctx context.Context, keyName string, keyVersion string,
		parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions,
	) (azkeys.WrapKeyResponse, error)
	UnwrapKey(
		ctx context.Context, keyName string, keyVersion string,
		parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions,
	) (azkeys.UnwrapKeyResponse, error)
	GetKey(
		ctx context.Context, keyName string, keyVersion string,
		options *azkeys.GetKeyOptions,
	) (azkeys.GetKeyResponse, error)
}

const wrapAlgorithm = azkeys.EncryptionAlgorithmRSAOAEP256

// azureKeyVaultManager wraps/unwraps the master key directly with
// RSA-OAEP-256 against an Azure Key Vault key. No local DEK layer is
// needed: the master key (tens of bytes) comfortably fits under a single
// RSA wrap, unlike the arbitrary-size payloads a bulk envelope-encryption
// provider would need a data key for.
type azureKeyVaultManager struct {
	client     azkeysClient
	keyName    string
	keyVersion string
	vaultURL   string
}

func newAzureKeyVaultManager(cfg KeyManagerConfig) (*azureKeyVaultManager, error) {
	if cfg.VaultURL == "" {
		return nil, fmt.Errorf("azure-keyvault: vault URL is required")
	}
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("azure-keyvault: key ID is required")
	}

	cred, err := azureCredentialFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("azure-keyvault: credential error: %w", err)
	}

	client, err := azkeys.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure-keyvault: client creation error: %w", err)
	}

	return &azureKeyVaultManager{client: client, keyName: cfg.KeyID, vaultURL: cfg.VaultURL}, nil
}

func azureCredentialFromConfig(cfg KeyManagerConfig) (azcore.TokenCredential, error) {
	tenantID := cfg.Credentials["tenant-id"]
	clientID := cfg.Credentials["client-id"]
	clientSecret := cfg.Credentials["client-secret"]

	if tenantID != "" && clientID != "" && clientSecret != "" {
		return azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	}

	// Fallback to DefaultAzureCredential (workload identity, managed identity, etc.)
	return azidentity.NewDefaultAzureCredential(nil)
}

func (m *azureKeyVaultManager) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		algo := wrapAlgorithm
		resp, err := m.client.WrapKey(ctx, m.keyName, m.keyVersion, azkeys.KeyOperationParameters{
			Algorithm: &algo,
			Value:     plaintext,
		}, nil)
		if err != nil {
			return fmt.Errorf("%w: key vault wrap failed: %v", ErrEncryptionFailed, err)
		}
		out = resp.Result
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *azureKeyVaultManager) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		algo := wrapAlgorithm
		resp, err := m.client.UnwrapKey(ctx, m.keyName, m.keyVersion, azkeys.KeyOperationParameters{
			Algorithm: &algo,
			Value:     ciphertext,
		}, nil)
		if err != nil {
			return fmt.Errorf("%w: key vault unwrap failed: %v", ErrDecryptionFailed, err)
		}
		out = resp.Result
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *azureKeyVaultManager) KeyMetadata(ctx context.Context) (*KeyMetadata, error) {
	resp, err := m.client.GetKey(ctx, m.keyName, m.keyVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	meta := &KeyMetadata{KeyID: m.keyName, Enabled: true}
	if resp.Key != nil && resp.Key.KID != nil {
		meta.KeyVersion = resp.Key.KID.Version()
	}
	if resp.Attributes != nil {
		if resp.Attributes.Created != nil {
			meta.CreatedAt = *resp.Attributes.Created
		}
		if resp.Attributes.Expires != nil {
			meta.ExpiresAt = *resp.Attributes.Expires
		}
		if resp.Attributes.Enabled != nil {
			meta.Enabled = *resp.Attributes.Enabled
		}
	}
	if resp.Key != nil && resp.Key.Kty != nil {
		meta.Algorithm = string(*resp.Key.Kty)
	}
	return meta, nil
}

// RotateKey is not exposed as a single Key Vault API call; rotation is
// performed by creating a new key version out of band and repointing
// keyVersion, which this manager does not do automatically.
func (m *azureKeyVaultManager) RotateKey(ctx context.Context) (*KeyRotationResult, error) {
	return nil, fmt.Errorf("%w: Azure Key Vault key rotation is performed out of band", ErrRotationFailed)
}

func (m *azureKeyVaultManager) Close() error { return nil }

// newAzureKeyVaultManagerWithClient constructs a manager with an injected client, for testing.
func newAzureKeyVaultManagerWithClient(client azkeysClient, keyName, keyVersion string) *azureKeyVaultManager {
	return &azureKeyVaultManager{client: client, keyName: keyName, keyVersion: keyVersion}
}
