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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/cenkalti/backoff/v4"
)

// kmsClient abstracts the AWS KMS operations for testability.
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
}

// awsKMSManager wraps/unwraps the vault's master key directly with an AWS
// KMS customer master key, with no local AES layer: the CiphertextBlob
// returned by KMS Encrypt is itself the wrapped form persisted alongside
// the rest of the seal configuration.
type awsKMSManager struct {
	client kmsClient
	keyID  string
}

func newAWSKMSManager(cfg KeyManagerConfig) (*awsKMSManager, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("aws-kms: key ID is required")
	}
	region := cfg.Credentials["region"]
	if region == "" {
		return nil, fmt.Errorf("aws-kms: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID, secretAccessKey := cfg.Credentials["access-key-id"], cfg.Credentials["secret-access-key"]; accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws-kms: loading AWS config: %w", err)
	}
	return &awsKMSManager{client: kms.NewFromConfig(awsCfg), keyID: cfg.KeyID}, nil
}

// Wrap calls KMS Encrypt. Bootstrap calls (the only time Wrap runs, when
// an operator provisions a new auto-unseal key) are retried with bounded
// backoff to absorb transient credential/network races; in-request paths
// never call Wrap.
func (m *awsKMSManager) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		resp, err := m.client.Encrypt(ctx, &kms.EncryptInput{
			KeyId:     aws.String(m.keyID),
			Plaintext: plaintext,
		})
		if err != nil {
			return fmt.Errorf("%w: KMS Encrypt failed: %v", ErrEncryptionFailed, err)
		}
		out = resp.CiphertextBlob
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *awsKMSManager) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		resp, err := m.client.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: ciphertext,
			KeyId:          aws.String(m.keyID),
		})
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

func (m *awsKMSManager) KeyMetadata(ctx context.Context) (*KeyMetadata, error) {
	resp, err := m.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(m.keyID)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}
	meta := &KeyMetadata{KeyID: m.keyID, Enabled: true}
	if resp.KeyMetadata != nil {
		meta.Enabled = resp.KeyMetadata.Enabled
		if resp.KeyMetadata.CreationDate != nil {
			meta.CreatedAt = *resp.KeyMetadata.CreationDate
		}
		if resp.KeyMetadata.ValidTo != nil {
			meta.ExpiresAt = *resp.KeyMetadata.ValidTo
		}
		meta.Algorithm = string(resp.KeyMetadata.KeySpec)
	}
	return meta, nil
}

// RotateKey is not exposed by AWS KMS as an in-band API call on customer
// master keys beyond the automatic annual rotation AWS itself schedules;
// this reports that rather than silently no-op.
func (m *awsKMSManager) RotateKey(ctx context.Context) (*KeyRotationResult, error) {
	return nil, fmt.Errorf("%w: AWS KMS key rotation is automatic and not triggerable via this API", ErrRotationFailed)
}

func (m *awsKMSManager) Close() error { return nil }

// newAWSKMSManagerWithClient constructs a manager with an injected client, for testing.
func newAWSKMSManagerWithClient(client kmsClient, keyID string) *awsKMSManager {
	return &awsKMSManager{client: client, keyID: keyID}
}
