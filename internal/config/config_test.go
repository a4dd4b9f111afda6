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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.PostgresConn = "postgres://localhost/vault"
	cfg.MasterKey = "0123456789abcdef0123456789abcdef"
	cfg.SigningKey = "test-signing-key-at-least-32-bytes!"
	return cfg
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsMissingPostgresConn(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresConn = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingMasterKey(t *testing.T) {
	cfg := validConfig()
	cfg.MasterKey = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsThresholdAboveTotalShares(t *testing.T) {
	cfg := validConfig()
	cfg.Threshold = 6
	cfg.TotalShares = 5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsShortSigningKey(t *testing.T) {
	cfg := validConfig()
	cfg.SigningKey = "too-short"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsAutoUnsealWithoutKMSType(t *testing.T) {
	cfg := validConfig()
	cfg.AutoUnseal = true
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsAutoUnsealWithKMSConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.AutoUnseal = true
	cfg.KMSType = "aws-kms"
	cfg.KMSKeyID = "arn:aws:kms:us-east-1:111111111111:key/abc"
	require.NoError(t, cfg.Validate())
}

func TestLoad_AppliesEnvOverridesOverDefaults(t *testing.T) {
	t.Setenv("VAULT_POSTGRES_CONN", "postgres://localhost/vault")
	t.Setenv("VAULT_MASTER_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("VAULT_SIGNING_KEY", "test-signing-key-at-least-32-bytes!")
	t.Setenv("VAULT_API_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.APIAddr)
	assert.Equal(t, "postgres://localhost/vault", cfg.PostgresConn)
}

func TestLoad_FailsValidationOnMissingRequiredFields(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}
