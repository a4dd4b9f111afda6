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

// Package config loads vaultd's startup configuration from sensible
// defaults, an optional YAML file, and environment variables, in that
// increasing order of precedence, and validates it eagerly so a misconfigured process
// fails at startup instead of at its first request.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/identity"
)

// Config is vaultd's full startup configuration.
type Config struct {
	APIAddr     string `yaml:"apiAddr"`
	HealthAddr  string `yaml:"healthAddr"`
	MetricsAddr string `yaml:"metricsAddr"`

	PostgresConn string `yaml:"postgresConn"`

	MasterKey   string `yaml:"masterKey"`
	TotalShares int    `yaml:"totalShares"`
	Threshold   int    `yaml:"threshold"`

	AutoUnseal  bool   `yaml:"autoUnseal"`
	KMSType     string `yaml:"kmsType"`
	KMSKeyID    string `yaml:"kmsKeyId"`
	KMSVaultURL string `yaml:"kmsVaultUrl"`

	SigningKey string `yaml:"signingKey"`

	// ExecuteSQLLeases enables the SQL-executing dynamic-lease backend.
	// False (the default) uses the no-op backend, which issues credentials
	// without running any database-user DDL.
	ExecuteSQLLeases bool `yaml:"executeSqlLeases"`

	AuditRetention time.Duration `yaml:"auditRetention"`
}

// Default returns a Config with the same addresses/timeouts vaultd has
// always shipped with, and every security-relevant field left empty so
// Validate refuses to start on an unconfigured deployment.
func Default() Config {
	return Config{
		APIAddr:        ":8080",
		HealthAddr:     ":8081",
		MetricsAddr:    ":9090",
		TotalShares:    5,
		Threshold:      3,
		AuditRetention: 90 * 24 * time.Hour,
	}
}

// Load builds a Config from defaults, an optional YAML file at path (skipped
// entirely when path is empty), and environment variable overrides, in that
// order, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.APIAddr, "VAULT_API_ADDR")
	envString(&c.HealthAddr, "VAULT_HEALTH_ADDR")
	envString(&c.MetricsAddr, "VAULT_METRICS_ADDR")
	envString(&c.PostgresConn, "VAULT_POSTGRES_CONN")
	envString(&c.MasterKey, "VAULT_MASTER_KEY")
	envString(&c.KMSType, "VAULT_KMS_TYPE")
	envString(&c.KMSKeyID, "VAULT_KMS_KEY_ID")
	envString(&c.KMSVaultURL, "VAULT_KMS_VAULT_URL")
	envString(&c.SigningKey, "VAULT_SIGNING_KEY")
	envInt(&c.TotalShares, "VAULT_TOTAL_SHARES")
	envInt(&c.Threshold, "VAULT_THRESHOLD")
	envBool(&c.AutoUnseal, "VAULT_AUTO_UNSEAL")
	envBool(&c.ExecuteSQLLeases, "VAULT_EXECUTE_SQL_LEASES")
	envDuration(&c.AuditRetention, "VAULT_AUDIT_RETENTION")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
		*dst = n
	}
}

func envBool(dst *bool, key string) {
	switch os.Getenv(key) {
	case "true":
		*dst = true
	case "false":
		*dst = false
	}
}

func envDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// Validate checks every field that would otherwise fail inside a request
// handler or panic deep in the seal service, so a bad deployment is refused
// at startup instead.
func (c Config) Validate() error {
	if c.PostgresConn == "" {
		return fmt.Errorf("config: postgresConn is required")
	}
	if c.AutoUnseal {
		if c.MasterKey == "" {
			return fmt.Errorf("config: masterKey (the KMS-wrapped key) is required even with autoUnseal enabled")
		}
	} else if len(c.MasterKey) < envelope.MasterKeyMinLength {
		return fmt.Errorf("config: masterKey must be at least %d bytes, got %d", envelope.MasterKeyMinLength, len(c.MasterKey))
	}
	if c.Threshold < 1 || c.Threshold > c.TotalShares || c.TotalShares > 255 {
		return fmt.Errorf("config: invalid shamir parameters: threshold=%d totalShares=%d", c.Threshold, c.TotalShares)
	}
	if c.AutoUnseal {
		switch c.KMSType {
		case "aws-kms", "azure-keyvault", "gcp-kms":
		default:
			return fmt.Errorf("config: autoUnseal requires a valid kmsType (aws-kms, azure-keyvault, gcp-kms), got %q", c.KMSType)
		}
		if c.KMSKeyID == "" {
			return fmt.Errorf("config: autoUnseal requires kmsKeyId")
		}
	}
	if len(c.SigningKey) < identity.MinSigningKeyLength {
		return fmt.Errorf("config: signingKey must be at least %d bytes, got %d", identity.MinSigningKeyLength, len(c.SigningKey))
	}
	return nil
}
