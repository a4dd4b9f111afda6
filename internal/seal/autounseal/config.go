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

// KeyManagerType identifies a cloud KMS backend.
type KeyManagerType string

const (
	// KeyManagerAzureKeyVault uses Azure Key Vault for key wrapping.
	KeyManagerAzureKeyVault KeyManagerType = "azure-keyvault"
	// KeyManagerAWSKMS uses AWS Key Management Service.
	KeyManagerAWSKMS KeyManagerType = "aws-kms"
	// KeyManagerGCPKMS uses Google Cloud KMS.
	KeyManagerGCPKMS KeyManagerType = "gcp-kms"
)

// KeyManagerConfig configures the construction of a KeyManager.
type KeyManagerConfig struct {
	// Type selects which cloud KMS backend to construct.
	Type KeyManagerType
	// KeyID is the identifier of the wrapping key to use.
	KeyID string
	// VaultURL is the key vault endpoint (Azure Key Vault URL; unused by
	// AWS/GCP, whose key identifiers are self-contained ARNs/resource names).
	VaultURL string
	// Credentials holds provider-specific credential values sourced from
	// the process environment or a mounted secret.
	Credentials map[string]string
}
