// Package secrets abstracts fetching sensitive configuration (database
// credentials, provider API keys, JWT signing material) from an external
// secrets store so they never need to live in plain environment variables
// in production.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderType selects which backend Manager talks to.
type ProviderType string

const (
	ProviderNone       ProviderType = ""
	ProviderVault      ProviderType = "vault"
	ProviderAWS        ProviderType = "aws"
	ProviderGCP        ProviderType = "gcp"
	ProviderKubernetes ProviderType = "kubernetes"
)

// SecretType tags what a Reference points at, purely for audit logging.
type SecretType string

const (
	SecretDatabase SecretType = "database_credentials"
	SecretStripe   SecretType = "stripe_api_key"
	SecretTwilio   SecretType = "twilio_credentials"
	SecretSMTP     SecretType = "smtp_credentials"
	SecretFirebase SecretType = "firebase_credentials"
	SecretJWTKeys  SecretType = "jwt_signing_keys"
)

// Reference names a secret's logical name and where to find it: Mount is
// the Vault mount / AWS prefix (a directory level under BasePath for the
// file-backed Kubernetes provider), Path is the secret path or name within it.
type Reference struct {
	Name string
	Type SecretType
	Mount string
	Path string
}

// ParseReference splits a "mount/path" or bare "path" string into a
// Reference. An empty raw value yields the zero Reference with no error
// — callers treat that as "not configured".
func ParseReference(name string, secretType SecretType, raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, nil
	}
	raw = strings.Trim(raw, "/")
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) == 2 {
		return Reference{Name: name, Type: secretType, Mount: parts[0], Path: parts[1]}, nil
	}
	return Reference{Name: name, Type: secretType, Path: parts[0]}, nil
}

// Secret is the resolved key/value payload for a Reference.
type Secret struct {
	Data      map[string]string
	FetchedAt time.Time
}

// VaultConfig configures the HashiCorp Vault provider.
type VaultConfig struct {
	Address       string
	Token         string
	Namespace     string
	MountPath     string
	CACert        string
	CAPath        string
	ClientCert    string
	ClientKey     string
	TLSSkipVerify bool
}

// AWSConfig configures the AWS Secrets Manager provider.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
	Endpoint        string
}

// GCPConfig configures the Google Secret Manager provider.
type GCPConfig struct {
	ProjectID       string
	CredentialsJSON string
	CredentialsFile string
}

// KubernetesConfig configures the file-mounted-secret provider, for
// clusters that project secrets onto disk instead of fetching them over
// the network.
type KubernetesConfig struct {
	BasePath string
}

// Config is the input to NewManager.
type Config struct {
	Provider         ProviderType
	CacheTTL         time.Duration
	RotationInterval time.Duration
	AuditEnabled     bool
	Vault            VaultConfig
	AWS              AWSConfig
	GCP              GCPConfig
	Kubernetes       KubernetesConfig
}

// Manager resolves References to live Secret values, caching them for
// CacheTTL so a hot path never round-trips to Vault/AWS/GCP per request.
type Manager interface {
	GetSecret(ctx context.Context, ref Reference) (*Secret, error)
	Close() error
}

// NewManager builds the Manager for cfg.Provider. ProviderNone is not a
// valid input here — callers check for it before calling NewManager.
func NewManager(cfg Config) (Manager, error) {
	base := newCachingManager(cfg.CacheTTL, cfg.AuditEnabled)
	switch cfg.Provider {
	case ProviderVault:
		client, err := newVaultProvider(cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("init vault provider: %w", err)
		}
		base.backend = client
	case ProviderAWS:
		client, err := newAWSProvider(cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("init aws secrets manager provider: %w", err)
		}
		base.backend = client
	case ProviderGCP:
		client, err := newGCPProvider(cfg.GCP)
		if err != nil {
			return nil, fmt.Errorf("init gcp secret manager provider: %w", err)
		}
		base.backend = client
	case ProviderKubernetes:
		base.backend = newKubernetesProvider(cfg.Kubernetes)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
	return base, nil
}

// backend is the narrow per-provider fetch surface the caching Manager
// wraps.
type backend interface {
	fetch(ctx context.Context, ref Reference) (map[string]string, error)
	close() error
}
