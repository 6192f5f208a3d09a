package secrets

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// vaultProvider fetches secrets from HashiCorp Vault's KV v2 engine.
type vaultProvider struct {
	client *vaultapi.Client
	mount  string
}

func newVaultProvider(cfg VaultConfig) (*vaultProvider, error) {
	vcfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	if cfg.TLSSkipVerify || cfg.CACert != "" || cfg.CAPath != "" || cfg.ClientCert != "" {
		tlsCfg := &vaultapi.TLSConfig{
			CACert:        cfg.CACert,
			CAPath:        cfg.CAPath,
			ClientCert:    cfg.ClientCert,
			ClientKey:     cfg.ClientKey,
			Insecure:      cfg.TLSSkipVerify,
		}
		if err := vcfg.ConfigureTLS(tlsCfg); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("new vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	return &vaultProvider{client: client, mount: mount}, nil
}

func (p *vaultProvider) fetch(ctx context.Context, ref Reference) (map[string]string, error) {
	mount := ref.Mount
	if mount == "" {
		mount = p.mount
	}

	secret, err := p.client.KVv2(mount).Get(ctx, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("vault kv2 get %s/%s: %w", mount, ref.Path, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault secret %s/%s not found", mount, ref.Path)
	}

	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func (p *vaultProvider) close() error {
	return nil
}
