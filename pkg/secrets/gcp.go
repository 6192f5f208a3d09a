package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// gcpProvider fetches JSON-encoded secrets from Google Secret Manager.
type gcpProvider struct {
	client    *secretmanager.Client
	projectID string
}

func newGCPProvider(cfg GCPConfig) (*gcpProvider, error) {
	ctx := context.Background()
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("new secret manager client: %w", err)
	}

	return &gcpProvider{client: client, projectID: cfg.ProjectID}, nil
}

func (p *gcpProvider) fetch(ctx context.Context, ref Reference) (map[string]string, error) {
	secretName := ref.Path
	if ref.Mount != "" {
		secretName = ref.Mount + "-" + ref.Path
	}

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, secretName)
	result, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("access secret version %s: %w", name, err)
	}

	var data map[string]string
	if err := json.Unmarshal(result.Payload.Data, &data); err != nil {
		return nil, fmt.Errorf("decode secret %s json: %w", name, err)
	}
	return data, nil
}

func (p *gcpProvider) close() error {
	return p.client.Close()
}
