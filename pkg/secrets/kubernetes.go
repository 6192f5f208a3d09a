package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// kubernetesProvider reads secrets projected onto disk by a CSI secrets
// driver or a mounted Secret volume: one file per key, under
// BasePath/<mount>/<path>/.
type kubernetesProvider struct {
	basePath string
}

func newKubernetesProvider(cfg KubernetesConfig) *kubernetesProvider {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/var/run/secrets/dispatch-core"
	}
	return &kubernetesProvider{basePath: basePath}
}

func (p *kubernetesProvider) fetch(ctx context.Context, ref Reference) (map[string]string, error) {
	dir := filepath.Join(p.basePath, ref.Mount, ref.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read secret dir %s: %w", dir, err)
	}

	data := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "..") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read secret file %s: %w", e.Name(), err)
		}
		data[e.Name()] = strings.TrimRight(string(content), "\n")
	}
	return data, nil
}

func (p *kubernetesProvider) close() error {
	return nil
}
