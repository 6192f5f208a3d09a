package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// cachingManager wraps a backend with a short-lived in-memory cache so
// repeated GetSecret calls for the same Reference (e.g. per-request JWT
// verification) don't round-trip to Vault/AWS/GCP every time.
type cachingManager struct {
	backend      backend
	ttl          time.Duration
	auditEnabled bool

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	secret    *Secret
	expiresAt time.Time
}

func newCachingManager(ttl time.Duration, auditEnabled bool) *cachingManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachingManager{
		ttl:          ttl,
		auditEnabled: auditEnabled,
		entries:      make(map[string]cacheEntry),
	}
}

func (m *cachingManager) GetSecret(ctx context.Context, ref Reference) (*Secret, error) {
	key := cacheKey(ref)

	m.mu.Lock()
	if entry, ok := m.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		m.mu.Unlock()
		return entry.secret, nil
	}
	m.mu.Unlock()

	data, err := m.backend.fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch secret %q: %w", ref.Name, err)
	}

	secret := &Secret{Data: data, FetchedAt: time.Now()}

	m.mu.Lock()
	m.entries[key] = cacheEntry{secret: secret, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	if m.auditEnabled {
		logger.Info("secret fetched",
			zap.String("secret_name", ref.Name),
			zap.String("secret_type", string(ref.Type)),
		)
	}

	return secret, nil
}

func (m *cachingManager) Close() error {
	return m.backend.close()
}

func cacheKey(ref Reference) string {
	return string(ref.Type) + "|" + ref.Mount + "|" + ref.Path
}
