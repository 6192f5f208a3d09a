// Package health aggregates readiness probes over the service's
// backing dependencies (Postgres pool, Redis, the NATS bus) into one
// report, served on the readiness endpoint.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// Checker probes a single dependency, returning nil when healthy.
type Checker func(ctx context.Context) error

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	checkTimeout = 2 * time.Second
)

// DependencyStatus is one dependency's probe outcome.
type DependencyStatus struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `json:"message,omitempty"`
}

// Report is the aggregate readiness view.
type Report struct {
	Status        string                      `json:"status"`
	Version       string                      `json:"version,omitempty"`
	UptimeSeconds float64                     `json:"uptime_seconds"`
	Dependencies  map[string]DependencyStatus `json:"dependencies"`
}

// Registry holds named checkers and runs them concurrently on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
}

// NewRegistry creates an empty Registry stamped with the service version.
func NewRegistry(version string) *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
	}
}

// Register adds or replaces a named checker.
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Run probes every registered dependency concurrently, each under its
// own timeout, and aggregates the results. Overall status is healthy
// only if every dependency is.
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for name, c := range r.checkers {
		checkers[name] = c
	}
	r.mu.RUnlock()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[string]DependencyStatus, len(checkers))
	)

	for name, check := range checkers {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			status := DependencyStatus{
				Status:    StatusHealthy,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				status.Status = StatusUnhealthy
				status.Message = err.Error()
			}

			mu.Lock()
			statuses[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	report := Report{
		Status:        StatusHealthy,
		Version:       r.version,
		UptimeSeconds: time.Since(r.started).Seconds(),
		Dependencies:  statuses,
	}
	for _, s := range statuses {
		if s.Status != StatusHealthy {
			report.Status = StatusUnhealthy
			break
		}
	}
	return report
}

// GinHandler serves the aggregated report, 503 when any dependency is
// down so orchestrators stop routing traffic here.
func (r *Registry) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Run(c.Request.Context())
		code := http.StatusOK
		if report.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

// DatabaseChecker probes the Postgres pool.
func DatabaseChecker(pool *pgxpool.Pool) Checker {
	return func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("database pool is nil")
		}
		return pool.Ping(ctx)
	}
}

// RedisChecker probes the Redis connection.
func RedisChecker(client *redis.Client) Checker {
	return func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("redis client is nil")
		}
		return client.Ping(ctx).Err()
	}
}

// ConnectedChecker adapts any dependency exposing a Connected() bool,
// e.g. the NATS event bus.
func ConnectedChecker(name string, connected func() bool) Checker {
	return func(ctx context.Context) error {
		if !connected() {
			return fmt.Errorf("%s is not connected", name)
		}
		return nil
	}
}
