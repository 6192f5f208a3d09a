package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/resilience"
	"go.uber.org/zap"
)

const (
	requestTimeout   = 5 * time.Second
	breakerFailures  = 5
	breakerOpenFor   = 60 * time.Second
	cacheTTL         = 30 * time.Second
	cacheCapacity    = 1000
	breakerHalfOpenProbe = 1
)

// Tuning overrides the wrapper's reliability parameters; zero values
// fall back to the package defaults above.
type Tuning struct {
	RequestTimeout  time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// Client wraps a Provider with its reliability contract: a 5s
// per-request timeout, a circuit breaker that opens after 5 consecutive
// failures and probes once after 60s, a 30s/1000-entry results cache,
// and an admin alert on every OPEN transition. There is no fallback to
// a straight-line estimate here — callers get RoutingUnavailable and
// decide for themselves whether a Haversine proxy is acceptable.
type Client struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
	cache    *resultCache
	alerts   AdminAlerter
	timeout  time.Duration
}

// NewClient wraps provider with the default breaker/cache/timeout stack.
// alerts may be nil, in which case OPEN transitions are only logged.
func NewClient(provider Provider, alerts AdminAlerter) *Client {
	return NewTunedClient(provider, alerts, Tuning{})
}

// NewTunedClient is NewClient with explicit reliability tuning.
func NewTunedClient(provider Provider, alerts AdminAlerter, tuning Tuning) *Client {
	if tuning.RequestTimeout <= 0 {
		tuning.RequestTimeout = requestTimeout
	}
	if tuning.BreakerFailures <= 0 {
		tuning.BreakerFailures = breakerFailures
	}
	if tuning.BreakerOpenFor <= 0 {
		tuning.BreakerOpenFor = breakerOpenFor
	}

	c := &Client{
		provider: provider,
		cache:    newResultCache(cacheCapacity, cacheTTL),
		alerts:   alerts,
		timeout:  tuning.RequestTimeout,
	}

	failures := tuning.BreakerFailures
	c.breaker = resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "routing." + provider.Name(),
		Timeout:          tuning.BreakerOpenFor,
		FailureThreshold: uint32(failures),
		SuccessThreshold: breakerHalfOpenProbe,
		OnStateChange: func(name string, from, to string) {
			if to != "open" {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if c.alerts == nil {
				return
			}
			msg := fmt.Sprintf("circuit breaker %s tripped open after %d consecutive failures", name, failures)
			if err := c.alerts.RecordAlert(ctx, "ROUTING_CIRCUIT_OPEN", msg); err != nil {
				logger.Warn("failed to record routing circuit alert", zap.Error(err))
			}
		},
	}, nil) // no fallback: ErrCircuitOpen must surface, never get swallowed into a silent estimate

	return c
}

type directionsKey struct {
	start, end Point
}

// Directions returns a route between two points, using the cache when
// fresh and the circuit breaker to protect the provider.
func (c *Client) Directions(ctx context.Context, start, end Point) (*Route, error) {
	key := directionsKey{start: start.roundedKey(), end: end.roundedKey()}
	if cached, ok := c.cache.get(key); ok {
		return cached.(*Route), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.provider.Directions(ctx, start, end)
	})
	if err != nil {
		return nil, translateErr(err)
	}

	route := result.(*Route)
	c.cache.set(key, route)
	return route, nil
}

type matrixKey struct {
	points string
}

// Matrix returns a distance/duration matrix for the given points.
func (c *Client) Matrix(ctx context.Context, points []Point) (*Matrix, error) {
	key := matrixKey{points: matrixCacheKey(points)}
	if cached, ok := c.cache.get(key); ok {
		return cached.(*Matrix), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.provider.Matrix(ctx, points)
	})
	if err != nil {
		return nil, translateErr(err)
	}

	matrix := result.(*Matrix)
	c.cache.set(key, matrix)
	return matrix, nil
}

func matrixCacheKey(points []Point) string {
	key := ""
	for _, p := range points {
		rp := p.roundedKey()
		key += fmt.Sprintf("%.3f,%.3f;", rp.Lat, rp.Lng)
	}
	return key
}

func translateErr(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.NewRoutingUnavailable("routing provider unavailable, circuit open")
	}
	return apperr.NewInternal("routing request failed", err)
}
