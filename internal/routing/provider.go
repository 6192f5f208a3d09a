package routing

import "context"

// Provider is the raw, unprotected call to an external routing service.
// Client wraps a Provider with the circuit breaker, timeout, and cache
// the wrapped client guarantees.
type Provider interface {
	Directions(ctx context.Context, start, end Point) (*Route, error)
	Matrix(ctx context.Context, points []Point) (*Matrix, error)
	Name() string
}
