package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_AllHealthy(t *testing.T) {
	r := NewRegistry("test")
	r.Register("database", func(ctx context.Context) error { return nil })
	r.Register("redis", func(ctx context.Context) error { return nil })

	report := r.Run(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Dependencies, 2)
	assert.Equal(t, StatusHealthy, report.Dependencies["database"].Status)
}

func TestRun_OneUnhealthyDependencyFailsTheReport(t *testing.T) {
	r := NewRegistry("test")
	r.Register("database", func(ctx context.Context) error { return nil })
	r.Register("nats", func(ctx context.Context) error { return errors.New("connection refused") })

	report := r.Run(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusHealthy, report.Dependencies["database"].Status)
	assert.Equal(t, StatusUnhealthy, report.Dependencies["nats"].Status)
	assert.Equal(t, "connection refused", report.Dependencies["nats"].Message)
}

func TestConnectedChecker(t *testing.T) {
	up := ConnectedChecker("bus", func() bool { return true })
	assert.NoError(t, up(context.Background()))

	down := ConnectedChecker("bus", func() bool { return false })
	assert.Error(t, down(context.Background()))
}
