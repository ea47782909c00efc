package store

import (
	"context"
	"time"
)

// HealthStatus reports pool connectivity and utilisation, grounded on
// database.Health (pkg/database/health.go).
type HealthStatus struct {
	Status          string
	ResponseTime    time.Duration
	OpenConnections int32
	Idle            int32
}

// Health pings the pool and reports its current utilisation.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}
	stat := c.pool.Stat()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: stat.TotalConns(),
		Idle:            stat.IdleConns(),
	}, nil
}
