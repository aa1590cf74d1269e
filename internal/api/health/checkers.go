package health

import (
	"context"
	"fmt"
)

// Pinger is implemented by storage backends that support a ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MongoChecker checks MongoDB connectivity.
type MongoChecker struct {
	pinger Pinger
}

// NewMongoChecker creates a new MongoDB health checker.
func NewMongoChecker(p Pinger) *MongoChecker {
	return &MongoChecker{pinger: p}
}

// Name returns the checker name.
func (c *MongoChecker) Name() string {
	return "mongodb"
}

// Check verifies MongoDB is accessible.
func (c *MongoChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("mongodb not configured")
	}
	return c.pinger.Ping(ctx)
}
