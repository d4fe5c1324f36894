// Package testutil starts throwaway backend containers for store tests.
//
// Containers are started once per test binary and reaped by testcontainers
// when the process exits. Tests that need one are skipped under -short or
// when no container runtime is reachable.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type lazyContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

func (c *lazyContainer) get(t *testing.T, start func(ctx context.Context) (string, error)) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}

	c.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		c.endpoint, c.err = start(ctx)
	})
	if c.err != nil {
		t.Skipf("container unavailable: %v", c.err)
	}
	return c.endpoint
}

var (
	redisC    lazyContainer
	postgresC lazyContainer
	mongoC    lazyContainer
)

// RedisAddress returns host:port of a running Redis container.
func RedisAddress(t *testing.T) string {
	t.Helper()
	return redisC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			return "", err
		}
		return endpointOrTerminate(ctx, c, "")
	})
}

// PostgresDSN returns a pgx DSN for a running PostgreSQL container.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	return postgresC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					// Actively verify SQL connectivity using the mapped host:port.
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://fluxoctx:fluxoctx@%s:%s/fluxoctx_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "fluxoctx",
				"POSTGRES_PASSWORD": "fluxoctx",
				"POSTGRES_DB":       "fluxoctx_test",
			}),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := endpointOrTerminate(ctx, c, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres://fluxoctx:fluxoctx@%s/fluxoctx_test?sslmode=disable", endpoint), nil
	})
}

// MongoURI returns a connection URI for a running MongoDB container.
func MongoURI(t *testing.T) string {
	t.Helper()
	return mongoC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			),
		)
		if err != nil {
			return "", err
		}
		return endpointOrTerminate(ctx, c, "mongodb")
	})
}

func endpointOrTerminate(ctx context.Context, c testcontainers.Container, proto string) (string, error) {
	endpoint, err := c.Endpoint(ctx, proto)
	if err != nil {
		_ = c.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return endpoint, nil
}
