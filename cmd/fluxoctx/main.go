// Command fluxoctx loads a context storage configuration, writes and reads
// back a value in node, flow and global scope, and closes every store. It
// is a smoke test for a deployment's storage settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/fluxoctx"
	"github.com/petrijr/fluxoctx/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML settings file")
		envFile    = flag.String("env-file", ".env", "optional .env file with FLUXOCTX_* overrides")
		nodeID     = flag.String("node", "smoke-node", "node id to write")
		flowID     = flag.String("flow", "", "flow id to write (random when empty)")
		storeName  = flag.String("store", "", "store to use (default store when empty)")
		timeout    = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(settings.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *flowID == "" {
		*flowID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, settings, *nodeID, *flowID, *storeName); err != nil {
		logger.Error("smoke test failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, settings fluxoctx.Settings, nodeID, flowID, store string) (err error) {
	reg := fluxoctx.NewWithConfig(fluxoctx.Config{
		Settings: settings,
		Observer: fluxoctx.NewLoggingObserver(logger),
		Logger:   logger,
	})

	if err := reg.Load(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := reg.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stores := reg.ListStores()
	logger.Info("stores loaded", "default", stores.Default, "configured", stores.Stores)

	var opts []fluxoctx.Option
	if store != "" {
		opts = append(opts, fluxoctx.WithStore(store))
	}

	node := reg.Get(nodeID, flowID)
	stamp := time.Now().UTC().Format(time.RFC3339Nano)

	for _, c := range []*fluxoctx.Context{node, node.Flow(), node.Global()} {
		got, err := roundTrip(ctx, c, "smoke", stamp, opts)
		if err != nil {
			return fmt.Errorf("scope %q: %w", c.Scope(), err)
		}
		if got != stamp {
			return fmt.Errorf("scope %q: read back %v, want %q", c.Scope(), got, stamp)
		}
		logger.Info("scope ok", "scope", c.Scope())
	}

	for _, c := range []*fluxoctx.Context{node, node.Flow(), node.Global()} {
		if err := set(ctx, c, "smoke", nil, opts); err != nil {
			return fmt.Errorf("scope %q: %w", c.Scope(), err)
		}
	}
	return nil
}

// set writes value under key and waits for the store to finish.
func set(ctx context.Context, c *fluxoctx.Context, key string, value any, opts []fluxoctx.Option) error {
	done := make(chan error, 1)
	if err := c.SetAsync(ctx, key, value, func(err error) { done <- err }, opts...); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roundTrip writes value under key and reads it back through the callback
// entry points, which every store supports.
func roundTrip(ctx context.Context, c *fluxoctx.Context, key string, value any, opts []fluxoctx.Option) (any, error) {
	if err := set(ctx, c, key, value, opts); err != nil {
		return nil, err
	}

	type result struct {
		v   any
		err error
	}
	got := make(chan result, 1)
	if err := c.GetAsync(ctx, key, func(v any, err error) { got <- result{v, err} }, opts...); err != nil {
		return nil, err
	}
	select {
	case r := <-got:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
