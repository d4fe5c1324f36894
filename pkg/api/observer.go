package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the context registry for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the caller.
type Observer interface {
	// OnStoreOpened is called after a store's Open returns, successful or not.
	OnStoreOpened(ctx context.Context, name string, err error, duration time.Duration)

	// OnStoreClosed is called after a store's Close returns.
	OnStoreClosed(ctx context.Context, name string, err error, duration time.Duration)

	// OnContextCreated is called when a scope is resolved for the first time.
	OnContextCreated(ctx context.Context, scope string)

	// OnContextEvicted is called when a cached scope is dropped by Clean or
	// Delete.
	OnContextEvicted(ctx context.Context, scope string)

	// OnClean is called once all stores have finished cleaning.
	OnClean(ctx context.Context, activeNodes int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStoreOpened(ctx context.Context, name string, err error, d time.Duration) {}
func (NoopObserver) OnStoreClosed(ctx context.Context, name string, err error, d time.Duration) {}
func (NoopObserver) OnContextCreated(ctx context.Context, scope string)                        {}
func (NoopObserver) OnContextEvicted(ctx context.Context, scope string)                        {}
func (NoopObserver) OnClean(ctx context.Context, activeNodes int, err error, d time.Duration)  {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStoreOpened(ctx context.Context, name string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStoreOpened(ctx, name, err, d)
	}
}

func (c *CompositeObserver) OnStoreClosed(ctx context.Context, name string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStoreClosed(ctx, name, err, d)
	}
}

func (c *CompositeObserver) OnContextCreated(ctx context.Context, scope string) {
	for _, o := range c.observers {
		o.OnContextCreated(ctx, scope)
	}
}

func (c *CompositeObserver) OnContextEvicted(ctx context.Context, scope string) {
	for _, o := range c.observers {
		o.OnContextEvicted(ctx, scope)
	}
}

func (c *CompositeObserver) OnClean(ctx context.Context, activeNodes int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnClean(ctx, activeNodes, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs store and scope lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStoreOpened(ctx context.Context, name string, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "store_opened",
		slog.String("store", name),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStoreClosed(ctx context.Context, name string, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "store_closed",
		slog.String("store", name),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnContextCreated(ctx context.Context, scope string) {
	o.Logger.DebugContext(ctx, "context_created",
		slog.String("scope", scope),
	)
}

func (o *LoggingObserver) OnContextEvicted(ctx context.Context, scope string) {
	o.Logger.DebugContext(ctx, "context_evicted",
		slog.String("scope", scope),
	)
}

func (o *LoggingObserver) OnClean(ctx context.Context, activeNodes int, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "context_clean",
		slog.Int("active_nodes", activeNodes),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters for store and scope lifecycle.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	storesOpened     atomic.Int64
	storeOpenErrors  atomic.Int64
	storesClosed     atomic.Int64
	contextsCreated  atomic.Int64
	contextsEvicted  atomic.Int64
	cleans           atomic.Int64
	totalOpenLatency atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	StoresOpened    int64
	StoreOpenErrors int64
	StoresClosed    int64

	ContextsCreated int64
	ContextsEvicted int64
	LiveContexts    int64

	Cleans         int64
	AvgOpenLatency time.Duration
}

func (m *BasicMetrics) OnStoreOpened(ctx context.Context, name string, err error, d time.Duration) {
	if err != nil {
		m.storeOpenErrors.Add(1)
		return
	}
	m.storesOpened.Add(1)
	m.totalOpenLatency.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnStoreClosed(ctx context.Context, name string, err error, d time.Duration) {
	m.storesClosed.Add(1)
}

func (m *BasicMetrics) OnContextCreated(ctx context.Context, scope string) {
	m.contextsCreated.Add(1)
}

func (m *BasicMetrics) OnContextEvicted(ctx context.Context, scope string) {
	m.contextsEvicted.Add(1)
}

func (m *BasicMetrics) OnClean(ctx context.Context, activeNodes int, err error, d time.Duration) {
	m.cleans.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	opened := m.storesOpened.Load()
	created := m.contextsCreated.Load()
	evicted := m.contextsEvicted.Load()
	totalNs := m.totalOpenLatency.Load()

	var avg time.Duration
	if opened > 0 {
		avg = time.Duration(totalNs / opened)
	}

	return BasicMetricsSnapshot{
		StoresOpened:    opened,
		StoreOpenErrors: m.storeOpenErrors.Load(),
		StoresClosed:    m.storesClosed.Load(),
		ContextsCreated: created,
		ContextsEvicted: evicted,
		LiveContexts:    created - evicted,
		Cleans:          m.cleans.Load(),
		AvgOpenLatency:  avg,
	}
}
