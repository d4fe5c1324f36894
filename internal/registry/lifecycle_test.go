package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/fluxoctx/pkg/api"
)

func TestDelete_WithoutConfiguredStore(t *testing.T) {
	ctx := context.Background()
	r := loadRegistry(t, api.Settings{})

	node := r.Get("n1", "f1")
	require.NoError(t, node.Set("k", "v"))

	require.NoError(t, r.Delete(ctx, "n1", "f1"))

	fresh := r.Get("n1", "f1")
	require.NotSame(t, node, fresh, "cached context is evicted")

	v, err := fresh.Get("k")
	require.NoError(t, err)
	require.Nil(t, v, "backend values are deleted")
}

func TestDelete_WithConfiguredStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(true)
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{{Name: "file", Factory: factoryFor(store, nil)}},
	})

	node := r.Get("n1")
	require.NoError(t, node.Set("k", "v"))

	require.NoError(t, r.Delete(ctx, "n1"))

	require.Same(t, node, r.Get("n1"))
	require.Zero(t, store.count("delete"))

	v, err := node.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestDelete_KeepsGlobalHandle(t *testing.T) {
	r := loadRegistry(t, api.Settings{})
	g := r.Global()
	require.NoError(t, g.Set("k", "v"))

	require.NoError(t, r.Delete(context.Background(), api.GlobalScope))

	require.Same(t, g, r.Get(api.GlobalScope))
	v, err := g.Get("k")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestClean_EvictsInactiveContextsButNeverGlobal(t *testing.T) {
	ctx := context.Background()
	r := loadRegistry(t, api.Settings{})

	g := r.Global()
	keep := r.Get("n1", "f1")
	flow := r.Get("f1")
	gone := r.Get("n2", "f1")
	alsoGone := r.Get("n3")

	require.NoError(t, r.Clean(ctx, api.FlowConfig{Nodes: []string{"n1", "f1"}}))

	require.Same(t, keep, r.Get("n1", "f1"))
	require.Same(t, flow, r.Get("f1"))
	require.NotSame(t, gone, r.Get("n2", "f1"))
	require.NotSame(t, alsoGone, r.Get("n3"))
	require.Same(t, g, r.Get(api.GlobalScope))

	// An empty deployment still keeps global.
	require.NoError(t, r.Clean(ctx, api.FlowConfig{}))
	require.Same(t, g, r.Get(api.GlobalScope))
}

func TestClean_CallsEveryDistinctStoreOnce(t *testing.T) {
	a, b := newFakeStore(true), newFakeStore(false)
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{
			{Name: "a", Factory: factoryFor(a, nil)},
			{Name: "b", Factory: factoryFor(b, nil)},
			{Name: api.DefaultStore, Alias: "a"},
		},
	})

	require.NoError(t, r.Clean(context.Background(), api.FlowConfig{Nodes: []string{"n1", "f1", "n1"}}))

	require.Equal(t, 1, a.count("clean"))
	require.Equal(t, 1, b.count("clean"))
	require.Equal(t, [][]string{{"n1", "f1"}}, a.cleaned)
}

func TestClean_DedupesLargeFlowInFirstSeenOrder(t *testing.T) {
	a := newFakeStore(true)
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{
			{Name: api.DefaultStore, Factory: factoryFor(a, nil)},
		},
	})

	var flow, want []string
	for i := range 5000 {
		id := fmt.Sprintf("n%d", i)
		want = append(want, id)
		flow = append(flow, id, id)
	}
	flow = append(flow, want...)

	require.NoError(t, r.Clean(context.Background(), api.FlowConfig{Nodes: flow}))

	require.Len(t, a.cleaned, 1)
	require.Equal(t, want, a.cleaned[0])
}

func TestClean_PurgesBackendScopes(t *testing.T) {
	r := loadRegistry(t, api.Settings{})
	require.NoError(t, r.Get("n1").Set("k", 1))
	require.NoError(t, r.Get("n2").Set("k", 2))
	require.NoError(t, r.Global().Set("k", 3))

	require.NoError(t, r.Clean(context.Background(), api.FlowConfig{Nodes: []string{"n1"}}))

	for scope, want := range map[string]any{"n1": 1, "n2": nil} {
		v, err := r.Get(scope).Get("k")
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	v, err := r.Global().Get("k")
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestClean_ReturnsStoreFailure(t *testing.T) {
	ok, bad := newFakeStore(true), newFakeStore(true)
	bad.cleanErr = errors.New("timeout")
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{
			{Name: "ok", Factory: factoryFor(ok, nil)},
			{Name: "bad", Factory: factoryFor(bad, nil)},
		},
	})
	stale := r.Get("n9")

	err := r.Clean(context.Background(), api.FlowConfig{})
	require.ErrorIs(t, err, bad.cleanErr)
	require.Equal(t, 1, ok.count("clean"), "other stores still settle")
	require.NotSame(t, stale, r.Get("n9"), "eviction does not depend on store outcome")
}

func TestClose_AliasedStoreClosedOnce(t *testing.T) {
	file, other := newFakeStore(true), newFakeStore(true)
	r := New(api.Settings{
		ContextStorage: api.StorageConfig{
			{Name: "file", Factory: factoryFor(file, nil)},
			{Name: "other", Factory: factoryFor(other, nil)},
			{Name: api.DefaultStore, Alias: "file"},
		},
	})
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	require.Equal(t, 1, file.count("close"))
	require.Equal(t, 1, other.count("close"))
	require.False(t, r.Ready())

	// A second Close has nothing left to close.
	require.NoError(t, r.Close(context.Background()))
	require.Equal(t, 1, file.count("close"))
}

func TestClose_ReturnsFirstFailure(t *testing.T) {
	bad := newFakeStore(true)
	bad.closeErr = errors.New("flush failed")
	r := New(api.Settings{
		ContextStorage: api.StorageConfig{{Name: "bad", Factory: factoryFor(bad, nil)}},
	})
	require.NoError(t, r.Load(context.Background()))

	err := r.Close(context.Background())
	require.ErrorIs(t, err, bad.closeErr)
	require.Contains(t, err.Error(), `"bad"`)
}

func TestClose_KeepsOnlyGlobalContext(t *testing.T) {
	r := New(api.Settings{})
	require.NoError(t, r.Load(context.Background()))
	node := r.Get("n1")
	g := r.Global()

	require.NoError(t, r.Close(context.Background()))

	require.Same(t, g, r.Get(api.GlobalScope))
	require.NotSame(t, node, r.Get("n1"))
}
