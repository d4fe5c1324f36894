package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/fluxoctx/pkg/api"
)

type result[T any] struct {
	val T
	err error
}

func await[T any](t *testing.T, ch <-chan result[T]) result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
		return result[T]{}
	}
}

func seededRegistry(t *testing.T, store *fakeStore) *Registry {
	t.Helper()
	return loadRegistry(t, api.Settings{
		GlobalContext: map[string]any{"greeting": "hello", "answer": 42},
		ContextStorage: api.StorageConfig{
			{Name: "store", Factory: factoryFor(store, nil)},
		},
	})
}

func TestContext_SetGetKeys(t *testing.T) {
	r := loadRegistry(t, api.Settings{})
	node := r.Get("n1", "f1")

	require.NoError(t, node.Set("a", 1))
	require.NoError(t, node.Set("b", "two"))

	v, err := node.Get("a")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	keys, err := node.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	// Scopes do not leak into each other.
	v, err = node.Flow().Get("a")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestContext_GlobalSeedIsReadThroughDefault(t *testing.T) {
	r := seededRegistry(t, newFakeStore(true))
	g := r.Global()

	v, err := g.Get("greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	require.NoError(t, g.Set("greeting", "hi"))
	v, err = g.Get("greeting")
	require.NoError(t, err)
	require.Equal(t, "hi", v, "stored value wins over seed")

	require.NoError(t, g.Set("greeting", nil))
	v, err = g.Get("greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", v, "clearing the stored value exposes the seed")

	v, err = g.Get("unknown")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestContext_SeedOnlyOnGlobal(t *testing.T) {
	r := seededRegistry(t, newFakeStore(true))

	v, err := r.Get("n1").Get("greeting")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestContext_GlobalKeysSupersetOfSeed(t *testing.T) {
	r := seededRegistry(t, newFakeStore(true))
	g := r.Global()

	keys, err := g.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"answer", "greeting"}, keys)

	require.NoError(t, g.Set("greeting", "hi"))
	require.NoError(t, g.Set("extra", true))

	keys, err = g.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"greeting", "extra", "answer"}, keys)
}

func TestContext_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"k": "v"}
	r := loadRegistry(t, api.Settings{GlobalContext: seed})
	seed["k"] = "changed"

	v, err := r.Global().Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestContext_BlockingRequiresSyncStore(t *testing.T) {
	async := newFakeStore(false)
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{{Name: "db", Factory: factoryFor(async, nil)}},
	})
	node := r.Get("n1")

	_, err := node.Get("k")
	require.ErrorIs(t, err, api.ErrSyncUnsupported)
	require.ErrorIs(t, node.Set("k", 1), api.ErrSyncUnsupported)
	_, err = node.Keys()
	require.ErrorIs(t, err, api.ErrSyncUnsupported)

	require.Zero(t, async.count("get")+async.count("set")+async.count("keys"))
}

func TestContext_CallbacksWorkWithAsyncStore(t *testing.T) {
	async := newFakeStore(false)
	r := seededRegistry(t, async)
	g := r.Global()
	ctx := context.Background()

	setDone := make(chan result[struct{}], 1)
	require.NoError(t, g.SetAsync(ctx, "answer", 43, func(err error) {
		setDone <- result[struct{}]{err: err}
	}))
	require.NoError(t, await(t, setDone).err)

	got := make(chan result[any], 1)
	require.NoError(t, g.GetAsync(ctx, "answer", func(v any, err error) {
		got <- result[any]{v, err}
	}))
	res := await(t, got)
	require.NoError(t, res.err)
	require.Equal(t, 43, res.val)

	require.NoError(t, g.GetAsync(ctx, "greeting", func(v any, err error) {
		got <- result[any]{v, err}
	}))
	res = await(t, got)
	require.NoError(t, res.err)
	require.Equal(t, "hello", res.val, "seed applies in the callback form too")

	keys := make(chan result[[]string], 1)
	require.NoError(t, g.KeysAsync(ctx, func(k []string, err error) {
		keys <- result[[]string]{k, err}
	}))
	kr := await(t, keys)
	require.NoError(t, kr.err)
	require.Equal(t, []string{"answer", "greeting"}, kr.val)
}

func TestContext_NilCallbackIsMisuse(t *testing.T) {
	store := newFakeStore(true)
	r := seededRegistry(t, store)
	node := r.Get("n1")
	ctx := context.Background()

	require.ErrorIs(t, node.GetAsync(ctx, "k", nil), api.ErrInvalidCallback)
	require.ErrorIs(t, node.SetAsync(ctx, "k", 1, nil), api.ErrInvalidCallback)
	require.ErrorIs(t, node.KeysAsync(ctx, nil), api.ErrInvalidCallback)

	require.Zero(t, store.count("get")+store.count("set")+store.count("keys"))
}

func TestContext_BackendErrorReachesCallback(t *testing.T) {
	store := newFakeStore(false)
	store.getErr = errors.New("disk on fire")
	r := seededRegistry(t, store)

	got := make(chan result[any], 1)
	err := r.Global().GetAsync(context.Background(), "greeting", func(v any, err error) {
		got <- result[any]{v, err}
	})
	require.NoError(t, err)

	res := await(t, got)
	require.ErrorIs(t, res.err, store.getErr)
	require.Nil(t, res.val, "seed must not mask a backend failure")
}

func TestContext_WithStoreRoutesToNamedStore(t *testing.T) {
	first, second := newFakeStore(true), newFakeStore(true)
	r := loadRegistry(t, api.Settings{
		ContextStorage: api.StorageConfig{
			{Name: "first", Factory: factoryFor(first, nil)},
			{Name: "second", Factory: factoryFor(second, nil)},
		},
	})
	node := r.Get("n1")

	require.NoError(t, node.Set("k", "in-second", api.WithStore("second")))
	require.NoError(t, node.Set("k", "in-default"))

	v, err := second.Get(context.Background(), "n1", "k")
	require.NoError(t, err)
	require.Equal(t, "in-second", v)

	v, err = first.Get(context.Background(), "n1", "k")
	require.NoError(t, err)
	require.Equal(t, "in-default", v)
}

func TestContext_UnknownStorageFailsSynchronously(t *testing.T) {
	r := New(api.Settings{})
	node := r.Get("n1")
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	var ctxErr *api.ContextError

	_, err := node.Get("k", api.WithStore("missing"))
	require.ErrorAs(t, err, &ctxErr)
	require.Equal(t, "missing", ctxErr.Storage)

	err = node.GetAsync(context.Background(), "k", func(any, error) {
		t.Error("callback must not run")
	})
	require.ErrorAs(t, err, &ctxErr)
	require.Equal(t, api.DefaultStore, ctxErr.Storage)
}

func TestContext_CallbacksReachStoreInIssueOrder(t *testing.T) {
	r := loadRegistry(t, api.Settings{})
	node := r.Get("n1")
	ctx := context.Background()

	const rounds = 2000
	got := make(chan result[any], rounds)
	for i := range rounds {
		require.NoError(t, node.SetAsync(ctx, "k", i, func(err error) {
			if err != nil {
				got <- result[any]{err: err}
			}
		}))
		require.NoError(t, node.GetAsync(ctx, "k", func(v any, err error) {
			got <- result[any]{v, err}
		}))
	}

	for i := range rounds {
		res := await(t, got)
		require.NoError(t, res.err)
		require.Equal(t, i, res.val, "get issued after set #%d", i)
	}
}

func TestContext_CallbackMayIssueFurtherCalls(t *testing.T) {
	r := loadRegistry(t, api.Settings{})
	node := r.Get("n1")
	ctx := context.Background()

	got := make(chan result[any], 1)
	require.NoError(t, node.SetAsync(ctx, "k", "v", func(err error) {
		if err == nil {
			err = node.GetAsync(ctx, "k", func(v any, err error) {
				got <- result[any]{v, err}
			})
		}
		if err != nil {
			got <- result[any]{err: err}
		}
	}))

	res := await(t, got)
	require.NoError(t, res.err)
	require.Equal(t, "v", res.val)
}
