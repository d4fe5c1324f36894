package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/petrijr/fluxoctx/pkg/api"
)

const fileExt = ".json"

// FileStore is a Store that keeps one JSON document per scope under a root
// directory:
//
//	<root>/<escaped scope>.json => {"scope": "...", "entries": [{"key": ..., "value": ...}]}
//
// Writes replace the whole document atomically (temp file + rename). With
// caching enabled, every document is loaded into memory at Open; reads are
// served from memory and the store supports the blocking Context entry
// points. Writes always go through to disk.
type FileStore struct {
	root  string
	cache *InMemoryStore

	mu sync.Mutex // serializes disk writes
}

var _ api.Store = (*FileStore)(nil)

var _ api.SyncStore = (*FileStore)(nil)

type fileEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type fileDocument struct {
	Scope   string      `json:"scope"`
	Entries []fileEntry `json:"entries"`
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string, cache bool) *FileStore {
	s := &FileStore{root: root}
	if cache {
		s.cache = NewInMemoryStore()
	}
	return s
}

// NewFileStoreFromConfig is the "localfilesystem" module factory.
//
// Options: "dir" (defaults to the user directory, then the working
// directory), "base" (sub-directory, default "context"), "cache" (default
// true).
func NewFileStoreFromConfig(cfg api.StoreConfig) (api.Store, error) {
	dir := cfg.String("dir", cfg.UserDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	base := cfg.String("base", "context")
	return NewFileStore(filepath.Join(dir, base), cfg.Bool("cache", true)), nil
}

// Root returns the directory holding the scope documents.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Sync() bool { return s.cache != nil }

func (s *FileStore) Open(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	if s.cache == nil {
		return nil
	}

	scopes, err := s.scopes()
	if err != nil {
		return err
	}
	for _, scope := range scopes {
		keys, values, err := s.read(scope)
		if err != nil {
			return err
		}
		s.cache.load(scope, keys, values)
	}
	return nil
}

func (s *FileStore) Close(ctx context.Context) error { return nil }

func (s *FileStore) Get(ctx context.Context, scope, key string) (any, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, scope, key)
	}
	_, values, err := s.read(scope)
	if err != nil {
		return nil, err
	}
	return values[key], nil
}

func (s *FileStore) Set(ctx context.Context, scope, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	var values map[string]any
	if s.cache != nil {
		keys, values = s.cache.snapshot(scope)
	} else {
		var err error
		keys, values, err = s.read(scope)
		if err != nil {
			return err
		}
	}

	_, exists := values[key]
	switch {
	case value == nil && exists:
		delete(values, key)
		keys = removeKey(keys, key)
	case value != nil:
		if !exists {
			keys = append(keys, key)
		}
		values[key] = value
	}

	// The cache only follows a successful write.
	if err := s.write(scope, keys, values); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.load(scope, keys, values)
	}
	return nil
}

func (s *FileStore) Keys(ctx context.Context, scope string) ([]string, error) {
	if s.cache != nil {
		return s.cache.Keys(ctx, scope)
	}
	keys, _, err := s.read(scope)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *FileStore) Delete(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		_ = s.cache.Delete(ctx, scope)
	}
	return s.remove(scope)
}

func (s *FileStore) Clean(ctx context.Context, activeNodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopes, err := s.scopes()
	if err != nil {
		return err
	}
	for _, scope := range staleScopes(scopes, activeNodes) {
		if s.cache != nil {
			_ = s.cache.Delete(ctx, scope)
		}
		if err := s.remove(scope); err != nil {
			return err
		}
	}
	if s.cache != nil {
		return s.cache.Clean(ctx, activeNodes)
	}
	return nil
}

func (s *FileStore) path(scope string) string {
	return filepath.Join(s.root, url.QueryEscape(scope)+fileExt)
}

// scopes lists the scopes that have a document on disk.
func (s *FileStore) scopes() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list context directory: %w", err)
	}

	var scopes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		scope, err := url.QueryUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

func (s *FileStore) read(scope string) ([]string, map[string]any, error) {
	values := make(map[string]any)

	data, err := os.ReadFile(s.path(scope))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, values, nil
		}
		return nil, nil, fmt.Errorf("read context %q: %w", scope, err)
	}

	var doc fileDocument
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode context %q: %w", scope, err)
	}

	keys := make([]string, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if _, dup := values[e.Key]; dup {
			continue
		}
		keys = append(keys, e.Key)
		values[e.Key] = e.Value
	}
	return keys, values, nil
}

func (s *FileStore) write(scope string, keys []string, values map[string]any) error {
	if len(keys) == 0 {
		return s.remove(scope)
	}

	doc := fileDocument{Scope: scope, Entries: make([]fileEntry, 0, len(keys))}
	for _, k := range keys {
		doc.Entries = append(doc.Entries, fileEntry{Key: k, Value: values[k]})
	}
	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode context %q: %w", scope, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	tmpName := filepath.Join(s.root, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmpName, data, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write context %q: %w", scope, err)
	}
	if err := os.Rename(tmpName, s.path(scope)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write context %q: %w", scope, err)
	}
	return nil
}

func (s *FileStore) remove(scope string) error {
	if err := os.Remove(s.path(scope)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete context %q: %w", scope, err)
	}
	return nil
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
