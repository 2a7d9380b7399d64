package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tetratelabs/wazero"
)

// emptyWasm is the smallest valid module: magic and version only.
var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestCache(t *testing.T, dir string) *ModuleCache {
	t.Helper()
	rt := wazero.NewRuntime(context.Background())
	t.Cleanup(func() { rt.Close(context.Background()) })
	return NewModuleCache(rt, dir, map[string]string{"tool": "tool"}, nil)
}

func TestLoadOrGet_CachesIdenticalObject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tool.wasm"), emptyWasm, 0o644); err != nil {
		t.Fatal(err)
	}
	cache := newTestCache(t, dir)
	ctx := context.Background()

	first, err := cache.LoadOrGet(ctx, "tool")
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := cache.LoadOrGet(ctx, "tool")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first != second {
		t.Fatalf("second load returned a different object")
	}

	cache.Unload(ctx, "tool")
	third, err := cache.LoadOrGet(ctx, "tool")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if third == nil {
		t.Fatalf("reload returned nil")
	}
}

func TestLoadOrGet_TaggedFailures(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.wasm"), []byte("not wasm"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name   string
		dir    string
		module string
		tag    FailureTag
	}{
		{"unknown", dir, "", TagUnknownModule},
		{"no bundle", filepath.Join(dir, "missing"), "tool", TagBundleNotFound},
		{"no file", dir, "absent", TagFileNotFound},
		{"bad bytecode", dir, "broken", TagLoadFailed},
	} {
		cache := newTestCache(t, tc.dir)
		_, err := cache.LoadOrGet(context.Background(), tc.module)
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			t.Fatalf("%s: error %v is not a LoadError", tc.name, err)
		}
		if loadErr.Tag != tc.tag {
			t.Fatalf("%s: tag %s, want %s", tc.name, loadErr.Tag, tc.tag)
		}
	}
}

func TestLoadOrGet_FailureNotCached(t *testing.T) {
	dir := t.TempDir()
	cache := newTestCache(t, dir)
	ctx := context.Background()

	if _, err := cache.LoadOrGet(ctx, "tool"); err == nil {
		t.Fatalf("expected file-not-found")
	}

	if err := os.WriteFile(filepath.Join(dir, "tool.wasm"), emptyWasm, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.LoadOrGet(ctx, "tool"); err != nil {
		t.Fatalf("retry after fix failed: %v", err)
	}
}
