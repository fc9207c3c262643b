package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/cache"
	"github.com/yeisme/yukumo/pkg/internal/scan"
	"github.com/yeisme/yukumo/pkg/internal/storage/kv"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func tree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "bravo")
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, ".hidden"), "secret")
	writeFile(t, filepath.Join(root, ".git", "config"), "x")
	writeFile(t, filepath.Join(root, "sub", "c.txt"), "charlie")

	return root
}

func names(t *testing.T, s *scan.Scanner, paths ...string) []string {
	t.Helper()

	files, err := s.Scan(context.Background(), paths...)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}

	return out
}

func TestScanOptions(t *testing.T) {
	root := tree(t)

	tests := []struct {
		name string
		opts scan.Options
		want string
	}{
		{"recursive skip hidden", scan.Options{Recursive: true, SkipHidden: true}, "a.txt,b.txt,c.txt"},
		{"flat", scan.Options{SkipHidden: true}, "a.txt,b.txt"},
		{"include hidden", scan.Options{Recursive: true}, "config,.hidden,a.txt,b.txt,c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(names(t, scan.New(nil, tt.opts), root), ",")
			if got != tt.want {
				t.Errorf("Scan() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	root := tree(t)
	s := scan.New(nil, scan.DefaultOptions())

	f, err := s.Describe(context.Background(), filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	if f.Name != "a.txt" || f.Size != 5 || !filepath.IsAbs(f.Path) {
		t.Errorf("Describe() = %+v", f)
	}

	if f.ContentHash != scan.HashBytes([]byte("alpha")) || len(f.ContentHash) != 16 {
		t.Errorf("ContentHash = %q", f.ContentHash)
	}

	if !strings.HasPrefix(f.ContentType, "text/plain") {
		t.Errorf("ContentType = %q", f.ContentType)
	}
}

func TestScanWithoutHash(t *testing.T) {
	root := tree(t)

	files, err := scan.New(nil, scan.Options{}).Scan(context.Background(), filepath.Join(root, "a.txt"))
	if err != nil || len(files) != 1 {
		t.Fatalf("Scan() = %v, %v", files, err)
	}

	if files[0].ContentHash != "" {
		t.Errorf("hash computed with Hash=false: %q", files[0].ContentHash)
	}
}

func TestScanReportsMissingPaths(t *testing.T) {
	root := tree(t)

	files, err := scan.New(nil, scan.DefaultOptions()).Scan(context.Background(), filepath.Join(root, "nope"), filepath.Join(root, "a.txt"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}

	if len(files) != 1 {
		t.Errorf("files = %d, want the readable one", len(files))
	}
}

func TestFingerprintCache(t *testing.T) {
	ctx := context.Background()
	root := tree(t)
	path := filepath.Join(root, "a.txt")

	store := kv.NewMemoryKV()
	s := scan.New(cache.NewCache(store), scan.DefaultOptions())

	first, err := s.Describe(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	keys, _ := store.Keys(ctx, scan.CacheKeyPrefix+"*")
	if len(keys) != 1 || keys[0] != scan.CacheKey(first.Path, first.Size, first.ModTime) {
		t.Fatalf("cache keys = %v", keys)
	}

	// 缓存命中时不重新读取内容
	_ = store.Set(ctx, keys[0], []byte(`{"hash":"ffffffffffffffff","content_type":"text/plain"}`), 0)

	second, _ := s.Describe(ctx, path)
	if second.ContentHash != "ffffffffffffffff" {
		t.Errorf("cached hash not used: %q", second.ContentHash)
	}

	// 修改时间变化后换键重新计算
	later := first.ModTime.Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	third, _ := s.Describe(ctx, path)
	if third.ContentHash != first.ContentHash {
		t.Errorf("recomputed hash = %q, want %q", third.ContentHash, first.ContentHash)
	}
}

func TestCacheKeyChanges(t *testing.T) {
	now := time.Unix(1700000000, 0)
	base := scan.CacheKey("/a", 1, now)

	for _, k := range []string{
		scan.CacheKey("/b", 1, now),
		scan.CacheKey("/a", 2, now),
		scan.CacheKey("/a", 1, now.Add(time.Nanosecond)),
	} {
		if k == base {
			t.Errorf("key collision for changed input: %s", k)
		}
	}
}
