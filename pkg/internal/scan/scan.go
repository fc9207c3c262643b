// Package scan 遍历本地路径并生成对账所需的文件描述.
//
// 内容指纹为 xxhash64（16 位小写十六进制）.指纹按 路径|大小|修改时间 缓存在 KV 中，
// 文件未变化时不重复读取内容；缓存出错时退回直接计算.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/golang/groupcache"

	"github.com/yeisme/yukumo/pkg/cache"
	"github.com/yeisme/yukumo/pkg/internal/identity"
)

// CacheKeyPrefix 指纹缓存键前缀.
const CacheKeyPrefix = "fp:"

const (
	defaultContentType = "application/octet-stream"
	sniffLen           = 3072
)

// Options 扫描选项.
type Options struct {
	Recursive  bool
	SkipHidden bool
	// Hash 是否计算内容哈希；staleness=mtime 时可关闭
	Hash     bool
	CacheTTL time.Duration
}

// DefaultOptions 与配置默认值一致.
func DefaultOptions() Options {
	return Options{Recursive: true, SkipHidden: true, Hash: true, CacheTTL: 24 * time.Hour}
}

// Scanner 本地文件扫描器.
type Scanner struct {
	opts  Options
	cache *cache.Cache
	group *groupcache.Group
}

// entry 缓存值.
type entry struct {
	Hash        string `json:"hash"`
	ContentType string `json:"content_type"`
}

// New 创建扫描器.c 为 nil 时不使用缓存.
func New(c *cache.Cache, opts Options) *Scanner {
	return &Scanner{opts: opts, cache: c}
}

// Options 返回当前选项.
func (s *Scanner) Options() Options {
	return s.opts
}

// NewWithGroup 创建使用 groupcache 指纹组（见 Group）的扫描器，opts.CacheTTL 不再生效.
func NewWithGroup(g *groupcache.Group, opts Options) *Scanner {
	return &Scanner{opts: opts, group: g}
}

// With 返回使用 opts 的副本，共享缓存.
func (s *Scanner) With(opts Options) *Scanner {
	return &Scanner{opts: opts, cache: s.cache, group: s.group}
}

// Scan 展开 paths 并描述其中的普通文件，顺序与输入及目录字典序一致.
// 无法访问的路径不会中断扫描，错误合并返回.
func (s *Scanner) Scan(ctx context.Context, paths ...string) ([]identity.LocalFile, error) {
	var (
		files []identity.LocalFile
		errs  []error
	)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		info, err := os.Stat(abs)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if !info.IsDir() {
			f, err := s.Describe(ctx, abs)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			files = append(files, f)

			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}

				return nil
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			if path == abs {
				return nil
			}

			if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return fs.SkipDir
				}

				return nil
			}

			if d.IsDir() {
				if !s.opts.Recursive {
					return fs.SkipDir
				}

				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}

			f, err := s.Describe(ctx, path)
			if err != nil {
				errs = append(errs, err)
				return nil
			}

			files = append(files, f)

			return nil
		})
		if err != nil {
			return files, err
		}
	}

	return files, errors.Join(errs...)
}

// Describe 描述单个文件.
func (s *Scanner) Describe(ctx context.Context, path string) (identity.LocalFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return identity.LocalFile{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return identity.LocalFile{}, err
	}

	if !info.Mode().IsRegular() {
		return identity.LocalFile{}, fmt.Errorf("%s: not a regular file", abs)
	}

	f := identity.LocalFile{
		Path:    abs,
		Name:    filepath.Base(abs),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	e, err := s.fingerprint(ctx, f)
	if err != nil {
		return identity.LocalFile{}, err
	}

	f.ContentHash, f.ContentType = e.Hash, e.ContentType

	return f, nil
}

func (s *Scanner) fingerprint(ctx context.Context, f identity.LocalFile) (entry, error) {
	switch {
	case s.group != nil:
		return groupEntry(ctx, s.group, f, s.opts.Hash)
	case s.cache != nil:
		return cache.Load(ctx, s.cache, CacheKey(f.Path, f.Size, f.ModTime), s.opts.CacheTTL,
			func() (entry, error) { return computeEntry(f.Path, s.opts.Hash) },
			func(e entry) bool { return e.Hash != "" || !s.opts.Hash },
		)
	default:
		return computeEntry(f.Path, s.opts.Hash)
	}
}

// computeEntry 单次读取：先嗅探类型，hash 为 true 时继续哈希剩余内容.
func computeEntry(path string, hash bool) (entry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return entry{}, err
	}
	defer fh.Close()

	head := make([]byte, sniffLen)

	n, err := io.ReadFull(fh, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return entry{}, fmt.Errorf("read %s: %w", path, err)
	}

	head = head[:n]
	e := entry{ContentType: defaultContentType}

	if n > 0 {
		e.ContentType = mimetype.Detect(head).String()
	}

	if !hash {
		return e, nil
	}

	h := xxhash.New()
	_, _ = h.Write(head)

	if _, err := io.Copy(h, fh); err != nil {
		return entry{}, fmt.Errorf("hash %s: %w", path, err)
	}

	e.Hash = FormatHash(h.Sum64())

	return e, nil
}

// FormatHash 把 xxhash64 格式化为 16 位小写十六进制.
func FormatHash(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// HashBytes 计算内容指纹.
func HashBytes(b []byte) string {
	return FormatHash(xxhash.Sum64(b))
}

// CacheKey 指纹缓存键，路径、大小或修改时间任一变化都会换键.
func CacheKey(path string, size int64, mtime time.Time) string {
	raw := path + "|" + strconv.FormatInt(size, 10) + "|" + strconv.FormatInt(mtime.UnixNano(), 10)

	return CacheKeyPrefix + FormatHash(xxhash.Sum64String(raw))
}
