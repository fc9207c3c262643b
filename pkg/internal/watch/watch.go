// Package watch 监听本地目录的变化，去抖后按批交给对账.
//
// 只关心新建与写入；删除与改名不会触发任何动作，目录只由显式审计删除记录.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	nlog "github.com/yeisme/yukumo/pkg/log"
)

// DefaultDebounce 最后一次变化后等待的时间.
const DefaultDebounce = 2 * time.Second

// Options 监听选项.
type Options struct {
	Recursive  bool
	SkipHidden bool
	Debounce   time.Duration
}

// HandleFunc 处理一批变化的路径（文件或新建的目录），按字典序排列且不重复.
type HandleFunc func(ctx context.Context, paths []string)

// Watcher 基于 fsnotify 的目录监听器.
type Watcher struct {
	fsw    *fsnotify.Watcher
	opts   Options
	logger *zerolog.Logger

	mu    sync.Mutex
	dirs  map[string]struct{}
	files map[string]struct{}
}

// New 创建监听器，需要调用 Add 添加路径后再 Run.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	return &Watcher{
		fsw:    fsw,
		opts:   opts,
		logger: nlog.Component("watch"),
		dirs:   map[string]struct{}{},
		files:  map[string]struct{}{},
	}, nil
}

// Add 添加监听路径.目录按 Recursive 加入子目录；单个文件通过监听其父目录实现.
func (w *Watcher) Add(paths ...string) error {
	var errs []error

	for _, p := range paths {
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

		if info.IsDir() {
			errs = append(errs, w.addTree(abs))
			continue
		}

		if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", abs, err))
			continue
		}

		w.mu.Lock()
		w.files[abs] = struct{}{}
		w.mu.Unlock()
	}

	return errors.Join(errs...)
}

func (w *Watcher) addDir(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.dirs[dir] = struct{}{}
	w.mu.Unlock()

	return nil
}

func (w *Watcher) addTree(root string) error {
	if !w.opts.Recursive {
		return w.addDir(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("skip unreadable path")
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.hidden(path) {
			return fs.SkipDir
		}

		return w.addDir(path)
	})
}

func (w *Watcher) hidden(path string) bool {
	return w.opts.SkipHidden && strings.HasPrefix(filepath.Base(path), ".")
}

// Dirs 返回正在监听的目录.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}

	slices.Sort(out)

	return out
}

func (w *Watcher) accept(path string) bool {
	if w.hidden(path) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[path]; ok {
		return true
	}

	_, ok := w.dirs[filepath.Dir(path)]

	return ok
}

// Run 处理事件直到 ctx 结束，返回前关闭底层监听器.handle 在事件循环中同步调用.
func (w *Watcher) Run(ctx context.Context, handle HandleFunc) error {
	defer w.fsw.Close()

	pending := map[string]struct{}{}

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}

		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}

		slices.Sort(paths)
		clear(pending)

		w.logger.Debug().Int("paths", len(paths)).Msg("flush changes")
		handle(ctx, paths)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if !w.accept(ev.Name) {
				continue
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !w.opts.Recursive {
						continue
					}

					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", ev.Name).Msg("watch new directory failed")
					}
				}
			}

			pending[ev.Name] = struct{}{}

			timer.Reset(w.opts.Debounce)

		case <-timer.C:
			flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
