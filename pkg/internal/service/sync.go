package service

import (
	"context"
	"errors"

	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/queue"
)

// ErrNoPaths 没有给出路径且未配置 sync.roots.
var ErrNoPaths = errors.New("no paths to sync")

// PutOptions 单次同步的覆盖项，零值使用配置.
type PutOptions struct {
	DryRun  bool
	Workers int
	// Recursive 非 nil 时覆盖 sync.recursive
	Recursive *bool
	// Refingerprint 重新上传没有指纹的旧记录
	Refingerprint bool
}

// PutResult 同步结果.DryRun 时只有 Decisions.
type PutResult struct {
	Report    *reconcile.Report
	Decisions []reconcile.Decision
	// ScanErr 部分路径无法访问，其余文件照常处理
	ScanErr error
}

// SyncService 扫描本地路径并与目录对账.
type SyncService struct {
	rt *Runtime
}

// NewSyncService 创建同步服务.
func NewSyncService(rt *Runtime) *SyncService {
	return &SyncService{rt: rt}
}

// Roots 返回 paths，为空时使用配置的 sync.roots.
func (s *SyncService) Roots(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = s.rt.Config.Sync.Roots
	}

	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	return paths, nil
}

// Put 扫描 paths 并上传新的或过期的文件.
func (s *SyncService) Put(ctx context.Context, paths []string, opts PutOptions) (*PutResult, error) {
	paths, err := s.Roots(paths)
	if err != nil {
		return nil, err
	}

	scanner := s.rt.Scanner
	if opts.Recursive != nil {
		o := scanner.Options()
		o.Recursive = *opts.Recursive
		scanner = scanner.With(o)
	}

	files, scanErr := scanner.Scan(ctx, paths...)
	if scanErr != nil && len(files) == 0 {
		return nil, scanErr
	}

	return s.Reconcile(ctx, files, opts, scanErr)
}

// Reconcile 对已描述的文件对账，watch 使用.
func (s *SyncService) Reconcile(ctx context.Context, files []identity.LocalFile, opts PutOptions, scanErr error) (*PutResult, error) {
	res := &PutResult{ScanErr: scanErr}

	resolver := s.rt.Resolver
	if opts.Refingerprint {
		resolver = resolver.Refingerprinting()
	}

	if opts.DryRun {
		engine := reconcile.New(s.rt.Store, resolver, nil, s.engineOptions(opts, "")...)

		decisions, err := engine.Plan(ctx, files)
		res.Decisions = decisions

		return res, err
	}

	up, err := s.rt.Uploader()
	if err != nil {
		return nil, err
	}

	s.rt.batchMu.Lock()
	defer s.rt.batchMu.Unlock()

	engine := reconcile.New(s.rt.Store, resolver, up, s.engineOptions(opts, up.Name())...)
	res.Report = engine.Run(ctx, files)

	return res, nil
}

func (s *SyncService) engineOptions(opts PutOptions, backend string) []reconcile.Option {
	out := reconcile.FromConfig(s.rt.Config.Sync)
	out = append(out, reconcile.WithObserver(&eventObserver{events: s.rt.Events, backend: backend}))

	if opts.Workers > 0 {
		out = append(out, reconcile.WithWorkers(opts.Workers))
	}

	return out
}

// eventObserver 把对账结果发布为事件.
type eventObserver struct {
	events  *queue.Emitter
	backend string
}

func fileRef(o reconcile.Outcome) queue.FileRef {
	ref := queue.FileRef{
		FileName:    o.File.Name,
		Path:        o.File.Path,
		Size:        o.File.Size,
		ContentHash: o.File.ContentHash,
		ContentType: o.File.ContentType,
	}

	if o.Record != nil {
		ref.FileURL, ref.SpaceID, ref.BlockID = o.Record.FileURL, o.Record.SpaceID, o.Record.BlockID
	}

	return ref
}

func (e *eventObserver) FileDone(ctx context.Context, runID string, o reconcile.Outcome) {
	switch o.Status {
	case reconcile.StatusUploadedNew:
		e.events.FileUploaded(ctx, queue.FileUploadedPayload{RunID: runID, File: fileRef(o), Backend: e.backend})
	case reconcile.StatusUploadedUpdated:
		p := queue.FileUploadedPayload{RunID: runID, File: fileRef(o), Backend: e.backend, Reason: o.Reason}
		if o.Prev != nil {
			p.PrevFileURL = o.Prev.FileURL
		}

		e.events.FileUpdated(ctx, p)
	case reconcile.StatusFailed:
		p := queue.FileFailedPayload{RunID: runID, File: fileRef(o), Reason: o.Reason}
		if o.Err != nil {
			p.Error = o.Err.Error()
		}

		e.events.FileFailed(ctx, p)
	case reconcile.StatusSkipped:
	}
}

func (e *eventObserver) BatchDone(ctx context.Context, r *reconcile.Report) {
	counts := make(map[string]int, len(reconcile.Statuses))
	for s, n := range r.Counts() {
		counts[string(s)] = n
	}

	e.events.BatchCompleted(ctx, queue.BatchCompletedPayload{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      len(r.Outcomes),
		Counts:     counts,
	})
}
