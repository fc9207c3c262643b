// Package reconcile 对一批本地文件执行 查找 → 比较 → 上传或跳过 → 记录.
//
// 每个文件独立处理，一个文件失败不会中止或回滚其它文件.解析到同一身份键的文件
// 按输入顺序在同一个 goroutine 中依次处理，后者的上传在目录中生效；不同的键并发处理.
// 目录只在上传前读取、上传成功后写入，上传期间不持有任何锁.
package reconcile

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/upload"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
	"github.com/yeisme/yukumo/pkg/tracing"
)

// ErrDuplicateKey 严格模式下，同批次中后出现的同键文件.
var ErrDuplicateKey = errors.New("duplicate identity key in batch")

// Store 引擎需要的目录操作，catalog.Store 满足该接口.
type Store interface {
	Get(ctx context.Context, key identity.Key) (*model.FileRecord, error)
	Upsert(ctx context.Context, rec *model.FileRecord) error
	Replace(ctx context.Context, old identity.Key, rec *model.FileRecord) error
}

// Observer 接收结果通知，用于发布事件.调用在结果确定之后，不影响结果.
type Observer interface {
	FileDone(ctx context.Context, runID string, o Outcome)
	BatchDone(ctx context.Context, r *Report)
}

// OpenFunc 打开本地文件用于上传.
type OpenFunc func(path string) (io.ReadCloser, error)

// Option 配置 Engine.
type Option func(*Engine)

// WithWorkers 并发处理的键组数.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDedupByKey 开启后同批次同键的后续文件直接失败.
func WithDedupByKey(on bool) Option {
	return func(e *Engine) {
		e.dedup = on
	}
}

// WithUploadTimeout 单次上传超时.
func WithUploadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.uploadTimeout = d
		}
	}
}

// WithStoreTimeout 上传成功后写目录的超时，写入不受批次取消影响.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithObserver 设置结果通知.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithOpener 替换文件打开方式.
func WithOpener(open OpenFunc) Option {
	return func(e *Engine) {
		if open != nil {
			e.open = open
		}
	}
}

// WithLogger 设置日志.
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// FromConfig 把同步配置转换为选项.
func FromConfig(cfg configs.SyncConfig) []Option {
	return []Option{
		WithWorkers(cfg.Workers),
		WithDedupByKey(cfg.DedupByKey),
		WithUploadTimeout(cfg.UploadTimeout),
		WithStoreTimeout(cfg.StoreTimeout),
	}
}

// Engine 对账引擎.
type Engine struct {
	store    Store
	resolver *identity.Resolver
	uploader upload.Uploader
	backend  string

	workers       int
	dedup         bool
	uploadTimeout time.Duration
	storeTimeout  time.Duration
	observer      Observer
	open          OpenFunc
	logger        *zerolog.Logger
}

// New 创建引擎.
func New(store Store, resolver *identity.Resolver, up upload.Uploader, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		resolver:      resolver,
		uploader:      up,
		backend:       upload.BackendName(up),
		workers:       configs.DefaultSyncWorkers,
		uploadTimeout: configs.DefaultUploadTimeout,
		storeTimeout:  configs.DefaultStoreTimeout,
		open:          func(p string) (io.ReadCloser, error) { return os.Open(p) },
		logger:        nlog.Component("reconcile"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewRunID 生成按时间排序的批次 ID.
func NewRunID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// groups 按身份键分组，组内与组间都保持首次出现的输入顺序.零键不可比较，各自成组.
func (e *Engine) groups(files []identity.LocalFile) ([]identity.Key, [][]int) {
	keys := make([]identity.Key, len(files))
	index := make(map[identity.Key]int)

	var groups [][]int

	for i, f := range files {
		k := e.resolver.Resolve(f)
		keys[i] = k

		if k.IsZero() {
			groups = append(groups, []int{i})
			continue
		}

		if g, ok := index[k]; ok {
			groups[g] = append(groups[g], i)
			continue
		}

		index[k] = len(groups)
		groups = append(groups, []int{i})
	}

	return keys, groups
}

// Run 对账一批文件.返回的 Report 总是包含每个文件的结果；
// 批次级错误（例如取消）体现在各文件的 Failed 结果中.
func (e *Engine) Run(ctx context.Context, files []identity.LocalFile) *Report {
	report := &Report{
		RunID:     NewRunID(time.Now()),
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, len(files)),
	}

	ctx, span := tracing.StartSpan(ctx, "reconcile.batch", trace.WithAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("files", len(files)),
		attribute.String("backend", e.backend),
	))
	defer span.End()

	logger := e.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().Int("files", len(files)).Int("workers", e.workers).Msg("reconcile started")

	keys, groups := e.groups(files)

	var g errgroup.Group
	g.SetLimit(e.workers)

	for _, group := range groups {
		g.Go(func() error {
			for n, i := range group {
				f := files[i]

				var o Outcome

				switch {
				case ctx.Err() != nil:
					o = failed(f, keys[i], "cancelled", ctx.Err())
				case n > 0 && e.dedup:
					o = failed(f, keys[i], "duplicate key", fmt.Errorf("%w: %s", ErrDuplicateKey, keys[i]))
				default:
					o = e.reconcile(ctx, f, keys[i])
				}

				report.Outcomes[i] = o
				e.done(ctx, &logger, report.RunID, o)
			}

			return nil
		})
	}

	_ = g.Wait()

	report.FinishedAt = time.Now()

	counts := report.Counts()
	for _, s := range Statuses {
		span.SetAttributes(attribute.Int("count."+string(s), counts[s]))
	}

	if n := counts[StatusFailed]; n > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d files failed", n))
	}

	logger.Info().
		Int("uploaded_new", counts[StatusUploadedNew]).
		Int("uploaded_updated", counts[StatusUploadedUpdated]).
		Int("skipped", counts[StatusSkipped]).
		Int("failed", counts[StatusFailed]).
		Dur("took", report.Duration()).
		Msg("reconcile finished")

	if e.observer != nil {
		e.observer.BatchDone(context.WithoutCancel(ctx), report)
	}

	return report
}

func (e *Engine) done(ctx context.Context, logger *zerolog.Logger, runID string, o Outcome) {
	metrics.ObserveOutcome(string(o.Status))

	ev := logger.Debug()
	if o.Status == StatusFailed {
		ev = logger.Warn().Err(o.Err)
	}

	ev.Str("file", o.File.Path).Str("key", o.Key.String()).Str("status", string(o.Status)).Str("reason", o.Reason).Msg("file reconciled")

	if e.observer != nil {
		e.observer.FileDone(context.WithoutCancel(ctx), runID, o)
	}
}

func failed(f identity.LocalFile, k identity.Key, reason string, err error) Outcome {
	return Outcome{File: f, Key: k, Status: StatusFailed, Reason: reason, Err: err}
}

// reconcile 处理单个文件.
func (e *Engine) reconcile(ctx context.Context, f identity.LocalFile, key identity.Key) (o Outcome) {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "reconcile.file", trace.WithAttributes(
		attribute.String("file", f.Path),
		attribute.String("key", key.String()),
	))

	defer func() {
		o.Duration = time.Since(start)
		span.SetAttributes(attribute.String("status", string(o.Status)))

		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Reason)
		}

		span.End()
	}()

	existing, err := e.store.Get(ctx, key)
	if err != nil {
		return failed(f, key, "store get", err)
	}

	status := StatusUploadedNew
	reason := "new"
	hint := f.Remote

	if existing != nil {
		stale := e.resolver.Staleness(f, existing)
		if stale == "" {
			return Outcome{File: f, Key: key, Status: StatusSkipped, Record: existing, Reason: "unchanged"}
		}

		status = StatusUploadedUpdated
		reason = string(stale)
		hint = &existing.Placement
	}

	placement, err := e.upload(ctx, f, hint)
	if err != nil {
		return failed(f, key, "upload", err)
	}

	rec := e.resolver.NewRecord(f, placement)

	// 上传已经完成，写入不再受批次取消影响，否则下次运行会重复上传
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()

	if existing != nil && !e.resolver.SameEntity(key, rec) {
		err = e.store.Replace(wctx, key, rec)
	} else {
		err = e.store.Upsert(wctx, rec)
	}

	if err != nil {
		return failed(f, key, "store write", err)
	}

	return Outcome{File: f, Key: key, Status: status, Record: rec, Prev: existing, Reason: reason}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}

func (e *Engine) upload(ctx context.Context, f identity.LocalFile, hint *model.Placement) (model.Placement, error) {
	ctx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "upload", trace.WithAttributes(
		attribute.String("backend", e.backend),
		attribute.String("file_name", f.Name),
		attribute.Int64("size", f.Size),
	))
	defer span.End()

	rc, err := e.open(f.Path)
	if err != nil {
		return model.Placement{}, upload.Wrap(e.backend, f.Name, "open", err)
	}
	defer rc.Close()

	size := f.Size
	if size <= 0 {
		size = -1
	}

	body := &countingReader{r: rc}
	start := time.Now()

	p, err := e.uploader.Upload(ctx, body, upload.Destination{
		FileName:    f.Name,
		ContentType: f.ContentType,
		Size:        size,
		Hint:        hint,
	})
	if err == nil {
		err = p.Validate()
		if err != nil {
			err = fmt.Errorf("%w: %w", upload.ErrBadPlacement, err)
		}
	}

	if err != nil {
		metrics.ObserveUpload(e.backend, time.Since(start), -1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")

		return model.Placement{}, upload.Wrap(e.backend, f.Name, "", err)
	}

	metrics.ObserveUpload(e.backend, time.Since(start), body.n)
	span.SetAttributes(attribute.String("block_id", p.BlockID))

	return p, nil
}

// Plan 只执行查找与过期判断，用于 dry-run.读取失败只影响对应文件.
func (e *Engine) Plan(ctx context.Context, files []identity.LocalFile) ([]Decision, error) {
	keys, groups := e.groups(files)
	decisions := make([]Decision, len(files))

	for _, group := range groups {
		for n, i := range group {
			if err := ctx.Err(); err != nil {
				return decisions, err
			}

			d := Decision{File: files[i], Key: keys[i], Duplicate: n > 0}

			switch {
			case d.Duplicate && e.dedup:
				d.Action, d.Reason = ActionError, "duplicate key"
				d.Err = fmt.Errorf("%w: %s", ErrDuplicateKey, keys[i])
			default:
				e.decide(ctx, &d)
			}

			decisions[i] = d
		}
	}

	return decisions, nil
}

func (e *Engine) decide(ctx context.Context, d *Decision) {
	existing, err := e.store.Get(ctx, d.Key)
	if err != nil {
		d.Action, d.Reason, d.Err = ActionError, "store get", err
		return
	}

	d.Existing = existing

	switch {
	case existing == nil:
		d.Action, d.Reason = ActionUpload, "new"
	case e.resolver.IsStale(d.File, existing):
		d.Action, d.Reason = ActionUpdate, string(e.resolver.Staleness(d.File, existing))
	default:
		d.Action, d.Reason = ActionSkip, "unchanged"
	}
}
