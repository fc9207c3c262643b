package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/catalog"
	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/migrate"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/scan"
	"github.com/yeisme/yukumo/pkg/internal/storage/db/dbtest"
	"github.com/yeisme/yukumo/pkg/internal/upload"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// fakeUploader 记录调用，按文件名注入失败.
type fakeUploader struct {
	mu    sync.Mutex
	calls []upload.Destination
	fail  map[string]error

	// onUpload 在返回前调用，可用于取消批次
	onUpload func(dest upload.Destination)
	// partial 返回不完整的位置
	partial bool
	// hang 中的文件一直阻塞到 ctx 结束
	hang map[string]bool
}

func (f *fakeUploader) Name() string { return "fake" }

func (f *fakeUploader) Upload(ctx context.Context, r io.Reader, dest upload.Destination) (model.Placement, error) {
	if _, err := io.ReadAll(r); err != nil {
		return model.Placement{}, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, dest)
	n := len(f.calls)
	err := f.fail[dest.FileName]
	f.mu.Unlock()

	if f.onUpload != nil {
		f.onUpload(dest)
	}

	if f.hang[dest.FileName] {
		<-ctx.Done()
		return model.Placement{}, ctx.Err()
	}

	if err != nil {
		return model.Placement{}, err
	}

	p := model.Placement{
		FileURL: fmt.Sprintf("https://files.example/%d/%s", n, dest.FileName),
		SpaceID: "space-1",
		BlockID: fmt.Sprintf("block-%d", n),
	}
	if f.partial {
		p.BlockID = ""
	}

	return p, nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type harness struct {
	store    *catalog.Store
	resolver *identity.Resolver
	up       *fakeUploader
	dir      string
}

func newHarness(t *testing.T, version int, scheme identity.Scheme) *harness {
	t.Helper()

	db := dbtest.Open(t)

	if _, err := migrate.NewManager(db, migrate.WithLogger(nlog.Nop())).UpTo(context.Background(), version); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	resolver := identity.NewResolver(scheme, identity.StalenessHash)

	store, err := catalog.New(db, resolver, catalog.WithLogger(nlog.Nop()))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	return &harness{store: store, resolver: resolver, up: &fakeUploader{}, dir: t.TempDir()}
}

func (h *harness) engine(opts ...reconcile.Option) *reconcile.Engine {
	opts = append([]reconcile.Option{reconcile.WithLogger(nlog.Nop()), reconcile.WithWorkers(2)}, opts...)
	return reconcile.New(h.store, h.resolver, h.up, opts...)
}

// write 写入文件并返回其描述.
func (h *harness) write(t *testing.T, rel, content string) identity.LocalFile {
	t.Helper()

	path := filepath.Join(h.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := scan.New(nil, scan.DefaultOptions()).Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe(%s): %v", rel, err)
	}

	return f
}

func statuses(r *reconcile.Report) []reconcile.Status {
	out := make([]reconcile.Status, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Status
	}

	return out
}

func assertStatuses(t *testing.T, r *reconcile.Report, want ...reconcile.Status) {
	t.Helper()

	got := statuses(r)
	if len(got) != len(want) {
		t.Fatalf("outcomes = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", got, want)
		}
	}
}

func (h *harness) get(t *testing.T, name string) *model.FileRecord {
	t.Helper()

	rec, err := h.store.Get(context.Background(), h.resolver.Resolve(identity.LocalFile{Name: name}))
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}

	return rec
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	files := []identity.LocalFile{
		h.write(t, "a.txt", "alpha"),
		h.write(t, "b.txt", "beta"),
		h.write(t, "sub/c.txt", "gamma"),
	}

	e := h.engine()
	ctx := context.Background()

	first := e.Run(ctx, files)
	assertStatuses(t, first, reconcile.StatusUploadedNew, reconcile.StatusUploadedNew, reconcile.StatusUploadedNew)

	if err := first.Err(); err != nil {
		t.Fatalf("first run Err() = %v", err)
	}

	// 多次运行，上传次数不变
	for range 3 {
		again := e.Run(ctx, files)
		assertStatuses(t, again, reconcile.StatusSkipped, reconcile.StatusSkipped, reconcile.StatusSkipped)
	}

	if n := h.up.count(); n != 3 {
		t.Fatalf("upload calls = %d, want 3", n)
	}

	if first.RunID == "" || first.FinishedAt.Before(first.StartedAt) {
		t.Errorf("report metadata = %q %v %v", first.RunID, first.StartedAt, first.FinishedAt)
	}
}

func TestStaleContentIsUpdated(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	e := h.engine()
	ctx := context.Background()

	f1 := h.write(t, "a.txt", "v1")
	e.Run(ctx, []identity.LocalFile{f1})

	before := h.get(t, "a.txt")
	if before == nil {
		t.Fatalf("record missing after first run")
	}

	f2 := h.write(t, "a.txt", "version two")
	if f2.ContentHash == f1.ContentHash {
		t.Fatalf("test setup: hashes equal")
	}

	r := e.Run(ctx, []identity.LocalFile{f2})
	assertStatuses(t, r, reconcile.StatusUploadedUpdated)

	o := r.Outcomes[0]
	if o.Reason != string(identity.ReasonContent) {
		t.Errorf("reason = %q, want content", o.Reason)
	}

	if o.Prev == nil || o.Prev.FileURL != before.FileURL {
		t.Errorf("Prev = %+v, want previous record", o.Prev)
	}

	after := h.get(t, "a.txt")
	if after.FileURL == before.FileURL {
		t.Errorf("file_url unchanged: %s", after.FileURL)
	}

	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}

	if after.ContentHash != f2.ContentHash {
		t.Errorf("content_hash = %s, want %s", after.ContentHash, f2.ContentHash)
	}

	// 更新时把旧位置作为提示传给后端
	last := h.up.calls[len(h.up.calls)-1]
	if last.Hint == nil || last.Hint.BlockID != before.BlockID {
		t.Errorf("hint = %+v, want block %s", last.Hint, before.BlockID)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	h.up.fail = map[string]error{"2.txt": errors.New("remote rejected")}

	files := []identity.LocalFile{
		h.write(t, "1.txt", "one"),
		h.write(t, "2.txt", "two"),
		h.write(t, "3.txt", "three"),
	}

	r := h.engine().Run(context.Background(), files)
	assertStatuses(t, r, reconcile.StatusUploadedNew, reconcile.StatusFailed, reconcile.StatusUploadedNew)

	fo := r.Outcomes[1]
	if fo.Err == nil || !upload.IsUploadError(fo.Err) || fo.Reason != "upload" {
		t.Errorf("failed outcome = %+v, want upload error", fo)
	}

	if r.Err() == nil {
		t.Errorf("Report.Err() = nil, want failure")
	}

	for name, want := range map[string]bool{"1.txt": true, "2.txt": false, "3.txt": true} {
		if got := h.get(t, name) != nil; got != want {
			t.Errorf("record %s present = %v, want %v", name, got, want)
		}
	}

	if c := r.Counts(); c[reconcile.StatusUploadedNew] != 2 || c[reconcile.StatusFailed] != 1 {
		t.Errorf("Counts() = %v", c)
	}
}

func TestFailedUpdateLeavesRecord(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	e := h.engine()
	ctx := context.Background()

	e.Run(ctx, []identity.LocalFile{h.write(t, "a.txt", "v1")})
	before := h.get(t, "a.txt")

	h.up.fail = map[string]error{"a.txt": errors.New("boom")}

	r := e.Run(ctx, []identity.LocalFile{h.write(t, "a.txt", "v2 changed")})
	assertStatuses(t, r, reconcile.StatusFailed)

	after := h.get(t, "a.txt")
	if after.FileURL != before.FileURL || after.ContentHash != before.ContentHash {
		t.Errorf("record changed after failed update: %+v -> %+v", before, after)
	}
}

func TestIncompletePlacementIsNotRecorded(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	h.up.partial = true

	r := h.engine().Run(context.Background(), []identity.LocalFile{h.write(t, "a.txt", "x")})
	assertStatuses(t, r, reconcile.StatusFailed)

	if err := r.Outcomes[0].Err; !errors.Is(err, upload.ErrBadPlacement) {
		t.Errorf("err = %v, want ErrBadPlacement", err)
	}

	if h.get(t, "a.txt") != nil {
		t.Errorf("partial placement was recorded")
	}
}

func TestDuplicateKeysLaterWins(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	files := []identity.LocalFile{
		h.write(t, "x/report.pdf", "first"),
		h.write(t, "other.txt", "o"),
		h.write(t, "y/report.pdf", "second"),
	}

	r := h.engine(reconcile.WithWorkers(4)).Run(context.Background(), files)
	assertStatuses(t, r, reconcile.StatusUploadedNew, reconcile.StatusUploadedNew, reconcile.StatusUploadedUpdated)

	rec := h.get(t, "report.pdf")
	if rec.OriginFilePath != files[2].Path {
		t.Errorf("origin_file_path = %s, want %s", rec.OriginFilePath, files[2].Path)
	}
}

func TestDuplicateKeysStrict(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	files := []identity.LocalFile{
		h.write(t, "x/report.pdf", "first"),
		h.write(t, "y/report.pdf", "second"),
	}

	r := h.engine(reconcile.WithDedupByKey(true)).Run(context.Background(), files)
	assertStatuses(t, r, reconcile.StatusUploadedNew, reconcile.StatusFailed)

	if !errors.Is(r.Outcomes[1].Err, reconcile.ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", r.Outcomes[1].Err)
	}

	if n := h.up.count(); n != 1 {
		t.Errorf("upload calls = %d, want 1", n)
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	files := []identity.LocalFile{h.write(t, "a.txt", "a"), h.write(t, "b.txt", "b")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := h.engine().Run(ctx, files)
	assertStatuses(t, r, reconcile.StatusFailed, reconcile.StatusFailed)

	for _, o := range r.Outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", o.Err)
		}
	}

	if n := h.up.count(); n != 0 {
		t.Errorf("upload calls = %d, want 0", n)
	}
}

func TestCancelDuringUploadRecordsCompleted(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	files := []identity.LocalFile{
		h.write(t, "a.txt", "a"),
		h.write(t, "b.txt", "b"),
		h.write(t, "c.txt", "c"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.up.onUpload = func(upload.Destination) { cancel() }

	r := h.engine(reconcile.WithWorkers(1)).Run(ctx, files)
	assertStatuses(t, r, reconcile.StatusUploadedNew, reconcile.StatusFailed, reconcile.StatusFailed)

	// 已完成的上传必须记录，否则下一次会重复上传
	if h.get(t, "a.txt") == nil {
		t.Errorf("completed upload was not recorded")
	}

	for _, name := range []string{"b.txt", "c.txt"} {
		if h.get(t, name) != nil {
			t.Errorf("%s recorded after cancellation", name)
		}
	}

	if n := h.up.count(); n != 1 {
		t.Errorf("upload calls = %d, want 1", n)
	}
}

func TestUploadTimeoutFailsOnlyThatFile(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	h.up.hang = map[string]bool{"slow.txt": true}

	files := []identity.LocalFile{h.write(t, "slow.txt", "s"), h.write(t, "fast.txt", "f")}

	start := time.Now()
	r := h.engine(reconcile.WithUploadTimeout(50*time.Millisecond)).Run(context.Background(), files)

	assertStatuses(t, r, reconcile.StatusFailed, reconcile.StatusUploadedNew)

	if took := time.Since(start); took > 5*time.Second {
		t.Errorf("batch took %v, upload was not time-bounded", took)
	}

	slow := r.Outcomes[0]
	if !errors.Is(slow.Err, context.DeadlineExceeded) || !upload.IsUploadError(slow.Err) {
		t.Errorf("err = %v, want upload error wrapping context.DeadlineExceeded", slow.Err)
	}

	if h.get(t, "slow.txt") != nil {
		t.Errorf("timed-out upload was recorded")
	}

	if h.get(t, "fast.txt") == nil {
		t.Errorf("fast.txt not recorded")
	}
}

// flakyStore 让指定文件的读取失败.
type flakyStore struct {
	*catalog.Store
	failGet string
}

func (s *flakyStore) Get(ctx context.Context, key identity.Key) (*model.FileRecord, error) {
	if key.String() == s.failGet {
		return nil, &catalog.StoreError{Op: "get", Key: key.String(), Err: errors.New("connection reset")}
	}

	return s.Store.Get(ctx, key)
}

func TestStoreErrorFailsOnlyThatFile(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	store := &flakyStore{Store: h.store, failGet: "b.txt"}

	files := []identity.LocalFile{h.write(t, "a.txt", "a"), h.write(t, "b.txt", "b")}

	e := reconcile.New(store, h.resolver, h.up, reconcile.WithLogger(nlog.Nop()))
	r := e.Run(context.Background(), files)
	assertStatuses(t, r, reconcile.StatusUploadedNew, reconcile.StatusFailed)

	if !errors.Is(r.Outcomes[1].Err, catalog.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", r.Outcomes[1].Err)
	}

	if n := h.up.count(); n != 1 {
		t.Errorf("upload calls = %d, want 1", n)
	}
}

func TestTripleSchemeUpdateReplacesKey(t *testing.T) {
	h := newHarness(t, 1, identity.SchemeRemoteTriple)
	ctx := context.Background()

	created := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	old := &model.FileRecord{
		FileName:       "a.txt",
		Placement:      model.Placement{FileURL: "https://files.example/old/a.txt", SpaceID: "space-1", BlockID: "block-old"},
		OriginFilePath: "/somewhere/else/a.txt",
		CreatedAt:      created,
	}

	if err := h.store.Upsert(ctx, old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f := h.write(t, "a.txt", "content")
	f.Remote = &model.Placement{FileURL: old.FileURL, SpaceID: old.SpaceID, BlockID: old.BlockID}

	// 没有提示的文件在 triple 方案下总是新文件
	g := h.write(t, "b.txt", "content b")

	r := h.engine().Run(ctx, []identity.LocalFile{f, g})
	assertStatuses(t, r, reconcile.StatusUploadedUpdated, reconcile.StatusUploadedNew)

	if r.Outcomes[0].Reason != string(identity.ReasonPath) {
		t.Errorf("reason = %q, want path", r.Outcomes[0].Reason)
	}

	gone, err := h.store.Get(ctx, r.Outcomes[0].Key)
	if err != nil || gone != nil {
		t.Fatalf("old key still present: %+v, %v", gone, err)
	}

	newKey := h.resolver.KeyOf(r.Outcomes[0].Record)

	got, err := h.store.Get(ctx, newKey)
	if err != nil || got == nil {
		t.Fatalf("new key missing: %v", err)
	}

	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}

	if got.OriginFilePath != f.Path {
		t.Errorf("origin_file_path = %s, want %s", got.OriginFilePath, f.Path)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	files   int
	batches []*reconcile.Report
}

func (o *recordingObserver) FileDone(context.Context, string, reconcile.Outcome) {
	o.mu.Lock()
	o.files++
	o.mu.Unlock()
}

func (o *recordingObserver) BatchDone(_ context.Context, r *reconcile.Report) {
	o.mu.Lock()
	o.batches = append(o.batches, r)
	o.mu.Unlock()
}

func TestObserverNotified(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	obs := &recordingObserver{}

	files := []identity.LocalFile{h.write(t, "a.txt", "a"), h.write(t, "b.txt", "b")}
	r := h.engine(reconcile.WithObserver(obs)).Run(context.Background(), files)

	if obs.files != 2 {
		t.Errorf("FileDone calls = %d, want 2", obs.files)
	}

	if len(obs.batches) != 1 || obs.batches[0].RunID != r.RunID {
		t.Errorf("BatchDone calls = %d, want 1 with run %s", len(obs.batches), r.RunID)
	}
}

func TestPlan(t *testing.T) {
	h := newHarness(t, 3, identity.SchemeFileName)
	ctx := context.Background()
	e := h.engine()

	a := h.write(t, "a.txt", "a")
	b := h.write(t, "b.txt", "b")
	e.Run(ctx, []identity.LocalFile{a, b})

	b2 := h.write(t, "b.txt", "b changed")
	c := h.write(t, "c.txt", "c")
	dup := h.write(t, "dup/c.txt", "c again")

	calls := h.up.count()

	decisions, err := e.Plan(ctx, []identity.LocalFile{a, b2, c, dup})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := []reconcile.Action{reconcile.ActionSkip, reconcile.ActionUpdate, reconcile.ActionUpload, reconcile.ActionUpload}
	for i, d := range decisions {
		if d.Action != want[i] {
			t.Errorf("decision[%d] = %s (%s), want %s", i, d.Action, d.Reason, want[i])
		}
	}

	if !decisions[3].Duplicate {
		t.Errorf("decision[3].Duplicate = false")
	}

	if h.up.count() != calls {
		t.Errorf("Plan uploaded files")
	}

	strict, err := h.engine(reconcile.WithDedupByKey(true)).Plan(ctx, []identity.LocalFile{c, dup})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if strict[1].Action != reconcile.ActionError || !errors.Is(strict[1].Err, reconcile.ErrDuplicateKey) {
		t.Errorf("strict duplicate = %+v", strict[1])
	}
}
