package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/service/servicetest"
	"github.com/yeisme/yukumo/pkg/queue"
)

// capturePublisher 记录发布的主题.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.topics = append(p.topics, topic)

	return nil
}

func (p *capturePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0

	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}

	return n
}

type fixture struct {
	rt      *service.Runtime
	backend *servicetest.MemBackend
	events  *capturePublisher
	dir     string
}

func newFixture(t *testing.T, mutate ...func(*configs.AppConfig)) *fixture {
	t.Helper()

	cfg := servicetest.Config(t)
	cfg.Events.Enabled = true

	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{
		backend: servicetest.NewMemBackend(),
		events:  &capturePublisher{},
		dir:     t.TempDir(),
	}

	f.rt = servicetest.Open(t, cfg, f.backend, service.WithPublisher(f.events))

	return f
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()

	p := filepath.Join(f.dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	return p
}

func counts(t *testing.T, res *service.PutResult) map[reconcile.Status]int {
	t.Helper()

	if res == nil || res.Report == nil {
		t.Fatalf("missing report")
	}

	return res.Report.Counts()
}

func TestOpenAppliesMigrations(t *testing.T) {
	f := newFixture(t)

	if f.rt.SchemaVersion != f.rt.Migrator.Latest() {
		t.Fatalf("schema version = %d, want %d", f.rt.SchemaVersion, f.rt.Migrator.Latest())
	}

	if f.rt.Resolver.Scheme() != identity.SchemeFileName {
		t.Fatalf("scheme = %s, want v2", f.rt.Resolver.Scheme())
	}

	if got := f.events.count(queue.TopicMigrationApplied); got != f.rt.Migrator.Latest() {
		t.Errorf("migration events = %d, want %d", got, f.rt.Migrator.Latest())
	}
}

func TestOpenWithoutMigrationsFails(t *testing.T) {
	cfg := servicetest.Config(t)
	cfg.Sync.AutoMigrate = false

	if _, err := service.Open(context.Background(), cfg, servicetest.Manager(t)); err == nil {
		t.Fatalf("expected error on empty ledger")
	}
}

func TestResolveScheme(t *testing.T) {
	tests := []struct {
		configured string
		version    int
		want       identity.Scheme
		wantErr    bool
	}{
		{"auto", 1, identity.SchemeRemoteTriple, false},
		{"auto", 3, identity.SchemeFileName, false},
		{"v2", 2, identity.SchemeFileName, false},
		{"v1", 3, 0, true},
		{"v2", 1, 0, true},
		{"bogus", 3, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%d", tt.configured, tt.version), func(t *testing.T) {
			got, err := service.ResolveScheme(tt.configured, tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && got != tt.want {
				t.Errorf("scheme = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")
	f.write(t, "sub/b.txt", "beta")

	svc := service.NewSyncService(f.rt)
	ctx := context.Background()

	res, err := svc.Put(ctx, []string{f.dir}, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusUploadedNew] != 2 {
		t.Fatalf("first run counts = %v", c)
	}

	res, err = svc.Put(ctx, []string{f.dir}, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusSkipped] != 2 {
		t.Fatalf("second run counts = %v", c)
	}

	f.write(t, "a.txt", "alpha, revised")

	res, err = svc.Put(ctx, []string{f.dir}, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	c := counts(t, res)
	if c[reconcile.StatusUploadedUpdated] != 1 || c[reconcile.StatusSkipped] != 1 {
		t.Fatalf("third run counts = %v", c)
	}

	if f.backend.Uploads() != 3 {
		t.Errorf("uploads = %d, want 3", f.backend.Uploads())
	}

	if got := f.events.count(queue.TopicFileUploaded); got != 2 {
		t.Errorf("uploaded events = %d, want 2", got)
	}

	if got := f.events.count(queue.TopicFileUpdated); got != 1 {
		t.Errorf("updated events = %d, want 1", got)
	}

	if got := f.events.count(queue.TopicBatchCompleted); got != 3 {
		t.Errorf("batch events = %d, want 3", got)
	}
}

func TestPutNonRecursive(t *testing.T) {
	f := newFixture(t)
	f.write(t, "top.txt", "top")
	f.write(t, "nested/deep.txt", "deep")

	recursive := false

	res, err := service.NewSyncService(f.rt).Put(context.Background(), []string{f.dir},
		service.PutOptions{Recursive: &recursive})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if len(res.Report.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(res.Report.Outcomes))
	}

	if res.Report.Outcomes[0].File.Name != "top.txt" {
		t.Errorf("file = %s, want top.txt", res.Report.Outcomes[0].File.Name)
	}
}

func TestPutDryRun(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")

	res, err := service.NewSyncService(f.rt).Put(context.Background(), []string{f.dir},
		service.PutOptions{DryRun: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if res.Report != nil {
		t.Fatalf("dry run produced a report")
	}

	if len(res.Decisions) != 1 || res.Decisions[0].Action != reconcile.ActionUpload {
		t.Fatalf("decisions = %+v", res.Decisions)
	}

	if f.backend.Uploads() != 0 {
		t.Errorf("dry run uploaded %d files", f.backend.Uploads())
	}
}

func TestPutWithoutPaths(t *testing.T) {
	f := newFixture(t)

	_, err := service.NewSyncService(f.rt).Put(context.Background(), nil, service.PutOptions{})
	if !errors.Is(err, service.ErrNoPaths) {
		t.Fatalf("err = %v, want ErrNoPaths", err)
	}
}

func TestPutUsesConfiguredRoots(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "root.txt"), []byte("root"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := newFixture(t, func(c *configs.AppConfig) { c.Sync.Roots = []string{dir} })

	res, err := service.NewSyncService(f.rt).Put(context.Background(), nil, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusUploadedNew] != 1 {
		t.Fatalf("counts = %v", c)
	}
}

func TestPutMissingPath(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")

	missing := filepath.Join(f.dir, "missing")

	res, err := service.NewSyncService(f.rt).Put(context.Background(),
		[]string{filepath.Join(f.dir, "a.txt"), missing}, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if res.ScanErr == nil {
		t.Errorf("expected scan error for missing path")
	}

	if c := counts(t, res); c[reconcile.StatusUploadedNew] != 1 {
		t.Fatalf("counts = %v", c)
	}

	if _, err := service.NewSyncService(f.rt).Put(context.Background(), []string{missing}, service.PutOptions{}); err == nil {
		t.Fatalf("expected error when nothing could be scanned")
	}
}

func TestCatalogQueryAndFind(t *testing.T) {
	f := newFixture(t)
	f.write(t, "report-2024.pdf", "r1")
	f.write(t, "report-2025.pdf", "r2")
	f.write(t, "notes.md", "n")

	ctx := context.Background()
	if _, err := service.NewSyncService(f.rt).Put(ctx, []string{f.dir}, service.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	cat := service.NewCatalogService(f.rt)

	recs, err := cat.Query(ctx, "report-", false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("prefix query = %d records, want 2", len(recs))
	}

	recs, err = cat.Query(ctx, "2025", true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(recs) != 1 || recs[0].FileName != "report-2025.pdf" {
		t.Fatalf("contains query = %+v", recs)
	}

	rec, err := cat.Find(ctx, "notes.md")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if rec.OriginFilePath != filepath.Join(f.dir, "notes.md") {
		t.Errorf("origin = %s", rec.OriginFilePath)
	}

	if _, err := cat.Find(ctx, "notes"); !errors.Is(err, service.ErrRecordNotFound) {
		t.Errorf("find prefix only: err = %v, want ErrRecordNotFound", err)
	}

	all, err := cat.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(all) != 2 {
		t.Errorf("list limit = %d, want 2", len(all))
	}
}

func TestCatalogDownload(t *testing.T) {
	f := newFixture(t)
	f.write(t, "data.bin", "payload bytes")

	ctx := context.Background()
	if _, err := service.NewSyncService(f.rt).Put(ctx, []string{f.dir}, service.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	out := t.TempDir()

	dst, n, err := service.NewCatalogService(f.rt).Download(ctx, "data.bin", out)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if dst != filepath.Join(out, "data.bin") || n != int64(len("payload bytes")) {
		t.Fatalf("download = %s, %d", dst, n)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(got, []byte("payload bytes")) {
		t.Errorf("content = %q", got)
	}
}

func TestCatalogPrune(t *testing.T) {
	f := newFixture(t)
	keep := f.write(t, "keep.txt", "keep")
	gone := f.write(t, "gone.txt", "gone")

	ctx := context.Background()
	if _, err := service.NewSyncService(f.rt).Put(ctx, []string{keep, gone}, service.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatalf("remove: %v", err)
	}

	cat := service.NewCatalogService(f.rt)

	orphans, err := cat.Orphans(ctx)
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}

	if len(orphans) != 1 || orphans[0].FileName != "gone.txt" {
		t.Fatalf("orphans = %+v", orphans)
	}

	n, err := cat.Prune(ctx, orphans)
	if err != nil || n != 1 {
		t.Fatalf("prune = %d, %v", n, err)
	}

	total, err := cat.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	if total != 1 {
		t.Errorf("count = %d, want 1", total)
	}
}

func TestMigrationStatus(t *testing.T) {
	f := newFixture(t)

	st, err := service.Status(context.Background(), f.rt.Migrator)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if st.Current != st.Latest || len(st.Pending) != 0 || len(st.Applied) != st.Latest {
		t.Fatalf("status = %+v", st)
	}
}

func TestPutRefingerprint(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")
	f.write(t, "b.txt", "beta")

	svc := service.NewSyncService(f.rt)
	ctx := context.Background()

	if _, err := svc.Put(ctx, []string{f.dir}, service.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// 模拟版本 3 之前写入的行
	err := f.rt.Storage.DB.GetDB().Table("files").Where("1 = 1").
		Updates(map[string]any{"content_hash": "", "mod_time": 0, "size": 0}).Error
	if err != nil {
		t.Fatalf("strip fingerprints: %v", err)
	}

	st, err := service.Status(ctx, f.rt.Migrator)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if st.Unfingerprinted != 2 {
		t.Fatalf("unfingerprinted = %d, want 2", st.Unfingerprinted)
	}

	f.write(t, "a.txt", "alpha, revised")

	res, err := svc.Put(ctx, []string{f.dir}, service.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusSkipped] != 2 {
		t.Fatalf("plain put counts = %v, want both skipped", c)
	}

	res, err = svc.Put(ctx, []string{f.dir}, service.PutOptions{Refingerprint: true})
	if err != nil {
		t.Fatalf("put --refingerprint: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusUploadedUpdated] != 2 {
		t.Fatalf("refingerprint counts = %v, want 2 updated", c)
	}

	if st, err = service.Status(ctx, f.rt.Migrator); err != nil || st.Unfingerprinted != 0 {
		t.Fatalf("after refingerprint: unfingerprinted = %+v, %v", st, err)
	}

	res, err = svc.Put(ctx, []string{f.dir}, service.PutOptions{Refingerprint: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if c := counts(t, res); c[reconcile.StatusSkipped] != 2 {
		t.Errorf("second refingerprint counts = %v, want both skipped", c)
	}
}

func TestBackendUnavailable(t *testing.T) {
	cfg := servicetest.Config(t)
	cfg.Upload.Backend = configs.UploadBackendS3

	rt, err := service.Open(context.Background(), cfg, servicetest.Manager(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := rt.Uploader(); !errors.Is(err, service.ErrNoBackend) {
		t.Fatalf("err = %v, want ErrNoBackend", err)
	}
}

func TestLatest(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(url string, created, updated time.Time) model.FileRecord {
		return model.FileRecord{FileName: "a.txt", Placement: model.Placement{FileURL: url}, CreatedAt: created, UpdatedAt: updated}
	}

	tests := []struct {
		name string
		recs []model.FileRecord
		want string
	}{
		{"empty", nil, ""},
		{"legacy rows fall back to created_at", []model.FileRecord{
			at("u2", t0.Add(time.Hour), time.Time{}),
			at("u1", t0, time.Time{}),
		}, "u2"},
		{"updated_at wins when present", []model.FileRecord{
			at("u1", t0.Add(time.Hour), t0.Add(time.Hour)),
			at("u2", t0, t0.Add(2*time.Hour)),
		}, "u2"},
		{"mixed layouts", []model.FileRecord{
			at("u1", t0.Add(3*time.Hour), time.Time{}),
			at("u2", t0, t0.Add(2*time.Hour)),
		}, "u1"},
		{"tie takes the later row", []model.FileRecord{
			at("u1", t0, time.Time{}),
			at("u2", t0, time.Time{}),
		}, "u2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.Latest(tt.recs)

			switch {
			case tt.want == "" && got != nil:
				t.Errorf("Latest() = %+v, want nil", got)
			case tt.want != "" && (got == nil || got.FileURL != tt.want):
				t.Errorf("Latest() = %+v, want %s", got, tt.want)
			}
		})
	}
}
