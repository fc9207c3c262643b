// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"

	"github.com/yeisme/yukumo/pkg/internal/service"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/scheduler"
)

// Deps 定时任务依赖.
type Deps struct {
	Sync    *service.SyncService
	Catalog *service.CatalogService

	// Roots 全量重扫的路径，为空时使用 sync.roots
	Roots      []string
	ResyncCron string
	// AuditCron 为空时不注册审计任务
	AuditCron string
}

// Register 配置业务定时任务：
//   - 按 ResyncCron 全量重扫 Roots，只上传新的或过期的文件
//   - 按 AuditCron 统计来源已不存在的记录（只记录日志，不删除）
func Register(ctx context.Context, sched *scheduler.Scheduler, d Deps) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	if d.Sync == nil {
		return errors.New("sync service is nil")
	}

	if d.ResyncCron != "" {
		if err := sched.AddCron(ctx, JobResync, d.ResyncCron, func(ctx context.Context) error {
			return runResync(ctx, d.Sync, d.Roots)
		}); err != nil {
			return err
		}
	}

	if d.AuditCron != "" && d.Catalog != nil {
		if err := sched.AddCron(ctx, JobCatalogAudit, d.AuditCron, func(ctx context.Context) error {
			return runCatalogAudit(ctx, d.Catalog)
		}); err != nil {
			return err
		}
	}

	return nil
}

// runResync 重扫全部路径.单个文件失败只记录，不算任务失败.
func runResync(ctx context.Context, svc *service.SyncService, roots []string) error {
	l := nlog.Component("jobs").With().Str("job", JobResync).Logger()

	res, err := svc.Put(ctx, roots, service.PutOptions{})
	if err != nil {
		return err
	}

	if res.ScanErr != nil {
		l.Warn().Err(res.ScanErr).Msg("some paths could not be scanned")
	}

	counts := res.Report.Counts()
	l.Info().
		Str("run_id", res.Report.RunID).
		Interface("counts", counts).
		Dur("took", res.Report.Duration()).
		Msg("resync done")

	return nil
}

// runCatalogAudit 统计孤立记录，删除需要运行 yukumo query --prune.
func runCatalogAudit(ctx context.Context, svc *service.CatalogService) error {
	l := nlog.Component("jobs").With().Str("job", JobCatalogAudit).Logger()

	orphans, err := svc.Orphans(ctx)
	if err != nil {
		return err
	}

	if len(orphans) == 0 {
		l.Debug().Msg("catalog audit clean")
		return nil
	}

	names := make([]string, 0, min(len(orphans), 10))
	for i := range min(len(orphans), 10) {
		names = append(names, orphans[i].FileName)
	}

	l.Warn().Int("orphans", len(orphans)).Strs("sample", names).Msg("records whose origin file no longer exists")

	return nil
}
