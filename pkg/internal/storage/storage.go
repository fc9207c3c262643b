// Package storage 聚合目录数据库、对象存储、指纹缓存与事件队列的连接.
//
//	mgr, err := storage.Open(ctx, configs.GetConfig())
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	db := mgr.DB.GetDB()
package storage

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/yukumo/pkg/configs"
	dbc "github.com/yeisme/yukumo/pkg/internal/storage/db"
	kvc "github.com/yeisme/yukumo/pkg/internal/storage/kv"
	mqc "github.com/yeisme/yukumo/pkg/internal/storage/mq"
	s3c "github.com/yeisme/yukumo/pkg/internal/storage/s3"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
)

// Manager 聚合所有存储资源.S3 与 MQ 未启用时为 nil.
type Manager struct {
	DB *dbc.Client
	S3 *s3c.Client
	KV *kvc.Client
	MQ *mqc.Client
}

// Open 按配置建立连接.任何一个必需组件失败时关闭已打开的连接并返回错误.
//   - DB 总是需要
//   - S3 在 s3.enabled 或 upload.backend=s3 时打开
//   - KV 除 kv.type=groupcache 外总是打开（默认内存），groupcache 由 scan 持有
//   - MQ 在 events.enabled 时打开
func Open(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{}

	db, err := dbc.Open(ctx, &cfg.DB, cfg.Metrics.Enabled)
	if err != nil {
		return nil, err
	}

	m.DB = db

	if cfg.S3.Enabled || cfg.Upload.Backend == configs.UploadBackendS3 {
		if m.S3, err = s3c.New(ctx, cfg.S3); err != nil {
			return nil, errors.Join(err, m.Close())
		}
	}

	if cfg.KV.Type != configs.KVTypeGroupcache {
		if m.KV, err = kvc.NewKVClient(ctx, cfg.KV); err != nil {
			return nil, errors.Join(err, m.Close())
		}
	}

	if cfg.Events.Enabled {
		var reg prometheus.Registerer
		if cfg.Metrics.Enabled {
			reg = metrics.GetRegistry()
		}

		if m.MQ, err = mqc.New(ctx, cfg.MQ, reg); err != nil {
			return nil, errors.Join(err, m.Close())
		}
	}

	nlog.Logger().Info().
		Bool("s3", m.S3 != nil).
		Str("kv", string(cfg.KV.Type)).
		Bool("mq", m.MQ != nil).
		Msg("storage manager initialized")

	return m, nil
}

// Close 关闭所有连接.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
