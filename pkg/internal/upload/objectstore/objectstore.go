// Package objectstore 把文件上传到 S3 兼容存储（MinIO）.
//
// 位置映射：space_id 为桶名，block_id 为对象键，file_url 为对象的完整地址.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	minio "github.com/minio/minio-go/v7"

	"github.com/yeisme/yukumo/pkg/internal/model"
	s3c "github.com/yeisme/yukumo/pkg/internal/storage/s3"
	"github.com/yeisme/yukumo/pkg/internal/upload"
)

// BackendName 日志与指标中使用的后端名.
const BackendName = "s3"

// Uploader 基于 MinIO 客户端的上传器.
type Uploader struct {
	client   *s3c.Client
	bucket   string
	prefix   string
	endpoint string
}

var (
	_ upload.Uploader   = (*Uploader)(nil)
	_ upload.Downloader = (*Uploader)(nil)
)

// New 创建上传器.
func New(client *s3c.Client) *Uploader {
	cfg := client.Config()

	return &Uploader{
		client:   client,
		bucket:   cfg.BucketName,
		prefix:   strings.Trim(cfg.KeyPrefix, "/"),
		endpoint: strings.TrimRight(cfg.GetEndpointURL(), "/"),
	}
}

// Name 后端名.
func (u *Uploader) Name() string {
	return BackendName
}

// Upload 写入新对象.每次上传使用新的对象键，旧对象保留，目录只指向成功写入的对象.
func (u *Uploader) Upload(ctx context.Context, content io.Reader, dest upload.Destination) (model.Placement, error) {
	key := objectKey(u.prefix, uuid.NewString(), dest.FileName)

	opts := minio.PutObjectOptions{ContentType: dest.ContentType}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	info, err := u.client.PutObject(ctx, u.bucket, key, content, dest.Size, opts)
	if err != nil {
		return model.Placement{}, upload.Wrap(BackendName, dest.FileName, "put object", err)
	}

	return model.Placement{
		FileURL: objectURL(u.endpoint, info.Bucket, info.Key),
		SpaceID: info.Bucket,
		BlockID: info.Key,
	}, nil
}

// Download 读取对象写入 w.
func (u *Uploader) Download(ctx context.Context, p model.Placement, w io.Writer) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	obj, err := u.client.GetObject(ctx, p.SpaceID, p.BlockID, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("get object %s/%s: %w", p.SpaceID, p.BlockID, err)
	}
	defer obj.Close()

	n, err := io.Copy(w, obj)
	if err != nil {
		return n, fmt.Errorf("read object %s/%s: %w", p.SpaceID, p.BlockID, err)
	}

	return n, nil
}

func objectKey(prefix, id, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}

	return path.Join(prefix, id, name)
}

func objectURL(endpoint, bucket, key string) string {
	return endpoint + "/" + bucket + "/" + key
}
