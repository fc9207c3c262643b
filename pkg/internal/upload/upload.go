// Package upload 定义上传协作方的接口与错误类型.
//
// 对账引擎只依赖 Uploader；具体后端（Notion、S3）在子包中实现，
// Guard 为任意后端加上限流与熔断.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yeisme/yukumo/pkg/internal/model"
)

// Destination 上传目标描述.
type Destination struct {
	FileName    string
	ContentType string
	Size        int64 // 未知时为 -1

	// Hint 已知的旧位置，后端可复用其空间与块
	Hint *model.Placement
}

// Uploader 把内容上传到远端并返回位置.位置三字段必须同时填写.
type Uploader interface {
	Upload(ctx context.Context, content io.Reader, dest Destination) (model.Placement, error)
}

// Downloader 按位置取回内容.
type Downloader interface {
	Download(ctx context.Context, p model.Placement, w io.Writer) (int64, error)
}

// Backend 可选接口，返回后端名用于日志与指标标签.
type Backend interface {
	Name() string
}

// BackendName 返回 u 的后端名，未实现 Backend 时为 "unknown".
func BackendName(u any) string {
	if b, ok := u.(Backend); ok {
		return b.Name()
	}

	return "unknown"
}

// UploaderFunc 函数适配为 Uploader.
type UploaderFunc func(ctx context.Context, content io.Reader, dest Destination) (model.Placement, error)

// Upload 调用 f.
func (f UploaderFunc) Upload(ctx context.Context, content io.Reader, dest Destination) (model.Placement, error) {
	return f(ctx, content, dest)
}

var (
	// ErrCircuitOpen 熔断器处于打开状态，调用被快速拒绝.
	ErrCircuitOpen = errors.New("upload circuit open")
	// ErrBadPlacement 后端返回了不完整的位置.
	ErrBadPlacement = errors.New("backend returned incomplete placement")
)

// Error 单个文件的上传失败.不会中止整批对账.
type Error struct {
	Backend  string
	FileName string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("upload %s via %s: %s: %v", e.FileName, e.Backend, e.Op, e.Err)
	}

	return fmt.Sprintf("upload %s via %s: %v", e.FileName, e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap 把后端错误包装为 *Error，已经是 *Error 时原样返回.
func Wrap(backend, fileName, op string, err error) error {
	if err == nil {
		return nil
	}

	var ue *Error
	if errors.As(err, &ue) {
		return err
	}

	return &Error{Backend: backend, FileName: fileName, Op: op, Err: err}
}

// IsUploadError 判断 err 是否为上传失败.
func IsUploadError(err error) bool {
	var ue *Error
	return errors.As(err, &ue)
}
