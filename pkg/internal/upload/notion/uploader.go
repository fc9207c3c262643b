package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/upload"
)

// BackendName 日志与指标中使用的后端名.
const BackendName = "notion"

// Uploader 把文件作为 embed 块追加到页面.
type Uploader struct {
	client *Client
	pageID string

	mu      sync.Mutex
	spaceID string
}

var (
	_ upload.Uploader   = (*Uploader)(nil)
	_ upload.Downloader = (*Uploader)(nil)
)

// NewUploader 创建上传器.pageID 可为 32 位或带连字符的 id；只下载时可为空.
func NewUploader(client *Client, pageID string) (*Uploader, error) {
	u := &Uploader{client: client}

	if pageID != "" {
		id, err := ToDashedID(pageID)
		if err != nil {
			return nil, err
		}

		u.pageID = id
	}

	return u, nil
}

// Name 后端名.
func (u *Uploader) Name() string {
	return BackendName
}

// space 返回页面所在空间，首次成功后缓存.
func (u *Uploader) space(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.spaceID != "" {
		return u.spaceID, nil
	}

	data, err := u.client.GetPublicPageData(ctx, u.pageID)
	if err != nil {
		return "", err
	}

	u.spaceID = data.SpaceID

	return u.spaceID, nil
}

// Upload 创建（或复用）块、上传内容并挂到块上.
func (u *Uploader) Upload(ctx context.Context, content io.Reader, dest upload.Destination) (model.Placement, error) {
	fail := func(op string, err error) (model.Placement, error) {
		return model.Placement{}, upload.Wrap(BackendName, dest.FileName, op, err)
	}

	if u.pageID == "" {
		return fail("config", errors.New("notion page_id is not configured"))
	}

	size := dest.Size
	if size < 0 {
		buf, err := io.ReadAll(content)
		if err != nil {
			return fail("read content", err)
		}

		content, size = bytes.NewReader(buf), int64(len(buf))
	}

	contentType := dest.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	spaceID, err := u.space(ctx)
	if err != nil {
		return fail("resolve space", err)
	}

	var blockID string
	if h := dest.Hint; h != nil && h.SpaceID == spaceID && h.BlockID != "" {
		blockID = h.BlockID
	} else {
		if blockID, err = u.createBlock(ctx, spaceID); err != nil {
			return fail("create block", err)
		}
	}

	target, err := u.client.GetUploadFileURL(ctx, dest.FileName, contentType, size, blockID, spaceID)
	if err != nil {
		return fail("get upload url", err)
	}

	if err := u.client.PutSigned(ctx, target.SignedPutURL, contentType, size, content); err != nil {
		return fail("put content", err)
	}

	if err := u.attach(ctx, blockID, spaceID, target.URL, dest.FileName, size); err != nil {
		return fail("attach", err)
	}

	return model.Placement{FileURL: target.URL, SpaceID: spaceID, BlockID: blockID}, nil
}

// Download 申请签名地址并把内容写入 w.
func (u *Uploader) Download(ctx context.Context, p model.Placement, w io.Writer) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	urls, err := u.client.GetSignedFileURLs(ctx, SignedURLRequest{
		PermissionRecord: Pointer{Table: "block", ID: p.BlockID, SpaceID: p.SpaceID},
		URL:              p.FileURL,
	})
	if err != nil {
		return 0, fmt.Errorf("sign %s: %w", p.FileURL, err)
	}

	body, err := u.client.GetSigned(ctx, urls[0])
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return io.Copy(w, body)
}

func (u *Uploader) createBlock(ctx context.Context, spaceID string) (string, error) {
	blockID := uuid.NewString()
	ptr := Pointer{Table: "block", ID: blockID, SpaceID: spaceID}

	create := Transaction{
		ID:      uuid.NewString(),
		SpaceID: spaceID,
		Debug:   map[string]string{},
		Operations: []Operation{
			{
				Pointer: ptr,
				Path:    []string{},
				Command: CommandSet,
				Args: map[string]any{
					"type":     "embed",
					"space_id": spaceID,
					"id":       blockID,
					"version":  1,
				},
			},
			{
				Pointer: ptr,
				Path:    []string{},
				Command: CommandUpdate,
				Args: map[string]any{
					"parent_id":    u.pageID,
					"parent_table": "block",
					"alive":        true,
				},
			},
			{
				Pointer: Pointer{Table: "block", ID: u.pageID, SpaceID: spaceID},
				Path:    []string{"content"},
				Command: CommandListAfter,
				Args:    map[string]any{"id": blockID},
			},
		},
	}

	if err := u.client.SaveTransactions(ctx, create); err != nil {
		return "", err
	}

	format := Transaction{
		ID:      uuid.NewString(),
		SpaceID: spaceID,
		Debug:   map[string]string{},
		Operations: []Operation{{
			Pointer: ptr,
			Path:    []string{"format"},
			Command: CommandUpdate,
			Args: map[string]any{
				"block_width":          120,
				"block_height":         nil,
				"block_preserve_scale": true,
				"block_full_width":     false,
				"block_page_width":     false,
			},
		}},
	}

	if err := u.client.SaveTransactions(ctx, format); err != nil {
		return "", err
	}

	return blockID, nil
}

func (u *Uploader) attach(ctx context.Context, blockID, spaceID, fileURL, name string, size int64) error {
	return u.client.SaveTransactions(ctx, Transaction{
		ID:      uuid.NewString(),
		SpaceID: spaceID,
		Debug:   map[string]string{},
		Operations: []Operation{{
			Pointer: Pointer{Table: "block", ID: blockID, SpaceID: spaceID},
			Path:    []string{"properties"},
			Command: CommandUpdate,
			Args: map[string]any{
				"source": [][]string{{fileURL}},
				"title":  [][]string{{name}},
				"size":   [][]string{{SizeToText(size)}},
			},
		}},
	})
}
