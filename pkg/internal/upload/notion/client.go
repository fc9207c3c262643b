// Package notion 通过 www.notion.so/api/v3 把文件作为嵌入块上传到页面.
package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/yukumo/pkg/configs"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// APIError 接口返回非 2xx.
type APIError struct {
	Status  int
	Path    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion %s: status=%d code=%s message=%s", e.Path, e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("notion %s: status=%d message=%s", e.Path, e.Status, e.Message)
}

// Retryable 429 与 5xx 可重试.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ClientOption 配置 Client.
type ClientOption func(*Client)

// WithHTTPClient 替换底层 http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger 设置日志.
func WithLogger(l *zerolog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client Notion 内部 API 客户端.
type Client struct {
	baseURL    string
	tokenV2    string
	fileToken  string
	userAgent  string
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zerolog.Logger
}

// NewClient 创建客户端.token_v2 必填.
func NewClient(cfg configs.NotionConfig, opts ...ClientOption) (*Client, error) {
	token := strings.TrimSpace(cfg.TokenV2)
	if token == "" {
		return nil, errors.New("notion: token_v2 is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokenV2:    token,
		fileToken:  strings.TrimSpace(cfg.FileToken),
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		logger:     nlog.Component("notion"),
	}

	if c.baseURL == "" {
		c.baseURL = configs.DefaultNotionBaseURL
	}

	if c.userAgent == "" {
		c.userAgent = configs.DefaultNotionUserAgent
	}

	if c.maxRetries < 0 {
		c.maxRetries = 0
	}

	if c.baseDelay <= 0 {
		c.baseDelay = configs.DefaultNotionBaseDelay
	}

	if c.maxDelay <= 0 {
		c.maxDelay = configs.DefaultNotionMaxDelay
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GetPublicPageData 读取页面所在空间.
func (c *Client) GetPublicPageData(ctx context.Context, pageID string) (*PageData, error) {
	id, err := ToDashedID(pageID)
	if err != nil {
		return nil, err
	}

	var out PageData

	err = c.call(ctx, "/getPublicPageData", pageDataRequest{
		Type:    "block-space",
		BlockID: id,
		Name:    "page",
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.SpaceID == "" {
		return nil, fmt.Errorf("notion: page %s has no space id", id)
	}

	return &out, nil
}

// SaveTransactions 提交事务.
func (c *Client) SaveTransactions(ctx context.Context, txs ...Transaction) error {
	return c.call(ctx, "/saveTransactions", saveTransactionsRequest{
		RequestID:    uuid.NewString(),
		Transactions: txs,
	}, nil)
}

// GetUploadFileURL 为块申请上传地址.
func (c *Client) GetUploadFileURL(ctx context.Context, name, contentType string, length int64, blockID, spaceID string) (*UploadURL, error) {
	var out UploadURL

	err := c.call(ctx, "/getUploadFileUrl", uploadFileURLRequest{
		Bucket:        "secure",
		ContentType:   contentType,
		Name:          name,
		ContentLength: length,
		Record:        uploadFileURLRecord{ID: blockID, SpaceID: spaceID, Table: "block"},
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.URL == "" || out.SignedPutURL == "" {
		return nil, errors.New("notion: getUploadFileUrl returned no url")
	}

	return &out, nil
}

// GetSignedFileURLs 为已上传文件申请带签名的下载地址，顺序与请求一致.
func (c *Client) GetSignedFileURLs(ctx context.Context, reqs ...SignedURLRequest) ([]string, error) {
	var out signedFileURLsResponse
	if err := c.call(ctx, "/getSignedFileUrls", signedFileURLsRequest{URLs: reqs}, &out); err != nil {
		return nil, err
	}

	if len(out.SignedURLs) != len(reqs) {
		return nil, fmt.Errorf("notion: requested %d signed urls, got %d", len(reqs), len(out.SignedURLs))
	}

	return out.SignedURLs, nil
}

// PutSigned 把内容 PUT 到签名地址.签名地址不重试，body 只能读一次.
func (c *Client) PutSigned(ctx context.Context, signedURL, contentType string, length int64, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return err
	}

	req.ContentLength = length
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Path: "signed put", Message: strings.TrimSpace(string(msg))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// GetSigned 用 file_token cookie 下载签名地址，调用方关闭返回的 body.
func (c *Client) GetSigned(ctx context.Context, signedURL string) (io.ReadCloser, error) {
	if c.fileToken == "" {
		return nil, errors.New("notion: file_token is required for download")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Cookie", "file_token="+c.fileToken)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get signed url: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, &APIError{Status: resp.StatusCode, Path: "signed get", Message: strings.TrimSpace(string(msg))}
	}

	return resp.Body, nil
}

// call POST JSON 请求，429/5xx 与网络错误按指数退避重试.
func (c *Client) call(ctx context.Context, path string, payload, out any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	for attempt := 0; ; attempt++ {
		respBody, retryAfter, err := c.do(ctx, path, body)
		if err == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}

			if err := sonic.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}

			return nil
		}

		var apiErr *APIError
		retryable := !errors.As(err, &apiErr) || apiErr.Retryable()

		if !retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			return err
		}

		delay := c.retryDelay(attempt+1, retryAfter)
		c.logger.Debug().Err(err).Str("path", path).Int("attempt", attempt+1).Dur("delay", delay).Msg("notion request retry")

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, path string, body []byte) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "token_v2="+c.tokenV2)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("notion %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("notion %s: read body: %w", path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return respBody, "", nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Path: path, Message: strings.TrimSpace(string(respBody))}

	var parsed struct {
		Name    string `json:"name"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if sonic.Unmarshal(respBody, &parsed) == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		} else {
			apiErr.Code = parsed.Name
		}

		if strings.TrimSpace(parsed.Message) != "" {
			apiErr.Message = parsed.Message
		}
	}

	return nil, resp.Header.Get("Retry-After"), apiErr
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if d := parseRetryAfter(retryAfter); d > 0 {
		return min(d, c.maxDelay)
	}

	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}

	return min(delay, c.maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
