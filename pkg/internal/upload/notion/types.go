package notion

// 以下为 www.notion.so/api/v3 内部接口的请求与响应结构，字段名为 camelCase.

type pageDataRequest struct {
	Type       string `json:"type"`
	BlockID    string `json:"blockId"`
	Name       string `json:"name"`
	SaveParent bool   `json:"saveParent"`
	ShowMoveTo bool   `json:"showMoveTo"`
}

// PageData getPublicPageData 的响应，只保留用到的字段.
type PageData struct {
	PageID    string `json:"pageId"`
	SpaceID   string `json:"spaceId"`
	SpaceName string `json:"spaceName"`
}

// Pointer 指向一条记录.
type Pointer struct {
	Table   string `json:"table"`
	ID      string `json:"id"`
	SpaceID string `json:"spaceId"`
}

// Command 操作命令.
type Command string

const (
	CommandSet       Command = "set"
	CommandUpdate    Command = "update"
	CommandListAfter Command = "listAfter"
)

// Operation 事务中的一个操作.
type Operation struct {
	Pointer Pointer        `json:"pointer"`
	Path    []string       `json:"path"`
	Command Command        `json:"command"`
	Args    map[string]any `json:"args"`
}

// Transaction 一组原子应用的操作.
type Transaction struct {
	ID         string            `json:"id"`
	SpaceID    string            `json:"spaceId"`
	Operations []Operation       `json:"operations"`
	Debug      map[string]string `json:"debug"`
}

type saveTransactionsRequest struct {
	RequestID    string        `json:"requestId"`
	Transactions []Transaction `json:"transactions"`
}

type uploadFileURLRecord struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId"`
	Table   string `json:"table"`
}

type uploadFileURLRequest struct {
	Bucket        string              `json:"bucket"`
	ContentType   string              `json:"contentType"`
	Name          string              `json:"name"`
	ContentLength int64               `json:"contentLength"`
	Record        uploadFileURLRecord `json:"record"`
}

// UploadURL getUploadFileUrl 的响应.
type UploadURL struct {
	URL          string `json:"url"`
	SignedGetURL string `json:"signedGetUrl"`
	SignedPutURL string `json:"signedPutUrl"`
}

// SignedURLRequest 申请单个文件签名地址.
type SignedURLRequest struct {
	PermissionRecord Pointer `json:"permissionRecord"`
	URL              string  `json:"url"`
	UseS3URL         bool    `json:"useS3Url"`
}

type signedFileURLsRequest struct {
	URLs []SignedURLRequest `json:"urls"`
}

type signedFileURLsResponse struct {
	SignedURLs []string `json:"signedUrls"`
}
