package identity

import (
	"path/filepath"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/model"
)

// LocalFile 本地文件描述，只包含不需要访问远端即可得到的元数据.
type LocalFile struct {
	Path        string // 绝对路径
	Name        string // 基本名，file_name 方案下的身份
	Size        int64
	ModTime     time.Time
	ContentHash string // xxhash64 十六进制，未计算时为空
	ContentType string

	// Remote 已知的远端位置（例如旧目录导出的提示），triple 方案下的身份来源
	Remote *model.Placement
}

// Key 身份键.键字段由创建它的 Resolver 的方案决定，可作为 map 键使用.
type Key struct {
	scheme    Scheme
	fileName  string
	placement model.Placement
}

// IsZero 键不可用于查询，例如 triple 方案下没有远端提示的文件.
func (k Key) IsZero() bool {
	switch k.scheme {
	case SchemeFileName:
		return k.fileName == ""
	case SchemeRemoteTriple:
		return !k.placement.IsComplete()
	default:
		return true
	}
}

// Scheme 返回键所属的方案.
func (k Key) Scheme() Scheme {
	return k.scheme
}

// Conditions 返回列名到值的等值条件，供存储层拼接 WHERE.
func (k Key) Conditions() map[string]any {
	if k.scheme == SchemeRemoteTriple {
		return map[string]any{
			"file_url": k.placement.FileURL,
			"space_id": k.placement.SpaceID,
			"block_id": k.placement.BlockID,
		}
	}

	return map[string]any{"file_name": k.fileName}
}

// Values 按 KeyColumns 的顺序返回键值.
func (k Key) Values() []any {
	if k.scheme == SchemeRemoteTriple {
		return []any{k.placement.FileURL, k.placement.SpaceID, k.placement.BlockID}
	}

	return []any{k.fileName}
}

func (k Key) String() string {
	if k.scheme == SchemeRemoteTriple {
		return "(" + k.placement.FileURL + ", " + k.placement.SpaceID + ", " + k.placement.BlockID + ")"
	}

	return k.fileName
}

// Reason 记录过期的原因，空字符串表示未过期.
type Reason string

const (
	ReasonPath          Reason = "path"
	ReasonContent       Reason = "content"
	ReasonNoFingerprint Reason = "no_fingerprint"
)

// Resolver 根据身份方案计算键并判断过期.
type Resolver struct {
	scheme        Scheme
	staleness     Staleness
	refingerprint bool
}

// NewResolver 创建 Resolver.
func NewResolver(scheme Scheme, staleness Staleness) *Resolver {
	if staleness == "" {
		staleness = StalenessHash
	}

	return &Resolver{scheme: scheme, staleness: staleness}
}

// Refingerprinting 返回一个把没有指纹的旧记录视为过期的副本，
// 用于一次性重新上传 schema 版本 3 之前写入的行.
func (r *Resolver) Refingerprinting() *Resolver {
	c := *r
	c.refingerprint = true

	return &c
}

// Scheme 当前方案.
func (r *Resolver) Scheme() Scheme {
	return r.scheme
}

// KeyColumns 构成身份的列，顺序与 Key.Values 一致.
func (r *Resolver) KeyColumns() []string {
	return KeyColumns(r.scheme)
}

// KeyColumns 返回给定方案的身份列.
func KeyColumns(s Scheme) []string {
	if s == SchemeRemoteTriple {
		return []string{"file_url", "space_id", "block_id"}
	}

	return []string{"file_name"}
}

// Resolve 计算本地文件的身份键，纯函数.
func (r *Resolver) Resolve(f LocalFile) Key {
	var p model.Placement
	if f.Remote != nil {
		p = *f.Remote
	}

	return r.key(f.Name, p)
}

// KeyOf 计算已存记录的身份键.
func (r *Resolver) KeyOf(rec *model.FileRecord) Key {
	if rec == nil {
		return Key{scheme: r.scheme}
	}

	return r.key(rec.FileName, rec.Placement)
}

// key 只保留当前方案的身份字段，键才可以直接比较.
func (r *Resolver) key(name string, p model.Placement) Key {
	k := Key{scheme: r.scheme}

	switch r.scheme {
	case SchemeFileName:
		k.fileName = name
	case SchemeRemoteTriple:
		k.placement = p
	}

	return k
}

// SameEntity 新计算的键是否指向该记录.
func (r *Resolver) SameEntity(k Key, rec *model.FileRecord) bool {
	if rec == nil || k.IsZero() || k.scheme != r.scheme {
		return false
	}

	return r.KeyOf(rec) == k
}

// Staleness 判断记录是否仍准确描述本地文件.
func (r *Resolver) Staleness(f LocalFile, rec *model.FileRecord) Reason {
	if rec == nil {
		return ""
	}

	if cleanPath(f.Path) != cleanPath(rec.OriginFilePath) {
		return ReasonPath
	}

	if r.refingerprint && !rec.HasFingerprint() {
		return ReasonNoFingerprint
	}

	if r.contentChanged(f, rec) {
		return ReasonContent
	}

	return ""
}

// IsStale 记录过期需要重新上传.
func (r *Resolver) IsStale(f LocalFile, rec *model.FileRecord) bool {
	return r.Staleness(f, rec) != ""
}

func (r *Resolver) contentChanged(f LocalFile, rec *model.FileRecord) bool {
	// 旧版本写入的记录没有指纹，只比较路径
	if !rec.HasFingerprint() {
		return false
	}

	if r.staleness == StalenessHash && f.ContentHash != "" && rec.ContentHash != "" {
		return f.ContentHash != rec.ContentHash
	}

	if rec.ModTime == 0 {
		return false
	}

	return f.Size != rec.Size || f.ModTime.UnixNano() != rec.ModTime
}

// NewRecord 为上传成功的文件构造待写入的记录.
func (r *Resolver) NewRecord(f LocalFile, p model.Placement) *model.FileRecord {
	rec := &model.FileRecord{
		FileName:       f.Name,
		Placement:      p,
		OriginFilePath: cleanPath(f.Path),
		Size:           f.Size,
		ContentHash:    f.ContentHash,
	}

	if !f.ModTime.IsZero() {
		rec.ModTime = f.ModTime.UnixNano()
	}

	return rec
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}

	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}

	return filepath.Clean(p)
}
