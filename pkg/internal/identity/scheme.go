// Package identity 决定本地文件的身份键，以及目录记录是否仍代表该文件.
//
// 只有本包知道哪些列构成身份，其它包通过 Key 与 Resolver 操作.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme 身份方案，与 schema 版本对应.
type Scheme int

const (
	// SchemeRemoteTriple 以远端位置 (file_url, space_id, block_id) 为身份，schema 版本 1.
	SchemeRemoteTriple Scheme = 1
	// SchemeFileName 以本地文件名为身份，schema 版本 2 起.
	SchemeFileName Scheme = 2
)

// ErrSchemeMismatch 配置的身份方案与数据库 schema 版本不一致.
var ErrSchemeMismatch = errors.New("identity scheme does not match schema version")

// ParseScheme 解析配置值 v1 / v2；auto 返回 ok=false，由调用方根据 schema 版本推导.
func ParseScheme(s string) (scheme Scheme, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "triple", "1":
		return SchemeRemoteTriple, true, nil
	case "v2", "file_name", "filename", "2":
		return SchemeFileName, true, nil
	case "", "auto":
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unknown identity scheme %q (want auto, v1 or v2)", s)
	}
}

// SchemeForVersion 返回 schema 版本对应的身份方案.
func SchemeForVersion(version int) Scheme {
	if version >= 2 {
		return SchemeFileName
	}

	return SchemeRemoteTriple
}

func (s Scheme) String() string {
	switch s {
	case SchemeRemoteTriple:
		return "v1"
	case SchemeFileName:
		return "v2"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// Valid 是否为已知方案.
func (s Scheme) Valid() bool {
	return s == SchemeRemoteTriple || s == SchemeFileName
}

// CheckSchema 确认该方案可以在给定 schema 版本上运行.
func (s Scheme) CheckSchema(version int) error {
	switch {
	case s == SchemeRemoteTriple && version == 1:
		return nil
	case s == SchemeFileName && version >= 2:
		return nil
	case !s.Valid():
		return fmt.Errorf("%w: unknown scheme %s", ErrSchemeMismatch, s)
	default:
		return fmt.Errorf("%w: scheme %s, schema version %d", ErrSchemeMismatch, s, version)
	}
}

// Staleness 内容比较方式.
type Staleness string

const (
	// StalenessHash 双方都有内容哈希时比较哈希，否则退回大小与修改时间.
	StalenessHash Staleness = "hash"
	// StalenessMTime 只比较大小与修改时间.
	StalenessMTime Staleness = "mtime"
)

// ParseStaleness 解析配置值.
func ParseStaleness(s string) (Staleness, error) {
	switch Staleness(strings.ToLower(strings.TrimSpace(s))) {
	case StalenessHash, "":
		return StalenessHash, nil
	case StalenessMTime:
		return StalenessMTime, nil
	default:
		return "", fmt.Errorf("unknown staleness mode %q (want hash or mtime)", s)
	}
}
