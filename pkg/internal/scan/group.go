package scan

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/golang/groupcache"

	"github.com/yeisme/yukumo/pkg/internal/identity"
)

const (
	// GroupName 指纹组名，同一组内的节点共享计算结果.
	GroupName = "yukumo-fingerprints"
	// PeersPath 节点间 HTTP 协议的路径前缀，serve 子命令把它挂在 gin 引擎上.
	PeersPath = "/_groupcache/"
)

var (
	groupMu sync.Mutex
	pool    *groupcache.HTTPPool
)

// Group 返回进程内唯一的指纹组，首次调用时以 cacheBytes 为容量创建.
//
// 组内的键由 路径|大小|修改时间 与是否计算哈希组成，文件变化后换键，
// 所以取到的值永不需要失效.未命中时由持有该键的节点读取文件计算.
func Group(cacheBytes int64) *groupcache.Group {
	groupMu.Lock()
	defer groupMu.Unlock()

	if g := groupcache.GetGroup(GroupName); g != nil {
		return g
	}

	return groupcache.NewGroup(GroupName, cacheBytes, groupcache.GetterFunc(loadGroupEntry))
}

// Peers 设置对等节点并返回处理 PeersPath 的 handler.self 为本节点的基础 URL，
// peers 应包含 self.重复调用只更新节点列表.
func Peers(self string, peers ...string) http.Handler {
	groupMu.Lock()
	defer groupMu.Unlock()

	if pool == nil {
		pool = groupcache.NewHTTPPoolOpts(self, &groupcache.HTTPPoolOptions{BasePath: PeersPath})
	}

	pool.Set(peers...)

	return pool
}

// groupKey 路径放在最后，允许其中出现分隔符.
func groupKey(f identity.LocalFile, hash bool) string {
	return strconv.FormatBool(hash) + "|" +
		strconv.FormatInt(f.Size, 10) + "|" +
		strconv.FormatInt(f.ModTime.UnixNano(), 10) + "|" +
		f.Path
}

func loadGroupEntry(_ context.Context, key string, dest groupcache.Sink) error {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return fmt.Errorf("fingerprint key %q: malformed", key)
	}

	hash, err := strconv.ParseBool(parts[0])
	if err != nil {
		return fmt.Errorf("fingerprint key %q: %w", key, err)
	}

	e, err := computeEntry(parts[3], hash)
	if err != nil {
		return err
	}

	data, err := sonic.Marshal(e)
	if err != nil {
		return err
	}

	return dest.SetBytes(data)
}

func groupEntry(ctx context.Context, g *groupcache.Group, f identity.LocalFile, hash bool) (entry, error) {
	var (
		data []byte
		e    entry
	)

	if err := g.Get(ctx, groupKey(f, hash), groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return entry{}, err
	}

	if err := sonic.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("decode fingerprint %s: %w", f.Path, err)
	}

	return e, nil
}
