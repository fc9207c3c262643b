package migrate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMigration 台账中存在当前程序不认识的版本，或请求了不存在的版本.
var ErrUnknownMigration = errors.New("unknown migration version")

// MigrationGapError 迁移版本不连续.启动时遇到即终止，目录语义在修复前无定义.
type MigrationGapError struct {
	// Current 最后一个连续应用的版本
	Current int
	// Requested 请求应用（或台账中出现）的版本
	Requested int
}

func (e *MigrationGapError) Error() string {
	return fmt.Sprintf("migration gap: schema at version %d, cannot apply version %d (missing %d)",
		e.Current, e.Requested, e.Current+1)
}

// KeyCollisionError V1→V2 重键时无法在不丢数据的前提下消歧，交由运维决定.
type KeyCollisionError struct {
	FileName   string
	Reason     string
	Candidates []Row
}

func (e *KeyCollisionError) Error() string {
	parts := make([]string, 0, len(e.Candidates))
	for _, r := range e.Candidates {
		parts = append(parts, fmt.Sprintf("(%s, %s, %s @ %s)",
			r.FileURL, r.SpaceID, r.BlockID, r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")))
	}

	return fmt.Sprintf("key collision on file_name %q: %s; candidates: %s",
		e.FileName, e.Reason, strings.Join(parts, ", "))
}
