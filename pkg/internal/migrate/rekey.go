package migrate

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// CollisionPolicy 多个 V1 行共享 file_name 时的处理方式.
type CollisionPolicy string

const (
	// PolicyKeepLatest 保留 created_at 最新的一行，最新时间并列时报错.
	PolicyKeepLatest CollisionPolicy = "keep-latest"
	// PolicyFail 任何重复都报错.
	PolicyFail CollisionPolicy = "fail"
)

// ParseCollisionPolicy 解析配置值，空值取默认.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case "", PolicyKeepLatest:
		return PolicyKeepLatest, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (want keep-latest or fail)", s)
	}
}

// Row 重键过程中搬运的一行，只含 V1 已有的列.
type Row struct {
	FileName       string    `gorm:"column:file_name"`
	FileURL        string    `gorm:"column:file_url"`
	SpaceID        string    `gorm:"column:space_id"`
	BlockID        string    `gorm:"column:block_id"`
	OriginFilePath string    `gorm:"column:origin_file_path"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// Resolution 一次冲突消解：保留的行与丢弃的行.
type Resolution struct {
	FileName string
	Kept     Row
	Dropped  []Row
}

// Rekey 把以远端三元组为键的行集合转换为以 file_name 为键的行集合.
// 纯函数，不修改输入；输出按 file_name 排序.所有无法消解的冲突合并返回.
func Rekey(rows []Row, policy CollisionPolicy) ([]Row, []Resolution, error) {
	groups := make(map[string][]Row, len(rows))
	for _, r := range rows {
		groups[r.FileName] = append(groups[r.FileName], r)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}

	sort.Strings(names)

	var (
		out         = make([]Row, 0, len(groups))
		resolutions []Resolution
		errs        []error
	)

	for _, name := range names {
		group := groups[name]

		if name == "" {
			errs = append(errs, &KeyCollisionError{Reason: "empty file_name", Candidates: group})
			continue
		}

		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}

		if policy == PolicyFail {
			errs = append(errs, &KeyCollisionError{FileName: name, Reason: "duplicate file_name", Candidates: group})
			continue
		}

		latest := 0
		ties := 1

		for i := 1; i < len(group); i++ {
			switch {
			case group[i].CreatedAt.After(group[latest].CreatedAt):
				latest, ties = i, 1
			case group[i].CreatedAt.Equal(group[latest].CreatedAt):
				ties++
			}
		}

		if ties > 1 {
			errs = append(errs, &KeyCollisionError{FileName: name, Reason: "tie on latest created_at", Candidates: group})
			continue
		}

		res := Resolution{FileName: name, Kept: group[latest]}

		for i, r := range group {
			if i != latest {
				res.Dropped = append(res.Dropped, r)
			}
		}

		out = append(out, group[latest])
		resolutions = append(resolutions, res)
	}

	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	return out, resolutions, nil
}
