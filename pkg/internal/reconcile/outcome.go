package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/model"
)

// Status 单个文件的对账结果.
type Status string

const (
	StatusSkipped         Status = "skipped"
	StatusUploadedNew     Status = "uploaded_new"
	StatusUploadedUpdated Status = "uploaded_updated"
	StatusFailed          Status = "failed"
)

// Statuses 所有结果，按展示顺序.
var Statuses = []Status{StatusUploadedNew, StatusUploadedUpdated, StatusSkipped, StatusFailed}

func (s Status) String() string {
	return string(s)
}

// Uploaded 是否发生了上传并写入目录.
func (s Status) Uploaded() bool {
	return s == StatusUploadedNew || s == StatusUploadedUpdated
}

// Outcome 单个文件的结果.
type Outcome struct {
	File   identity.LocalFile
	Key    identity.Key
	Status Status

	// Record 成功时为写入后的记录，跳过时为已有记录
	Record *model.FileRecord
	// Prev 更新前的记录
	Prev *model.FileRecord

	// Err 仅 Failed 时非空
	Err error
	// Reason 可读原因：new、path、content、unchanged，或失败的步骤
	Reason string

	Duration time.Duration
}

// Report 一次批量对账的结果，Outcomes 与输入顺序一致.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Count 返回某个结果的文件数.
func (r *Report) Count(s Status) int {
	n := 0

	for i := range r.Outcomes {
		if r.Outcomes[i].Status == s {
			n++
		}
	}

	return n
}

// Counts 按结果汇总.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}

	for i := range r.Outcomes {
		counts[r.Outcomes[i].Status]++
	}

	return counts
}

// Failed 返回失败的结果.
func (r *Report) Failed() []Outcome {
	var out []Outcome

	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}

	return out
}

// Err 合并所有失败，全部成功时为 nil.
func (r *Report) Err() error {
	var errs []error

	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %s: %w", o.File.Path, o.Reason, o.Err))
		}
	}

	return errors.Join(errs...)
}

// Duration 批次耗时.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Action Plan 预测的动作.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionUpload Action = "upload"
	ActionUpdate Action = "update"
	ActionError  Action = "error"
)

// Decision Plan 对单个文件的判断，不上传也不写入.
type Decision struct {
	File     identity.LocalFile
	Key      identity.Key
	Action   Action
	Reason   string
	Existing *model.FileRecord
	// Duplicate 同批次中前面已有文件解析到同一个键
	Duplicate bool
	Err       error
}
