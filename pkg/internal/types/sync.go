package types

import (
	"time"

	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/service"
)

// SyncRequest POST /sync 请求体.Paths 为空时使用 sync.roots.
type SyncRequest struct {
	Paths   []string `json:"paths,omitempty"   binding:"omitempty,dive,required"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Workers int      `json:"workers,omitempty" binding:"omitempty,min=1,max=64"`
}

// OutcomeView 单个文件的对账结果.
type OutcomeView struct {
	Path       string `json:"path"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// DecisionView dry-run 时单个文件的预测动作.
type DecisionView struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SyncResponse 同步结果，CLI 的 --json 输出也使用该结构.
type SyncResponse struct {
	RunID      string         `json:"run_id,omitempty"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
	Counts     map[string]int `json:"counts,omitempty"`
	Outcomes   []OutcomeView  `json:"outcomes,omitempty"`
	Decisions  []DecisionView `json:"decisions,omitempty"`
	ScanError  string         `json:"scan_error,omitempty"`
}

// NewSyncResponse 把同步结果转换为响应.
func NewSyncResponse(res *service.PutResult) SyncResponse {
	var out SyncResponse
	if res == nil {
		return out
	}

	if res.ScanErr != nil {
		out.ScanError = res.ScanErr.Error()
	}

	if res.Report == nil {
		out.DryRun = true

		for _, d := range res.Decisions {
			v := DecisionView{
				Path:      d.File.Path,
				FileName:  d.File.Name,
				Action:    string(d.Action),
				Reason:    d.Reason,
				Duplicate: d.Duplicate,
			}
			if d.Err != nil {
				v.Error = d.Err.Error()
			}

			out.Decisions = append(out.Decisions, v)
		}

		return out
	}

	r := res.Report
	out.RunID, out.StartedAt, out.FinishedAt = r.RunID, r.StartedAt, r.FinishedAt
	out.Counts = make(map[string]int, len(reconcile.Statuses))

	for s, n := range r.Counts() {
		out.Counts[s.String()] = n
	}

	for _, o := range r.Outcomes {
		v := OutcomeView{
			Path:       o.File.Path,
			FileName:   o.File.Name,
			Status:     o.Status.String(),
			Reason:     o.Reason,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}

		if o.Record != nil {
			v.FileURL = o.Record.FileURL
		}

		out.Outcomes = append(out.Outcomes, v)
	}

	return out
}
