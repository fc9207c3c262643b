// Package scheduler 在 gocron/v2 之上登记具名的 cron 任务并记录每个任务的运行状态.
//
// 同名任务同一时刻只运行一个；上一轮未结束时本轮顺延.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	nlog "github.com/yeisme/yukumo/pkg/log"
)

// ErrJobNotFound 任务名未登记.
var ErrJobNotFound = errors.New("job not found")

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error" // 上次运行失败或 panic
)

// JobFunc 任务体，返回的错误记录在 JobInfo.Error 中.
type JobFunc func(ctx context.Context) error

// JobInfo 任务状态快照.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Runs        int       `json:"runs"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 具名 cron 任务集合.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewScheduler 创建调度器，需要 Start 之后任务才会触发.
func NewScheduler() (*Scheduler, error) {
	logger := nlog.Component("scheduler")

	cron, err := gocron.NewScheduler(gocron.WithLogger(cronLogger{logger}))
	if err != nil {
		return nil, err
	}

	return &Scheduler{cron: cron, logger: logger, entries: make(map[string]*entry)}, nil
}

// AddCron 按 5 段 cron 表达式登记任务，名称重复或表达式非法时报错.
func (s *Scheduler) AddCron(ctx context.Context, name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}

	j, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.run, ctx, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.entries[name] = &entry{job: j, info: JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		CronExpr:  cronExpr,
		Status:    StatusScheduled,
		CreatedAt: time.Now(),
	}}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("job registered")

	return nil
}

// run 执行任务体并记录结果，panic 记为失败.
func (s *Scheduler) run(ctx context.Context, name string, fn JobFunc) {
	s.update(name, func(info *JobInfo) {
		info.Status = StatusRunning
		info.LastRun = time.Now()
	})

	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		if err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("job failed")
		}

		s.update(name, func(info *JobInfo) {
			info.Runs++

			if err != nil {
				info.Status = StatusError
				info.Error = err.Error()

				return
			}

			info.Status = StatusScheduled
			info.Error = ""
			info.LastSuccess = time.Now()
		})
	}()

	err = fn(ctx)
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok {
		fn(&e.info)
	}
}

// RunNow 立即触发一次，不影响原有计划.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return e.job.RunNow()
}

// Remove 注销任务.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if err := s.cron.RemoveJob(e.job.ID()); err != nil {
		return err
	}

	delete(s.entries, name)

	return nil
}

// snapshot 复制状态并填入下次运行时间.
func snapshot(e *entry) JobInfo {
	info := e.info
	if next, err := e.job.NextRun(); err == nil {
		info.NextRun = next
	}

	return info
}

// Job 返回单个任务的状态.
func (s *Scheduler) Job(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return snapshot(e), nil
}

// Jobs 返回全部任务状态，按名称排序.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, snapshot(e))
	}

	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })

	return out
}

func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")
	s.cron.Start()
}

// Stop 停止调度并等待运行中的任务结束.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// cronLogger 把 gocron 的内部日志接到 zerolog，键值参数成对写入字段.
type cronLogger struct {
	l *zerolog.Logger
}

func (c cronLogger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		ev = ev.Interface(fmt.Sprint(args[i]), args[i+1])
	}

	ev.Msg(msg)
}

func (c cronLogger) Debug(msg string, args ...any) { c.emit(c.l.Trace(), msg, args) }
func (c cronLogger) Info(msg string, args ...any)  { c.emit(c.l.Debug(), msg, args) }
func (c cronLogger) Warn(msg string, args ...any)  { c.emit(c.l.Warn(), msg, args) }
func (c cronLogger) Error(msg string, args ...any) { c.emit(c.l.Error(), msg, args) }
