package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/yukumo/pkg/context"
	"github.com/yeisme/yukumo/pkg/internal/types"
	"github.com/yeisme/yukumo/pkg/scheduler"
)

// SchedulerJobs 返回所有调度器任务信息，未启用调度器时为空列表.
func SchedulerJobs(c *gin.Context) {
	jobs := []scheduler.JobInfo{}
	if sched := ctxPkg.GetScheduler(c.Request.Context()); sched != nil {
		jobs = sched.Jobs()
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// SchedulerRunJob 立即触发指定任务.
func SchedulerRunJob(c *gin.Context) {
	sched := ctxPkg.GetScheduler(c.Request.Context())
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: "scheduler disabled"})
		return
	}

	name := c.Param("name")
	if err := sched.RunNow(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrJobNotFound) {
			status = http.StatusNotFound
		}

		c.JSON(status, types.ErrorResponse{Error: err.Error()})

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "triggered"})
}
