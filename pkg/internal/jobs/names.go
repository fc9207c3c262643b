package jobs

// 任务名称常量，便于统一管理与引用.
const (
	JobResync       = "sync.resync"
	JobCatalogAudit = "catalog.audit"
)

// CronCatalogAudit 每天 03:15 检查来源文件已不存在的记录.
const CronCatalogAudit = "15 3 * * *"
