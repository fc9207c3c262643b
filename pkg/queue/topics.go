package queue

// 主题命名规范：yk.<域>.<动作>，保持稳定且向后兼容.
// 域：file(单个文件的对账结果)、batch(一次对账)、migration(schema 迁移)

const (
	// 文件领域.
	TopicFileUploaded = "yk.file.uploaded" // 首次上传并写入目录
	TopicFileUpdated  = "yk.file.updated"  // 内容或路径变化后重新上传并更新目录
	TopicFileFailed   = "yk.file.failed"   // 上传或写目录失败，目录未改动

	// 对账批次.
	TopicBatchCompleted = "yk.batch.completed" // 一批文件全部得到结果

	// schema 迁移.
	TopicMigrationApplied = "yk.migration.applied" // 某个迁移版本已提交
)

// AllTopics 全部主题，events tail 默认订阅.
var AllTopics = []string{
	TopicFileUploaded, TopicFileUpdated, TopicFileFailed,
	TopicBatchCompleted, TopicMigrationApplied,
}
