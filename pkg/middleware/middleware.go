// Package middleware 提供 serve 子命令使用的 gin 中间件：
// 运行时注入、访问日志、追踪、指标、CORS、限流、熔断与调度器注入.
package middleware
