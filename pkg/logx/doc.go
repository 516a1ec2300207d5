// Package logx configures idlebot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (timestamp prefix + short caller)
//   - File output JSON-structured
//   - An optional Telegram sink for warnings and failures (min-level + rate limit)
package logx
