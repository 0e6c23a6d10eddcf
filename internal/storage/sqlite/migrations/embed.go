// Package migrations 内嵌直播会话存储的 SQLite 建表脚本。
package migrations

import "embed"

// FS 包含按文件名顺序执行的迁移脚本。
//
//go:embed *.sql
var FS embed.FS
