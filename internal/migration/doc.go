// 版权所有 2024 LabelFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 LabelFlow 的数据库 Schema 版本，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，迁移创建 Tables 列出的七张
LabelFlow 表（project、task、workflow、workflow_execution、
workflow_node_execution、data、processed_data），版本记录在
VersionTable。

# 核心类型

  - Migrator：封装 golang-migrate 实例，提供 Up/Down/Reset/Goto/Force/
    Version 以及 Report、EnsureLatest。
  - Report：当前版本、各迁移文件状态，以及库中仍缺失的 LabelFlow 表。
  - Dialect：方言，与 config.DatabaseConfig.Driver 同值。

# 创建方式

FromConfig 复用运行时的 config.DatabaseConfig.DSN()，迁移与服务连接
同一个库；FromURL 供命令行直接指定驱动与连接串。MySQL 连接会自动补齐
multiStatements=true。

EnsureLatest 拒绝 dirty 的 schema，迁移后逐表核对，缺表时返回错误。
命令行入口见 cmd/labelflow 的 migrate 子命令。
*/
package migration
