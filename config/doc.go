// Package config 提供 LabelFlow 的配置管理功能。
//
// 配置从默认值、YAML 文件和环境变量（前缀 LABELFLOW）依次加载，
// 覆盖服务器、数据库、Redis、执行引擎、存储、日志和遥测。
package config
