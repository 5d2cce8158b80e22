// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 LabelFlow 服务端程序入口。

# 概述

cmd/labelflow 是 LabelFlow 的可执行入口，提供 HTTP API 服务、命令行
同步执行、数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置
文件加载、结构化日志（zap）、Prometheus 指标采集以及日志级别热更新。

# 核心类型

  - Server       — 主服务器，管理 HTTP、Metrics 双端口、工作流引擎及优雅关闭
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - runOptions   — run 子命令的执行目标（工作流、单节点或图文件）

# 主要能力

  - 子命令：serve、run、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    OTelTracing、Metrics、CORS、RateLimiter（基于 IP）
  - 锁后端：engine.lock_backend 为 redis 时共用 Redis 连接做执行锁与状态缓存
  - 配置重载：Reloader 轮询配置文件，日志级别即时生效，其余变更提示重启
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止重载 → 关闭 HTTP → 排空引擎 → 关闭 Metrics → 释放连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
