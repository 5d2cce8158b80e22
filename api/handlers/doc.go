// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 LabelFlow HTTP API 的请求处理器实现。

# 概述

handlers 包把 workflow.Engine 与 workflow.Service 暴露为 /api/v1 下的
REST 端点：项目、工作流、执行的创建、查询、重试与删除，以及健康检查。
所有 Handler 均遵循标准 net/http 接口，路由使用 Go 1.22 的
"METHOD /path/{param}" 模式注册。

# 核心类型

  - ProjectHandler   — 项目创建、查询、级联删除，项目最新工作流
  - WorkflowHandler  — 工作流创建（先校验 DAG）、查询、更新、执行列表
  - ExecutionHandler — 图执行提交（202）、单节点同步执行、状态轮询、重试、删除、产物查询
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - API              — 聚合上述处理器并注册路由
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

  - INVALID_REQUEST / CONFIGURATION_ERROR → 400
  - NOT_FOUND → 404
  - INVALID_STATE / LOCKED → 409
  - TIMEOUT → 504，SERVICE_UNAVAILABLE → 503
  - 其余 → 500
*/
package handlers
