// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、工作流执行、节点处理、执行锁、缓存与数据库六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，同一进程内每个 namespace
只能创建一个 Collector。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 执行指标：按 mode/status 统计结束的执行，活跃执行数 Gauge。
  - 节点指标：按 node_type 统计处理次数、耗时、产出的工件数与跳过的输入数。
  - 执行锁指标：按后端统计锁冲突次数。
  - 缓存与数据库指标：命中/未命中、连接数、查询耗时。
*/
package metrics
