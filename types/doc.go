// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 LabelFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、api、cmd 等上层
模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - CONFIGURATION_ERROR — 非法的节点/边配置，在创建任何执行记录之前失败
  - NOT_FOUND           — 项目、工作流、执行或节点不存在
  - PROCESSING_ERROR    — 节点处理器顶层失败
  - PERSISTENCE_ERROR   — 提交失败，已回滚，可重试
  - INVALID_STATE       — 当前状态不允许该操作（如重试非失败的执行）

# 主要能力

  - 错误工具链：AsError / IsCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewConfigurationError / NewNotFoundError / NewPersistenceError
*/
package types
