// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package models 定义 LabelFlow 的持久化模型与工作流图配置类型。

表结构:
  - project / task: 项目与数据集划分
  - data: 原始图片（stage=original，归属项目）与各节点派生结果
  - processed_data: 节点执行产生的中间产物
  - workflow / workflow_execution / workflow_node_execution: 工作流定义与运行记录

级联规则: 删除执行会级联删除节点执行及其产生的 data/processed_data；
原始图片仅随项目删除。
*/
package models
