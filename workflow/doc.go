// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package workflow compiles and executes labeling pipelines.

# Overview

A workflow is a DAG of typed nodes (image_source, preprocess and the model
stages) stored on a project. Running it creates a WorkflowExecution that
snapshots the graph, then drives every node to COMPLETED, FAILED or SKIPPED
while the artifacts each node writes are committed together with its status.

# Core types

  - Graph        — compiled, validated adjacency of a WorkflowConfig
  - DAGExecutor  — runs independent branches concurrently under a limit
  - State        — per-run map of node outputs keyed by models.OutputKey
  - Tracker      — guarded status transitions for executions and nodes
  - Engine       — create, run, retry, delete and poll executions
  - Service      — project and workflow records and artifact queries

# Execution modes

Graph executions run every node of the snapshot in dependency order. A
failed node skips its descendants only; sibling branches keep running.

Single-node executions run one node. Its predecessors are resolved from
history: an image_source predecessor yields the project's source images and
any other predecessor yields the outputs of its most recently completed run.

# Retry

Retry resets a FAILED execution and its FAILED node rows to PENDING and
submits it again. COMPLETED node rows are kept; with
EngineConfig.SkipCompletedOnRetry their outputs are reused instead of
running those nodes again.

# Concurrency

An execution is claimed under a lock (in-process or Redis) before it moves
to PROCESSING, so two runners never drive the same execution. All writes go
through database.PoolManager.WithWriteTransaction. Processors read and
transform without that lock, so sibling branches compute in parallel; each
node then commits its staged outputs and status in one write transaction.

An execution that cannot be queued is marked FAILED so that Retry can
resubmit it.
*/
package workflow
