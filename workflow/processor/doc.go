// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package processor implements the node transforms of a workflow.

Every node type maps to exactly one Processor through a fixed registry.
A processor is bound to a WorkflowNodeExecution and a storage.DataManager
used for reads. Process runs without the write lock:

 1. resolve each input id (ProcessedData ids for preprocess, Data ids otherwise)
 2. read the backing file
 3. transform

and returns a Batch. Committing the batch inside the node's write transaction
purges the node's stale artifacts, then persists a Data row, a ProcessedData
row and the file for each staged result.

Per-input failures are counted in Summary and skipped. Under the "fail"
partial failure policy any skipped input fails the whole node.
*/
package processor
