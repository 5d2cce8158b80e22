package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// NodeRunner drives a single node to a terminal state. RunNode returns an
// error when the node ends FAILED.
type NodeRunner interface {
	RunNode(ctx context.Context, node models.NodeConfig) error
	// SkipNode records that node will not run because an upstream node
	// did not complete.
	SkipNode(ctx context.Context, node models.NodeConfig, reason string) error
}

// Report is the outcome of one graph run.
type Report struct {
	Statuses map[string]models.NodeStatus
	Errors   map[string]error
	// Failed lists failed nodes in the order they finished.
	Failed []string
}

// FirstError returns the first recorded node failure.
func (r *Report) FirstError() (string, error) {
	if len(r.Failed) == 0 {
		return "", nil
	}
	id := r.Failed[0]
	return id, r.Errors[id]
}

// DAGExecutor runs a compiled graph. Independent branches run concurrently,
// at most limit at a time. A failed node only stops its own descendants.
type DAGExecutor struct {
	graph  *Graph
	limit  int
	logger *zap.Logger
}

// NewDAGExecutor creates an executor. limit <= 0 means one node at a time.
func NewDAGExecutor(graph *Graph, limit int, logger *zap.Logger) *DAGExecutor {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DAGExecutor{
		graph:  graph,
		limit:  limit,
		logger: logger.With(zap.String("component", "dag_executor")),
	}
}

type nodeResult struct {
	id  string
	err error
}

// runNode calls the runner, reporting a panic as the node's error.
func (x *DAGExecutor) runNode(ctx context.Context, runner NodeRunner, node models.NodeConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("node panicked",
				zap.String("node_id", node.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = types.NewError(types.ErrInternalError, fmt.Sprintf("node %s panicked: %v", node.ID, r))
		}
	}()
	return runner.RunNode(ctx, node)
}

// Execute runs every node once its predecessors have completed. The
// coordinating loop stays in the calling goroutine; node work runs on an
// errgroup bounded by the executor limit.
func (x *DAGExecutor) Execute(ctx context.Context, runner NodeRunner) *Report {
	g := x.graph
	report := &Report{
		Statuses: make(map[string]models.NodeStatus, g.Len()),
		Errors:   make(map[string]error),
	}

	indegree := make(map[string]int, g.Len())
	for _, n := range g.Nodes() {
		indegree[n.ID] = len(g.preds[n.ID])
	}
	// blockedBy records the first upstream node that did not complete
	blockedBy := make(map[string]string)

	results := make(chan nodeResult, g.Len())
	var eg errgroup.Group
	eg.SetLimit(x.limit)

	inflight := 0
	launch := func(id string) {
		node := g.nodes[id]
		inflight++
		x.logger.Debug("node scheduled", zap.String("node_id", id))
		eg.Go(func() error {
			results <- nodeResult{id: id, err: x.runNode(ctx, runner, node)}
			return nil
		})
	}

	var settle func(id string, status models.NodeStatus)
	settle = func(id string, status models.NodeStatus) {
		report.Statuses[id] = status

		for _, next := range g.edges[id] {
			if status != models.StatusCompleted {
				if _, ok := blockedBy[next]; !ok {
					blockedBy[next] = id
				}
			}
			indegree[next]--
			if indegree[next] > 0 {
				continue
			}
			if cause, blocked := blockedBy[next]; blocked {
				reason := fmt.Sprintf("upstream node %s did not complete", cause)
				if err := runner.SkipNode(ctx, g.nodes[next], reason); err != nil {
					x.logger.Error("failed to record skipped node",
						zap.String("node_id", next), zap.Error(err))
				}
				settle(next, models.StatusSkipped)
				continue
			}
			launch(next)
		}
	}

	for _, id := range g.Roots() {
		launch(id)
	}
	for inflight > 0 {
		r := <-results
		inflight--
		if r.err != nil {
			report.Errors[r.id] = r.err
			report.Failed = append(report.Failed, r.id)
			x.logger.Warn("node failed", zap.String("node_id", r.id), zap.Error(r.err))
			settle(r.id, models.StatusFailed)
			continue
		}
		settle(r.id, models.StatusCompleted)
	}
	_ = eg.Wait()

	return report
}
