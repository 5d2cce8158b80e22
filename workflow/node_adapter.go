package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/internal/ctxkeys"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/processor"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// nodeAdapter binds one execution's nodes to their processors. It creates or
// reuses the node execution row, resolves inputs, runs the processor and
// records the outcome. Processors compute outside the write lock; outputs and
// the COMPLETED status commit together.
type nodeAdapter struct {
	engine *Engine
	exec   *models.WorkflowExecution
	graph  *Graph
	state  *State
	dm     *storage.DataManager
	logger *zap.Logger
	// single resolves predecessors without run state from history
	single bool
	// done holds nodes whose completed rows were carried over from an
	// earlier attempt
	done map[string]bool
}

var _ NodeRunner = (*nodeAdapter)(nil)

// RunNode implements NodeRunner.
func (a *nodeAdapter) RunNode(ctx context.Context, node models.NodeConfig) error {
	if a.done[node.ID] {
		a.logger.Info("node already completed, reusing outputs", zap.String("node_id", node.ID))
		return nil
	}
	_, err := a.run(ctx, node)
	return err
}

// SkipNode implements NodeRunner.
func (a *nodeAdapter) SkipNode(ctx context.Context, node models.NodeConfig, reason string) error {
	ctx = context.WithoutCancel(ctx)
	return a.engine.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		_, err := a.engine.tracker.SkipNode(ctx, tx, a.exec.ExecutionID, node, reason)
		return err
	})
}

// run drives node to COMPLETED or FAILED and returns its row.
func (a *nodeAdapter) run(ctx context.Context, node models.NodeConfig) (*models.WorkflowNodeExecution, error) {
	e := a.engine
	ctx = ctxkeys.WithNodeID(ctx, node.ID)
	logger := a.logger.With(zap.String("node_id", node.ID), zap.String("node_type", string(node.Type)))

	ne, err := a.start(ctx, node)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.Uint("node_execution_id", ne.ID))
	logger.Info("node started")

	nodeCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.NodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, e.cfg.NodeTimeout)
	}
	defer cancel()

	dm, err := a.execute(nodeCtx, ne, node)
	if err == nil {
		logger.Debug("artifacts committed", zap.Strings("files", dm.Written()))
		dm.Commit()
		a.state.SetOutput(node.ID, ne.OutputDataIDs)
		logger.Info("node completed", zap.Int("outputs", len(ne.OutputDataIDs)))
		return ne, nil
	}

	if dm != nil {
		dm.Rollback()
	}
	if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = types.NewError(types.ErrTimeout,
			fmt.Sprintf("node %s exceeded timeout %s", node.ID, e.cfg.NodeTimeout)).WithCause(err)
	}

	failCtx := context.WithoutCancel(ctx)
	if ferr := e.db.WithTransactionRetry(failCtx, statusWriteAttempts, func(tx *gorm.DB) error {
		return e.tracker.FailNode(failCtx, tx, ne, err.Error())
	}); ferr != nil {
		logger.Error("failed to record node failure", zap.Error(ferr))
	}
	return ne, err
}

// execute resolves and records the inputs of ne, runs its processor without
// holding the write lock and commits the staged batch together with the
// COMPLETED status. ne is only updated once that commit succeeds. The
// returned DataManager journals the files written by the commit.
func (a *nodeAdapter) execute(ctx context.Context, ne *models.WorkflowNodeExecution, node models.NodeConfig) (*storage.DataManager, error) {
	e := a.engine

	if err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		inputs, err := a.resolveInputs(ctx, a.dm.WithDB(tx), tx, ne, node)
		if err != nil {
			return err
		}
		return e.tracker.RecordInputs(ctx, tx, ne, inputs)
	}); err != nil {
		return nil, err
	}

	b := processor.Binding{
		NodeExec: ne,
		Data:     a.dm,
		Policy:   e.cfg.PartialFailurePolicy,
		Logger:   e.logger,
	}
	p, err := processor.New(b)
	if err != nil {
		return nil, err
	}
	p = e.wrapper(b, p)

	batch, err := processBatch(ctx, p)
	if err != nil {
		return nil, err
	}

	work := *ne
	var dm *storage.DataManager
	err = e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		dm = a.dm.WithDB(tx)
		ids, err := commitBatch(ctx, batch, dm)
		if err != nil {
			return err
		}

		var note string
		if s := p.Summary(); s.Skipped > 0 {
			note = fmt.Sprintf("skipped %d of %d inputs: %s", s.Skipped, s.Inputs, s.FirstSkip)
		}
		return e.tracker.CompleteNode(ctx, tx, &work, ids, note)
	})
	if err != nil {
		return dm, err
	}
	*ne = work
	return dm, nil
}

// processBatch runs p.Process, turning a panic into an error.
func processBatch(ctx context.Context, p processor.Processor) (batch *processor.Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return p.Process(ctx)
}

// commitBatch commits batch, turning a panic into an error so the
// transaction rolls back.
func commitBatch(ctx context.Context, batch *processor.Batch, dm *storage.DataManager) (ids []uint, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return batch.Commit(ctx, dm)
}

func panicError(r any) error {
	return types.NewProcessingError(fmt.Sprintf("processor panic: %v", r), nil)
}

// start picks the row for node and moves it to PROCESSING. A PENDING row (new
// or reset by a retry) is reused; any terminal row is kept as history and a
// new row is created.
func (a *nodeAdapter) start(ctx context.Context, node models.NodeConfig) (*models.WorkflowNodeExecution, error) {
	e := a.engine
	var ne *models.WorkflowNodeExecution
	err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		latest, err := e.tracker.LatestNode(ctx, tx, a.exec.ExecutionID, node.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Status != models.StatusPending {
			latest, err = e.tracker.CreateNode(ctx, tx, a.exec.ExecutionID, node)
			if err != nil {
				return err
			}
		}
		if err := e.tracker.StartNode(ctx, tx, latest); err != nil {
			return err
		}
		ne = latest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ne, nil
}
