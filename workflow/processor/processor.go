package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// Processor is the transform bound to one node execution.
type Processor interface {
	// Process reads and transforms every input without writing anything.
	// The returned Batch purges the node's stale artifacts and persists the
	// outputs when it is committed.
	Process(ctx context.Context) (*Batch, error)
	// Train is the fine-tuning extension point. Stateless stages ignore it.
	Train(ctx context.Context, kwargs map[string]any) error
	// Summary reports the counts of the last Process call.
	Summary() Summary
}

// Summary counts one Process call.
type Summary struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
	Skipped int `json:"skipped"`
	// FirstSkip is the reason the first skipped input was dropped.
	FirstSkip string `json:"first_skip,omitempty"`
}

// Batch holds the staged outputs of one Process call.
type Batch struct {
	// Staged is the number of artifacts waiting to be written.
	Staged int
	commit func(ctx context.Context, dm *storage.DataManager) ([]uint, error)
}

// NewBatch stages commit for later execution.
func NewBatch(staged int, commit func(ctx context.Context, dm *storage.DataManager) ([]uint, error)) *Batch {
	return &Batch{Staged: staged, commit: commit}
}

// Commit writes the batch through dm, which must be bound to the node's write
// transaction, and returns the output ids in input order.
func (b *Batch) Commit(ctx context.Context, dm *storage.DataManager) ([]uint, error) {
	if b == nil || b.commit == nil {
		return []uint{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.commit(ctx, dm)
}

// Then returns a batch that calls fn with the outcome of its commit.
func (b *Batch) Then(fn func(ids []uint, err error)) *Batch {
	return NewBatch(b.Staged, func(ctx context.Context, dm *storage.DataManager) ([]uint, error) {
		ids, err := b.Commit(ctx, dm)
		fn(ids, err)
		return ids, err
	})
}

// Binding is everything a processor needs: the node execution row it works
// for and a DataManager for reads. Writes go through the DataManager handed
// to Batch.Commit.
type Binding struct {
	NodeExec *models.WorkflowNodeExecution
	Data     *storage.DataManager
	// Policy is config.PartialFailureSkip or config.PartialFailureFail.
	Policy string
	Logger *zap.Logger
}

// Params returns the node parameters snapshotted on the row.
func (b Binding) Params() map[string]any {
	return b.NodeExec.Config.Data().Params
}

// Factory builds a processor for a binding.
type Factory func(b Binding) Processor

// Wrapper decorates a processor; wrappers are applied by the engine after
// the registry lookup.
type Wrapper func(b Binding, p Processor) Processor

// Chain composes wrappers; the first wrapper ends up outermost.
func Chain(wrappers ...Wrapper) Wrapper {
	return func(b Binding, p Processor) Processor {
		for i := len(wrappers) - 1; i >= 0; i-- {
			if wrappers[i] != nil {
				p = wrappers[i](b, p)
			}
		}
		return p
	}
}

// registry is built once and never mutated.
var registry = map[models.NodeType]Factory{
	models.NodeImageSource:          newImageSource,
	models.NodePreprocess:           newPreprocess,
	models.NodeObjectDetection:      newObjectDetection,
	models.NodeInstanceSegmentation: newInstanceSegmentation,
	models.NodeSemanticSegmentation: newSemanticSegmentation,
	models.NodeClassification:       newClassification,
}

// Supports reports whether nt has a processor.
func Supports(nt models.NodeType) bool {
	_, ok := registry[nt]
	return ok
}

// New builds the processor for b.NodeExec.NodeType.
func New(b Binding) (Processor, error) {
	if b.NodeExec == nil || b.Data == nil {
		return nil, fmt.Errorf("processor binding requires a node execution and a data manager")
	}
	factory, ok := registry[b.NodeExec.NodeType]
	if !ok {
		return nil, types.NewConfigurationError("unknown node type %q for node %s", b.NodeExec.NodeType, b.NodeExec.NodeID)
	}
	if b.Logger == nil {
		b.Logger = b.Data.Logger()
	}
	if b.Policy == "" {
		b.Policy = config.PartialFailureSkip
	}
	b.Logger = b.Logger.With(
		zap.String("node_id", b.NodeExec.NodeID),
		zap.String("node_type", string(b.NodeExec.NodeType)),
		zap.Uint("node_execution_id", b.NodeExec.ID),
	)
	return factory(b), nil
}
