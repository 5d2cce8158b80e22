package processor

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// errSkip marks a per-input failure. It never escapes Process on its own.
var errSkip = errors.New("input skipped")

// input is one resolved unit of work.
type input struct {
	// id is the id as listed in input_data_ids.
	id uint
	// data is the artifact whose file is read.
	data *models.Data
	// root is the lineage root of data.
	root    uint
	content []byte
}

// Name is the base file name of the input artifact.
func (in *input) Name() string {
	return path.Base(in.data.Path)
}

// transform turns one input into a result to persist.
type transform func(ctx context.Context, in *input) (storage.Result, error)

type base struct {
	b       Binding
	ne      *models.WorkflowNodeExecution
	dm      *storage.DataManager
	logger  *zap.Logger
	summary Summary
}

func newBase(b Binding) base {
	return base{b: b, ne: b.NodeExec, dm: b.Data, logger: b.Logger}
}

func (p *base) Summary() Summary { return p.summary }

func (p *base) Train(ctx context.Context, kwargs map[string]any) error {
	return nil
}

func (p *base) params() map[string]any { return p.b.Params() }

func (p *base) purge(ctx context.Context, dm *storage.DataManager) error {
	_, err := dm.PurgeStale(ctx, p.ne.NodeID, p.ne.ID)
	return err
}

// skip records a dropped input.
func (p *base) skip(id uint, reason error) {
	p.summary.Skipped++
	if p.summary.FirstSkip == "" {
		p.summary.FirstSkip = fmt.Sprintf("input %d: %v", id, reason)
	}
	p.logger.Warn("input skipped", zap.Uint("data_id", id), zap.Error(reason))
}

// check applies the partial failure policy.
func (p *base) check() error {
	if p.summary.Skipped > 0 && p.b.Policy == config.PartialFailureFail {
		return types.NewProcessingError(
			fmt.Sprintf("%d of %d inputs failed", p.summary.Skipped, p.summary.Inputs),
			errors.New(p.summary.FirstSkip))
	}
	return nil
}

func (p *base) finish(out []uint) ([]uint, error) {
	p.summary.Outputs = len(out)
	if err := p.check(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve loads the artifact addressed by id. For preprocess an input id is
// a ProcessedData id whose original_data_id addresses the pixel source; for
// every other type it is a Data id.
func (p *base) resolve(ctx context.Context, id uint) (*input, error) {
	dataID := id
	if p.ne.NodeType == models.NodePreprocess {
		pd, err := p.dm.GetProcessedData(ctx, id)
		if err != nil {
			return nil, err
		}
		if pd == nil {
			return nil, fmt.Errorf("%w: no processed data %d", errSkip, id)
		}
		if pd.OriginalDataID == nil {
			return nil, fmt.Errorf("%w: processed data %d has no original", errSkip, id)
		}
		dataID = *pd.OriginalDataID
	}

	data, err := p.dm.GetData(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: no data %d", errSkip, dataID)
	}

	content, err := p.dm.ReadFile(data.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errSkip, data.Path, err)
	}
	return &input{id: id, data: data, root: data.LineageRoot(), content: content}, nil
}

// staged is a transformed input waiting to be written.
type staged struct {
	id     uint
	result storage.Result
}

// run is the shared batch loop. Inputs are resolved and transformed
// sequentially without holding the write lock; the returned batch purges and
// persists. Persistence failures and context expiry abort the batch;
// everything else skips the input.
func (p *base) run(ctx context.Context, fn transform) (*Batch, error) {
	p.summary = Summary{Inputs: len(p.ne.InputDataIDs)}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := make([]staged, 0, len(p.ne.InputDataIDs))
	for _, id := range p.ne.InputDataIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in, err := p.resolve(ctx, id)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			p.skip(id, err)
			continue
		}

		result, err := fn(ctx, in)
		if err != nil {
			p.skip(id, err)
			continue
		}
		result.OriginalDataID = in.root
		pending = append(pending, staged{id: id, result: result})
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	return NewBatch(len(pending), func(ctx context.Context, dm *storage.DataManager) ([]uint, error) {
		if err := p.purge(ctx, dm); err != nil {
			return nil, err
		}
		out := make([]uint, 0, len(pending))
		for _, s := range pending {
			data, _, err := dm.SaveResult(ctx, p.ne, s.result)
			if err != nil {
				if fatal(err) {
					return nil, err
				}
				p.skip(s.id, err)
				continue
			}
			p.logger.Debug("artifact saved", zap.Uint("data_id", data.DataID), zap.String("path", data.Path))
			out = append(out, data.DataID)
		}
		return p.finish(out)
	}), nil
}

func fatal(err error) bool {
	return types.IsCode(err, types.ErrPersistence) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// resultPath builds <stage dir>/<prefix><name>.
func resultPath(nt models.NodeType, prefix, name string) string {
	return path.Join(storage.StageDir(nt), prefix+name)
}
