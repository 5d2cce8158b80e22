package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/workflow/storage"
)

// imageSource ingests <data_dir>/data/original. Its outputs are ProcessedData
// ids, one per image, pointing at the project-owned original artifact.
type imageSource struct {
	base
}

func newImageSource(b Binding) Processor {
	return &imageSource{base: newBase(b)}
}

func (p *imageSource) Process(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := p.dm.ListSourceImages()
	if err != nil {
		return nil, err
	}
	p.summary = Summary{Inputs: len(names)}
	if len(names) == 0 {
		p.logger.Warn("no source images found", zap.String("dir", p.dm.FullPath("original")))
	}

	return NewBatch(len(names), func(ctx context.Context, dm *storage.DataManager) ([]uint, error) {
		if err := p.purge(ctx, dm); err != nil {
			return nil, err
		}
		out := make([]uint, 0, len(names))
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rel := "original/" + name
			original, err := dm.FindOrCreateOriginal(ctx, p.ne, rel, name)
			if err != nil {
				return nil, err
			}
			pd, err := dm.SaveProcessedData(ctx, p.ne, &original.DataID, rel, map[string]any{
				"original_data_id": original.DataID,
				"filename":         name,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, pd.ID)
		}

		p.logger.Info("source images ingested", zap.Int("count", len(out)))
		return p.finish(out)
	}), nil
}
