package processor

import (
	"bytes"
	"context"
	"image"
	// Registered decoders for header inspection.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// preprocess stages inputs under preprocessed/. Pixel resampling is a
// pluggable concern; the bytes are passed through and the target shape is
// recorded.
type preprocess struct {
	base
}

func newPreprocess(b Binding) Processor {
	return &preprocess{base: newBase(b)}
}

func (p *preprocess) Process(ctx context.Context) (*Batch, error) {
	resize := intPair(p.params(), "resize", p.dm.Config().DefaultResize)

	batch, err := p.run(ctx, func(ctx context.Context, in *input) (storage.Result, error) {
		name := "preprocessed_" + in.Name()
		meta := map[string]any{
			"resize":           []int{resize[0], resize[1]},
			"processed_shape":  []int{resize[1], resize[0], 3},
			"original_data_id": in.root,
			"filename":         name,
		}
		if shape, ok := imageShape(in.content); ok {
			meta["original_shape"] = shape
		}
		return storage.Result{
			RelativePath: resultPath(models.NodePreprocess, "preprocessed_", in.Name()),
			Content:      in.content,
			Metadata:     meta,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("preprocess staged", zap.Int("outputs", batch.Staged), zap.Ints("resize", resize))
	return batch, nil
}

// imageShape returns [height, width, channels] from the image header.
func imageShape(content []byte) ([]int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, false
	}
	return []int{cfg.Height, cfg.Width, 3}, true
}
