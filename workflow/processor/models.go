package processor

import (
	"context"
	"hash/fnv"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// modelStage is shared by the inference stubs: it copies the input into
// results/<type>/ and annotates it.
type modelStage struct {
	base
	prefix   string
	annotate func(in *input, params map[string]any) (category string, meta map[string]any)
}

func (p *modelStage) Process(ctx context.Context) (*Batch, error) {
	params := p.params()
	batch, err := p.run(ctx, func(ctx context.Context, in *input) (storage.Result, error) {
		name := p.prefix + in.Name()
		category, meta := p.annotate(in, params)
		meta["original_data_id"] = in.root
		meta["filename"] = name
		return storage.Result{
			RelativePath: resultPath(p.ne.NodeType, p.prefix, in.Name()),
			Content:      in.content,
			Category:     category,
			Metadata:     meta,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("model stage staged", zap.Int("outputs", batch.Staged))
	return batch, nil
}

func (p *modelStage) Train(ctx context.Context, kwargs map[string]any) error {
	p.logger.Debug("training not implemented", zap.Any("kwargs", kwargs))
	return nil
}

func paramsOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}

func newObjectDetection(b Binding) Processor {
	return &modelStage{
		base:   newBase(b),
		prefix: "detected_",
		annotate: func(in *input, params map[string]any) (string, map[string]any) {
			return "", map[string]any{
				"detections": []map[string]any{
					{"bbox": []int{50, 50, 80, 80}, "class": "example", "confidence": 0.95},
				},
				"params": paramsOrEmpty(params),
			}
		},
	}
}

func newInstanceSegmentation(b Binding) Processor {
	return &modelStage{
		base:   newBase(b),
		prefix: "instance_",
		annotate: func(in *input, params map[string]any) (string, map[string]any) {
			mask := path.Join(storage.StageDir(models.NodeInstanceSegmentation), "masks", "mask_"+in.Name())
			return "", map[string]any{
				"instances": []map[string]any{
					{"bbox": []int{50, 50, 80, 80}, "class": "example", "confidence": 0.9, "mask_path": mask},
				},
				"params": paramsOrEmpty(params),
			}
		},
	}
}

func newSemanticSegmentation(b Binding) Processor {
	return &modelStage{
		base:   newBase(b),
		prefix: "semantic_",
		annotate: func(in *input, params map[string]any) (string, map[string]any) {
			meta := map[string]any{
				"classes": []string{"background", "class1", "class2"},
				"params":  paramsOrEmpty(params),
			}
			if shape, ok := imageShape(in.content); ok {
				meta["mask_shape"] = shape[:2]
			}
			return "", meta
		},
	}
}

var defaultClasses = []string{"A", "B", "C"}

func newClassification(b Binding) Processor {
	return &modelStage{
		base:   newBase(b),
		prefix: "classified_",
		annotate: func(in *input, params map[string]any) (string, map[string]any) {
			classes := stringList(params, "classes", defaultClasses)
			scores := classScores(in.data.Path, classes)
			best := 0
			for i, s := range scores {
				if s > scores[best] {
					best = i
				}
			}
			return classes[best], map[string]any{
				"classes":         classes,
				"scores":          scores,
				"predicted_class": classes[best],
				"confidence":      scores[best],
			}
		},
	}
}

// classScores derives a stable score per class from the artifact path and
// normalises them to sum to 1.
func classScores(key string, classes []string) []float64 {
	scores := make([]float64, len(classes))
	var total float64
	for i, c := range classes {
		h := fnv.New32a()
		h.Write([]byte(strings.ToLower(key)))
		h.Write([]byte{0})
		h.Write([]byte(c))
		scores[i] = float64(h.Sum32()%1000+1) / 1000
		total += scores[i]
	}
	for i := range scores {
		scores[i] /= total
	}
	return scores
}
