package workflow

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// Input ids are typed by the consumer: preprocess reads ProcessedData ids,
// every other node type reads Data ids. image_source publishes ProcessedData
// ids, every other type publishes Data ids. The functions below convert
// between the two at each edge.

// resolveInputs collects ne's inputs from its predecessors in edge order.
// In-graph predecessors are read from the run state. Predecessors outside the
// graph, or without state in a single-node run, are resolved from history.
func (a *nodeAdapter) resolveInputs(ctx context.Context, dm *storage.DataManager, tx *gorm.DB, ne *models.WorkflowNodeExecution, node models.NodeConfig) ([]uint, error) {
	inputs := []uint{}

	for _, predID := range a.graph.Predecessors(node.ID) {
		pred, _ := a.graph.Node(predID)
		ids, ok := a.state.Output(predID)
		if !ok {
			if !a.single {
				return nil, types.NewInvalidStateError("predecessor %s of %s has no recorded output", predID, node.ID)
			}
			resolved, err := a.resolveFromHistory(ctx, dm, tx, ne, models.UpstreamNode{ID: pred.ID, Type: pred.Type}, node.Type)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, resolved...)
			continue
		}

		converted, err := convertOutputs(ctx, dm, ne, pred, node.Type, ids)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, converted...)
	}

	for _, up := range a.graph.ExternalSources(node.ID) {
		resolved, err := a.resolveFromHistory(ctx, dm, tx, ne, up, node.Type)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, resolved...)
	}
	return inputs, nil
}

// convertOutputs turns a predecessor's published ids into the id kind the
// consumer reads. Ids whose rows have disappeared are dropped.
func convertOutputs(ctx context.Context, dm *storage.DataManager, ne *models.WorkflowNodeExecution, producer models.NodeConfig, consumer models.NodeType, ids []uint) ([]uint, error) {
	producesProcessed := producer.Type == models.NodeImageSource
	readsProcessed := consumer == models.NodePreprocess

	switch {
	case producesProcessed == readsProcessed:
		return append([]uint{}, ids...), nil

	case producesProcessed:
		out := make([]uint, 0, len(ids))
		for _, id := range ids {
			pd, err := dm.GetProcessedData(ctx, id)
			if err != nil {
				return nil, err
			}
			if pd == nil || pd.OriginalDataID == nil {
				dm.Logger().Warn("dropping input without source data",
					zap.String("node_id", ne.NodeID), zap.Uint("processed_data_id", id))
				continue
			}
			out = append(out, *pd.OriginalDataID)
		}
		return out, nil

	default:
		out := make([]uint, 0, len(ids))
		for _, id := range ids {
			d, err := dm.GetData(ctx, id)
			if err != nil {
				return nil, err
			}
			if d == nil {
				dm.Logger().Warn("dropping missing input",
					zap.String("node_id", ne.NodeID), zap.Uint("data_id", id))
				continue
			}
			pd, err := trackInput(ctx, dm, ne, producer.ID, d)
			if err != nil {
				return nil, err
			}
			out = append(out, pd.ID)
		}
		return out, nil
	}
}

// resolveFromHistory resolves the output of a predecessor that did not run
// in this graph:
//   - an image_source predecessor yields every stage "original" row of the
//     project, each tracked by a new ProcessedData row;
//   - any other predecessor yields the outputs of its most recently completed
//     node execution that are still persisted, falling back to the live rows
//     of its stage.
func (a *nodeAdapter) resolveFromHistory(ctx context.Context, dm *storage.DataManager, tx *gorm.DB, ne *models.WorkflowNodeExecution, up models.UpstreamNode, consumer models.NodeType) ([]uint, error) {
	var rows []models.Data

	if up.Type == models.NodeImageSource {
		originals, err := dm.DataByStage(ctx, storage.StageQuery{Stage: models.StageOriginal})
		if err != nil {
			return nil, types.NewPersistenceError("query original data", err)
		}
		rows = originals
	} else {
		var ids []uint
		latest, err := a.engine.tracker.LatestCompleted(ctx, tx, dm.Project().ProjectID, up.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			ids, err = dm.ExistingDataIDs(ctx, latest.OutputDataIDs)
			if err != nil {
				return nil, types.NewPersistenceError("filter upstream outputs", err)
			}
		}
		if len(ids) > 0 {
			for _, id := range ids {
				d, err := dm.GetData(ctx, id)
				if err != nil {
					return nil, err
				}
				if d != nil {
					rows = append(rows, *d)
				}
			}
		} else {
			live, err := dm.DataByStage(ctx, storage.StageQuery{Stage: up.ID})
			if err != nil {
				return nil, types.NewPersistenceError("query stage "+up.ID, err)
			}
			rows = live
		}
	}

	a.logger.Debug("resolved upstream from history",
		zap.String("node_id", ne.NodeID),
		zap.String("upstream", up.ID),
		zap.Int("count", len(rows)))

	out := make([]uint, 0, len(rows))
	for i := range rows {
		pd, err := trackInput(ctx, dm, ne, up.ID, &rows[i])
		if err != nil {
			return nil, err
		}
		if consumer == models.NodePreprocess {
			out = append(out, pd.ID)
		} else {
			out = append(out, rows[i].DataID)
		}
	}
	return out, nil
}

// trackInput writes the ProcessedData row recording that ne consumed d. For
// a source image the row points at d itself; for a derived artifact it
// points at the lineage root.
func trackInput(ctx context.Context, dm *storage.DataManager, ne *models.WorkflowNodeExecution, sourceNode string, d *models.Data) (*models.ProcessedData, error) {
	meta := make(map[string]any, len(d.Metadata)+3)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	root := d.LineageRoot()
	meta["original_data_id"] = root
	meta["source_node"] = sourceNode
	meta["source_data_id"] = d.DataID
	return dm.SaveProcessedData(ctx, ne, &root, d.Path, meta)
}
