package processor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/internal/telemetry"
	"github.com/BaSui01/labelflow/models"
)

// Recorder receives per-node measurements. *metrics.Collector satisfies it.
type Recorder interface {
	RecordNode(nodeType, status string, duration time.Duration, outputs, skipped int)
}

// Instrument wraps processors with an OTel span and, when rec is non-nil,
// Prometheus node metrics.
func Instrument(rec Recorder) Wrapper {
	return func(b Binding, p Processor) Processor {
		return &instrumented{Processor: p, b: b, rec: rec}
	}
}

type instrumented struct {
	Processor
	b   Binding
	rec Recorder
}

// Process spans the compute phase. Metrics are recorded once the batch is
// committed, or right away when Process fails.
func (p *instrumented) Process(ctx context.Context) (*Batch, error) {
	ne := p.b.NodeExec
	ctx, span := telemetry.StartSpan(ctx, "workflow.node.process",
		attribute.String("node_id", ne.NodeID),
		attribute.String("node_type", string(ne.NodeType)),
		attribute.Int64("node_execution_id", int64(ne.ID)),
		attribute.Int("inputs", len(ne.InputDataIDs)),
	)
	defer span.End()

	start := time.Now()
	batch, err := p.Processor.Process(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.record(start, nil, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("staged", batch.Staged),
		attribute.Int("skipped", p.Processor.Summary().Skipped),
	)
	return batch.Then(func(ids []uint, err error) {
		p.record(start, ids, err)
	}), nil
}

func (p *instrumented) record(start time.Time, ids []uint, err error) {
	duration := time.Since(start)
	summary := p.Processor.Summary()

	status := string(models.StatusCompleted)
	if err != nil {
		status = string(models.StatusFailed)
	}
	if p.rec != nil {
		p.rec.RecordNode(string(p.b.NodeExec.NodeType), status, duration, len(ids), summary.Skipped)
	}

	logger := p.b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("node processor failed", zap.Duration("duration", duration), zap.Error(err))
	} else {
		logger.Debug("node processor returned", zap.Duration("duration", duration), zap.Int("outputs", len(ids)))
	}
}
