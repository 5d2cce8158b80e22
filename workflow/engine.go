package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/internal/cache"
	"github.com/BaSui01/labelflow/internal/ctxkeys"
	"github.com/BaSui01/labelflow/internal/database"
	"github.com/BaSui01/labelflow/internal/pool"
	"github.com/BaSui01/labelflow/internal/telemetry"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/processor"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// Metrics receives engine measurements. *metrics.Collector satisfies it.
type Metrics interface {
	processor.Recorder
	ExecutionStarted()
	RecordExecution(mode, status string, duration time.Duration)
	RecordLockContention(backend string)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// StatusCache stores terminal status snapshots. *cache.Manager satisfies it.
type StatusCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Engine creates, runs, retries and reports workflow executions.
type Engine struct {
	db      *database.PoolManager
	cfg     config.EngineConfig
	storage config.StorageConfig
	logger  *zap.Logger
	tracker *Tracker

	locker      cache.Locker
	lockBackend string
	status      StatusCache
	workers     *pool.GoroutinePool
	ownsWorkers bool
	metrics     Metrics
	extra       processor.Wrapper
	wrapper     processor.Wrapper
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker sets the execution lock backend.
func WithLocker(l cache.Locker, backend string) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockBackend = backend
	}
}

// WithStatusCache caches terminal status snapshots for cfg.StatusCacheTTL.
func WithStatusCache(c StatusCache) Option {
	return func(e *Engine) { e.status = c }
}

// WithWorkerPool runs submitted executions on p instead of an engine-owned
// pool.
func WithWorkerPool(p *pool.GoroutinePool) Option {
	return func(e *Engine) { e.workers = p }
}

// WithMetrics records execution and node metrics.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithProcessorWrapper decorates every processor inside the instrumentation
// wrapper.
func WithProcessorWrapper(w processor.Wrapper) Option {
	return func(e *Engine) { e.extra = w }
}

// NewEngine creates an engine over db.
func NewEngine(db *database.PoolManager, cfg config.EngineConfig, storageCfg config.StorageConfig, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		db:      db,
		cfg:     cfg,
		storage: storageCfg,
		logger:  logger.With(zap.String("component", "workflow_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.tracker = NewTracker(logger)
	if e.locker == nil {
		e.locker = cache.NewMemoryLocker()
		e.lockBackend = config.LockBackendMemory
	}
	if e.workers == nil {
		e.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
		}, logger)
		e.ownsWorkers = true
	}

	var rec processor.Recorder
	if e.metrics != nil {
		rec = e.metrics
	}
	e.wrapper = processor.Chain(processor.Instrument(rec), e.extra)
	return e
}

// Close drains the engine-owned worker pool.
func (e *Engine) Close(ctx context.Context) error {
	if !e.ownsWorkers {
		return nil
	}
	return e.workers.Close(ctx)
}

// Wait blocks until every submitted execution has finished.
func (e *Engine) Wait() { e.workers.Wait() }

// Tracker exposes the status tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// =============================================================================
// Creation
// =============================================================================

// ExecutionOptions tune a graph execution at creation.
type ExecutionOptions struct {
	// ParamOverrides are deep-merged into the params of the named nodes.
	ParamOverrides map[string]map[string]any
}

func (e *Engine) loadWorkflow(ctx context.Context, id uint) (*models.Workflow, *models.Project, error) {
	db := e.db.DB().WithContext(ctx)
	var wf models.Workflow
	if err := db.First(&wf, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, types.NewNotFoundError("workflow", id)
		}
		return nil, nil, types.NewPersistenceError("load workflow", err)
	}
	project, err := e.loadProject(ctx, wf.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &wf, project, nil
}

func (e *Engine) loadProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := e.db.DB().WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("project", id)
		}
		return nil, types.NewPersistenceError("load project", err)
	}
	return &project, nil
}

// CreateExecution snapshots a workflow's graph into a PENDING execution.
func (e *Engine) CreateExecution(ctx context.Context, workflowID uint, opts ExecutionOptions) (*models.WorkflowExecution, error) {
	wf, project, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	cfg := wf.Config.Data()
	overrides := datatypes.JSONMap{}
	if len(opts.ParamOverrides) > 0 {
		cfg, err = applyOverrides(cfg, opts.ParamOverrides)
		if err != nil {
			return nil, err
		}
		for id, params := range opts.ParamOverrides {
			overrides[id] = params
		}
	}
	if _, err := Compile(cfg); err != nil {
		return nil, err
	}

	exec := &models.WorkflowExecution{
		WorkflowID:      &wf.WorkflowID,
		ProjectID:       project.ProjectID,
		WorkflowVersion: project.WorkflowVersion,
		Mode:            models.ModeGraph,
		Status:          models.StatusPending,
		Config:          datatypes.NewJSONType(cfg),
		ParamOverrides:  overrides,
	}
	return exec, e.insertExecution(ctx, exec)
}

// CreateExecutionFromConfig validates an ad-hoc graph and snapshots it into
// a PENDING execution of projectID.
func (e *Engine) CreateExecutionFromConfig(ctx context.Context, projectID uint, cfg models.WorkflowConfig) (*models.WorkflowExecution, error) {
	if _, err := Compile(cfg); err != nil {
		return nil, err
	}
	project, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	exec := &models.WorkflowExecution{
		ProjectID:       project.ProjectID,
		WorkflowVersion: project.WorkflowVersion,
		Mode:            models.ModeGraph,
		Status:          models.StatusPending,
		Config:          datatypes.NewJSONType(cfg),
	}
	return exec, e.insertExecution(ctx, exec)
}

// CreateSingleNodeExecution snapshots nodeID, the edges targeting it and
// descriptors of their sources.
func (e *Engine) CreateSingleNodeExecution(ctx context.Context, workflowID uint, nodeID string) (*models.WorkflowExecution, error) {
	wf, project, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	full := wf.Config.Data()
	if _, ok := full.Node(nodeID); !ok {
		return nil, types.NewNotFoundError("node", nodeID)
	}
	snap, err := full.SingleNodeSnapshot(nodeID)
	if err != nil {
		return nil, types.NewConfigurationError("%v", err)
	}
	if _, err := Compile(snap); err != nil {
		return nil, err
	}

	exec := &models.WorkflowExecution{
		WorkflowID:      &wf.WorkflowID,
		ProjectID:       project.ProjectID,
		WorkflowVersion: project.WorkflowVersion,
		Mode:            models.ModeSingleNode,
		Status:          models.StatusPending,
		Config:          datatypes.NewJSONType(snap),
	}
	return exec, e.insertExecution(ctx, exec)
}

func (e *Engine) insertExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Create(exec).Error
	})
	if err != nil {
		return types.NewPersistenceError("create execution", err)
	}
	e.logger.Info("execution created",
		zap.Uint("execution_id", exec.ExecutionID),
		zap.Uint("project_id", exec.ProjectID),
		zap.String("mode", string(exec.Mode)))
	return nil
}

func applyOverrides(cfg models.WorkflowConfig, overrides map[string]map[string]any) (models.WorkflowConfig, error) {
	out := cfg
	out.Nodes = make([]models.NodeConfig, len(cfg.Nodes))
	copy(out.Nodes, cfg.Nodes)

	for id, params := range overrides {
		idx := -1
		for i, n := range out.Nodes {
			if n.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return cfg, types.NewConfigurationError("param override for unknown node %s", id)
		}
		merged, err := MergeParams(out.Nodes[idx].Params, params)
		if err != nil {
			return cfg, types.NewConfigurationError("param override for %s: %v", id, err)
		}
		out.Nodes[idx].Params = merged
	}
	return out, nil
}

// =============================================================================
// Running
// =============================================================================

// Submit runs the execution in the background and returns at once. Callers
// poll GetStatus.
func (e *Engine) Submit(ctx context.Context, executionID uint) error {
	exec, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID)
	if err != nil {
		return err
	}
	if exec.Status != models.StatusPending {
		return types.NewInvalidStateError("execution %d is %s, not pending", executionID, exec.Status)
	}

	requestID, hasRequest := ctxkeys.RequestID(ctx)
	err = e.workers.Submit("execution:"+strconv.FormatUint(uint64(executionID), 10), func(poolCtx context.Context) error {
		runCtx := poolCtx
		if hasRequest {
			runCtx = ctxkeys.WithRequestID(runCtx, requestID)
		}
		return e.Run(runCtx, executionID)
	})
	switch {
	case errors.Is(err, pool.ErrPoolFull):
		err = types.NewError(types.ErrServiceUnavailable, "execution queue is full").WithRetryable(true)
	case errors.Is(err, pool.ErrPoolClosed):
		err = types.NewError(types.ErrServiceUnavailable, "engine is shutting down")
	}
	if err != nil {
		e.abandon(ctx, executionID, err)
		return err
	}
	e.logger.Info("execution submitted", zap.Uint("execution_id", executionID))
	return nil
}

// abandon fails a PENDING execution that could not be queued so that Retry
// can pick it up again.
func (e *Engine) abandon(ctx context.Context, executionID uint, cause error) {
	ctx = context.WithoutCancel(ctx)
	message := "submit failed: " + cause.Error()
	if err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		return e.tracker.AbandonExecution(ctx, tx, executionID, message)
	}); err != nil {
		e.logger.Error("failed to record unsubmitted execution",
			zap.Uint("execution_id", executionID), zap.Error(err))
		return
	}
	e.forgetStatus(ctx, executionID)
	e.logger.Warn("execution not submitted",
		zap.Uint("execution_id", executionID), zap.Error(cause))
}

// run is the state shared by Run and RunSingleNode once an execution has
// been claimed.
type run struct {
	exec    *models.WorkflowExecution
	graph   *Graph
	release cache.Release
	started time.Time
}

// claim checks the execution is PENDING, takes its lock, compiles its
// snapshot and moves it to PROCESSING.
func (e *Engine) claim(ctx context.Context, executionID uint) (*run, error) {
	exec, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != models.StatusPending {
		return nil, types.NewInvalidStateError("execution %d is %s, not pending", executionID, exec.Status)
	}

	release, err := e.locker.Acquire(ctx, lockKey(executionID), e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			if e.metrics != nil {
				e.metrics.RecordLockContention(e.lockBackend)
			}
			return nil, types.NewError(types.ErrLocked,
				fmt.Sprintf("execution %d is being run by another runner", executionID))
		}
		return nil, fmt.Errorf("acquire execution lock: %w", err)
	}
	releaseCtx := context.WithoutCancel(ctx)
	unlock := func() {
		if err := release(releaseCtx); err != nil {
			e.logger.Warn("failed to release execution lock", zap.Uint("execution_id", executionID), zap.Error(err))
		}
	}

	graph, err := Compile(exec.Config.Data())
	if err != nil {
		ferr := e.db.WithWriteTransaction(releaseCtx, func(tx *gorm.DB) error {
			return e.tracker.FinishExecution(releaseCtx, tx, executionID, models.StatusFailed, err.Error())
		})
		unlock()
		if ferr != nil {
			e.logger.Error("failed to record invalid snapshot", zap.Error(ferr))
		}
		return nil, err
	}

	if err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		return e.tracker.StartExecution(ctx, tx, executionID)
	}); err != nil {
		unlock()
		return nil, err
	}
	exec.Status = models.StatusProcessing
	if e.metrics != nil {
		e.metrics.ExecutionStarted()
	}

	return &run{
		exec:    exec,
		graph:   graph,
		release: func(context.Context) error { unlock(); return nil },
		started: time.Now(),
	}, nil
}

// finish records the terminal status of a claimed execution and releases
// its lock.
func (e *Engine) finish(ctx context.Context, r *run, status models.NodeStatus, message string) error {
	ctx = context.WithoutCancel(ctx)
	defer r.release(ctx)

	err := e.db.WithTransactionRetry(ctx, statusWriteAttempts, func(tx *gorm.DB) error {
		return e.tracker.FinishExecution(ctx, tx, r.exec.ExecutionID, status, message)
	})
	if e.metrics != nil {
		e.metrics.RecordExecution(string(r.exec.Mode), string(status), time.Since(r.started))
	}
	if err != nil {
		return err
	}

	e.logger.Info("execution finished",
		zap.Uint("execution_id", r.exec.ExecutionID),
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(r.started)))
	if e.status != nil {
		if _, err := e.GetStatus(ctx, r.exec.ExecutionID); err != nil {
			e.logger.Debug("status snapshot not cached", zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) newAdapter(ctx context.Context, r *run, single bool) (*nodeAdapter, error) {
	dm, err := storage.Load(ctx, e.db.DB(), r.exec.ProjectID, e.storage, e.logger)
	if err != nil {
		return nil, err
	}
	return &nodeAdapter{
		engine: e,
		exec:   r.exec,
		graph:  r.graph,
		state:  NewState(),
		dm:     dm,
		logger: e.logger.With(zap.Uint("execution_id", r.exec.ExecutionID)),
		single: single,
		done:   make(map[string]bool),
	}, nil
}

// Run drives a PENDING execution to COMPLETED or FAILED. Node failures are
// recorded on the execution, not returned; the error reports only why the
// execution could not be run. Single-node executions are delegated to
// RunSingleNode.
func (e *Engine) Run(ctx context.Context, executionID uint) error {
	exec, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID)
	if err != nil {
		return err
	}
	if exec.Mode == models.ModeSingleNode {
		nodes := exec.Config.Data().Nodes
		if len(nodes) != 1 {
			return types.NewConfigurationError("single-node execution %d has %d nodes", executionID, len(nodes))
		}
		_, err := e.RunSingleNode(ctx, executionID, nodes[0].ID)
		if IsNodeFailure(err) {
			return nil
		}
		return err
	}

	r, err := e.claim(ctx, executionID)
	if err != nil {
		return err
	}
	ctx = ctxkeys.WithExecutionID(ctx, executionID)
	ctx, span := telemetry.StartSpan(ctx, "workflow.execution.run",
		attribute.Int64("execution_id", int64(executionID)),
		attribute.String("mode", string(r.exec.Mode)),
		attribute.Int("nodes", r.graph.Len()))
	defer span.End()

	adapter, err := e.newAdapter(ctx, r, false)
	if err != nil {
		span.RecordError(err)
		_ = e.finish(ctx, r, models.StatusFailed, err.Error())
		return err
	}
	if e.cfg.SkipCompletedOnRetry {
		if err := e.seedCompleted(ctx, adapter); err != nil {
			_ = e.finish(ctx, r, models.StatusFailed, err.Error())
			return err
		}
	}

	report := NewDAGExecutor(r.graph, e.cfg.MaxParallelBranches, adapter.logger).Execute(ctx, adapter)
	adapter.logger.Debug("execution state", zap.Any("state", adapter.state.Snapshot()))

	status, message := models.StatusCompleted, ""
	if nodeID, nodeErr := report.FirstError(); nodeErr != nil {
		status = models.StatusFailed
		message = fmt.Sprintf("node %s failed: %v", nodeID, nodeErr)
		span.SetStatus(codes.Error, message)
	}
	return e.finish(ctx, r, status, message)
}

// seedCompleted carries over nodes that completed in an earlier attempt of
// the same execution.
func (e *Engine) seedCompleted(ctx context.Context, a *nodeAdapter) error {
	latest, err := e.tracker.LatestNodes(ctx, e.db.DB(), a.exec.ExecutionID)
	if err != nil {
		return err
	}
	seed := make(map[string]any, len(latest))
	for id, ne := range latest {
		if ne.Status != models.StatusCompleted {
			continue
		}
		if _, ok := a.graph.Node(id); !ok {
			continue
		}
		seed[models.OutputKey(id)] = append([]uint{}, ne.OutputDataIDs...)
		a.done[id] = true
	}
	return a.state.Merge(seed)
}

// NodeResult is the outcome of a single-node run.
type NodeResult struct {
	ExecutionID     uint              `json:"execution_id"`
	NodeExecutionID uint              `json:"node_execution_id"`
	NodeID          string            `json:"node_id"`
	Status          models.NodeStatus `json:"status"`
	OutputDataIDs   []uint            `json:"output_data_ids"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

// nodeFailure marks an error as the recorded failure of a node rather than
// a failure to run it.
type nodeFailure struct{ err error }

func (f *nodeFailure) Error() string { return f.err.Error() }
func (f *nodeFailure) Unwrap() error { return f.err }

// IsNodeFailure reports whether err is a node failure returned by
// RunSingleNode together with its result.
func IsNodeFailure(err error) bool {
	var f *nodeFailure
	return errors.As(err, &f)
}

// RunSingleNode runs nodeID of a PENDING execution synchronously. Inputs are
// resolved from the history of the node's predecessors. The node's failure
// is returned together with its result.
func (e *Engine) RunSingleNode(ctx context.Context, executionID uint, nodeID string) (*NodeResult, error) {
	r, err := e.claim(ctx, executionID)
	if err != nil {
		return nil, err
	}
	node, ok := r.graph.Node(nodeID)
	if !ok {
		_ = e.finish(ctx, r, models.StatusFailed, fmt.Sprintf("node %s not in execution", nodeID))
		return nil, types.NewNotFoundError("node", nodeID)
	}

	ctx = ctxkeys.WithExecutionID(ctx, executionID)
	ctx, span := telemetry.StartSpan(ctx, "workflow.execution.run_single_node",
		attribute.Int64("execution_id", int64(executionID)),
		attribute.String("node_id", nodeID))
	defer span.End()

	adapter, err := e.newAdapter(ctx, r, true)
	if err != nil {
		_ = e.finish(ctx, r, models.StatusFailed, err.Error())
		return nil, err
	}

	ne, nodeErr := adapter.run(ctx, node)
	status, message := models.StatusCompleted, ""
	if nodeErr != nil {
		status = models.StatusFailed
		message = fmt.Sprintf("node %s failed: %v", nodeID, nodeErr)
		span.SetStatus(codes.Error, message)
	}
	if err := e.finish(ctx, r, status, message); err != nil {
		return nil, err
	}

	result := &NodeResult{ExecutionID: executionID, NodeID: nodeID, Status: status}
	if ne != nil {
		result.NodeExecutionID = ne.ID
		result.OutputDataIDs = append([]uint{}, ne.OutputDataIDs...)
	}
	if nodeErr != nil {
		result.ErrorMessage = nodeErr.Error()
		return result, &nodeFailure{err: nodeErr}
	}
	return result, nil
}

// ExecuteNode creates a single-node execution of nodeID and runs it.
func (e *Engine) ExecuteNode(ctx context.Context, workflowID uint, nodeID string) (*NodeResult, error) {
	exec, err := e.CreateSingleNodeExecution(ctx, workflowID, nodeID)
	if err != nil {
		return nil, err
	}
	return e.RunSingleNode(ctx, exec.ExecutionID, nodeID)
}

// Retry resets a FAILED execution and its failed nodes to PENDING and
// submits it again.
func (e *Engine) Retry(ctx context.Context, executionID uint) error {
	if _, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID); err != nil {
		return err
	}

	var reset int64
	err := e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		n, err := e.tracker.ResetForRetry(ctx, tx, executionID)
		reset = n
		return err
	})
	if err != nil {
		return err
	}
	e.forgetStatus(ctx, executionID)
	e.logger.Info("execution reset for retry",
		zap.Uint("execution_id", executionID),
		zap.Int64("nodes_reset", reset))

	return e.Submit(ctx, executionID)
}

// DeleteExecution removes an execution with its node executions and every
// artifact they own. Source images are kept.
func (e *Engine) DeleteExecution(ctx context.Context, executionID uint) error {
	if _, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID); err != nil {
		return err
	}
	release, err := e.locker.Acquire(ctx, lockKey(executionID), e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return types.NewError(types.ErrLocked, fmt.Sprintf("execution %d is running", executionID))
		}
		return fmt.Errorf("acquire execution lock: %w", err)
	}
	defer release(context.WithoutCancel(ctx))

	err = e.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		return deleteExecutions(ctx, tx, tx.Model(&models.WorkflowExecution{}).
			Select("execution_id").Where("execution_id = ?", executionID))
	})
	if err != nil {
		return types.NewPersistenceError(fmt.Sprintf("delete execution %d", executionID), err)
	}
	e.forgetStatus(ctx, executionID)
	e.logger.Info("execution deleted", zap.Uint("execution_id", executionID))
	return nil
}

// deleteExecutions removes the executions selected by execIDs, children
// first, so it does not depend on database-level cascades.
func deleteExecutions(ctx context.Context, tx *gorm.DB, execIDs *gorm.DB) error {
	db := tx.WithContext(ctx)
	nodeIDs := db.Model(&models.WorkflowNodeExecution{}).Select("id").Where("execution_id IN (?)", execIDs)

	if err := db.Where("node_execution_id IN (?)", nodeIDs).Delete(&models.ProcessedData{}).Error; err != nil {
		return err
	}
	derived := db.Model(&models.Data{}).Select("data_id").
		Where("node_execution_id IN (?) OR workflow_execution_id IN (?)", nodeIDs, execIDs)
	if err := db.Where("original_data_id IN (?)", derived).Delete(&models.ProcessedData{}).Error; err != nil {
		return err
	}
	if err := db.Where("node_execution_id IN (?) OR workflow_execution_id IN (?)", nodeIDs, execIDs).
		Delete(&models.Data{}).Error; err != nil {
		return err
	}
	if err := db.Where("execution_id IN (?)", execIDs).Delete(&models.WorkflowNodeExecution{}).Error; err != nil {
		return err
	}
	return db.Where("execution_id IN (?)", execIDs).Delete(&models.WorkflowExecution{}).Error
}

// statusWriteAttempts bounds retries of terminal status writes on deadlock or
// busy errors.
const statusWriteAttempts = 3

func lockKey(executionID uint) string {
	return "execution:" + strconv.FormatUint(uint64(executionID), 10)
}
