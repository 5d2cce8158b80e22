package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

// runOptions 描述一次命令行执行
type runOptions struct {
	WorkflowID uint
	NodeID     string
	GraphFile  string
	ProjectID  uint
}

func (o runOptions) validate() error {
	switch {
	case o.GraphFile != "" && o.ProjectID == 0:
		return errors.New("--graph requires --project")
	case o.GraphFile != "" && (o.WorkflowID != 0 || o.NodeID != ""):
		return errors.New("--graph cannot be combined with --workflow or --node")
	case o.GraphFile == "" && o.WorkflowID == 0:
		return errors.New("--workflow or --graph is required")
	}
	return nil
}

func runWorkflow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workflowID := fs.Uint("workflow", 0, "Workflow ID")
	nodeID := fs.String("node", "", "Execute only this node")
	graphFile := fs.String("graph", "", "Workflow graph file (YAML or JSON)")
	projectID := fs.Uint("project", 0, "Project ID for --graph")
	_ = fs.Parse(args)

	opts := runOptions{
		WorkflowID: *workflowID,
		NodeID:     *nodeID,
		GraphFile:  *graphFile,
		ProjectID:  *projectID,
	}
	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	// stdout 只输出状态 JSON
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := labelflow.New(ctx, cfg, labelflow.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to initialize runtime", zap.Error(err))
	}

	runErr := executeRun(ctx, rt.Engine, opts, os.Stdout)
	if err := rt.Close(context.Background()); err != nil {
		logger.Warn("Runtime close failed", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("Run failed", zap.Error(runErr))
		os.Exit(1)
	}
}

// executeRun 同步执行并把状态快照以 JSON 写入 out。执行结束但状态为
// FAILED 时同样输出快照并返回错误。
func executeRun(ctx context.Context, engine *workflow.Engine, opts runOptions, out io.Writer) error {
	var executionID uint
	var runErr error

	switch {
	case opts.NodeID != "":
		result, err := engine.ExecuteNode(ctx, opts.WorkflowID, opts.NodeID)
		if err != nil && !workflow.IsNodeFailure(err) {
			return err
		}
		executionID = result.ExecutionID

	default:
		var exec *models.WorkflowExecution
		var err error
		if opts.GraphFile != "" {
			graph, loadErr := workflow.LoadConfigFile(opts.GraphFile)
			if loadErr != nil {
				return loadErr
			}
			exec, err = engine.CreateExecutionFromConfig(ctx, opts.ProjectID, graph)
		} else {
			exec, err = engine.CreateExecution(ctx, opts.WorkflowID, workflow.ExecutionOptions{})
		}
		if err != nil {
			return err
		}
		executionID = exec.ExecutionID
		runErr = engine.Run(ctx, executionID)
	}

	st, err := engine.GetStatus(ctx, executionID)
	if err != nil {
		return errors.Join(runErr, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if st.Status == models.StatusFailed {
		return fmt.Errorf("execution %d failed: %s", executionID, st.ErrorMessage)
	}
	return nil
}
