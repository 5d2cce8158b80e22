package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/internal/database"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/storage"
)

// Service owns project and workflow records and the read-side queries over
// execution artifacts.
type Service struct {
	db      *database.PoolManager
	storage config.StorageConfig
	logger  *zap.Logger
}

// NewService creates a service over db.
func NewService(db *database.PoolManager, storageCfg config.StorageConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		storage: storageCfg,
		logger:  logger.With(zap.String("component", "workflow_service")),
	}
}

// =============================================================================
// Projects
// =============================================================================

// ProjectInput describes a new project.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DataDir     string `json:"data_dir"`
}

// CreateProject inserts a project and creates its source image directory.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "project name is required")
	}
	if strings.TrimSpace(in.DataDir) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "project data_dir is required")
	}

	project := &models.Project{Name: in.Name, Description: in.Description, DataDir: in.DataDir}
	err := s.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Create(project).Error
	})
	if err != nil {
		return nil, types.NewPersistenceError("create project", err)
	}

	dm := storage.New(s.db.DB(), project, s.storage, s.logger)
	if err := dm.EnsureDir(storage.StageDir(models.NodeImageSource)); err != nil {
		s.logger.Warn("source directory not created", zap.Uint("project_id", project.ProjectID), zap.Error(err))
	}
	s.logger.Info("project created", zap.Uint("project_id", project.ProjectID), zap.String("name", project.Name))
	return project, nil
}

// GetProject loads a project.
func (s *Service) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.DB().WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, notFoundOr(err, "project", id)
	}
	return &project, nil
}

// DeleteProject removes a project with its workflows, executions, artifacts
// and tasks. Files on disk are left in place.
func (s *Service) DeleteProject(ctx context.Context, id uint) error {
	if _, err := s.GetProject(ctx, id); err != nil {
		return err
	}
	err := s.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		db := tx.WithContext(ctx)
		execIDs := db.Model(&models.WorkflowExecution{}).Select("execution_id").Where("project_id = ?", id)
		if err := deleteExecutions(ctx, tx, execIDs); err != nil {
			return err
		}
		dataIDs := db.Model(&models.Data{}).Select("data_id").Where("project_id = ?", id)
		if err := db.Where("original_data_id IN (?)", dataIDs).Delete(&models.ProcessedData{}).Error; err != nil {
			return err
		}
		if err := db.Where("project_id = ?", id).Delete(&models.Data{}).Error; err != nil {
			return err
		}
		if err := db.Where("project_id = ?", id).Delete(&models.Workflow{}).Error; err != nil {
			return err
		}
		if err := db.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		return db.Delete(&models.Project{}, id).Error
	})
	if err != nil {
		return types.NewPersistenceError("delete project", err)
	}
	s.logger.Info("project deleted", zap.Uint("project_id", id))
	return nil
}

// =============================================================================
// Workflows
// =============================================================================

// WorkflowInput describes a new workflow.
type WorkflowInput struct {
	ProjectID   uint                  `json:"project_id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Config      models.WorkflowConfig `json:"config"`
}

// WorkflowPatch updates the fields that are set.
type WorkflowPatch struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Config      *models.WorkflowConfig `json:"config,omitempty"`
}

// CreateWorkflow validates the graph before writing anything, stores the
// workflow and makes it the project's current workflow.
func (s *Service) CreateWorkflow(ctx context.Context, in WorkflowInput) (*models.Workflow, error) {
	if err := ValidateConfig(in.Config); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "workflow name is required")
	}
	if _, err := s.GetProject(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	wf := &models.Workflow{
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Description: in.Description,
	}
	wf.Config = datatypes.NewJSONType(in.Config)

	err := s.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(wf).Error; err != nil {
			return err
		}
		return setCurrentWorkflow(ctx, tx, in.ProjectID, in.Config, false)
	})
	if err != nil {
		return nil, types.NewPersistenceError("create workflow", err)
	}
	s.logger.Info("workflow created",
		zap.Uint("workflow_id", wf.WorkflowID),
		zap.Uint("project_id", wf.ProjectID),
		zap.Int("nodes", len(in.Config.Nodes)))
	return wf, nil
}

// GetWorkflow loads a workflow.
func (s *Service) GetWorkflow(ctx context.Context, id uint) (*models.Workflow, error) {
	var wf models.Workflow
	if err := s.db.DB().WithContext(ctx).First(&wf, id).Error; err != nil {
		return nil, notFoundOr(err, "workflow", id)
	}
	return &wf, nil
}

// UpdateWorkflow applies patch. A new graph is validated first and bumps
// the project's workflow version; executions keep their own snapshot.
func (s *Service) UpdateWorkflow(ctx context.Context, id uint, patch WorkflowPatch) (*models.Workflow, error) {
	if patch.Config != nil {
		if err := ValidateConfig(*patch.Config); err != nil {
			return nil, err
		}
	}
	wf, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "workflow name must not be empty")
		}
		wf.Name = *patch.Name
	}
	if patch.Description != nil {
		wf.Description = *patch.Description
	}
	if patch.Config != nil {
		wf.Config = datatypes.NewJSONType(*patch.Config)
	}

	err = s.db.WithWriteTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(wf).Error; err != nil {
			return err
		}
		if patch.Config == nil {
			return nil
		}
		return setCurrentWorkflow(ctx, tx, wf.ProjectID, *patch.Config, true)
	})
	if err != nil {
		return nil, types.NewPersistenceError("update workflow", err)
	}
	s.logger.Info("workflow updated", zap.Uint("workflow_id", id), zap.Bool("config_changed", patch.Config != nil))
	return wf, nil
}

// GetProjectWorkflow returns the most recently created workflow of a
// project.
func (s *Service) GetProjectWorkflow(ctx context.Context, projectID uint) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.DB().WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("workflow_id DESC").
		First(&wf).Error
	if err != nil {
		return nil, notFoundOr(err, "workflow for project", projectID)
	}
	return &wf, nil
}

// ListProjectWorkflows lists a project's workflows, oldest first.
func (s *Service) ListProjectWorkflows(ctx context.Context, projectID uint) ([]models.Workflow, error) {
	var out []models.Workflow
	if err := s.db.DB().WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("workflow_id").
		Find(&out).Error; err != nil {
		return nil, types.NewPersistenceError("list workflows", err)
	}
	return out, nil
}

func setCurrentWorkflow(ctx context.Context, tx *gorm.DB, projectID uint, cfg models.WorkflowConfig, bump bool) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	updates := map[string]any{"current_workflow": datatypes.JSON(raw)}
	if bump {
		updates["workflow_version"] = gorm.Expr("workflow_version + 1")
	}
	return tx.WithContext(ctx).Model(&models.Project{}).
		Where("project_id = ?", projectID).
		Updates(updates).Error
}

// =============================================================================
// Executions and artifacts
// =============================================================================

// ListExecutions lists a workflow's executions, newest first.
func (s *Service) ListExecutions(ctx context.Context, workflowID uint) ([]models.WorkflowExecution, error) {
	if _, err := s.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	var out []models.WorkflowExecution
	if err := s.db.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("execution_id DESC").
		Find(&out).Error; err != nil {
		return nil, types.NewPersistenceError("list executions", err)
	}
	return out, nil
}

// GetExecutionStageData lists the artifacts an execution wrote at stage.
// Source images are project-owned, so stage "original" returns the project's
// source rows.
func (s *Service) GetExecutionStageData(ctx context.Context, executionID uint, stage, category string) ([]models.Data, error) {
	var exec models.WorkflowExecution
	if err := s.db.DB().WithContext(ctx).First(&exec, executionID).Error; err != nil {
		return nil, notFoundOr(err, "execution", executionID)
	}
	q := storage.StageQuery{Stage: stage, Category: category}
	if stage != models.StageOriginal {
		q.ExecutionID = &exec.ExecutionID
	}
	rows, err := storage.DataByStage(ctx, s.db.DB(), exec.ProjectID, q)
	if err != nil {
		return nil, types.NewPersistenceError("query stage data", err)
	}
	return rows, nil
}

// NodeData is everything one node execution wrote.
type NodeData struct {
	NodeExecution models.WorkflowNodeExecution `json:"node_execution"`
	ProcessedData []models.ProcessedData       `json:"processed_data"`
	Data          []models.Data                `json:"data"`
}

// GetNodeData returns a node execution with the rows it owns.
func (s *Service) GetNodeData(ctx context.Context, nodeExecutionID uint) (*NodeData, error) {
	db := s.db.DB().WithContext(ctx)
	out := &NodeData{ProcessedData: []models.ProcessedData{}, Data: []models.Data{}}
	if err := db.First(&out.NodeExecution, nodeExecutionID).Error; err != nil {
		return nil, notFoundOr(err, "node execution", nodeExecutionID)
	}
	if err := db.Where("node_execution_id = ?", nodeExecutionID).Order("id").Find(&out.ProcessedData).Error; err != nil {
		return nil, types.NewPersistenceError("load processed data", err)
	}
	if err := db.Where("node_execution_id = ?", nodeExecutionID).Order("data_id").Find(&out.Data).Error; err != nil {
		return nil, types.NewPersistenceError("load data", err)
	}
	return out, nil
}

func notFoundOr(err error, kind string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewNotFoundError(kind, id)
	}
	return types.NewPersistenceError("load "+kind, err)
}
