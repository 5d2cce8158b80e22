package models

import (
	"time"

	"gorm.io/datatypes"
)

// Workflow is a named graph owned by a project.
type Workflow struct {
	WorkflowID  uint                               `gorm:"column:workflow_id;primaryKey" json:"workflow_id"`
	ProjectID   uint                               `gorm:"not null;index" json:"project_id"`
	Name        string                             `gorm:"size:255;not null" json:"name"`
	Description string                             `gorm:"type:text" json:"description"`
	Config      datatypes.JSONType[WorkflowConfig] `json:"config"`
	Created     time.Time                          `gorm:"autoCreateTime" json:"created"`
	Modified    time.Time                          `gorm:"autoUpdateTime" json:"modified"`

	Executions []WorkflowExecution `gorm:"foreignKey:WorkflowID;references:WorkflowID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Workflow) TableName() string { return "workflow" }

// WorkflowExecution is one run of a workflow (or of a single-node snapshot).
// Config is the graph snapshot taken at creation; later edits to the
// workflow do not affect it.
type WorkflowExecution struct {
	ExecutionID     uint                               `gorm:"column:execution_id;primaryKey" json:"execution_id"`
	WorkflowID      *uint                              `gorm:"index" json:"workflow_id,omitempty"`
	ProjectID       uint                               `gorm:"not null;index" json:"project_id"`
	WorkflowVersion int                                `gorm:"not null;default:1" json:"workflow_version"`
	Mode            ExecutionMode                      `gorm:"size:16;not null;default:graph" json:"mode"`
	Status          NodeStatus                         `gorm:"size:16;not null;default:pending;index" json:"status"`
	Config          datatypes.JSONType[WorkflowConfig] `json:"config"`
	ParamOverrides  datatypes.JSONMap                  `json:"param_overrides,omitempty"`
	StartedAt       *time.Time                         `json:"started_at,omitempty"`
	CompletedAt     *time.Time                         `json:"completed_at,omitempty"`
	ErrorMessage    *string                            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time                          `json:"created_at"`

	NodeExecutions []WorkflowNodeExecution `gorm:"foreignKey:ExecutionID;references:ExecutionID;constraint:OnDelete:CASCADE" json:"node_executions,omitempty"`
	Data           []Data                  `gorm:"foreignKey:WorkflowExecutionID;references:ExecutionID;constraint:OnDelete:SET NULL" json:"-"`
}

func (WorkflowExecution) TableName() string { return "workflow_execution" }

// WorkflowNodeExecution records the run of one node inside an execution.
type WorkflowNodeExecution struct {
	ID            uint                           `gorm:"primaryKey" json:"id"`
	ExecutionID   uint                           `gorm:"not null;index:idx_node_exec_execution_node,priority:1" json:"execution_id"`
	NodeID        string                         `gorm:"size:255;not null;index:idx_node_exec_execution_node,priority:2;index:idx_node_exec_node_completed,priority:1" json:"node_id"`
	NodeType      NodeType                       `gorm:"size:64;not null" json:"node_type"`
	Status        NodeStatus                     `gorm:"size:16;not null;default:pending" json:"status"`
	Config        datatypes.JSONType[NodeConfig] `json:"config"`
	InputDataIDs  datatypes.JSONSlice[uint]      `json:"input_data_ids"`
	OutputDataIDs datatypes.JSONSlice[uint]      `json:"output_data_ids"`
	ErrorMessage  *string                        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt     *time.Time                     `json:"started_at,omitempty"`
	CompletedAt   *time.Time                     `gorm:"index:idx_node_exec_node_completed,priority:2" json:"completed_at,omitempty"`
	CreatedAt     time.Time                      `json:"created_at"`

	ProcessedData []ProcessedData `gorm:"foreignKey:NodeExecutionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Data          []Data          `gorm:"foreignKey:NodeExecutionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WorkflowNodeExecution) TableName() string { return "workflow_node_execution" }

// IDList converts ids into a non-nil JSON slice column value.
func IDList(ids []uint) datatypes.JSONSlice[uint] {
	if ids == nil {
		return datatypes.JSONSlice[uint]{}
	}
	return datatypes.JSONSlice[uint](ids)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
