package models

import (
	"time"

	"gorm.io/datatypes"
)

// =============================================================================
// 📁 项目与任务
// =============================================================================

// Project 标注项目，DataDir 为图片根目录
type Project struct {
	ProjectID       uint           `gorm:"column:project_id;primaryKey" json:"project_id"`
	Name            string         `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	DataDir         string         `gorm:"size:1024;not null;uniqueIndex" json:"data_dir"`
	TaskCategoryID  *uint          `json:"task_category_id,omitempty"`
	CurrentWorkflow datatypes.JSON `json:"current_workflow,omitempty"`
	WorkflowVersion int            `gorm:"not null;default:1" json:"workflow_version"`
	Created         time.Time      `gorm:"autoCreateTime" json:"created"`
	Modified        time.Time      `gorm:"autoUpdateTime" json:"modified"`

	Tasks      []Task              `gorm:"foreignKey:ProjectID;references:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Workflows  []Workflow          `gorm:"foreignKey:ProjectID;references:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Executions []WorkflowExecution `gorm:"foreignKey:ProjectID;references:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Data       []Data              `gorm:"foreignKey:ProjectID;references:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (Project) TableName() string { return "project" }

// 任务集合划分
const (
	SetTrain = 0
	SetVal   = 1
	SetTest  = 2
)

// Task 项目下的数据集划分
type Task struct {
	TaskID    uint      `gorm:"column:task_id;primaryKey" json:"task_id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Set       int       `gorm:"column:set;not null;default:0" json:"set"`
	Created   time.Time `gorm:"autoCreateTime" json:"created"`
	Modified  time.Time `gorm:"autoUpdateTime" json:"modified"`

	Data []Data `gorm:"foreignKey:TaskID;references:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (Task) TableName() string { return "task" }
