package models

import (
	"time"

	"gorm.io/datatypes"
)

// Data is an image row. Source images live in stage "original" and are owned
// by the project; derived rows carry the execution that produced them.
type Data struct {
	DataID              uint              `gorm:"column:data_id;primaryKey" json:"data_id"`
	Path                string            `gorm:"size:1024;not null" json:"path"`
	TaskID              uint              `gorm:"not null;index" json:"task_id"`
	ProjectID           uint              `gorm:"not null;index:idx_data_project_stage,priority:1" json:"project_id"`
	Predicted           bool              `gorm:"not null;default:false" json:"predicted"`
	OriginalDataID      *uint             `gorm:"index" json:"original_data_id,omitempty"`
	WorkflowExecutionID *uint             `gorm:"index" json:"workflow_execution_id,omitempty"`
	NodeExecutionID     *uint             `gorm:"index" json:"node_execution_id,omitempty"`
	ProcessingStage     string            `gorm:"size:255;not null;default:original;index:idx_data_project_stage,priority:2" json:"processing_stage"`
	Category            string            `gorm:"size:255" json:"category,omitempty"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty"`
	Created             time.Time         `gorm:"autoCreateTime" json:"created"`
	Modified            time.Time         `gorm:"autoUpdateTime" json:"modified"`

	Derived       []Data          `gorm:"foreignKey:OriginalDataID;references:DataID;constraint:OnDelete:CASCADE" json:"-"`
	ProcessedData []ProcessedData `gorm:"foreignKey:OriginalDataID;references:DataID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Data) TableName() string { return "data" }

// LineageRoot returns the id of the source image this row descends from.
func (d Data) LineageRoot() uint {
	if d.OriginalDataID != nil {
		return *d.OriginalDataID
	}
	return d.DataID
}

// ProcessedData is an intermediate artifact written by a node execution.
type ProcessedData struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	OriginalDataID  *uint             `gorm:"index" json:"original_data_id,omitempty"`
	NodeExecutionID uint              `gorm:"not null;index" json:"node_execution_id"`
	FilePath        string            `gorm:"size:1024;not null" json:"file_path"`
	FileType        string            `gorm:"size:32;not null;default:image" json:"file_type"`
	Format          string            `gorm:"size:16;not null;default:jpg" json:"format"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (ProcessedData) TableName() string { return "processed_data" }
