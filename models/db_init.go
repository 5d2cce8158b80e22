package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All returns every model in dependency order.
func All() []any {
	return []any{
		&Project{},
		&Task{},
		&Workflow{},
		&WorkflowExecution{},
		&WorkflowNodeExecution{},
		&Data{},
		&ProcessedData{},
	}
}

// InitDatabase 自动迁移所有表格
// 支持: PostgreSQL, MySQL, SQLite
func InitDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
