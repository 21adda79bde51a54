package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskHistory records changes to tasks
type TaskHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"index;not null" json:"task_id"`
	Field     string    `gorm:"size:50;not null" json:"field"`
	OldValue  string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue  string    `gorm:"type:text" json:"new_value,omitempty"`
	ChangedBy string    `gorm:"size:100" json:"changed_by,omitempty"`
	ChangedAt time.Time `gorm:"autoCreateTime" json:"changed_at"`
}

// RecordChange creates a history entry for a field change
func RecordChange(db *gorm.DB, taskID uint, field, oldValue, newValue, changedBy string) error {
	if oldValue == newValue {
		return nil // No change
	}
	entry := &TaskHistory{
		TaskID:    taskID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: changedBy,
	}
	return db.Create(entry).Error
}
