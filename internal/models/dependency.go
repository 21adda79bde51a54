package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrCircularDependency is returned when a dependency would close a cycle
var ErrCircularDependency = errors.New("circular dependency")

// TaskDependency represents a "TaskID depends on DependsOnID" edge. Dependencies
// form a DAG on top of the task tree.
type TaskDependency struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      uint      `gorm:"not null;uniqueIndex:idx_task_depends_on,priority:1" json:"task_id"`
	DependsOnID uint      `gorm:"not null;index;uniqueIndex:idx_task_depends_on,priority:2" json:"depends_on_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Associations (not stored, populated by queries)
	Task      *Task `gorm:"foreignKey:TaskID;references:ID" json:"task,omitempty"`
	DependsOn *Task `gorm:"foreignKey:DependsOnID;references:ID" json:"depends_on,omitempty"`
}

// TableName specifies the table name for TaskDependency
func (TaskDependency) TableName() string {
	return "task_dependencies"
}

// BeforeCreate rejects self dependencies and dependencies that close a cycle
func (d *TaskDependency) BeforeCreate(tx *gorm.DB) error {
	if d.TaskID == d.DependsOnID {
		return ErrCircularDependency
	}
	reaches, err := DependsOnTransitively(tx.Session(&gorm.Session{NewDB: true}), d.DependsOnID, d.TaskID)
	if err != nil {
		return err
	}
	if reaches {
		return ErrCircularDependency
	}
	return nil
}

// DependsOnTransitively reports whether from reaches to by following
// dependency edges.
func DependsOnTransitively(tx *gorm.DB, from, to uint) (bool, error) {
	visited := map[uint]bool{from: true}
	queue := []uint{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var next []uint
		if err := tx.Model(&TaskDependency{}).Where("task_id = ?", current).Pluck("depends_on_id", &next).Error; err != nil {
			return false, err
		}
		for _, id := range next {
			if id == to {
				return true, nil
			}
			if !visited[id] {
				visited[id] = true
				queue = append(queue, id)
			}
		}
	}
	return false, nil
}
