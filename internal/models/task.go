package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Task status constants (Stalker workflow codes)
const (
	StatusWaiting       = "wfd"
	StatusReady         = "rts"
	StatusInProgress    = "wip"
	StatusPendingReview = "prev"
	StatusHasRevision   = "hrev"
	StatusDependentRev  = "drev"
	StatusOnHold        = "oh"
	StatusStopped       = "stop"
	StatusCompleted     = "cmpl"
)

// Entity type constants
const (
	EntityTask     = "Task"
	EntityAsset    = "Asset"
	EntityShot     = "Shot"
	EntitySequence = "Sequence"
)

// Date format constants
const (
	DateTimeFormat      = "2006-01-02 15:04:05"
	DateTimeShortFormat = "2006-01-02 15:04"
)

var (
	ErrNameRequired      = errors.New("name is required")
	ErrCodeRequired      = errors.New("code is required")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

var validStatuses = map[string]bool{
	StatusWaiting:       true,
	StatusReady:         true,
	StatusInProgress:    true,
	StatusPendingReview: true,
	StatusHasRevision:   true,
	StatusDependentRev:  true,
	StatusOnHold:        true,
	StatusStopped:       true,
	StatusCompleted:     true,
}

// ValidStatus reports whether s is a known task status code
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// Task is a node in the production hierarchy. Assets, Shots and Sequences are
// tasks with a code.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ProjectID   uint       `gorm:"not null;index;index:idx_task_project_parent_name,priority:1" json:"project_id"`
	Project     *Project   `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	ParentID    *uint      `gorm:"index;index:idx_task_project_parent_name,priority:2" json:"parent_id,omitempty"`
	Parent      *Task      `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	EntityType  string     `gorm:"size:20;not null;default:Task;index" json:"entity_type"`
	Name        string     `gorm:"size:255;not null;index:idx_task_project_parent_name,priority:3" json:"name"`
	Code        string     `gorm:"size:100" json:"code,omitempty"`
	Description string     `gorm:"type:text" json:"description"`
	TypeID      *uint      `gorm:"index" json:"type_id,omitempty"`
	Type        *Type      `gorm:"foreignKey:TypeID" json:"type"`
	Status      string     `gorm:"size:10;default:wfd;index" json:"status"`
	SequenceID  *uint      `gorm:"index" json:"sequence_id,omitempty"` // Shot only
	Children    []*Task    `gorm:"foreignKey:ParentID" json:"tasks"`
	Versions    []*Version `gorm:"foreignKey:TaskID" json:"versions"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTyped returns true for Asset, Shot and Sequence entities which carry a code
func IsTyped(entityType string) bool {
	switch entityType {
	case EntityAsset, EntityShot, EntitySequence:
		return true
	}
	return false
}

// ValidEntityType reports whether entityType is one of the task subtypes
func ValidEntityType(entityType string) bool {
	return entityType == EntityTask || IsTyped(entityType)
}

// BeforeCreate validates the task and fills defaults
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.EntityType == "" {
		t.EntityType = EntityTask
	}
	if !ValidEntityType(t.EntityType) {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, t.EntityType)
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrNameRequired
	}
	if IsTyped(t.EntityType) && strings.TrimSpace(t.Code) == "" {
		return fmt.Errorf("%s %q: %w", t.EntityType, t.Name, ErrCodeRequired)
	}
	if t.Status == "" {
		t.Status = StatusWaiting
	}
	return nil
}

// IsCompleted returns true if the task is completed
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// IsRoot returns true if the task has no parent
func (t *Task) IsRoot() bool {
	return t.ParentID == nil
}

// TypeName returns the name of the task type or an empty string
func (t *Task) TypeName() string {
	if t.Type == nil {
		return ""
	}
	return t.Type.Name
}

var nonNiceChars = regexp.MustCompile(`[^a-zA-Z0-9_@\-]+`)

// NiceName converts a name into a form safe for file system paths
func NiceName(name string) string {
	nice := nonNiceChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(nice, "_")
}

// StatusString returns a human-readable status string
func (t *Task) StatusString() string {
	switch t.Status {
	case StatusWaiting:
		return "Waiting For Dependency"
	case StatusReady:
		return "Ready To Start"
	case StatusInProgress:
		return "Work In Progress"
	case StatusPendingReview:
		return "Pending Review"
	case StatusHasRevision:
		return "Has Revision"
	case StatusDependentRev:
		return "Dependency Has Revision"
	case StatusOnHold:
		return "On Hold"
	case StatusStopped:
		return "Stopped"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}
