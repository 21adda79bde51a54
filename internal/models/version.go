package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultVariantName is the variant used when none is given
const DefaultVariantName = "Main"

// Version is one saved iteration of a task output. VersionNumber increases
// per (TaskID, VariantName).
type Version struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TaskID        uint       `gorm:"not null;index;index:idx_version_task_variant_number,priority:1" json:"task_id"`
	Task          *Task      `gorm:"foreignKey:TaskID" json:"task,omitempty"`
	VariantName   string     `gorm:"size:255;not null;default:Main;index:idx_version_task_variant_number,priority:2" json:"variant_name"`
	VersionNumber int        `gorm:"not null;index:idx_version_task_variant_number,priority:3" json:"version_number"`
	IsPublished   bool       `gorm:"default:false;index" json:"is_published"`
	Description   string     `gorm:"type:text" json:"description"`
	CreatedWith   string     `gorm:"size:100" json:"created_with"`
	Extension     string     `gorm:"size:20" json:"extension"`
	FullPath      string     `gorm:"size:1024" json:"full_path"`
	Inputs        []*Version `gorm:"many2many:version_inputs;joinForeignKey:VersionID;joinReferences:InputID" json:"inputs,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// VersionInput links a version to a version it references
type VersionInput struct {
	VersionID uint `gorm:"primaryKey" json:"version_id"`
	InputID   uint `gorm:"primaryKey;index" json:"input_id"`
}

// TableName specifies the table name for VersionInput
func (VersionInput) TableName() string {
	return "version_inputs"
}

// BeforeCreate assigns the version number and the repository relative path
func (v *Version) BeforeCreate(tx *gorm.DB) error {
	if v.TaskID == 0 {
		return fmt.Errorf("version requires a task")
	}
	if v.VariantName == "" {
		v.VariantName = DefaultVariantName
	}
	session := tx.Session(&gorm.Session{NewDB: true})
	if v.VersionNumber == 0 {
		next, err := NextVersionNumber(session, v.TaskID, v.VariantName)
		if err != nil {
			return err
		}
		v.VersionNumber = next
	}
	if v.FullPath == "" {
		p, err := VersionPath(session, v.TaskID, v.VariantName, v.VersionNumber, v.Extension)
		if err != nil {
			return err
		}
		v.FullPath = p
	}
	return nil
}

// NextVersionNumber returns max(version_number)+1 for the task and variant
func NextVersionNumber(tx *gorm.DB, taskID uint, variantName string) (int, error) {
	var highest int
	err := tx.Model(&Version{}).
		Where("task_id = ? AND variant_name = ?", taskID, variantName).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&highest).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max version number: %w", err)
	}
	return highest + 1, nil
}

// TaskPathParts returns the project code followed by the nice names of the
// task's parents and the task itself.
func TaskPathParts(tx *gorm.DB, taskID uint) ([]string, error) {
	var names []string
	var projectID uint
	id := &taskID
	for id != nil {
		var t Task
		if err := tx.Select("id", "project_id", "parent_id", "name").First(&t, *id).Error; err != nil {
			return nil, fmt.Errorf("task %d: %w", *id, err)
		}
		names = append(names, NiceName(t.Name))
		projectID = t.ProjectID
		id = t.ParentID
	}

	var project Project
	if err := tx.Select("id", "code").First(&project, projectID).Error; err != nil {
		return nil, fmt.Errorf("project %d: %w", projectID, err)
	}

	parts := make([]string, 0, len(names)+1)
	parts = append(parts, project.Code)
	for i := len(names) - 1; i >= 0; i-- {
		parts = append(parts, names[i])
	}
	return parts, nil
}

// VersionPath builds the repository relative path of a version file:
// {project code}/{parents...}/{task}/{variant}/{task}_{variant}_v{NNN}{ext}
func VersionPath(tx *gorm.DB, taskID uint, variantName string, versionNumber int, extension string) (string, error) {
	parts, err := TaskPathParts(tx, taskID)
	if err != nil {
		return "", err
	}
	dir := path.Join(append(parts, variantName)...)
	return path.Join(dir, VersionFilename(parts[len(parts)-1], variantName, versionNumber, extension)), nil
}

// VersionFilename returns the file name for a version of the named task
func VersionFilename(taskNiceName, variantName string, versionNumber int, extension string) string {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return fmt.Sprintf("%s_%s_v%03d%s", taskNiceName, variantName, versionNumber, extension)
}

// Publish marks the version as published
func (v *Version) Publish() {
	v.IsPublished = true
}

// Label returns a short human readable description like "Main v003"
func (v *Version) Label() string {
	return fmt.Sprintf("%s v%03d", v.VariantName, v.VersionNumber)
}
