package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"pipekit/internal/models"
)

// ErrNotFound is returned by lookups that find no row
var ErrNotFound = errors.New("not found")

// ParseID parses a numeric entity id given on the command line
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

// GetTaskByID loads a task with its type
func GetTaskByID(tx *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	if err := tx.Preload("Type").First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &task, nil
}

// GetVersionByID loads a version with its task and inputs
func GetVersionByID(tx *gorm.DB, id uint) (*models.Version, error) {
	var version models.Version
	if err := tx.Preload("Task").Preload("Inputs").First(&version, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("version %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &version, nil
}

// GetProject finds a project by code, name or numeric id
func GetProject(tx *gorm.DB, ref string) (*models.Project, error) {
	var project models.Project
	query := tx.Where("code = ? OR name = ?", ref, ref)
	if id, err := ParseID(ref); err == nil {
		query = tx.Where("id = ? OR code = ? OR name = ?", id, ref, ref)
	}
	if err := query.First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %q: %w", ref, ErrNotFound)
		}
		return nil, err
	}
	return &project, nil
}

// FindChildByName returns the task named name directly under parent (or at the
// project root when parent is nil), or nil if there is none.
func FindChildByName(tx *gorm.DB, projectID uint, parentID *uint, name string) (*models.Task, error) {
	var task models.Task
	query := tx.Where("project_id = ? AND name = ?", projectID, name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	err := query.Order("id ASC").Limit(1).Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == 0 {
		return nil, nil
	}
	return &task, nil
}

// TaskHierarchyName returns "Parent | Child | Task" style names used in
// progress and report messages.
func TaskHierarchyName(tx *gorm.DB, taskID uint) (string, error) {
	parts, err := models.TaskPathParts(tx, taskID)
	if err != nil {
		return "", err
	}
	return strings.Join(parts[1:], " | "), nil
}

// ChildrenOf returns the direct children of a task ordered by name
func ChildrenOf(tx *gorm.DB, taskID uint) ([]models.Task, error) {
	var children []models.Task
	err := tx.Where("parent_id = ?", taskID).Order("name ASC, id ASC").Find(&children).Error
	return children, err
}

// AddDependency records that task depends on dependsOn
func AddDependency(tx *gorm.DB, taskID, dependsOnID uint) (*models.TaskDependency, error) {
	dep := &models.TaskDependency{TaskID: taskID, DependsOnID: dependsOnID}
	if err := tx.Create(dep).Error; err != nil {
		return nil, err
	}
	return dep, nil
}

// AddVersionInputs records that version references each of inputs
func AddVersionInputs(tx *gorm.DB, versionID uint, inputIDs ...uint) error {
	for _, inputID := range inputIDs {
		if inputID == versionID {
			return fmt.Errorf("version %d cannot reference itself", versionID)
		}
		link := models.VersionInput{VersionID: versionID, InputID: inputID}
		if err := tx.Where(link).FirstOrCreate(&link).Error; err != nil {
			return fmt.Errorf("failed to link input %d to version %d: %w", inputID, versionID, err)
		}
	}
	return nil
}

// InputIDs returns the ids of the versions referenced by each given version
func InputIDs(tx *gorm.DB, versionIDs []uint) (map[uint][]uint, error) {
	result := make(map[uint][]uint, len(versionIDs))
	if len(versionIDs) == 0 {
		return result, nil
	}
	var links []models.VersionInput
	if err := tx.Where("version_id IN ?", versionIDs).Order("version_id ASC, input_id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	for _, l := range links {
		result[l.VersionID] = append(result[l.VersionID], l.InputID)
	}
	return result, nil
}
