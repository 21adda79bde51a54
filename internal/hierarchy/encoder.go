// Package hierarchy serializes task trees to JSON and replays them into a
// project without duplicating tasks or versions that already exist.
package hierarchy

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

// IgnoreFields lists the keys dropped from every encoded object. They are
// ids, links back into the database, timestamps and derived values that
// would tie a document to the database it came from.
var IgnoreFields = []string{
	// generic
	"id",
	"created_at",
	"updated_at",
	// task
	"children",
	"dependent_of",
	"depends",
	"parent",
	"parent_id",
	"parents",
	"project",
	"project_id",
	"sequence_id",
	"status",
	"type_id",
	// version
	"full_path",
	"inputs",
	"outputs",
	"task",
	"task_id",
	"version_id",
}

// Encoder converts stored task trees into documents.
type Encoder struct {
	db *gorm.DB
}

// NewEncoder returns an encoder reading from tx.
func NewEncoder(tx *gorm.DB) *Encoder {
	return &Encoder{db: tx}
}

// Marshal encodes the subtree rooted at taskID as indented JSON.
func (e *Encoder) Marshal(taskID uint) ([]byte, error) {
	doc, err := e.Encode(taskID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "    ")
}

// Encode builds the document of the subtree rooted at taskID.
func (e *Encoder) Encode(taskID uint) (map[string]any, error) {
	task, err := db.GetTaskByID(e.db, taskID)
	if err != nil {
		return nil, err
	}
	return e.encodeTask(task)
}

func (e *Encoder) encodeTask(task *models.Task) (map[string]any, error) {
	typ := task.Type

	// associations are encoded separately below
	flat := *task
	flat.Project, flat.Parent, flat.Type = nil, nil, nil
	flat.Children, flat.Versions = nil, nil

	doc, err := toMap(flat)
	if err != nil {
		return nil, fmt.Errorf("encode task %d: %w", task.ID, err)
	}

	doc["type"] = nil
	if typ != nil {
		typeDoc, err := toMap(typ)
		if err != nil {
			return nil, fmt.Errorf("encode type %d: %w", typ.ID, err)
		}
		typeDoc["entity_type"] = "Type"
		doc["type"] = typeDoc
	}

	var versions []models.Version
	if err := e.db.Where("task_id = ?", task.ID).
		Order("variant_name ASC, version_number ASC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("load versions of task %d: %w", task.ID, err)
	}
	versionDocs := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		vDoc, err := toMap(v)
		if err != nil {
			return nil, fmt.Errorf("encode version %d: %w", v.ID, err)
		}
		versionDocs = append(versionDocs, vDoc)
	}
	doc["versions"] = versionDocs

	children, err := db.ChildrenOf(e.db, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load children of task %d: %w", task.ID, err)
	}
	childDocs := make([]map[string]any, 0, len(children))
	for i := range children {
		child, err := db.GetTaskByID(e.db, children[i].ID)
		if err != nil {
			return nil, err
		}
		childDoc, err := e.encodeTask(child)
		if err != nil {
			return nil, err
		}
		childDocs = append(childDocs, childDoc)
	}
	doc["tasks"] = childDocs

	return doc, nil
}

// toMap round trips v through JSON and removes the ignored fields.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for _, field := range IgnoreFields {
		delete(m, field)
	}
	return m, nil
}
