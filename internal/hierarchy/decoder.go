package hierarchy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pipekit/internal/db"
	"pipekit/internal/log"
	"pipekit/internal/models"
)

// ErrVersionNumberRequired is returned for version nodes without a positive
// version_number, which could never be matched on replay.
var ErrVersionNumberRequired = errors.New("version_number is required")

// Node is one task of a hierarchy document.
type Node struct {
	// ID is only present in documents written by other tools; repeated ids
	// resolve to the task created for their first occurrence.
	ID          json.RawMessage `json:"id,omitempty"`
	EntityType  *string         `json:"entity_type"`
	Name        string          `json:"name"`
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description,omitempty"`
	Type        *TypeNode       `json:"type"`
	Tasks       []*Node         `json:"tasks"`
	Versions    []*VersionNode  `json:"versions"`
}

// TypeNode is the embedded type of a task.
type TypeNode struct {
	Name             string `json:"name"`
	Code             string `json:"code,omitempty"`
	TargetEntityType string `json:"target_entity_type,omitempty"`
}

// VersionNode is one version of a task.
type VersionNode struct {
	VariantName   string `json:"variant_name"`
	TakeName      string `json:"take_name,omitempty"`
	VersionNumber int    `json:"version_number"`
	IsPublished   bool   `json:"is_published"`
	Description   string `json:"description,omitempty"`
	CreatedWith   string `json:"created_with,omitempty"`
	Extension     string `json:"extension,omitempty"`
}

func (v *VersionNode) variantName() string {
	switch {
	case v.VariantName != "":
		return v.VariantName
	case v.TakeName != "":
		return v.TakeName
	}
	return models.DefaultVariantName
}

// Decoder materializes documents into a project.
type Decoder struct {
	// AlwaysCreateRoot creates the top level task of every Decode call even
	// when a task with the same name already sits under the parent. Nested
	// tasks are always matched by name.
	AlwaysCreateRoot bool

	db      *gorm.DB
	project *models.Project
	created map[string]*models.Task
}

// NewDecoder returns a decoder writing into project through tx.
func NewDecoder(tx *gorm.DB, project *models.Project) *Decoder {
	return &Decoder{
		db:      tx,
		project: project,
		created: map[string]*models.Task{},
	}
}

// DecodeBytes decodes a JSON document and attaches it under parent (nil for
// the project root).
func (d *Decoder) DecodeBytes(data []byte, parent *models.Task) (*models.Task, error) {
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return d.Decode(&node, parent)
}

// DecodeReader is DecodeBytes for a stream.
func (d *Decoder) DecodeReader(r io.Reader, parent *models.Task) (*models.Task, error) {
	var node Node
	if err := json.NewDecoder(r).Decode(&node); err != nil {
		return nil, err
	}
	return d.Decode(&node, parent)
}

// Decode materializes node under parent and returns its task. A node without
// an entity type yields a nil task.
func (d *Decoder) Decode(node *Node, parent *models.Task) (*models.Task, error) {
	return d.decode(node, parent, true)
}

func (d *Decoder) decode(node *Node, parent *models.Task, top bool) (*models.Task, error) {
	if node == nil {
		return nil, nil
	}
	key := string(node.ID)
	if key != "" {
		if task, ok := d.created[key]; ok {
			return task, nil
		}
	}
	if node.EntityType == nil {
		return nil, nil
	}

	var parentID *uint
	if parent != nil {
		parentID = &parent.ID
	}

	var entity *models.Task
	if !top || !d.AlwaysCreateRoot {
		existing, err := db.FindChildByName(d.db, d.project.ID, parentID, node.Name)
		if err != nil {
			return nil, fmt.Errorf("look up %q: %w", node.Name, err)
		}
		entity = existing
	}

	if entity == nil {
		created, err := d.create(node, parentID)
		if err != nil {
			return nil, err
		}
		entity = created
	} else {
		log.Debug("reusing existing task", "task_id", entity.ID, "name", entity.Name)
	}
	if key != "" {
		d.created[key] = entity
	}

	if err := d.decodeVersions(entity, node.Versions); err != nil {
		return nil, err
	}

	for _, childNode := range node.Tasks {
		child, err := d.decode(childNode, entity, false)
		if err != nil {
			return nil, err
		}
		if child != nil {
			entity.Children = append(entity.Children, child)
		}
	}

	entity.Parent = parent
	return entity, nil
}

func (d *Decoder) create(node *Node, parentID *uint) (*models.Task, error) {
	entityType := *node.EntityType
	if !models.ValidEntityType(entityType) {
		entityType = models.EntityTask
	}

	entity := &models.Task{
		ProjectID:   d.project.ID,
		ParentID:    parentID,
		EntityType:  entityType,
		Name:        node.Name,
		Code:        node.Code,
		Description: node.Description,
	}
	if entityType == models.EntityShot {
		// the sequence link is resolved by the caller
		entity.SequenceID = nil
	}

	typ, err := d.resolveType(node.Type)
	if err != nil {
		return nil, err
	}
	if typ != nil {
		entity.TypeID = &typ.ID
		entity.Type = typ
	}

	if err := d.db.Omit(clause.Associations).Create(entity).Error; err != nil {
		return nil, fmt.Errorf("create %s %q: %w", entityType, node.Name, err)
	}
	entity.Project = d.project
	log.Debug("created task", "task_id", entity.ID, "name", entity.Name, "entity_type", entityType)
	return entity, nil
}

// resolveType finds the type by name and creates it when it does not exist.
func (d *Decoder) resolveType(node *TypeNode) (*models.Type, error) {
	if node == nil || node.Name == "" {
		return nil, nil
	}
	var typ models.Type
	if err := d.db.Where("name = ?", node.Name).Limit(1).Find(&typ).Error; err != nil {
		return nil, fmt.Errorf("look up type %q: %w", node.Name, err)
	}
	if typ.ID != 0 {
		return &typ, nil
	}
	typ = models.Type{Name: node.Name, Code: node.Code, TargetEntityType: node.TargetEntityType}
	if err := d.db.Create(&typ).Error; err != nil {
		return nil, fmt.Errorf("create type %q: %w", node.Name, err)
	}
	return &typ, nil
}

// decodeVersions creates the versions in number order, keeping their
// numbers, and skips those that already exist.
func (d *Decoder) decodeVersions(entity *models.Task, nodes []*VersionNode) error {
	ordered := make([]*VersionNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			ordered = append(ordered, n)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].VersionNumber < ordered[j].VersionNumber
	})

	for _, n := range ordered {
		variantName := n.variantName()
		if n.VersionNumber <= 0 {
			return fmt.Errorf("version %s of %q: %w", variantName, entity.Name, ErrVersionNumberRequired)
		}

		var existing models.Version
		err := d.db.Where("task_id = ? AND variant_name = ? AND version_number = ?", entity.ID, variantName, n.VersionNumber).
			Limit(1).Find(&existing).Error
		if err != nil {
			return fmt.Errorf("look up version %s v%d: %w", variantName, n.VersionNumber, err)
		}
		if existing.ID != 0 {
			entity.Versions = append(entity.Versions, &existing)
			continue
		}

		v := &models.Version{
			TaskID:        entity.ID,
			VariantName:   variantName,
			VersionNumber: n.VersionNumber,
			IsPublished:   n.IsPublished,
			Description:   n.Description,
			CreatedWith:   n.CreatedWith,
			Extension:     n.Extension,
		}
		if err := d.db.Omit(clause.Associations).Create(v).Error; err != nil {
			return fmt.Errorf("create version %s v%d of %q: %w", variantName, n.VersionNumber, entity.Name, err)
		}
		entity.Versions = append(entity.Versions, v)
	}
	return nil
}
