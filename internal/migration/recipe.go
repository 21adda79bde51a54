// Package migration carries tasks and their version files from one place in
// the hierarchy (usually another project) to another.
package migration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pipekit/internal/models"
)

// ErrInvalidRecipe is wrapped by every recipe validation error
var ErrInvalidRecipe = errors.New("invalid migration recipe")

// Recipe maps source task ids to what their migrated copies look like.
// Entries may name each other as new parents.
type Recipe map[uint]*TaskRecipe

// ParentRef is the new parent of a migrated task. The zero value inherits the
// source task's parent, Root() places the task at the project root.
type ParentRef struct {
	Set bool
	ID  *uint
}

// Parent returns a reference to the task with the given id.
func Parent(id uint) ParentRef {
	return ParentRef{Set: true, ID: &id}
}

// Root returns a reference to the project root.
func Root() ParentRef {
	return ParentRef{Set: true}
}

// IsRoot reports whether the reference explicitly selects the project root.
func (p ParentRef) IsRoot() bool {
	return p.Set && p.ID == nil
}

func (p ParentRef) String() string {
	switch {
	case !p.Set:
		return "inherit"
	case p.ID == nil:
		return "root"
	}
	return fmt.Sprintf("%d", *p.ID)
}

// TaskRecipe describes one migrated task.
type TaskRecipe struct {
	NewParent ParentRef              `json:"-" yaml:"-"`
	NewName   string                 `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	NewCode   string                 `json:"new_code,omitempty" yaml:"new_code,omitempty"`
	Takes     map[string]*TakeRecipe `json:"takes,omitempty" yaml:"takes,omitempty"`
}

// TakeRecipe selects versions of one variant and optionally renames it.
type TakeRecipe struct {
	NewName  string `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	Versions []int  `json:"versions" yaml:"versions"`
}

// taskRecipeFields is TaskRecipe without its custom (un)marshalers
type taskRecipeFields struct {
	NewParentID *uint                  `json:"new_parent_id" yaml:"new_parent_id"`
	NewName     string                 `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	NewCode     string                 `json:"new_code,omitempty" yaml:"new_code,omitempty"`
	Takes       map[string]*TakeRecipe `json:"takes,omitempty" yaml:"takes,omitempty"`
}

const newParentKey = "new_parent_id"

func (t *TaskRecipe) assign(f taskRecipeFields, parentSet bool) {
	t.NewName = f.NewName
	t.NewCode = f.NewCode
	t.Takes = f.Takes
	t.NewParent = ParentRef{Set: parentSet, ID: f.NewParentID}
}

// UnmarshalJSON tells an absent new_parent_id apart from an explicit null.
func (t *TaskRecipe) UnmarshalJSON(data []byte) error {
	var f taskRecipeFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, parentSet := keys[newParentKey]
	t.assign(f, parentSet)
	return nil
}

// MarshalJSON writes new_parent_id only when it is set.
func (t TaskRecipe) MarshalJSON() ([]byte, error) {
	f := taskRecipeFields{
		NewParentID: t.NewParent.ID,
		NewName:     t.NewName,
		NewCode:     t.NewCode,
		Takes:       t.Takes,
	}
	data, err := json.Marshal(f)
	if err != nil || t.NewParent.Set {
		return data, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	delete(m, newParentKey)
	return json.Marshal(m)
}

// UnmarshalYAML tells an absent new_parent_id apart from an explicit null.
func (t *TaskRecipe) UnmarshalYAML(node *yaml.Node) error {
	var f taskRecipeFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	parentSet := false
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == newParentKey {
				parentSet = true
			}
		}
	}
	t.assign(f, parentSet)
	return nil
}

// LoadRecipe reads a recipe file. ".yaml" and ".yml" files are parsed as
// YAML, everything else as JSON.
func LoadRecipe(path string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseRecipeYAML(data)
	}
	return ParseRecipeJSON(data)
}

// ParseRecipeJSON parses a JSON recipe.
func ParseRecipeJSON(data []byte) (Recipe, error) {
	recipe := Recipe{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&recipe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipe, err)
	}
	return recipe, recipe.Validate()
}

// ParseRecipeYAML parses a YAML recipe.
func ParseRecipeYAML(data []byte) (Recipe, error) {
	recipe := Recipe{}
	if err := yaml.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipe, err)
	}
	return recipe, recipe.Validate()
}

// Validate checks the structure of the recipe.
func (r Recipe) Validate() error {
	for _, id := range r.IDs() {
		entry := r[id]
		if id == 0 {
			return fmt.Errorf("%w: task id 0", ErrInvalidRecipe)
		}
		if entry == nil {
			return fmt.Errorf("%w: task %d has no entry", ErrInvalidRecipe, id)
		}
		if entry.NewParent.ID != nil {
			switch *entry.NewParent.ID {
			case 0:
				return fmt.Errorf("%w: task %d has new parent 0", ErrInvalidRecipe, id)
			case id:
				return fmt.Errorf("%w: task %d is its own new parent", ErrInvalidRecipe, id)
			}
		}
		for variant, take := range entry.Takes {
			if variant == "" {
				return fmt.Errorf("%w: task %d has a take without a name", ErrInvalidRecipe, id)
			}
			if take == nil {
				return fmt.Errorf("%w: task %d take %q has no entry", ErrInvalidRecipe, id, variant)
			}
			seen := map[int]bool{}
			for _, n := range take.Versions {
				if n <= 0 {
					return fmt.Errorf("%w: task %d take %q has version number %d", ErrInvalidRecipe, id, variant, n)
				}
				if seen[n] {
					return fmt.Errorf("%w: task %d take %q lists version %d twice", ErrInvalidRecipe, id, variant, n)
				}
				seen[n] = true
			}
		}
	}
	return nil
}

// IDs returns the task ids of the recipe in ascending order.
func (r Recipe) IDs() []uint {
	ids := make([]uint, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TakeNames returns the take names of the entry in ascending order.
func (t *TaskRecipe) TakeNames() []string {
	names := make([]string, 0, len(t.Takes))
	for name := range t.Takes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddTask adds an entry for task, keeping an existing one.
func (r Recipe) AddTask(task *models.Task) *TaskRecipe {
	if entry, ok := r[task.ID]; ok {
		return entry
	}
	entry := &TaskRecipe{Takes: map[string]*TakeRecipe{}}
	r[task.ID] = entry
	return entry
}

// SetTargetParent sets the new parent of an added task. A nil parent moves
// the task to the project root.
func (r Recipe) SetTargetParent(task, parent *models.Task) error {
	entry, ok := r[task.ID]
	if !ok {
		return fmt.Errorf("%w: task %d is not in the recipe", ErrInvalidRecipe, task.ID)
	}
	if parent == nil {
		entry.NewParent = Root()
		return nil
	}
	if parent.ID == task.ID {
		return fmt.Errorf("%w: task %d is its own new parent", ErrInvalidRecipe, task.ID)
	}
	entry.NewParent = Parent(parent.ID)
	return nil
}

// AddTake selects versions of a variant of an added task. An empty
// newVariantName keeps the variant name.
func (r Recipe) AddTake(task *models.Task, oldVariantName, newVariantName string, versionNumbers ...int) error {
	entry, ok := r[task.ID]
	if !ok {
		return fmt.Errorf("%w: task %d is not in the recipe", ErrInvalidRecipe, task.ID)
	}
	if oldVariantName == "" {
		return fmt.Errorf("%w: empty take name", ErrInvalidRecipe)
	}
	if entry.Takes == nil {
		entry.Takes = map[string]*TakeRecipe{}
	}
	take, ok := entry.Takes[oldVariantName]
	if !ok {
		take = &TakeRecipe{}
		entry.Takes[oldVariantName] = take
	}
	if newVariantName != "" && newVariantName != oldVariantName {
		take.NewName = newVariantName
	}
	for _, n := range versionNumbers {
		if !containsInt(take.Versions, n) {
			take.Versions = append(take.Versions, n)
		}
	}
	return nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
