// Package repr resolves representations of versions. Representations share
// the task of their base version and are named "{base}@{repr}".
package repr

import (
	"sort"
	"strings"

	"gorm.io/gorm"

	"pipekit/internal/log"
	"pipekit/internal/models"
)

// Representation answers representation queries for a single version.
type Representation struct {
	db      *gorm.DB
	version *models.Version
}

// New returns a Representation of version. version may be nil.
func New(db *gorm.DB, version *models.Version) *Representation {
	return &Representation{db: db, version: version}
}

// Version returns the wrapped version.
func (r *Representation) Version() *models.Version {
	return r.version
}

// SetVersion replaces the wrapped version.
func (r *Representation) SetVersion(version *models.Version) {
	r.version = version
}

func (r *Representation) variant() Variant {
	return ParseVariant(r.version.VariantName)
}

// BaseVariantName returns the base variant name of the wrapped version.
func (r *Representation) BaseVariantName() string {
	if r.version == nil {
		return ""
	}
	return BaseVariantName(r.version.VariantName)
}

// IsBase reports whether the version is the base of its family.
func (r *Representation) IsBase() bool {
	if r.version == nil {
		return false
	}
	return r.version.VariantName == BaseVariantName(r.version.VariantName)
}

// Repr returns the representation name of the version, or "" without one.
func (r *Representation) Repr() string {
	if r.version == nil {
		return ""
	}
	return r.variant().Repr()
}

// IsRepr reports whether the version is the named representation. The base
// variant name itself also names the base.
func (r *Representation) IsRepr(reprName string) bool {
	if r.version == nil {
		return false
	}
	v := r.variant()
	if reprName == v.Base {
		return r.IsBase()
	}
	return r.version.VariantName == v.WithRepr(reprName).String()
}

// Find returns the latest published version of the named representation, or
// nil when there is none.
func (r *Representation) Find(reprName string) (*models.Version, error) {
	if r.version == nil {
		return nil, nil
	}
	variantName := r.variant().WithRepr(reprName).String()

	var found models.Version
	err := r.db.Where("task_id = ? AND variant_name = ? AND is_published = ?", r.version.TaskID, variantName, true).
		Order("version_number DESC").
		Limit(1).
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	if found.ID == 0 {
		log.Debug("representation not found", "task_id", r.version.TaskID, "variant", variantName)
		return nil, nil
	}
	return &found, nil
}

// HasRepr reports whether a published version of the named representation
// exists.
func (r *Representation) HasRepr(reprName string) (bool, error) {
	v, err := r.Find(reprName)
	return v != nil, err
}

// ListAll lists the representation names of the version's family. The list
// follows the sorted variant names and always holds BaseReprName once.
func (r *Representation) ListAll() ([]string, error) {
	if r.version == nil {
		return nil, nil
	}
	base := BaseVariantName(r.version.VariantName)
	prefix := base + Separator

	variantNames, err := UniqueVariantNames(r.db, r.version.TaskID, true)
	if err != nil {
		return nil, err
	}

	var names []string
	hasBase := false
	for _, name := range variantNames {
		switch {
		case name == base:
			names = append(names, BaseReprName)
			hasBase = true
		case strings.HasPrefix(name, prefix):
			names = append(names, name[len(prefix):])
		}
	}
	if !hasBase {
		names = append([]string{BaseReprName}, names...)
	}
	return names, nil
}

// HasAnyRepr reports whether the family has representations besides the base.
func (r *Representation) HasAnyRepr() (bool, error) {
	names, err := r.ListAll()
	return len(names) > 1, err
}

// UniqueVariantNames returns the sorted distinct variant names of a task.
// Representation variants are dropped unless includeReprs is set.
func UniqueVariantNames(db *gorm.DB, taskID uint, includeReprs bool) ([]string, error) {
	var names []string
	err := db.Model(&models.Version{}).
		Where("task_id = ?", taskID).
		Distinct("variant_name").
		Pluck("variant_name", &names).Error
	if err != nil {
		return nil, err
	}

	if !includeReprs {
		filtered := names[:0]
		for _, name := range names {
			if !strings.Contains(name, Separator) {
				filtered = append(filtered, name)
			}
		}
		names = filtered
	}
	sort.Strings(names)
	return names, nil
}
