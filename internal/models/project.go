package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Project groups a task hierarchy and owns the repository path its files live under
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Code      string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate validates the project
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(p.Code) == "" {
		return ErrCodeRequired
	}
	return nil
}

// Type classifies tasks (Character, Prop, Model, Rig...)
type Type struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	Name             string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Code             string `gorm:"size:100" json:"code"`
	TargetEntityType string `gorm:"size:20" json:"target_entity_type"`
}

// BeforeCreate validates the type
func (t *Type) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrNameRequired
	}
	if t.Code == "" {
		t.Code = t.Name
	}
	return nil
}
