package models

import (
	"time"
)

// Ticket status constants
const (
	TicketOpen   = "open"
	TicketClosed = "closed"
)

// Ticket reports a problem with a version, e.g. a post-publish check that
// failed during a migration.
type Ticket struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	VersionID    uint       `gorm:"not null;index" json:"version_id"`
	Version      *Version   `gorm:"foreignKey:VersionID" json:"version,omitempty"`
	Summary      string     `gorm:"size:255;not null" json:"summary"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	Status       string     `gorm:"size:10;default:open;index" json:"status"`
	Synced       bool       `gorm:"default:false;index" json:"synced"`
	IssueNumber  int        `gorm:"index" json:"issue_number,omitempty"`
	IssueURL     string     `gorm:"size:500" json:"issue_url,omitempty"`
	Repository   string     `gorm:"size:200" json:"repository,omitempty"` // owner/repo format
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsClosed returns true if the ticket is closed
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketClosed
}

// Close marks the ticket as closed
func (t *Ticket) Close() {
	t.Status = TicketClosed
}
