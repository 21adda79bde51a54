package models

import (
	"time"
)

// Config stores key-value configuration for the workspace
type Config struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Config
func (Config) TableName() string {
	return "config"
}

// Common config keys
const (
	ConfigSchemaVersion     = "schema_version"
	ConfigInitializedAt     = "initialized_at"
	ConfigDefaultProject    = "default_project"
	ConfigGitHubRepo        = "github_repo"
	ConfigGitHubIssuePrefix = "github_issue_prefix"
	ConfigGitHubTokenSet    = "github_token_set"
)

// Keyring constants
const (
	KeyringServiceName    = "pipekit"
	KeyringGitHubTokenKey = "github_token"
)

// DefaultGitHubIssuePrefix is used when no prefix has been configured
const DefaultGitHubIssuePrefix = "[Pipeline]"
