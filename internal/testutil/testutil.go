package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pipekit/internal/models"
)

// OpenTestDB returns an in-memory sqlite DB with migrations applied. The
// connection is closed when the test ends.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	// a single connection keeps the shared in-memory cache free of table locks
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	tb.Cleanup(func() { CloseDB(db) })
	return db
}

// CloseDB closes the underlying sql.DB if available.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// AssertCount asserts a count for the provided model using the supplied DB.
func AssertCount(tb testing.TB, db *gorm.DB, model any, expected int64) {
	tb.Helper()

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	if count != expected {
		tb.Fatalf("expected %d records, got %d", expected, count)
	}
}

// CreateProject creates a project with the given name and code.
func CreateProject(tb testing.TB, db *gorm.DB, name, code string) *models.Project {
	tb.Helper()

	p := &models.Project{Name: name, Code: code}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("create project %s: %v", name, err)
	}
	return p
}

// CreateTask creates a plain task under parent (nil for a root task).
func CreateTask(tb testing.TB, db *gorm.DB, project *models.Project, parent *models.Task, name string) *models.Task {
	tb.Helper()
	return CreateEntity(tb, db, project, parent, models.EntityTask, name, "")
}

// CreateEntity creates a task of the given entity type.
func CreateEntity(tb testing.TB, db *gorm.DB, project *models.Project, parent *models.Task, entityType, name, code string) *models.Task {
	tb.Helper()

	t := &models.Task{
		ProjectID:  project.ID,
		EntityType: entityType,
		Name:       name,
		Code:       code,
	}
	if parent != nil {
		t.ParentID = &parent.ID
	}
	if err := db.Create(t).Error; err != nil {
		tb.Fatalf("create task %s: %v", name, err)
	}
	return t
}

// CreateVersion creates the next version of the task for the given variant.
func CreateVersion(tb testing.TB, db *gorm.DB, task *models.Task, variantName string, published bool) *models.Version {
	tb.Helper()

	v := &models.Version{
		TaskID:      task.ID,
		VariantName: variantName,
		IsPublished: published,
		CreatedWith: "Maya",
		Extension:   ".ma",
	}
	if err := db.Create(v).Error; err != nil {
		tb.Fatalf("create version %s: %v", variantName, err)
	}
	return v
}
