package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
	"pipekit/internal/testutil"
)

type ToolSuite struct {
	suite.Suite
	db     *gorm.DB
	root   string
	source *models.Project
	target *models.Project
}

func TestToolSuite(t *testing.T) {
	suite.Run(t, new(ToolSuite))
}

func (s *ToolSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
	s.root = s.T().TempDir()
	s.source = testutil.CreateProject(s.T(), s.db, "Source", "SRC")
	s.target = testutil.CreateProject(s.T(), s.db, "Target", "TGT")
}

func (s *ToolSuite) tool(recipe Recipe) *Tool {
	tool := New(s.db, recipe)
	tool.TargetProject = s.target
	tool.RepositoryRoot = s.root
	return tool
}

func (s *ToolSuite) path(v *models.Version) string {
	return filepath.Join(s.root, filepath.FromSlash(v.FullPath))
}

func (s *ToolSuite) write(v *models.Version, content string) {
	p := s.path(v)
	s.Require().NoError(os.MkdirAll(filepath.Dir(p), 0755))
	s.Require().NoError(os.WriteFile(p, []byte(content), 0644))
}

func (s *ToolSuite) read(relPath string) string {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(relPath)))
	s.Require().NoError(err)
	return string(data)
}

func (s *ToolSuite) scene(task *models.Task, variant string, published bool, content string) *models.Version {
	v := testutil.CreateVersion(s.T(), s.db, task, variant, published)
	s.write(v, content)
	return v
}

func (s *ToolSuite) newVersion(report *Report, source *models.Version) *models.Version {
	for _, r := range report.Results {
		if r.SourceVersionID == source.ID && r.Status == StatusMigrated {
			v, err := db.GetVersionByID(s.db, r.NewVersionID)
			s.Require().NoError(err)
			return v
		}
	}
	s.FailNow("version was not migrated", "source version %d", source.ID)
	return nil
}

func (s *ToolSuite) newTask(report *Report, source *models.Task) *models.Task {
	id, ok := report.CreatedTasks[source.ID]
	s.Require().True(ok, "task %d was not created", source.ID)
	task, err := db.GetTaskByID(s.db, id)
	s.Require().NoError(err)
	return task
}

func (s *ToolSuite) TestParentCreatedBeforeChild() {
	chair := testutil.CreateEntity(s.T(), s.db, s.source, nil, models.EntityAsset, "Chair", "CHR")
	props := testutil.CreateTask(s.T(), s.db, s.source, nil, "Props")
	s.scene(chair, "Main", true, "chair")

	recipe := Recipe{
		chair.ID: {NewParent: Parent(props.ID), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
		props.ID: {NewParent: Root()},
	}
	report, err := s.tool(recipe).Migrate(context.Background())
	s.Require().NoError(err)

	newProps := s.newTask(report, props)
	newChair := s.newTask(report, chair)
	s.Less(newProps.ID, newChair.ID)
	s.Require().NotNil(newChair.ParentID)
	s.Equal(newProps.ID, *newChair.ParentID)
	s.Nil(newProps.ParentID)
	s.Equal(s.target.ID, newProps.ProjectID)
	s.Equal(s.target.ID, newChair.ProjectID)
	s.Equal(models.EntityAsset, newChair.EntityType)
	s.Equal("CHR", newChair.Code)
	s.Equal("Migrated from Chair under Source", newChair.Description)

	migrated := report.Migrated()
	s.Require().Len(migrated, 1)
	s.Equal("TGT/Props/Chair/Main/Chair_Main_v001.ma", migrated[0].NewPath)
	s.Equal("chair", s.read(migrated[0].NewPath))

	var history []models.TaskHistory
	s.Require().NoError(s.db.Where("task_id = ?", newChair.ID).Find(&history).Error)
	s.Require().Len(history, 1)
	s.Equal("migrated_from", history[0].Field)
}

func (s *ToolSuite) TestInheritedParentAndNewNames() {
	hero := testutil.CreateEntity(s.T(), s.db, s.source, nil, models.EntityAsset, "Hero", "HERO")
	model := testutil.CreateTask(s.T(), s.db, s.source, hero, "Model")
	s.scene(model, "Main", true, "model")

	recipe := Recipe{
		hero.ID:  {NewParent: Root(), NewName: "Villain", NewCode: "VIL"},
		model.ID: {Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}
	report, err := s.tool(recipe).Migrate(context.Background())
	s.Require().NoError(err)

	villain := s.newTask(report, hero)
	s.Equal("Villain", villain.Name)
	s.Equal("VIL", villain.Code)

	newModel := s.newTask(report, model)
	s.Equal("Model", newModel.Name)
	s.Equal(villain.ID, *newModel.ParentID)
	s.Equal("TGT/Villain/Model/Main/Model_Main_v001.ma", report.Migrated()[0].NewPath)
}

func (s *ToolSuite) TestReferencesAreRelinked() {
	library := testutil.CreateTask(s.T(), s.db, s.target, nil, "Library")
	layout := testutil.CreateTask(s.T(), s.db, s.source, nil, "Layout")
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")

	modelV := s.scene(model, "Main", true, "model")
	layoutV := testutil.CreateVersion(s.T(), s.db, layout, "Main", true)
	s.write(layoutV, "file -r \""+s.path(modelV)+"\";\nfile -r \""+modelV.FullPath+"\";\n")
	s.Require().NoError(db.AddVersionInputs(s.db, layoutV.ID, modelV.ID))

	recipe := Recipe{
		layout.ID: {NewParent: Parent(library.ID), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
		model.ID:  {NewParent: Parent(library.ID), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}
	tool := s.tool(recipe)

	plan, err := tool.Plan(context.Background())
	s.Require().NoError(err)
	s.Equal([]uint{modelV.ID, layoutV.ID}, plan.VersionOrder)

	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)
	s.Len(report.Migrated(), 2)

	newModel := s.newVersion(report, modelV)
	newLayout := s.newVersion(report, layoutV)
	s.Less(newModel.ID, newLayout.ID)

	content := s.read(newLayout.FullPath)
	s.Contains(content, s.path(newModel))
	s.Contains(content, "\""+newModel.FullPath+"\"")
	s.NotContains(content, "\""+modelV.FullPath+"\"")
	s.NotContains(content, "SRC/")

	s.Require().Len(newLayout.Inputs, 1)
	s.Equal(newModel.ID, newLayout.Inputs[0].ID)
}

func (s *ToolSuite) TestRepresentationReferencesResolveToBase() {
	layout := testutil.CreateTask(s.T(), s.db, s.source, nil, "Layout")
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")

	mainV := s.scene(model, "Main", true, "model")
	bboxV := s.scene(model, "Main@BBox", true, "bbox")
	layoutV := testutil.CreateVersion(s.T(), s.db, layout, "Main", false)
	s.write(layoutV, "ref "+s.path(bboxV)+"\n")
	s.Require().NoError(db.AddVersionInputs(s.db, layoutV.ID, bboxV.ID))

	recipe := Recipe{
		layout.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
		model.ID:  {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}
	report, err := s.tool(recipe).Migrate(context.Background())
	s.Require().NoError(err)

	newMain := s.newVersion(report, mainV)
	newLayout := s.newVersion(report, layoutV)
	s.Equal("ref "+s.path(newMain)+"\n", s.read(newLayout.FullPath))
	s.False(newLayout.IsPublished)
}

func (s *ToolSuite) TestVersionAlternative() {
	layout := testutil.CreateTask(s.T(), s.db, s.source, nil, "Layout")
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	moved := testutil.CreateTask(s.T(), s.db, s.target, nil, "Model")

	modelV := s.scene(model, "Main", true, "model")
	movedV := s.scene(moved, "Main", true, "model")
	layoutV := testutil.CreateVersion(s.T(), s.db, layout, "Main", true)
	s.write(layoutV, s.path(modelV))
	s.Require().NoError(db.AddVersionInputs(s.db, layoutV.ID, modelV.ID))

	tool := s.tool(Recipe{
		layout.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	})
	tool.AddVersionAlternative(modelV, movedV)

	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)

	newLayout := s.newVersion(report, layoutV)
	s.Equal(s.path(movedV), s.read(newLayout.FullPath))
	s.Require().Len(newLayout.Inputs, 1)
	s.Equal(movedV.ID, newLayout.Inputs[0].ID)
}

func (s *ToolSuite) TestMissingVersionIsSkipped() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	s.scene(model, "Main", true, "v1")

	report, err := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1, 7}}}},
	}).Migrate(context.Background())
	s.Require().NoError(err)

	s.Len(report.Migrated(), 1)
	skipped := report.Skipped()
	s.Require().Len(skipped, 1)
	s.Equal(7, skipped[0].VersionNumber)
	s.Equal("Main", skipped[0].VariantName)
	s.Equal("version not found", skipped[0].Reason)
}

func (s *ToolSuite) TestMissingSourceFileIsSkipped() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	v := testutil.CreateVersion(s.T(), s.db, model, "Main", true)

	report, err := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}).Migrate(context.Background())
	s.Require().NoError(err)

	skipped := report.Skipped()
	s.Require().Len(skipped, 1)
	s.Equal(v.ID, skipped[0].SourceVersionID)
	s.True(strings.HasPrefix(skipped[0].Reason, "source file"), skipped[0].Reason)
	// the task is still carried over
	s.Len(report.CreatedTasks, 1)
	testutil.AssertCount(s.T(), s.db, &models.Version{}, 1)
}

func (s *ToolSuite) TestNonNativeFilesAreCopied() {
	plate := testutil.CreateTask(s.T(), s.db, s.source, nil, "Plate")
	v := &models.Version{TaskID: plate.ID, VariantName: "Main", CreatedWith: "Photoshop", Extension: ".psd", IsPublished: true}
	s.Require().NoError(s.db.Create(v).Error)
	s.write(v, "pixels")

	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Require().NoError(os.Chmod(s.path(v), 0640))
	s.Require().NoError(os.Chtimes(s.path(v), stamp, stamp))

	hookCalls := 0
	tool := s.tool(Recipe{
		plate.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	})
	tool.RegisterHook(AnyType, func(context.Context, *models.Version, string) error {
		hookCalls++
		return nil
	})

	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)

	newV := s.newVersion(report, v)
	s.Equal(".psd", newV.Extension)
	s.Equal("Photoshop", newV.CreatedWith)
	s.True(newV.IsPublished)

	info, err := os.Stat(s.path(newV))
	s.Require().NoError(err)
	s.Equal(os.FileMode(0640), info.Mode().Perm())
	s.True(info.ModTime().Equal(stamp))
	s.Equal("pixels", s.read(newV.FullPath))
	// hooks only run for native scenes
	s.Zero(hookCalls)
}

func (s *ToolSuite) plate(parent *models.Task, content string) (*models.Task, *models.Version) {
	plate := testutil.CreateTask(s.T(), s.db, s.source, parent, "Plate")
	v := &models.Version{TaskID: plate.ID, VariantName: "Main", CreatedWith: "Photoshop", Extension: ".psd", IsPublished: true}
	s.Require().NoError(s.db.Create(v).Error)
	s.write(v, content)
	return plate, v
}

func (s *ToolSuite) TestMigrationOntoSourcePathKeepsSource() {
	lib := testutil.CreateTask(s.T(), s.db, s.source, nil, "Lib")
	plate, v := s.plate(lib, "pixels")
	model := testutil.CreateTask(s.T(), s.db, s.source, lib, "Model")
	scene := s.scene(model, "Main", true, "scene")

	tool := s.tool(Recipe{
		plate.ID: {Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
		model.ID: {Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	})
	tool.TargetProject = s.source
	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)

	s.Empty(report.Migrated())
	s.Require().Len(report.Skipped(), 2)
	for _, r := range report.Skipped() {
		s.Contains(r.Reason, "destination")
	}
	s.Equal("pixels", s.read(v.FullPath))
	s.Equal("scene", s.read(scene.FullPath))
}

func (s *ToolSuite) TestExistingDestinationIsNotOverwritten() {
	plate, v := s.plate(nil, "pixels")
	stale := filepath.Join(s.root, "TGT", "Plate", "Main", "Plate_Main_v001.psd")
	s.Require().NoError(os.MkdirAll(filepath.Dir(stale), 0755))
	s.Require().NoError(os.WriteFile(stale, []byte("stale"), 0644))

	report, err := s.tool(Recipe{
		plate.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}).Migrate(context.Background())
	s.Require().NoError(err)

	s.Require().Len(report.Skipped(), 1)
	s.Contains(report.Skipped()[0].Reason, "destination exists")
	s.Equal("stale", s.read("TGT/Plate/Main/Plate_Main_v001.psd"))
	s.Equal("pixels", s.read(v.FullPath))
}

func (s *ToolSuite) TestFailedVersionCreateRemovesFile() {
	plate, _ := s.plate(nil, "pixels")
	s.Require().NoError(s.db.Callback().Create().Before("gorm:create").Register("test:fail_versions", func(tx *gorm.DB) {
		if tx.Statement.Table == "versions" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := s.tool(Recipe{
		plate.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	}).Migrate(context.Background())
	s.Require().ErrorContains(err, "disk full")
	s.NoFileExists(filepath.Join(s.root, "TGT", "Plate", "Main", "Plate_Main_v001.psd"))
}

func (s *ToolSuite) TestTakesAreRenamedAndMerged() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	main1 := s.scene(model, "Main", true, "main1")
	main2 := s.scene(model, "Main", true, "main2")
	alt1 := s.scene(model, "Alt", false, "alt1")

	report, err := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{
			"Main": {NewName: "Hero", Versions: []int{1, 2}},
			"Alt":  {NewName: "Hero", Versions: []int{1}},
		}},
	}).Migrate(context.Background())
	s.Require().NoError(err)

	s.Equal(1, s.newVersion(report, alt1).VersionNumber)
	s.Equal(2, s.newVersion(report, main1).VersionNumber)
	s.Equal(3, s.newVersion(report, main2).VersionNumber)
	s.Equal("Hero", s.newVersion(report, main2).VariantName)
	s.Equal("main2", s.read(s.newVersion(report, main2).FullPath))
}

func (s *ToolSuite) TestPublishHookErrorsAreCollected() {
	modelType := &models.Type{Name: "Model"}
	s.Require().NoError(s.db.Create(modelType).Error)
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	s.Require().NoError(s.db.Model(model).Update("type_id", modelType.ID).Error)
	v1 := s.scene(model, "Main", true, "v1")
	v2 := s.scene(model, "Main", true, "v2")

	tool := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1, 2}}}},
	})
	tool.RegisterHook("Model", func(_ context.Context, v *models.Version, _ string) error {
		return errors.New("bad topology")
	})
	tool.RegisterHook(AnyType, func(context.Context, *models.Version, string) error {
		panic("boom")
	})
	tool.RegisterHook("Rig", func(context.Context, *models.Version, string) error {
		s.Fail("hook of another type ran")
		return nil
	})

	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)

	s.Len(report.Migrated(), 2)
	s.Require().Len(report.PublishErrors, 4)
	s.Equal(s.newVersion(report, v1).ID, report.PublishErrors[0].VersionID)
	s.Contains(report.PublishErrors[0].Message, "bad topology")
	s.Contains(report.PublishErrors[1].Message, "boom")
	s.Equal(s.newVersion(report, v2).ID, report.PublishErrors[2].VersionID)

	testutil.AssertCount(s.T(), s.db, &models.Ticket{}, 4)
	newModel := s.newTask(report, model)
	s.Equal("Model", newModel.TypeName())
}

func (s *ToolSuite) TestFileIntegrityHook() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	s.scene(model, "Main", true, "")

	tool := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
	})
	tool.RegisterHook(AnyType, FileIntegrityHook())

	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)
	s.Require().Len(report.PublishErrors, 1)
	s.Contains(report.PublishErrors[0].Error(), "empty")
}

func (s *ToolSuite) TestParentCycleIsRejected() {
	a := testutil.CreateTask(s.T(), s.db, s.source, nil, "A")
	b := testutil.CreateTask(s.T(), s.db, s.source, nil, "B")

	report, err := s.tool(Recipe{
		a.ID: {NewParent: Parent(b.ID)},
		b.ID: {NewParent: Parent(a.ID)},
	}).Migrate(context.Background())

	s.Nil(report)
	var cycle *CycleError
	s.Require().True(errors.As(err, &cycle), "got %v", err)
	s.Equal([]uint{a.ID, b.ID}, cycle.IDs)
	testutil.AssertCount(s.T(), s.db, &models.Task{}, 2)
}

func (s *ToolSuite) TestChildrenOfSkippedTasksAreSkipped() {
	a := testutil.CreateTask(s.T(), s.db, s.source, nil, "A")
	b := testutil.CreateTask(s.T(), s.db, s.source, nil, "B")
	s.scene(b, "Main", true, "b")

	report, err := s.tool(Recipe{
		a.ID: {NewParent: Parent(9999)},
		b.ID: {NewParent: Parent(a.ID), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}},
		8888: {NewParent: Root()},
	}).Migrate(context.Background())
	s.Require().NoError(err)

	s.Empty(report.CreatedTasks)
	s.Len(report.SkippedTasks, 3)
	reasons := map[uint]string{}
	for _, skip := range report.SkippedTasks {
		reasons[skip.TaskID] = skip.Reason
	}
	s.Equal("new parent 9999 not found", reasons[a.ID])
	s.Equal("source task not found", reasons[8888])
	s.Equal(fmt.Sprintf("new parent %d is skipped", a.ID), reasons[b.ID])

	skipped := report.Skipped()
	s.Require().Len(skipped, 1)
	s.True(strings.HasPrefix(skipped[0].Reason, "task skipped: "))
}

func (s *ToolSuite) TestRootTaskNeedsTargetProject() {
	a := testutil.CreateTask(s.T(), s.db, s.source, nil, "A")

	tool := s.tool(Recipe{a.ID: {}})
	tool.TargetProject = nil
	report, err := tool.Migrate(context.Background())
	s.Require().NoError(err)
	s.Require().Len(report.SkippedTasks, 1)
	s.Equal("no target project for a root task", report.SkippedTasks[0].Reason)
}

func (s *ToolSuite) TestPlanHasNoSideEffects() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	v := s.scene(model, "Main", true, "m")

	plan, err := s.tool(Recipe{
		model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1, 2}}}},
	}).Plan(context.Background())
	s.Require().NoError(err)

	s.Equal([]uint{model.ID}, plan.TaskOrder)
	s.Equal([]uint{v.ID}, plan.VersionOrder)
	s.Len(plan.Skipped, 1)
	testutil.AssertCount(s.T(), s.db, &models.Task{}, 1)
	testutil.AssertCount(s.T(), s.db, &models.Version{}, 1)
}

func (s *ToolSuite) TestProgressAndCancellation() {
	model := testutil.CreateTask(s.T(), s.db, s.source, nil, "Model")
	s.scene(model, "Main", true, "m")
	recipe := Recipe{model.ID: {NewParent: Root(), Takes: map[string]*TakeRecipe{"Main": {Versions: []int{1}}}}}

	stages := map[string]int{}
	tool := s.tool(recipe)
	tool.Progress = func(stage string, current, total int, _ string) {
		stages[stage]++
		s.LessOrEqual(current, total)
	}
	_, err := tool.Migrate(context.Background())
	s.Require().NoError(err)
	s.Equal(map[string]int{StageResolve: 1, StageTasks: 1, StageVersions: 1}, stages)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.tool(recipe).Migrate(ctx)
	s.ErrorIs(err, context.Canceled)
}
