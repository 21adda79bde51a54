package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pipekit/internal/db"
	"pipekit/internal/log"
	"pipekit/internal/models"
	"pipekit/internal/repr"
)

// Progress stages
const (
	StageResolve  = "resolve"
	StageTasks    = "tasks"
	StageVersions = "versions"
)

// ProgressFunc is called synchronously after every step of a stage.
type ProgressFunc func(stage string, current, total int, message string)

// Tool migrates the tasks and versions selected by a recipe.
type Tool struct {
	DB     *gorm.DB
	Recipe Recipe

	// TargetProject receives the tasks whose new parent is the project root.
	TargetProject *models.Project
	// RepositoryRoot is the directory version paths are relative to.
	RepositoryRoot string

	Native    *NativeMatcher
	Relinker  SceneRelinker
	Hooks     map[string][]PostPublishHook
	Progress  ProgressFunc
	ChangedBy string

	alternatives map[uint]*models.Version
}

// New returns a tool treating Maya scenes as native files.
func New(tx *gorm.DB, recipe Recipe) *Tool {
	native, _ := NewNativeMatcher([]string{"maya"}, nil)
	return &Tool{
		DB:       tx,
		Recipe:   recipe,
		Native:   native,
		Relinker: TextRelinker{},
		Hooks:    map[string][]PostPublishHook{},
	}
}

// AddVersionAlternative makes references to source resolve to alternative,
// e.g. for versions moved by an earlier migration.
func (t *Tool) AddVersionAlternative(source, alternative *models.Version) {
	if t.alternatives == nil {
		t.alternatives = map[uint]*models.Version{}
	}
	t.alternatives[source.ID] = alternative
}

type taskPlan struct {
	source *models.Task
	parent ParentRef
	name   string
	code   string
	moves  []*move
}

type move struct {
	source  *models.Version
	taskID  uint
	variant string
}

type preparation struct {
	tasks        map[uint]*taskPlan
	taskOrder    []uint
	moves        map[uint]*move
	versionOrder []uint
	inputs       map[uint][]uint
	skippedTasks []TaskSkip
	skipped      []Result
}

func (t *Tool) progress(stage string, current, total int, format string, args ...any) {
	if t.Progress != nil {
		t.Progress(stage, current, total, fmt.Sprintf(format, args...))
	}
}

func (t *Tool) abs(rel string) string {
	return filepath.Join(t.RepositoryRoot, filepath.FromSlash(rel))
}

// Plan resolves and orders the recipe without changing anything.
func (t *Tool) Plan(ctx context.Context) (*Plan, error) {
	prep, err := t.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return &Plan{
		TaskOrder:    prep.taskOrder,
		VersionOrder: prep.versionOrder,
		SkippedTasks: prep.skippedTasks,
		Skipped:      prep.skipped,
	}, nil
}

func (t *Tool) prepare(ctx context.Context) (*preparation, error) {
	if err := t.Recipe.Validate(); err != nil {
		return nil, err
	}
	prep := &preparation{
		tasks: map[uint]*taskPlan{},
		moves: map[uint]*move{},
	}

	ids := t.Recipe.IDs()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := t.Recipe[id]

		var source models.Task
		err := t.DB.Preload("Type").Preload("Project").Limit(1).Find(&source, id).Error
		if err != nil {
			return nil, fmt.Errorf("load task %d: %w", id, err)
		}
		if source.ID == 0 {
			prep.skipTask(id, entry, "source task not found")
			t.progress(StageResolve, i+1, len(ids), "task %d not found", id)
			continue
		}

		plan := &taskPlan{source: &source, parent: entry.NewParent, name: entry.NewName, code: entry.NewCode}
		if !plan.parent.Set {
			plan.parent = Root()
			if source.ParentID != nil {
				plan.parent = Parent(*source.ParentID)
			}
		}
		if plan.name == "" {
			plan.name = source.Name
		}
		if models.IsTyped(source.EntityType) && plan.code == "" {
			plan.code = source.Code
		}

		for _, variant := range entry.TakeNames() {
			take := entry.Takes[variant]
			newVariant := take.NewName
			if newVariant == "" {
				newVariant = variant
			}
			for _, number := range take.Versions {
				var v models.Version
				err := t.DB.Where("task_id = ? AND variant_name = ? AND version_number = ?", id, variant, number).
					Limit(1).Find(&v).Error
				if err != nil {
					return nil, fmt.Errorf("load version %s v%03d of task %d: %w", variant, number, id, err)
				}
				if v.ID == 0 {
					log.Debug("skipping missing version", "task_id", id, "variant", variant, "version", number)
					prep.skipped = append(prep.skipped, Skipped(id, variant, number, "version not found"))
					continue
				}
				plan.moves = append(plan.moves, &move{source: &v, taskID: id, variant: newVariant})
			}
		}

		prep.tasks[id] = plan
		t.progress(StageResolve, i+1, len(ids), "resolved %s", source.Name)
	}

	if err := t.pruneTasks(prep); err != nil {
		return nil, err
	}

	ordering := Recipe{}
	for id, plan := range prep.tasks {
		ordering[id] = &TaskRecipe{NewParent: plan.parent}
	}
	taskOrder, err := OrderTasks(ordering)
	if err != nil {
		return nil, err
	}
	prep.taskOrder = taskOrder

	var versionIDs []uint
	for _, id := range taskOrder {
		for _, m := range prep.tasks[id].moves {
			prep.moves[m.source.ID] = m
			versionIDs = append(versionIDs, m.source.ID)
		}
	}
	inputs, err := db.InputIDs(t.DB, versionIDs)
	if err != nil {
		return nil, fmt.Errorf("load version inputs: %w", err)
	}
	prep.inputs = inputs

	nodes := make([]VersionNode, 0, len(versionIDs))
	for _, id := range versionIDs {
		deps, err := t.withBases(id, inputs[id])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, VersionNode{ID: id, Inputs: deps})
	}
	versionOrder, err := OrderVersions(nodes)
	if err != nil {
		return nil, err
	}
	prep.versionOrder = versionOrder
	return prep, nil
}

// pruneTasks drops tasks whose new parent will not exist, then their
// children, until nothing changes.
func (t *Tool) pruneTasks(prep *preparation) error {
	parentExists := map[uint]bool{}
	for changed := true; changed; {
		changed = false
		for _, id := range t.Recipe.IDs() {
			plan, ok := prep.tasks[id]
			if !ok {
				continue
			}

			reason := ""
			switch {
			case plan.parent.ID == nil:
				if t.TargetProject == nil {
					reason = "no target project for a root task"
				}
			case t.Recipe[*plan.parent.ID] != nil:
				if _, kept := prep.tasks[*plan.parent.ID]; !kept {
					reason = fmt.Sprintf("new parent %d is skipped", *plan.parent.ID)
				}
			default:
				pid := *plan.parent.ID
				exists, checked := parentExists[pid]
				if !checked {
					var count int64
					if err := t.DB.Model(&models.Task{}).Where("id = ?", pid).Count(&count).Error; err != nil {
						return fmt.Errorf("look up new parent %d: %w", pid, err)
					}
					exists = count > 0
					parentExists[pid] = exists
				}
				if !exists {
					reason = fmt.Sprintf("new parent %d not found", pid)
				}
			}

			if reason != "" {
				delete(prep.tasks, id)
				prep.skipPlan(id, plan, reason)
				changed = true
			}
		}
	}
	return nil
}

func (p *preparation) skipTask(id uint, entry *TaskRecipe, reason string) {
	log.Debug("skipping task", "task_id", id, "reason", reason)
	p.skippedTasks = append(p.skippedTasks, TaskSkip{TaskID: id, Reason: reason})
	for _, variant := range entry.TakeNames() {
		for _, number := range entry.Takes[variant].Versions {
			p.skipped = append(p.skipped, Skipped(id, variant, number, "task skipped: "+reason))
		}
	}
}

// skipPlan skips a resolved task. Versions that were not found are already
// reported and are not repeated.
func (p *preparation) skipPlan(id uint, plan *taskPlan, reason string) {
	log.Debug("skipping task", "task_id", id, "reason", reason)
	p.skippedTasks = append(p.skippedTasks, TaskSkip{TaskID: id, Reason: reason})
	for _, m := range plan.moves {
		p.skipped = append(p.skipped, Skipped(id, m.source.VariantName, m.source.VersionNumber, "task skipped: "+reason))
	}
}

// Migrate creates the new tasks in parent order, then moves the versions so
// that every version comes after the versions it references. Per version
// problems end up as skipped results and failing post-publish hooks as
// publish errors; only database errors, cycles and cancellation abort.
func (t *Tool) Migrate(ctx context.Context) (*Report, error) {
	prep, err := t.prepare(ctx)
	if err != nil {
		return nil, err
	}

	report := newReport()
	report.SkippedTasks = prep.skippedTasks
	report.Results = append(report.Results, prep.skipped...)

	newTasks := make(map[uint]*models.Task, len(prep.taskOrder))
	for i, id := range prep.taskOrder {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		task, err := t.createTask(prep.tasks[id], newTasks)
		if err != nil {
			return report, err
		}
		newTasks[id] = task
		report.CreatedTasks[id] = task.ID
		t.progress(StageTasks, i+1, len(prep.taskOrder), "created %s", task.Name)
	}

	lut := map[uint]*models.Version{}
	for id, v := range t.alternatives {
		lut[id] = v
	}
	for i, id := range prep.versionOrder {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		m := prep.moves[id]
		result, err := t.moveVersion(ctx, m, newTasks[m.taskID], prep.inputs[id], lut, report)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, result)
		t.progress(StageVersions, i+1, len(prep.versionOrder), "%s %s v%03d", result.Status, result.VariantName, result.VersionNumber)
	}

	log.Info("migration finished",
		"created_tasks", len(report.CreatedTasks),
		"migrated", len(report.Migrated()),
		"skipped", len(report.Skipped()),
		"publish_errors", len(report.PublishErrors))
	return report, nil
}

func (t *Tool) createTask(plan *taskPlan, newTasks map[uint]*models.Task) (*models.Task, error) {
	source := plan.source

	task := &models.Task{
		EntityType: source.EntityType,
		Name:       plan.name,
		TypeID:     source.TypeID,
		Type:       source.Type,
	}
	if models.IsTyped(source.EntityType) {
		task.Code = plan.code
	}
	projectName := ""
	if source.Project != nil {
		projectName = source.Project.Name
	}
	task.Description = fmt.Sprintf("Migrated from %s under %s", source.Name, projectName)

	switch {
	case plan.parent.ID == nil:
		task.ProjectID = t.TargetProject.ID
	case newTasks[*plan.parent.ID] != nil:
		parent := newTasks[*plan.parent.ID]
		task.ParentID = &parent.ID
		task.ProjectID = parent.ProjectID
	default:
		parent, err := db.GetTaskByID(t.DB, *plan.parent.ID)
		if err != nil {
			return nil, err
		}
		task.ParentID = &parent.ID
		task.ProjectID = parent.ProjectID
	}

	if err := t.DB.Omit(clause.Associations).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create copy of task %d: %w", source.ID, err)
	}
	if err := models.RecordChange(t.DB, task.ID, "migrated_from", "", strconv.FormatUint(uint64(source.ID), 10), t.ChangedBy); err != nil {
		return nil, fmt.Errorf("record history of task %d: %w", task.ID, err)
	}
	log.Debug("created migrated task", "source_id", source.ID, "task_id", task.ID, "name", task.Name)
	return task, nil
}

// withBases adds the base version of every representation input of version
// id, since references are relinked to the base.
func (t *Tool) withBases(id uint, inputIDs []uint) ([]uint, error) {
	deps := append([]uint{}, inputIDs...)
	for _, input := range inputIDs {
		base, err := t.baseOf(input)
		if err != nil {
			return nil, err
		}
		if base != 0 && base != input && base != id {
			deps = append(deps, base)
		}
	}
	return deps, nil
}

// baseOf returns the id of the latest published base version of the family
// of version id, the id itself for base versions and 0 for missing ones.
func (t *Tool) baseOf(id uint) (uint, error) {
	var v models.Version
	if err := t.DB.Limit(1).Find(&v, id).Error; err != nil {
		return 0, fmt.Errorf("load input %d: %w", id, err)
	}
	if v.ID == 0 {
		return 0, nil
	}
	r := repr.New(t.DB, &v)
	if r.IsBase() {
		return v.ID, nil
	}
	base, err := r.Find(repr.BaseReprName)
	if err != nil {
		return 0, fmt.Errorf("find base of input %d: %w", id, err)
	}
	if base == nil {
		return v.ID, nil
	}
	return base.ID, nil
}

type inputLink struct {
	old      *models.Version
	migrated *models.Version
}

// resolveInputs maps the inputs of a version to their migrated versions.
// References are switched to their base representation first.
func (t *Tool) resolveInputs(inputIDs []uint, lut map[uint]*models.Version) ([]inputLink, error) {
	var links []inputLink
	for _, id := range inputIDs {
		target, err := t.baseOf(id)
		if err != nil {
			return nil, err
		}
		if target == 0 {
			continue
		}

		migrated, ok := lut[target]
		if !ok {
			migrated, ok = lut[id]
		}
		if !ok {
			continue
		}
		var input models.Version
		if err := t.DB.First(&input, id).Error; err != nil {
			return nil, fmt.Errorf("load input %d: %w", id, err)
		}
		links = append(links, inputLink{old: &input, migrated: migrated})
	}
	return links, nil
}

func (t *Tool) moveVersion(ctx context.Context, m *move, task *models.Task, inputIDs []uint, lut map[uint]*models.Version, report *Report) (Result, error) {
	source := m.source
	result := Result{
		SourceTaskID:    m.taskID,
		SourceVersionID: source.ID,
		VariantName:     source.VariantName,
		VersionNumber:   source.VersionNumber,
	}
	skip := func(reason string) (Result, error) {
		log.Debug("skipping version", "version_id", source.ID, "reason", reason)
		result.Status = StatusSkipped
		result.Reason = reason
		return result, nil
	}

	srcPath := t.abs(source.FullPath)
	if _, err := os.Stat(srcPath); err != nil {
		return skip(fmt.Sprintf("source file: %v", err))
	}

	number, err := models.NextVersionNumber(t.DB, task.ID, m.variant)
	if err != nil {
		return result, err
	}
	relPath, err := models.VersionPath(t.DB, task.ID, m.variant, number, source.Extension)
	if err != nil {
		return result, err
	}
	dstPath := t.abs(relPath)
	if samePath(srcPath, dstPath) {
		return skip(fmt.Sprintf("destination is the source file: %s", relPath))
	}
	if _, err := os.Lstat(dstPath); err == nil {
		return skip(fmt.Sprintf("destination exists: %s", relPath))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return skip(fmt.Sprintf("destination: %v", err))
	}

	links, err := t.resolveInputs(inputIDs, lut)
	if err != nil {
		return result, err
	}

	native := t.Native.Match(source)
	if native {
		refs := make(map[string]string, 2*len(links))
		for _, l := range links {
			refs[t.abs(l.old.FullPath)] = t.abs(l.migrated.FullPath)
			refs[l.old.FullPath] = l.migrated.FullPath
		}
		if err := t.Relinker.Relink(ctx, srcPath, dstPath, refs); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			return skip(fmt.Sprintf("relink: %v", err))
		}
	} else if err := copyFile(srcPath, dstPath); err != nil {
		return skip(fmt.Sprintf("copy: %v", err))
	}

	// published only once the file is in place
	version := &models.Version{
		TaskID:        task.ID,
		VariantName:   m.variant,
		VersionNumber: number,
		FullPath:      relPath,
		Description:   source.Description,
		CreatedWith:   source.CreatedWith,
		Extension:     source.Extension,
		IsPublished:   source.IsPublished,
	}
	if err := t.DB.Omit(clause.Associations).Create(version).Error; err != nil {
		removeOrphan(dstPath)
		return result, fmt.Errorf("create copy of version %d: %w", source.ID, err)
	}

	seen := map[uint]bool{}
	var newInputs []uint
	for _, l := range links {
		if !seen[l.migrated.ID] {
			seen[l.migrated.ID] = true
			newInputs = append(newInputs, l.migrated.ID)
		}
	}
	if err := db.AddVersionInputs(t.DB, version.ID, newInputs...); err != nil {
		if delErr := t.DB.Delete(&models.Version{}, version.ID).Error; delErr != nil {
			log.Warn("failed to remove incomplete version", "version_id", version.ID, "error", delErr)
		}
		removeOrphan(dstPath)
		return result, err
	}
	lut[source.ID] = version

	if version.IsPublished && native {
		t.runHooks(ctx, task, version, dstPath, report)
	}

	name, err := db.TaskHierarchyName(t.DB, task.ID)
	if err != nil {
		name = task.Name
	}
	log.Debug("moved version", "source_id", source.ID, "version_id", version.ID, "task", name, "version", version.VersionNumber)

	result.Status = StatusMigrated
	result.NewVersionID = version.ID
	result.NewPath = relPath
	return result, nil
}

// samePath reports whether a and b name the same file.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// removeOrphan deletes a file written for a version that was never recorded.
func removeOrphan(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to remove orphaned file", "path", path, "error", err)
	}
}

func (t *Tool) runHooks(ctx context.Context, task *models.Task, version *models.Version, path string, report *Report) {
	for _, hook := range t.hooksFor(task.TypeName()) {
		err := runHook(ctx, hook, version, path)
		if err == nil {
			continue
		}
		log.Warn("post-publish hook failed", "version_id", version.ID, "path", version.FullPath, "error", err)
		report.PublishErrors = append(report.PublishErrors, PublishError{
			VersionID: version.ID,
			Path:      version.FullPath,
			Err:       err,
			Message:   err.Error(),
		})

		ticket := &models.Ticket{
			VersionID:   version.ID,
			Summary:     fmt.Sprintf("Post-publish check failed for %s", version.FullPath),
			Description: err.Error(),
		}
		if err := t.DB.Create(ticket).Error; err != nil {
			log.Error("failed to store ticket", "version_id", version.ID, "error", err)
		}
	}
}
