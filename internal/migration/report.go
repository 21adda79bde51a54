package migration

// Status tells whether a version was migrated.
type Status string

const (
	StatusMigrated Status = "migrated"
	StatusSkipped  Status = "skipped"
)

// Result is the outcome for one version listed in the recipe.
type Result struct {
	Status          Status `json:"status"`
	SourceTaskID    uint   `json:"source_task_id"`
	SourceVersionID uint   `json:"source_version_id,omitempty"`
	VariantName     string `json:"variant_name"`
	VersionNumber   int    `json:"version_number"`
	NewVersionID    uint   `json:"new_version_id,omitempty"`
	NewPath         string `json:"new_path,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Skipped returns the result of a version that was not migrated.
func Skipped(taskID uint, variantName string, versionNumber int, reason string) Result {
	return Result{
		Status:        StatusSkipped,
		SourceTaskID:  taskID,
		VariantName:   variantName,
		VersionNumber: versionNumber,
		Reason:        reason,
	}
}

// TaskSkip is a recipe entry for which no task was created.
type TaskSkip struct {
	TaskID uint   `json:"task_id"`
	Reason string `json:"reason"`
}

// Report summarizes a migration.
type Report struct {
	Results       []Result       `json:"results"`
	CreatedTasks  map[uint]uint  `json:"created_tasks"`
	SkippedTasks  []TaskSkip     `json:"skipped_tasks,omitempty"`
	PublishErrors []PublishError `json:"publish_errors,omitempty"`
}

func newReport() *Report {
	return &Report{CreatedTasks: map[uint]uint{}}
}

// Migrated returns the results of migrated versions.
func (r *Report) Migrated() []Result {
	return r.filter(StatusMigrated)
}

// Skipped returns the results of skipped versions.
func (r *Report) Skipped() []Result {
	return r.filter(StatusSkipped)
}

func (r *Report) filter(status Status) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res)
		}
	}
	return out
}

// Plan is the outcome of a dry run: the order tasks would be created and
// versions moved in, and what would be skipped.
type Plan struct {
	TaskOrder    []uint     `json:"task_order"`
	VersionOrder []uint     `json:"version_order"`
	SkippedTasks []TaskSkip `json:"skipped_tasks,omitempty"`
	Skipped      []Result   `json:"skipped,omitempty"`
}
