package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var readyProject string

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List leaf tasks whose dependencies are completed",
	RunE:  runReady,
}

func init() {
	rootCmd.AddCommand(readyCmd)
	readyCmd.Flags().StringVarP(&readyProject, "project", "P", "", "Filter by project")
}

func runReady(cmd *cobra.Command, args []string) error {
	database := db.GetDB()

	var projectID uint
	if readyProject != "" {
		project, err := db.GetProject(database, readyProject)
		if err != nil {
			return err
		}
		projectID = project.ID
	}

	tasks, err := readyTasks(database, projectID)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(tasks), "tasks": tasks})
		return nil
	}

	if len(tasks) == 0 {
		fmt.Println("No ready tasks")
		return nil
	}
	formatter().TaskList(tasks, "Ready tasks")
	return nil
}

// readyTasks returns the leaf tasks that are neither completed nor halted and
// whose dependencies are all completed. A projectID of 0 matches every project.
func readyTasks(tx *gorm.DB, projectID uint) ([]models.Task, error) {
	var blocked []uint
	if err := tx.Model(&models.TaskDependency{}).
		Select("DISTINCT task_dependencies.task_id").
		Joins("JOIN tasks ON tasks.id = task_dependencies.depends_on_id").
		Where("tasks.status != ?", models.StatusCompleted).
		Pluck("task_dependencies.task_id", &blocked).Error; err != nil {
		return nil, err
	}

	query := tx.Where("status NOT IN ?", []string{models.StatusCompleted, models.StatusOnHold, models.StatusStopped}).
		Where("NOT EXISTS (SELECT 1 FROM tasks AS children WHERE children.parent_id = tasks.id)")
	if len(blocked) > 0 {
		query = query.Where("id NOT IN ?", blocked)
	}
	if projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}

	var tasks []models.Task
	if err := query.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
