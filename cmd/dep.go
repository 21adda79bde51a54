package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Dependency management",
}

var depAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on-id>",
	Short: "Add dependency: first task depends on the second",
	Long: `Add a dependency where the first task DEPENDS ON the second task.

Example: If Rig cannot start until Model is done:
  pk dep add <rig> <model>

This means:
  - Model must be completed first
  - Rig will NOT appear in 'pk ready' until Model is completed (cmpl)
  - Dependencies that would close a cycle are rejected`,
	Args: cobra.ExactArgs(2),
	RunE: runDepAdd,
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <task-id> <depends-on-id>",
	Short: "Remove dependency between two tasks",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepRemove,
}

var depListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List dependencies for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepList,
}

func init() {
	rootCmd.AddCommand(depCmd)
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depListCmd)
}

func parseDepArgs(args []string) (uint, uint, error) {
	taskID, err := db.ParseID(args[0])
	if err != nil {
		return 0, 0, err
	}
	dependsOnID, err := db.ParseID(args[1])
	if err != nil {
		return 0, 0, err
	}
	database := db.GetDB()
	if _, err := db.GetTaskByID(database, taskID); err != nil {
		return 0, 0, fmt.Errorf("task not found: %d", taskID)
	}
	if _, err := db.GetTaskByID(database, dependsOnID); err != nil {
		return 0, 0, fmt.Errorf("dependency task not found: %d", dependsOnID)
	}
	return taskID, dependsOnID, nil
}

func runDepAdd(cmd *cobra.Command, args []string) error {
	taskID, dependsOnID, err := parseDepArgs(args)
	if err != nil {
		return err
	}

	dep, err := db.AddDependency(db.GetDB(), taskID, dependsOnID)
	if err != nil {
		if errors.Is(err, models.ErrCircularDependency) {
			return fmt.Errorf("task %d cannot depend on %d: %w", taskID, dependsOnID, err)
		}
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "dependency": dep})
	} else {
		fmt.Printf("Added: %d depends on %d\n", taskID, dependsOnID)
	}
	return nil
}

func runDepRemove(cmd *cobra.Command, args []string) error {
	taskID, dependsOnID, err := parseDepArgs(args)
	if err != nil {
		return err
	}

	result := db.GetDB().Where("task_id = ? AND depends_on_id = ?", taskID, dependsOnID).Delete(&models.TaskDependency{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("dependency not found between %d and %d", taskID, dependsOnID)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true})
	} else {
		fmt.Println("Dependency removed")
	}
	return nil
}

func runDepList(cmd *cobra.Command, args []string) error {
	taskID, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()

	var dependsOn, dependents []models.TaskDependency
	if err := database.Preload("DependsOn").Where("task_id = ?", taskID).Find(&dependsOn).Error; err != nil {
		return err
	}
	if err := database.Preload("Task").Where("depends_on_id = ?", taskID).Find(&dependents).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"depends_on": dependsOn, "dependents": dependents})
		return nil
	}

	fmt.Printf("Dependencies for %d:\n", taskID)
	fmt.Printf("\nDepends on (%d):\n", len(dependsOn))
	for _, d := range dependsOn {
		fmt.Printf("  - [%d] %s (%s)\n", d.DependsOnID, d.DependsOn.Name, d.DependsOn.Status)
	}
	fmt.Printf("\nDependents (%d):\n", len(dependents))
	for _, d := range dependents {
		fmt.Printf("  - [%d] %s (%s)\n", d.TaskID, d.Task.Name, d.Task.Status)
	}
	return nil
}
