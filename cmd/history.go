package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show change history for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	taskID, err := db.ParseID(args[0])
	if err != nil {
		return err
	}

	database := db.GetDB()
	task, err := db.GetTaskByID(database, taskID)
	if err != nil {
		return fmt.Errorf("task not found: %d", taskID)
	}

	var history []models.TaskHistory
	if err := database.Where("task_id = ?", taskID).
		Order("changed_at DESC, id DESC").
		Limit(historyLimit).
		Find(&history).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"task_id": taskID,
			"count":   len(history),
			"history": history,
		})
		return nil
	}

	if len(history) == 0 {
		fmt.Printf("No change history for task %d\n", taskID)
		return nil
	}

	fmt.Printf("Change history for %d (%s):\n\n", taskID, task.Name)
	for _, h := range history {
		timestamp := h.ChangedAt.Format(models.DateTimeFormat)
		if h.OldValue == "" {
			fmt.Printf("[%s] %s: set to \"%s\"", timestamp, h.Field, h.NewValue)
		} else if h.NewValue == "" {
			fmt.Printf("[%s] %s: removed \"%s\"", timestamp, h.Field, h.OldValue)
		} else {
			fmt.Printf("[%s] %s: \"%s\" → \"%s\"", timestamp, h.Field, h.OldValue, h.NewValue)
		}
		if h.ChangedBy != "" {
			fmt.Printf(" (by %s)", h.ChangedBy)
		}
		fmt.Println()
	}
	return nil
}
