package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var searchProject string

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search tasks by name, code or description",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchProject, "project", "P", "", "Limit to one project")
}

func runSearch(cmd *cobra.Command, args []string) error {
	database := db.GetDB()
	var projectID uint
	if searchProject != "" {
		project, err := db.GetProject(database, searchProject)
		if err != nil {
			return err
		}
		projectID = project.ID
	}

	matches, err := searchTasks(database, args[0], projectID)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(matches), "tasks": matches})
		return nil
	}

	if len(matches) == 0 {
		fmt.Println("No matches found")
		return nil
	}

	for _, t := range matches {
		path, err := db.TaskHierarchyName(database, t.ID)
		if err != nil {
			path = t.Name
		}
		fmt.Printf("[%d] %s - %s\n", t.ID, t.Status, path)
	}
	return nil
}

func searchTasks(tx *gorm.DB, text string, projectID uint) ([]models.Task, error) {
	query := "%" + strings.ToLower(text) + "%"
	q := tx.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(description) LIKE ?", query, query, query)
	if projectID != 0 {
		q = q.Where("project_id = ?", projectID)
	}
	var matches []models.Task
	err := q.Order("id ASC").Find(&matches).Error
	return matches, err
}
