package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipekit/internal/db"
	"pipekit/internal/log"
	"pipekit/internal/models"
)

var (
	forceInit   bool
	ignoreInit  bool
	initProject string
	initCode    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize pipekit in the current directory",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialize")
	initCmd.Flags().BoolVar(&ignoreInit, "gitignore", false, "Add the pipekit directory to .gitignore")
	initCmd.Flags().StringVar(&initProject, "project", "", "Create a default project with this name")
	initCmd.Flags().StringVar(&initCode, "code", "", "Code of the default project")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	pipekitDir := filepath.Join(cwd, db.PipekitDir)
	dbPath := filepath.Join(pipekitDir, db.DBFileName)

	if info, err := os.Stat(pipekitDir); err == nil && info.IsDir() {
		if !forceInit {
			return fmt.Errorf("already initialized. Use --force to reinitialize")
		}
		if err := os.RemoveAll(pipekitDir); err != nil {
			return fmt.Errorf("failed to remove existing pipekit directory: %w", err)
		}
	}

	if err := os.MkdirAll(pipekitDir, 0755); err != nil {
		return fmt.Errorf("failed to create pipekit directory: %w", err)
	}

	database, err := db.InitDB(dbPath)
	if err != nil {
		return err
	}

	if err := database.Create(&models.Config{Key: models.ConfigSchemaVersion, Value: db.SchemaVersion}).Error; err != nil {
		return fmt.Errorf("failed to save schema version: %w", err)
	}
	if err := database.Create(&models.Config{Key: models.ConfigInitializedAt, Value: time.Now().Format(time.RFC3339)}).Error; err != nil {
		return fmt.Errorf("failed to save initialization time: %w", err)
	}

	var project *models.Project
	if initProject != "" {
		project, err = createProject(database, initProject, initCode)
		if err != nil {
			return err
		}
		if err := db.SetConfig(models.ConfigDefaultProject, project.Code); err != nil {
			return fmt.Errorf("failed to save default project: %w", err)
		}
	}

	if ignoreInit {
		if err := addToGitignore(cwd, db.PipekitDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not add to .gitignore: %v\n", err)
		}
	}
	log.Info("workspace initialized", "path", pipekitDir)

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "path": pipekitDir, "project": project})
		return nil
	}

	fmt.Printf("pipekit initialized in %s/\n", db.PipekitDir)
	if project != nil {
		fmt.Printf("Default project: %s (%s)\n", project.Name, project.Code)
	}

	fmt.Println("\nNext steps:")
	if project == nil {
		fmt.Println("  pk project create \"My Project\" MP    Create a project")
	}
	fmt.Println("  pk import <project> tasks.json      Import a task hierarchy")
	fmt.Println("  pk task list                        List all tasks")
	return nil
}

func addToGitignore(dir, entry string) error {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}
