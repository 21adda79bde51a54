package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var projectDefault bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project management",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name> [code]",
	Short: "Create a project",
	Long: `Create a project. The code defaults to the upper-cased name with
non path-safe characters removed. Version files of the project are stored
under <repository root>/<code>/.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List projects",
	Aliases: []string{"ls"},
	RunE:    runProjectList,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCreateCmd.Flags().BoolVar(&projectDefault, "default", false, "Make this the default project")
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	code := ""
	if len(args) > 1 {
		code = args[1]
	}
	project, err := createProject(db.GetDB(), args[0], code)
	if err != nil {
		return err
	}
	if projectDefault {
		if err := db.SetConfig(models.ConfigDefaultProject, project.Code); err != nil {
			return fmt.Errorf("failed to save default project: %w", err)
		}
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "project": project})
	} else {
		fmt.Printf("Created project [%d] %s (%s)\n", project.ID, project.Name, project.Code)
	}
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	var projects []models.Project
	if err := db.GetDB().Order("name ASC").Find(&projects).Error; err != nil {
		return err
	}
	defaultCode, _ := db.GetConfig(models.ConfigDefaultProject)

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(projects), "projects": projects, "default": defaultCode})
		return nil
	}

	if len(projects) == 0 {
		fmt.Println("No projects found")
		return nil
	}
	for _, p := range projects {
		mark := " "
		if p.Code == defaultCode {
			mark = "*"
		}
		fmt.Printf("%s[%d] %s (%s)\n", mark, p.ID, p.Name, p.Code)
	}
	return nil
}

func createProject(tx *gorm.DB, name, code string) (*models.Project, error) {
	if code == "" {
		code = strings.ToUpper(models.NiceName(name))
	}
	project := &models.Project{Name: name, Code: code}
	if err := tx.Create(project).Error; err != nil {
		return nil, fmt.Errorf("failed to create project %q: %w", name, err)
	}
	return project, nil
}

// resolveProject returns the project named by ref, or the default project
// when ref is empty.
func resolveProject(tx *gorm.DB, ref string) (*models.Project, error) {
	if ref == "" {
		def, err := db.GetConfig(models.ConfigDefaultProject)
		if err != nil || def == "" {
			return nil, fmt.Errorf("no project given and no default project set (use --project or 'pk project create --default')")
		}
		ref = def
	}
	return db.GetProject(tx, ref)
}
