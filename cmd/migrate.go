package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/env"
	"pipekit/internal/log"
	"pipekit/internal/migration"
	"pipekit/internal/models"
)

var (
	migrateProject      string
	migrateDryRun       bool
	migrateRepoRoot     string
	migrateAlternatives []string
	migrateNoIntegrity  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <recipe>",
	Short: "Migrate tasks and versions as described by a recipe",
	Long: `Migrate tasks and versions as described by a JSON or YAML recipe.

A recipe maps source task ids to their new parent, name, code and takes:

  1:                      # source task id
    new_parent_id: 10     # null puts the task at the target project root
    new_name: Hero
    takes:
      Main:
        new_name: Main
        versions: [1, 2]

Parents are created before their children and every version is moved after
the versions it references, so the new inputs point at the new files.
Versions that cannot be migrated are reported as skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVarP(&migrateProject, "project", "P", "", "Target project for root tasks (defaults to the default project)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show the migration order without changing anything")
	migrateCmd.Flags().StringVar(&migrateRepoRoot, "repository-root", "", "Directory version paths are relative to")
	migrateCmd.Flags().StringArrayVar(&migrateAlternatives, "alternative", nil, "Resolve references to a version to another one (source-id:alternative-id)")
	migrateCmd.Flags().BoolVar(&migrateNoIntegrity, "no-integrity-check", false, "Do not check published files after the migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	recipe, err := migration.LoadRecipe(args[0])
	if err != nil {
		return err
	}

	database := db.GetDB()
	project, err := resolveProject(database, migrateProject)
	if err != nil && migrateProject != "" {
		return err
	}

	root, err := repositoryRoot(migrateRepoRoot)
	if err != nil {
		return err
	}

	tool, err := newMigrationTool(database, recipe, project, root, !migrateNoIntegrity)
	if err != nil {
		return err
	}
	for _, alt := range migrateAlternatives {
		if err := addAlternative(database, tool, alt); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f := formatter()
	if migrateDryRun {
		plan, err := tool.Plan(ctx)
		if err != nil {
			return err
		}
		f.Plan(plan)
		return nil
	}

	report, err := tool.Migrate(ctx)
	if report != nil {
		f.Report(report)
	}
	return err
}

// newMigrationTool configures a migration tool from the environment
func newMigrationTool(tx *gorm.DB, recipe migration.Recipe, project *models.Project, root string, integrityCheck bool) (*migration.Tool, error) {
	vars := env.Variables()
	native, err := migration.NewNativeMatcher(vars.NativeDCCs, vars.NativePatterns)
	if err != nil {
		return nil, err
	}

	tool := migration.New(tx, recipe)
	tool.TargetProject = project
	tool.RepositoryRoot = root
	tool.Native = native
	tool.ChangedBy = currentUser()
	tool.Progress = func(stage string, current, total int, message string) {
		log.Info("migration progress", "stage", stage, "step", current, "total", total, "message", message)
	}
	if integrityCheck {
		tool.RegisterHook(migration.AnyType, migration.FileIntegrityHook())
	}
	return tool, nil
}

func addAlternative(tx *gorm.DB, tool *migration.Tool, pair string) error {
	src, alt, ok := strings.Cut(pair, ":")
	if !ok {
		return fmt.Errorf("invalid alternative %q: expected source-id:alternative-id", pair)
	}
	srcID, err := db.ParseID(src)
	if err != nil {
		return err
	}
	altID, err := db.ParseID(alt)
	if err != nil {
		return err
	}
	source, err := db.GetVersionByID(tx, srcID)
	if err != nil {
		return err
	}
	alternative, err := db.GetVersionByID(tx, altID)
	if err != nil {
		return err
	}
	tool.AddVersionAlternative(source, alternative)
	return nil
}

// repositoryRoot returns flag, PIPEKIT_REPOSITORY_ROOT or the workspace root,
// in that order.
func repositoryRoot(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if root := env.Variables().RepositoryRoot; root != "" {
		return root, nil
	}
	if root, err := db.FindWorkspaceRoot(); err == nil {
		return root, nil
	}
	return os.Getwd()
}
