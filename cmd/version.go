package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var (
	versionVariant     string
	versionExtension   string
	versionCreatedWith string
	versionDescription string
	versionPublish     bool
	versionPublished   bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version management",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <task-id>",
	Short: "Create the next version of a task variant",
	Long: `Create the next version of a task variant. The version number is one more
than the highest number of the same task and variant, and the file path
follows {project}/{parents...}/{task}/{variant}/{task}_{variant}_v{NNN}{ext}.

Representations are variants named "<take>@<repr>", e.g. "Main@BBox".`,
	Args: cobra.ExactArgs(1),
	RunE: runVersionCreate,
}

var versionListCmd = &cobra.Command{
	Use:     "list <task-id>",
	Short:   "List versions of a task",
	Aliases: []string{"ls"},
	Args:    cobra.ExactArgs(1),
	RunE:    runVersionList,
}

var versionPublishCmd = &cobra.Command{
	Use:   "publish <version-id>",
	Short: "Mark a version as published",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionPublish,
}

var versionInputCmd = &cobra.Command{
	Use:   "input <version-id> <input-id>...",
	Short: "Record versions referenced by a version",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runVersionInput,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.AddCommand(versionCreateCmd, versionListCmd, versionPublishCmd, versionInputCmd)

	versionCreateCmd.Flags().StringVarP(&versionVariant, "variant", "v", models.DefaultVariantName, "Variant (take) name")
	versionCreateCmd.Flags().StringVar(&versionExtension, "ext", ".ma", "File extension")
	versionCreateCmd.Flags().StringVar(&versionCreatedWith, "created-with", "Maya", "Application the file was created with")
	versionCreateCmd.Flags().StringVarP(&versionDescription, "description", "d", "", "Description")
	versionCreateCmd.Flags().BoolVar(&versionPublish, "publish", false, "Publish the version")

	versionListCmd.Flags().StringVarP(&versionVariant, "variant", "v", "", "Filter by variant name")
	versionListCmd.Flags().BoolVar(&versionPublished, "published", false, "Only published versions")
}

func runVersionCreate(cmd *cobra.Command, args []string) error {
	taskID, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	if _, err := db.GetTaskByID(database, taskID); err != nil {
		return fmt.Errorf("task not found: %s", args[0])
	}

	version := &models.Version{
		TaskID:      taskID,
		VariantName: versionVariant,
		Extension:   versionExtension,
		CreatedWith: versionCreatedWith,
		Description: versionDescription,
		IsPublished: versionPublish,
	}
	if err := database.Create(version).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "version": version})
	} else {
		fmt.Printf("Created: [%d] %s %s\n", version.ID, version.Label(), version.FullPath)
	}
	return nil
}

func runVersionList(cmd *cobra.Command, args []string) error {
	taskID, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	versions, err := listVersions(db.GetDB(), taskID, versionVariant, versionPublished)
	if err != nil {
		return err
	}
	if !IsJSONOutput() && len(versions) == 0 {
		fmt.Println("No versions found")
		return nil
	}
	formatter().VersionList(versions)
	return nil
}

func listVersions(tx *gorm.DB, taskID uint, variantName string, publishedOnly bool) ([]models.Version, error) {
	query := tx.Where("task_id = ?", taskID)
	if variantName != "" {
		query = query.Where("variant_name = ?", variantName)
	}
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}
	var versions []models.Version
	err := query.Order("variant_name ASC, version_number ASC").Find(&versions).Error
	return versions, err
}

func runVersionPublish(cmd *cobra.Command, args []string) error {
	id, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	version, err := db.GetVersionByID(database, id)
	if err != nil {
		return err
	}
	if version.IsPublished {
		return fmt.Errorf("version %d is already published", id)
	}

	version.Publish()
	if err := database.Model(version).Update("is_published", true).Error; err != nil {
		return err
	}
	if err := models.RecordChange(database, version.TaskID, "published", "", version.Label(), currentUser()); err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "version": version})
	} else {
		fmt.Printf("Published: [%d] %s\n", version.ID, version.Label())
	}
	return nil
}

func runVersionInput(cmd *cobra.Command, args []string) error {
	id, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	if _, err := db.GetVersionByID(database, id); err != nil {
		return err
	}

	var inputIDs []uint
	for _, arg := range args[1:] {
		inputID, err := db.ParseID(arg)
		if err != nil {
			return err
		}
		if _, err := db.GetVersionByID(database, inputID); err != nil {
			return err
		}
		inputIDs = append(inputIDs, inputID)
	}

	err = database.Transaction(func(tx *gorm.DB) error {
		return db.AddVersionInputs(tx, id, inputIDs...)
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "version_id": id, "inputs": inputIDs})
	} else {
		fmt.Printf("Added %d input(s) to version %d\n", len(inputIDs), id)
	}
	return nil
}
