package cmd

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
	"pipekit/internal/repr"
)

var (
	taskProject     string
	taskParent      uint
	taskEntity      string
	taskCode        string
	taskTypeName    string
	taskDescription string
	taskStatus      string
	taskName        string
	taskRootOnly    bool
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task management",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a task, asset, shot or sequence",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List tasks",
	Aliases: []string{"ls"},
	RunE:    runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskUpdateCmd)

	taskCreateCmd.Flags().StringVarP(&taskProject, "project", "P", "", "Project code, name or id")
	taskCreateCmd.Flags().UintVar(&taskParent, "parent", 0, "Parent task ID")
	taskCreateCmd.Flags().StringVarP(&taskEntity, "entity", "e", models.EntityTask, "Entity type (Task/Asset/Shot/Sequence)")
	taskCreateCmd.Flags().StringVarP(&taskCode, "code", "c", "", "Code (required for Asset/Shot/Sequence)")
	taskCreateCmd.Flags().StringVarP(&taskTypeName, "type", "t", "", "Type name (created if missing)")
	taskCreateCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "Description")
	taskCreateCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "Status code")

	taskListCmd.Flags().StringVarP(&taskProject, "project", "P", "", "Filter by project")
	taskListCmd.Flags().UintVar(&taskParent, "parent", 0, "List children of this task")
	taskListCmd.Flags().BoolVar(&taskRootOnly, "root", false, "Only root tasks")
	taskListCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "Filter by status")
	taskListCmd.Flags().StringVarP(&taskEntity, "entity", "e", "", "Filter by entity type")
	taskListCmd.Flags().StringVarP(&taskTypeName, "type", "t", "", "Filter by type name")

	taskUpdateCmd.Flags().StringVar(&taskName, "name", "", "New name")
	taskUpdateCmd.Flags().StringVarP(&taskCode, "code", "c", "", "New code")
	taskUpdateCmd.Flags().StringVarP(&taskTypeName, "type", "t", "", "New type name")
	taskUpdateCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "New description")
	taskUpdateCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "New status")
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	database := db.GetDB()
	task := &models.Task{
		Name:        args[0],
		EntityType:  taskEntity,
		Code:        taskCode,
		Description: taskDescription,
		Status:      taskStatus,
	}
	if task.Status != "" && !models.ValidStatus(task.Status) {
		return fmt.Errorf("invalid status '%s'", task.Status)
	}

	if taskParent != 0 {
		parent, err := db.GetTaskByID(database, taskParent)
		if err != nil {
			return fmt.Errorf("parent task not found: %d", taskParent)
		}
		task.ParentID = &parent.ID
		task.ProjectID = parent.ProjectID
	} else {
		project, err := resolveProject(database, taskProject)
		if err != nil {
			return err
		}
		task.ProjectID = project.ID
	}

	if taskTypeName != "" {
		typ, err := findOrCreateType(database, taskTypeName)
		if err != nil {
			return err
		}
		task.TypeID = &typ.ID
		task.Type = typ
	}

	if err := database.Omit("Type").Create(task).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "task": task})
	} else {
		fmt.Printf("Created: [%d] %s\n", task.ID, task.Name)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	database := db.GetDB()
	query := database.Preload("Type").Order("id ASC")

	if taskProject != "" {
		project, err := db.GetProject(database, taskProject)
		if err != nil {
			return err
		}
		query = query.Where("project_id = ?", project.ID)
	}
	if taskParent != 0 {
		query = query.Where("parent_id = ?", taskParent)
	} else if taskRootOnly {
		query = query.Where("parent_id IS NULL")
	}
	if taskStatus != "" {
		query = query.Where("status = ?", taskStatus)
	}
	if taskEntity != "" {
		query = query.Where("entity_type = ?", taskEntity)
	}
	if taskTypeName != "" {
		query = query.Where("type_id IN (?)", database.Model(&models.Type{}).Select("id").Where("name = ?", taskTypeName))
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return err
	}

	if !IsJSONOutput() && len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}
	formatter().TaskList(tasks, "")
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	id, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	task, err := db.GetTaskByID(database, id)
	if err != nil {
		return fmt.Errorf("task not found: %s", args[0])
	}

	path, err := db.TaskHierarchyName(database, task.ID)
	if err != nil {
		return err
	}
	children, err := db.ChildrenOf(database, task.ID)
	if err != nil {
		return err
	}
	var dependsOn, dependents []models.TaskDependency
	database.Where("task_id = ?", task.ID).Find(&dependsOn)
	database.Where("depends_on_id = ?", task.ID).Find(&dependents)
	variants, err := repr.UniqueVariantNames(database, task.ID, true)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"task":       task,
			"path":       path,
			"children":   children,
			"depends_on": dependsOn,
			"dependents": dependents,
			"variants":   variants,
		})
		return nil
	}

	f := formatter()
	f.Task(task)
	f.KeyValue("Path", path)
	if len(children) > 0 {
		f.Section("Children")
		for _, c := range children {
			fmt.Printf("  [%d] %s - %s\n", c.ID, c.Status, c.Name)
		}
	}
	if len(dependsOn) > 0 {
		f.Section("Depends on")
		for _, d := range dependsOn {
			fmt.Printf("  - %d\n", d.DependsOnID)
		}
	}
	if len(dependents) > 0 {
		f.Section("Dependents")
		for _, d := range dependents {
			fmt.Printf("  - %d\n", d.TaskID)
		}
	}
	if len(variants) > 0 {
		f.Section("Variants")
		for _, v := range variants {
			fmt.Printf("  %s\n", v)
		}
	}
	return nil
}

// taskChanges holds the fields given to 'task update'; nil means unchanged.
type taskChanges struct {
	Name        *string
	Code        *string
	TypeName    *string
	Description *string
	Status      *string
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	id, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	task, err := db.GetTaskByID(database, id)
	if err != nil {
		return fmt.Errorf("cannot update task: task '%s' not found (use 'pk task list' to see available tasks)", args[0])
	}

	var changes taskChanges
	if cmd.Flags().Changed("name") {
		changes.Name = &taskName
	}
	if cmd.Flags().Changed("code") {
		changes.Code = &taskCode
	}
	if cmd.Flags().Changed("type") {
		changes.TypeName = &taskTypeName
	}
	if cmd.Flags().Changed("description") {
		changes.Description = &taskDescription
	}
	if cmd.Flags().Changed("status") {
		changes.Status = &taskStatus
	}

	err = database.Transaction(func(tx *gorm.DB) error {
		return updateTask(tx, task, changes, currentUser())
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "task": task})
	} else {
		fmt.Printf("Updated: [%d] %s\n", task.ID, task.Name)
	}
	return nil
}

// updateTask applies changes to task and records each changed field in the
// task history.
func updateTask(tx *gorm.DB, task *models.Task, changes taskChanges, changedBy string) error {
	if changes.Name != nil {
		if *changes.Name == "" {
			return models.ErrNameRequired
		}
		if err := models.RecordChange(tx, task.ID, "name", task.Name, *changes.Name, changedBy); err != nil {
			return err
		}
		task.Name = *changes.Name
	}
	if changes.Code != nil {
		if *changes.Code == "" && models.IsTyped(task.EntityType) {
			return fmt.Errorf("%s %q: %w", task.EntityType, task.Name, models.ErrCodeRequired)
		}
		if err := models.RecordChange(tx, task.ID, "code", task.Code, *changes.Code, changedBy); err != nil {
			return err
		}
		task.Code = *changes.Code
	}
	if changes.TypeName != nil {
		var typ *models.Type
		if *changes.TypeName != "" {
			var err error
			if typ, err = findOrCreateType(tx, *changes.TypeName); err != nil {
				return err
			}
		}
		if err := models.RecordChange(tx, task.ID, "type", task.TypeName(), *changes.TypeName, changedBy); err != nil {
			return err
		}
		task.Type = typ
		task.TypeID = nil
		if typ != nil {
			task.TypeID = &typ.ID
		}
	}
	if changes.Description != nil {
		if err := models.RecordChange(tx, task.ID, "description", task.Description, *changes.Description, changedBy); err != nil {
			return err
		}
		task.Description = *changes.Description
	}
	if changes.Status != nil {
		if !models.ValidStatus(*changes.Status) {
			return fmt.Errorf("invalid status '%s' for task %d", *changes.Status, task.ID)
		}
		if err := models.RecordChange(tx, task.ID, "status", task.Status, *changes.Status, changedBy); err != nil {
			return err
		}
		task.Status = *changes.Status
	}

	return tx.Model(task).Select("name", "code", "type_id", "description", "status").Updates(task).Error
}

// findOrCreateType returns the type named name, creating it when missing
func findOrCreateType(tx *gorm.DB, name string) (*models.Type, error) {
	typ := models.Type{Name: name}
	if err := tx.Where(models.Type{Name: name}).FirstOrCreate(&typ).Error; err != nil {
		return nil, fmt.Errorf("failed to find or create type %q: %w", name, err)
	}
	return &typ, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "user"
}
