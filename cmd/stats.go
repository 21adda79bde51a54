package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/models"
)

var statsProject string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show production statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsProject, "project", "P", "", "Limit to one project")
}

// Stats summarizes tasks and versions
type Stats struct {
	Tasks       int64            `json:"tasks"`
	ByStatus    map[string]int64 `json:"by_status"`
	ByEntity    map[string]int64 `json:"by_entity"`
	Versions    int64            `json:"versions"`
	Published   int64            `json:"published"`
	OpenTickets int64            `json:"open_tickets"`
}

func runStats(cmd *cobra.Command, args []string) error {
	database := db.GetDB()

	var projectID uint
	if statsProject != "" {
		project, err := db.GetProject(database, statsProject)
		if err != nil {
			return err
		}
		projectID = project.ID
	}

	stats, err := collectStats(database, projectID)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(stats)
		return nil
	}

	fmt.Printf("Total tasks: %d\n\n", stats.Tasks)
	fmt.Println("By status:")
	for _, status := range []string{
		models.StatusWaiting, models.StatusReady, models.StatusInProgress,
		models.StatusPendingReview, models.StatusHasRevision, models.StatusDependentRev,
		models.StatusOnHold, models.StatusStopped, models.StatusCompleted,
	} {
		if n := stats.ByStatus[status]; n > 0 {
			fmt.Printf("  %-5s %d\n", status, n)
		}
	}
	fmt.Println("\nBy entity:")
	for _, entity := range []string{models.EntityTask, models.EntityAsset, models.EntityShot, models.EntitySequence} {
		fmt.Printf("  %-9s %d\n", entity, stats.ByEntity[entity])
	}
	fmt.Printf("\nVersions: %d (%d published)\n", stats.Versions, stats.Published)
	fmt.Printf("Open tickets: %d\n", stats.OpenTickets)
	return nil
}

// collectStats counts tasks, versions and tickets. A projectID of 0 counts
// every project.
func collectStats(tx *gorm.DB, projectID uint) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int64{}, ByEntity: map[string]int64{}}

	tasks := func() *gorm.DB {
		q := tx.Model(&models.Task{})
		if projectID != 0 {
			q = q.Where("project_id = ?", projectID)
		}
		return q
	}
	versions := func() *gorm.DB {
		q := tx.Model(&models.Version{})
		if projectID != 0 {
			q = q.Where("task_id IN (?)", tasks().Select("id"))
		}
		return q
	}

	type groupCount struct {
		Name  string
		Count int64
	}
	var statusCounts, entityCounts []groupCount
	if err := tasks().Select("status AS name, count(*) AS count").Group("status").Scan(&statusCounts).Error; err != nil {
		return nil, err
	}
	if err := tasks().Select("entity_type AS name, count(*) AS count").Group("entity_type").Scan(&entityCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range statusCounts {
		stats.ByStatus[sc.Name] = sc.Count
		stats.Tasks += sc.Count
	}
	for _, ec := range entityCounts {
		stats.ByEntity[ec.Name] = ec.Count
	}

	if err := versions().Count(&stats.Versions).Error; err != nil {
		return nil, err
	}
	if err := versions().Where("is_published = ?", true).Count(&stats.Published).Error; err != nil {
		return nil, err
	}

	tickets := tx.Model(&models.Ticket{}).Where("status = ?", models.TicketOpen)
	if projectID != 0 {
		tickets = tickets.Where("version_id IN (?)", versions().Select("id"))
	}
	if err := tickets.Count(&stats.OpenTickets).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
