package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v63/github"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pipekit/internal/db"
	"pipekit/internal/log"
	"pipekit/internal/models"
)

const (
	// GitHub API timeout for individual requests
	githubAPITimeout = 30 * time.Second
)

var (
	ticketAll    bool
	ticketDryRun bool
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Problem reports raised against versions",
}

var ticketListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List tickets",
	Aliases: []string{"ls"},
	RunE:    runTicketList,
}

var ticketCloseCmd = &cobra.Command{
	Use:   "close <ticket-id>",
	Short: "Close a ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketClose,
}

var ticketPushCmd = &cobra.Command{
	Use:   "push [ticket-id]",
	Short: "Push tickets to GitHub Issues",
	Long: `Push tickets to GitHub Issues.

If no ticket ID is provided, pushes all open tickets that haven't been synced yet.
If a ticket ID is provided, pushes or updates that specific ticket.

Tickets that have already been synced will be updated on GitHub.
New tickets will create new GitHub issues.

The issue title will be prefixed with the configured prefix (default: "[Pipeline]").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTicketPush,
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketListCmd, ticketCloseCmd, ticketPushCmd)

	ticketListCmd.Flags().BoolVar(&ticketAll, "all", false, "Include closed tickets")
	ticketPushCmd.Flags().BoolVar(&ticketAll, "all", false, "Push all unsynced tickets (open and closed)")
	ticketPushCmd.Flags().BoolVar(&ticketDryRun, "dry-run", false, "Show what would be pushed without actually pushing")
}

func runTicketList(cmd *cobra.Command, args []string) error {
	query := db.GetDB().Order("id ASC")
	if !ticketAll {
		query = query.Where("status = ?", models.TicketOpen)
	}
	var tickets []models.Ticket
	if err := query.Find(&tickets).Error; err != nil {
		return err
	}
	if !IsJSONOutput() && len(tickets) == 0 {
		fmt.Println("No tickets found")
		return nil
	}
	formatter().TicketList(tickets)
	return nil
}

func runTicketClose(cmd *cobra.Command, args []string) error {
	id, err := db.ParseID(args[0])
	if err != nil {
		return err
	}
	database := db.GetDB()
	var ticket models.Ticket
	if err := database.First(&ticket, id).Error; err != nil {
		return fmt.Errorf("ticket not found: %d", id)
	}
	if ticket.IsClosed() {
		return fmt.Errorf("ticket %d is already closed", id)
	}
	ticket.Close()
	if err := database.Model(&ticket).Update("status", ticket.Status).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "ticket": ticket})
	} else {
		fmt.Printf("Closed ticket %d\n", id)
	}
	return nil
}

func runTicketPush(cmd *cobra.Command, args []string) error {
	repo, err := db.GetConfig(models.ConfigGitHubRepo)
	if err != nil || repo == "" {
		return fmt.Errorf("GitHub sync not configured: repository not set (run 'pk config github' to configure)")
	}

	prefix, err := db.GetConfig(models.ConfigGitHubIssuePrefix)
	if err != nil || prefix == "" {
		prefix = models.DefaultGitHubIssuePrefix
	}

	owner, repoName, ok := strings.Cut(repo, "/")
	if !ok {
		return fmt.Errorf("invalid repository format '%s': expected 'owner/repo' (run 'pk config github' to reconfigure)", repo)
	}

	database := db.GetDB()
	var tickets []models.Ticket
	query := database.Preload("Version.Task")
	if len(args) > 0 {
		id, err := db.ParseID(args[0])
		if err != nil {
			return err
		}
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("synced = ?", false)
		if !ticketAll {
			query = query.Where("status = ?", models.TicketOpen)
		}
	}
	if err := query.Order("id ASC").Find(&tickets).Error; err != nil {
		return err
	}

	if len(tickets) == 0 {
		if IsJSONOutput() {
			OutputJSON(map[string]interface{}{"success": true, "synced": 0, "message": "No tickets to sync"})
		} else {
			fmt.Println("No tickets to sync")
		}
		return nil
	}

	if ticketDryRun {
		if IsJSONOutput() {
			OutputJSON(map[string]interface{}{"dry_run": true, "tickets": tickets})
		} else {
			fmt.Printf("Would push %d ticket(s):\n", len(tickets))
			for _, t := range tickets {
				fmt.Printf("  [%d] %s\n", t.ID, t.Summary)
			}
		}
		return nil
	}

	token, err := GetGitHubToken()
	if err != nil {
		return err
	}

	httpClient := &http.Client{
		Timeout: githubAPITimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	client := github.NewClient(httpClient).WithAuthToken(token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var results []map[string]interface{}
	synced := 0
	errors := 0

	for _, ticket := range tickets {
		result, err := syncTicketToGitHub(ctx, database, client, owner, repoName, prefix, &ticket)
		if err != nil {
			errors++
			log.Warn("ticket sync failed", "ticket_id", ticket.ID, "error", err)
			result = map[string]interface{}{
				"ticket_id": ticket.ID,
				"error":     err.Error(),
			}
			if !IsJSONOutput() {
				fmt.Printf("Error syncing %d: %v\n", ticket.ID, err)
			}
		} else {
			synced++
			if !IsJSONOutput() {
				fmt.Printf("Synced: %d -> %s\n", ticket.ID, result["issue_url"])
			}
		}
		results = append(results, result)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"success": errors == 0,
			"synced":  synced,
			"errors":  errors,
			"results": results,
		})
	} else if synced > 0 {
		fmt.Printf("\nSynced %d ticket(s) to GitHub\n", synced)
		if errors > 0 {
			fmt.Printf("%d ticket(s) failed to sync\n", errors)
		}
	}
	return nil
}

func syncTicketToGitHub(ctx context.Context, database *gorm.DB, client *github.Client, owner, repo, prefix string, ticket *models.Ticket) (map[string]interface{}, error) {
	title := fmt.Sprintf("%s - %s", prefix, ticket.Summary)
	body := buildIssueBody(ticket)
	action := "updated"

	var issue *github.Issue
	var err error
	if ticket.IssueNumber > 0 {
		state := mapStatusToGitHub(ticket.Status)
		issue, _, err = client.Issues.Edit(ctx, owner, repo, ticket.IssueNumber, &github.IssueRequest{
			Title: &title,
			Body:  &body,
			State: &state,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update issue: %w", err)
		}
	} else {
		action = "created"
		labels := []string{"pipeline", "post-publish"}
		issue, _, err = client.Issues.Create(ctx, owner, repo, &github.IssueRequest{
			Title:  &title,
			Body:   &body,
			Labels: &labels,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create issue: %w", err)
		}

		if ticket.IsClosed() {
			state := "closed"
			issue, _, err = client.Issues.Edit(ctx, owner, repo, issue.GetNumber(), &github.IssueRequest{State: &state})
			if err != nil {
				return nil, fmt.Errorf("failed to close issue: %w", err)
			}
		}
	}

	now := time.Now()
	ticket.Synced = true
	ticket.IssueNumber = issue.GetNumber()
	ticket.IssueURL = issue.GetHTMLURL()
	ticket.Repository = fmt.Sprintf("%s/%s", owner, repo)
	ticket.LastSyncedAt = &now
	if err := database.Model(ticket).Select("synced", "issue_number", "issue_url", "repository", "last_synced_at").Updates(ticket).Error; err != nil {
		return nil, fmt.Errorf("failed to mark ticket as synced: %w", err)
	}

	return map[string]interface{}{
		"ticket_id":    ticket.ID,
		"issue_number": issue.GetNumber(),
		"issue_url":    issue.GetHTMLURL(),
		"action":       action,
	}, nil
}

func buildIssueBody(ticket *models.Ticket) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("**Ticket ID:** `%d`\n\n", ticket.ID))

	if ticket.Description != "" {
		sb.WriteString("## Description\n\n")
		sb.WriteString(ticket.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Details\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("| ----- | ----- |\n")
	sb.WriteString(fmt.Sprintf("| Version | %d |\n", ticket.VersionID))
	if v := ticket.Version; v != nil {
		sb.WriteString(fmt.Sprintf("| Variant | %s |\n", v.Label()))
		sb.WriteString(fmt.Sprintf("| Path | `%s` |\n", v.FullPath))
		if v.Task != nil {
			sb.WriteString(fmt.Sprintf("| Task | %s (%d) |\n", v.Task.Name, v.Task.ID))
		}
	}
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", ticket.Status))
	sb.WriteString(fmt.Sprintf("| Created | %s |\n", ticket.CreatedAt.Format(models.DateTimeShortFormat)))

	sb.WriteString("\n---\n")
	sb.WriteString("*Synced from pipekit*")

	return sb.String()
}

func mapStatusToGitHub(status string) string {
	if status == models.TicketClosed {
		return "closed"
	}
	return "open"
}
