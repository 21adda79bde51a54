package output

import (
	"encoding/json"
	"fmt"
	"os"

	"pipekit/internal/migration"
	"pipekit/internal/models"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	Task(t *models.Task)
	TaskList(tasks []models.Task, title string)
	TaskBrief(t *models.Task)
	Version(v *models.Version)
	VersionList(versions []models.Version)
	TicketList(tickets []models.Ticket)
	Report(r *migration.Report)
	Plan(p *migration.Plan)
	Success(msg string)
	Error(err error)
	Info(msg string)
	KeyValue(key, value string)
	Section(title string)
	JSON(v interface{})
}

// TextFormatter outputs human-readable text
type TextFormatter struct{}

// JSONFormatter outputs JSON
type JSONFormatter struct{}

// New returns the appropriate formatter based on json flag
func New(jsonOutput bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}

// TextFormatter implementations

func (f *TextFormatter) Task(t *models.Task) {
	fmt.Printf("ID:       %d\n", t.ID)
	if t.ParentID != nil {
		fmt.Printf("Parent:   %d\n", *t.ParentID)
	}
	fmt.Printf("Name:     %s\n", t.Name)
	fmt.Printf("Entity:   %s\n", t.EntityType)
	if t.Code != "" {
		fmt.Printf("Code:     %s\n", t.Code)
	}
	if t.Type != nil {
		fmt.Printf("Type:     %s\n", t.Type.Name)
	}
	fmt.Printf("Status:   %s (%s)\n", t.Status, t.StatusString())
	if t.Description != "" {
		fmt.Printf("Desc:     %s\n", t.Description)
	}
	fmt.Printf("Created:  %s\n", t.CreatedAt.Format(models.DateTimeShortFormat))
}

func (f *TextFormatter) TaskList(tasks []models.Task, title string) {
	if title != "" {
		fmt.Printf("%s (%d):\n", title, len(tasks))
	}
	for _, t := range tasks {
		f.TaskBrief(&t)
	}
}

func (f *TextFormatter) TaskBrief(t *models.Task) {
	indent := ""
	if !t.IsRoot() {
		indent = "  "
	}
	typeStr := ""
	if t.EntityType != models.EntityTask {
		typeStr = fmt.Sprintf(" (%s)", t.EntityType)
	}
	fmt.Printf("%s[%d] %s - %s%s\n", indent, t.ID, t.Status, t.Name, typeStr)
}

func (f *TextFormatter) Version(v *models.Version) {
	fmt.Printf("ID:        %d\n", v.ID)
	fmt.Printf("Task:      %d\n", v.TaskID)
	fmt.Printf("Version:   %s\n", v.Label())
	fmt.Printf("Published: %t\n", v.IsPublished)
	fmt.Printf("Path:      %s\n", v.FullPath)
	if v.CreatedWith != "" {
		fmt.Printf("Created:   %s with %s\n", v.CreatedAt.Format(models.DateTimeShortFormat), v.CreatedWith)
	}
	for _, in := range v.Inputs {
		fmt.Printf("Input:     [%d] %s\n", in.ID, in.FullPath)
	}
}

func (f *TextFormatter) VersionList(versions []models.Version) {
	for _, v := range versions {
		mark := " "
		if v.IsPublished {
			mark = "*"
		}
		fmt.Printf("%s[%d] %s %s\n", mark, v.ID, v.Label(), v.FullPath)
	}
}

func (f *TextFormatter) TicketList(tickets []models.Ticket) {
	for _, t := range tickets {
		issue := ""
		if t.IssueNumber > 0 {
			issue = fmt.Sprintf(" #%d", t.IssueNumber)
		}
		fmt.Printf("[%d] %s v%d %s%s\n", t.ID, t.Status, t.VersionID, t.Summary, issue)
	}
}

func (f *TextFormatter) Report(r *migration.Report) {
	migrated := r.Migrated()
	skipped := r.Skipped()
	fmt.Printf("Migrated %d versions, skipped %d, created %d tasks\n", len(migrated), len(skipped), len(r.CreatedTasks))
	for _, res := range migrated {
		fmt.Printf("  [%d] %s v%03d -> [%d] %s\n", res.SourceVersionID, res.VariantName, res.VersionNumber, res.NewVersionID, res.NewPath)
	}
	if len(r.SkippedTasks) > 0 {
		f.Section("Skipped tasks")
		for _, s := range r.SkippedTasks {
			fmt.Printf("  [%d] %s\n", s.TaskID, s.Reason)
		}
	}
	if len(skipped) > 0 {
		f.Section("Skipped versions")
		for _, res := range skipped {
			fmt.Printf("  task %d %s v%03d: %s\n", res.SourceTaskID, res.VariantName, res.VersionNumber, res.Reason)
		}
	}
	if len(r.PublishErrors) > 0 {
		f.Section("Publish errors")
		for _, e := range r.PublishErrors {
			fmt.Printf("  [%d] %s\n", e.VersionID, e.Message)
		}
	}
}

func (f *TextFormatter) Plan(p *migration.Plan) {
	fmt.Printf("Tasks:    %v\n", p.TaskOrder)
	fmt.Printf("Versions: %v\n", p.VersionOrder)
	for _, s := range p.SkippedTasks {
		fmt.Printf("Skip task [%d]: %s\n", s.TaskID, s.Reason)
	}
	for _, res := range p.Skipped {
		fmt.Printf("Skip task %d %s v%03d: %s\n", res.SourceTaskID, res.VariantName, res.VersionNumber, res.Reason)
	}
}

func (f *TextFormatter) Success(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) Error(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func (f *TextFormatter) Info(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) KeyValue(key, value string) {
	fmt.Printf("%s: %s\n", key, value)
}

func (f *TextFormatter) Section(title string) {
	fmt.Printf("\n%s:\n", title)
}

func (f *TextFormatter) JSON(v interface{}) {
	// TextFormatter doesn't output JSON, but provide fallback
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.Error(err)
		return
	}
	fmt.Println(string(data))
}

// JSONFormatter implementations

func (f *JSONFormatter) Task(t *models.Task) {
	f.JSON(t)
}

func (f *JSONFormatter) TaskList(tasks []models.Task, title string) {
	f.JSON(map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (f *JSONFormatter) TaskBrief(t *models.Task) {
	f.JSON(t)
}

func (f *JSONFormatter) Version(v *models.Version) {
	f.JSON(v)
}

func (f *JSONFormatter) VersionList(versions []models.Version) {
	f.JSON(map[string]interface{}{
		"count":    len(versions),
		"versions": versions,
	})
}

func (f *JSONFormatter) TicketList(tickets []models.Ticket) {
	f.JSON(map[string]interface{}{
		"count":   len(tickets),
		"tickets": tickets,
	})
}

func (f *JSONFormatter) Report(r *migration.Report) {
	f.JSON(r)
}

func (f *JSONFormatter) Plan(p *migration.Plan) {
	f.JSON(p)
}

func (f *JSONFormatter) Success(msg string) {
	f.JSON(map[string]interface{}{"success": true, "message": msg})
}

func (f *JSONFormatter) Error(err error) {
	f.JSON(map[string]interface{}{"error": true, "message": err.Error()})
}

func (f *JSONFormatter) Info(msg string) {
	f.JSON(map[string]interface{}{"message": msg})
}

func (f *JSONFormatter) KeyValue(key, value string) {
	f.JSON(map[string]string{key: value})
}

func (f *JSONFormatter) Section(title string) {
	// JSON doesn't need section headers
}

func (f *JSONFormatter) JSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"error": true, "message": "JSON marshal error: %s"}`+"\n", err.Error())
		return
	}
	fmt.Println(string(data))
}
