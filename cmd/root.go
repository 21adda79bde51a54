package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pipekit/internal/db"
	"pipekit/internal/env"
	"pipekit/internal/log"
	"pipekit/internal/output"
)

var (
	Version    = "0.1.0"
	jsonOutput bool
)

// commandsExemptFromDB lists commands that don't require database initialization
var commandsExemptFromDB = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "pk",
	Short: "pipekit - a SQLite-based studio pipeline core",
	Long: `pipekit (pk) tracks projects, task hierarchies and versioned files of a
VFX/animation production, resolves representations and migrates tasks
between projects.

QUICK START:
  pk init                                   # Initialize in current directory
  pk project create "Test Project" TP       # Create a project
  pk import TP assets.json                  # Import a task hierarchy
  pk task list -P TP                        # List tasks of the project
  pk version create <task-id> -v Main@BBox  # Save a representation version
  pk repr list <version-id>                 # List representations of a version
  pk migrate recipe.yaml -P TGT --dry-run   # Plan a migration

STATUSES: wfd, rts, wip, prev, hrev, drev, oh, stop, cmpl
ENTITIES: Task (default), Asset, Shot, Sequence

DEPENDENCIES:
  pk dep add <task> <depends-on>   # First task depends on the second
  pk ready                         # Shows tasks whose dependencies are complete

REPRESENTATIONS: "Main@BBox" is the BBox representation of the "Main" take.

JSON OUTPUT: Add --json flag to any command for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.Process(); err != nil {
			return err
		}
		if commandsExemptFromDB[cmd.Name()] {
			return nil
		}
		return db.EnsureInitialized()
	},
}

func Execute() {
	defer db.CloseDB()
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			OutputJSON(map[string]interface{}{"error": true, "message": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.Version = Version
}

func OutputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(data)
}

func IsJSONOutput() bool {
	return jsonOutput
}

// formatter returns the output formatter selected by --json
func formatter() output.Formatter {
	return output.New(jsonOutput)
}
