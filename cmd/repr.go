package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipekit/internal/db"
	"pipekit/internal/repr"
)

var reprCmd = &cobra.Command{
	Use:   "repr",
	Short: "Resolve representations of a version",
}

var reprListCmd = &cobra.Command{
	Use:   "list <version-id>",
	Short: "List the representations of a version's take",
	Args:  cobra.ExactArgs(1),
	RunE:  runReprList,
}

var reprFindCmd = &cobra.Command{
	Use:   "find <version-id> <repr>",
	Short: "Find the latest published version of a representation",
	Long: `Find the latest published version of a representation in the same task
and take as the given version. Use "Base" for the take itself.`,
	Args: cobra.ExactArgs(2),
	RunE: runReprFind,
}

func init() {
	rootCmd.AddCommand(reprCmd)
	reprCmd.AddCommand(reprListCmd, reprFindCmd)
}

func loadRepresentation(arg string) (*repr.Representation, error) {
	id, err := db.ParseID(arg)
	if err != nil {
		return nil, err
	}
	database := db.GetDB()
	version, err := db.GetVersionByID(database, id)
	if err != nil {
		return nil, err
	}
	return repr.New(database, version), nil
}

func runReprList(cmd *cobra.Command, args []string) error {
	r, err := loadRepresentation(args[0])
	if err != nil {
		return err
	}
	names, err := r.ListAll()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"base":            r.BaseVariantName(),
			"repr":            r.Repr(),
			"representations": names,
		})
		return nil
	}

	fmt.Printf("Representations of %s:\n", r.BaseVariantName())
	for _, name := range names {
		mark := " "
		if r.IsRepr(name) {
			mark = "*"
		}
		fmt.Printf("%s %s\n", mark, name)
	}
	return nil
}

func runReprFind(cmd *cobra.Command, args []string) error {
	r, err := loadRepresentation(args[0])
	if err != nil {
		return err
	}
	found, err := r.Find(args[1])
	if err != nil {
		return err
	}
	if found == nil {
		return fmt.Errorf("no published %q representation of %s", args[1], r.BaseVariantName())
	}
	formatter().Version(found)
	return nil
}
