package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"pipekit/internal/db"
	"pipekit/internal/env"
	"pipekit/internal/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pipekit configuration",
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored configuration values",
	Aliases: []string{"ls"},
	RunE:    runConfigList,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Known keys:
  default_project   Project used when --project is omitted`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGitHubCmd = &cobra.Command{
	Use:   "github",
	Short: "Configure GitHub integration",
	Long: `Configure GitHub integration for pushing tickets to GitHub Issues.

This command will prompt you for:
  - GitHub repository (owner/repo format)
  - GitHub Personal Access Token (stored securely in system keyring)
  - Issue title prefix (default: "[Pipeline]")

To create a token:
  1. Go to GitHub Settings → Developer settings → Personal access tokens → Fine-grained tokens
  2. Generate new token with repository access
  3. Set permissions: Issues → Read and Write
  4. Copy token immediately (shown only once)`,
	RunE: runConfigGitHub,
}

var (
	configGitHubRepo   string
	configGitHubPrefix string
	configGitHubToken  string
	configGitHubShow   bool
	configGitHubClear  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGitHubCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)

	configGitHubCmd.Flags().StringVar(&configGitHubRepo, "repo", "", "GitHub repository (owner/repo)")
	configGitHubCmd.Flags().StringVar(&configGitHubPrefix, "prefix", "", "Issue title prefix")
	configGitHubCmd.Flags().StringVar(&configGitHubToken, "token", "", "GitHub token (use stdin for security)")
	configGitHubCmd.Flags().BoolVar(&configGitHubShow, "show", false, "Show current configuration")
	configGitHubCmd.Flags().BoolVar(&configGitHubClear, "clear", false, "Clear GitHub configuration")
}

func runConfigGitHub(cmd *cobra.Command, args []string) error {
	// Handle --show flag
	if configGitHubShow {
		return showGitHubConfig()
	}

	// Handle --clear flag
	if configGitHubClear {
		return clearGitHubConfig()
	}

	// If flags provided, use non-interactive mode
	if configGitHubRepo != "" || configGitHubToken != "" || configGitHubPrefix != "" {
		return configureGitHubNonInteractive()
	}

	// Interactive mode
	return configureGitHubInteractive()
}

// settableConfigKeys lists the keys 'config set' accepts
var settableConfigKeys = map[string]bool{
	models.ConfigDefaultProject:    true,
	models.ConfigGitHubRepo:        true,
	models.ConfigGitHubIssuePrefix: true,
}

func runConfigList(cmd *cobra.Command, args []string) error {
	var configs []models.Config
	if err := db.GetDB().Order("key ASC").Find(&configs).Error; err != nil {
		return err
	}
	if IsJSONOutput() {
		values := make(map[string]string, len(configs))
		for _, c := range configs {
			values[c.Key] = c.Value
		}
		OutputJSON(values)
		return nil
	}
	for _, c := range configs {
		fmt.Printf("%s = %s\n", c.Key, c.Value)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := setConfigValue(key, value); err != nil {
		return err
	}
	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "key": key, "value": value})
	} else {
		fmt.Printf("%s = %s\n", key, value)
	}
	return nil
}

func setConfigValue(key, value string) error {
	if !settableConfigKeys[key] {
		return fmt.Errorf("unknown configuration key '%s'", key)
	}
	switch key {
	case models.ConfigDefaultProject:
		project, err := db.GetProject(db.GetDB(), value)
		if err != nil {
			return err
		}
		value = project.Code
	case models.ConfigGitHubRepo:
		if !strings.Contains(value, "/") {
			return fmt.Errorf("repository must be in owner/repo format")
		}
	}
	return db.SetConfig(key, value)
}

func showGitHubConfig() error {
	var repoConfig, prefixConfig, tokenSetConfig models.Config

	repo := ""
	if err := db.GetDB().Where("key = ?", models.ConfigGitHubRepo).First(&repoConfig).Error; err == nil {
		repo = repoConfig.Value
	}

	prefix := models.DefaultGitHubIssuePrefix
	if err := db.GetDB().Where("key = ?", models.ConfigGitHubIssuePrefix).First(&prefixConfig).Error; err == nil {
		prefix = prefixConfig.Value
	}

	tokenSet := false
	if err := db.GetDB().Where("key = ?", models.ConfigGitHubTokenSet).First(&tokenSetConfig).Error; err == nil {
		tokenSet = tokenSetConfig.Value == "true"
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"repository":   repo,
			"issue_prefix": prefix,
			"token_set":    tokenSet,
		})
		return nil
	}

	fmt.Println("GitHub Configuration:")
	if repo != "" {
		fmt.Printf("  Repository:   %s\n", repo)
	} else {
		fmt.Println("  Repository:   (not configured)")
	}
	fmt.Printf("  Issue Prefix: %s\n", prefix)
	if tokenSet {
		fmt.Println("  Token:        (stored in system keyring)")
	} else {
		fmt.Println("  Token:        (not configured)")
	}

	return nil
}

func clearGitHubConfig() error {
	// Clear from database
	db.GetDB().Where("key = ?", models.ConfigGitHubRepo).Delete(&models.Config{})
	db.GetDB().Where("key = ?", models.ConfigGitHubIssuePrefix).Delete(&models.Config{})
	db.GetDB().Where("key = ?", models.ConfigGitHubTokenSet).Delete(&models.Config{})

	// Clear from keyring
	keyring.Delete(models.KeyringServiceName, models.KeyringGitHubTokenKey)

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "message": "GitHub configuration cleared"})
	} else {
		fmt.Println("GitHub configuration cleared")
	}
	return nil
}

func configureGitHubNonInteractive() error {
	if configGitHubRepo != "" {
		if !strings.Contains(configGitHubRepo, "/") {
			return fmt.Errorf("repository must be in owner/repo format")
		}
		if err := db.SetConfig(models.ConfigGitHubRepo, configGitHubRepo); err != nil {
			return fmt.Errorf("failed to save repository: %w", err)
		}
	}

	if configGitHubPrefix != "" {
		if err := db.SetConfig(models.ConfigGitHubIssuePrefix, configGitHubPrefix); err != nil {
			return fmt.Errorf("failed to save prefix: %w", err)
		}
	}

	if configGitHubToken != "" {
		if err := keyring.Set(models.KeyringServiceName, models.KeyringGitHubTokenKey, configGitHubToken); err != nil {
			return fmt.Errorf("failed to store token in keyring: %w", err)
		}
		if err := db.SetConfig(models.ConfigGitHubTokenSet, "true"); err != nil {
			return fmt.Errorf("failed to save token flag: %w", err)
		}
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "message": "GitHub configuration updated"})
	} else {
		fmt.Println("GitHub configuration updated")
	}
	return nil
}

func configureGitHubInteractive() error {
	reader := bufio.NewReader(os.Stdin)

	// Get current values for defaults
	currentRepo, _ := db.GetConfig(models.ConfigGitHubRepo)
	currentPrefix, _ := db.GetConfig(models.ConfigGitHubIssuePrefix)
	if currentPrefix == "" {
		currentPrefix = models.DefaultGitHubIssuePrefix
	}

	fmt.Println("GitHub Integration Setup")
	fmt.Println("========================")
	fmt.Println()

	// Repository
	if currentRepo != "" {
		fmt.Printf("Repository [%s]: ", currentRepo)
	} else {
		fmt.Print("Repository (owner/repo): ")
	}
	repoInput, _ := reader.ReadString('\n')
	repoInput = strings.TrimSpace(repoInput)
	if repoInput == "" {
		repoInput = currentRepo
	}
	if repoInput == "" {
		return fmt.Errorf("repository is required")
	}
	if !strings.Contains(repoInput, "/") {
		return fmt.Errorf("repository must be in owner/repo format")
	}

	// Issue prefix
	fmt.Printf("Issue prefix [%s]: ", currentPrefix)
	prefixInput, _ := reader.ReadString('\n')
	prefixInput = strings.TrimSpace(prefixInput)
	if prefixInput == "" {
		prefixInput = currentPrefix
	}

	// Token
	fmt.Println()
	fmt.Println("GitHub Personal Access Token")
	fmt.Println("  Create at: GitHub Settings → Developer settings → Personal access tokens")
	fmt.Println("  Required permissions: Issues (Read and Write)")
	fmt.Println()
	fmt.Print("Token (input hidden, paste and press Enter): ")

	tokenInput, _ := reader.ReadString('\n')
	tokenInput = strings.TrimSpace(tokenInput)

	if tokenInput == "" {
		// Check if token already exists
		_, err := keyring.Get(models.KeyringServiceName, models.KeyringGitHubTokenKey)
		if err != nil {
			return fmt.Errorf("token is required")
		}
		fmt.Println("(keeping existing token)")
	} else {
		// Store new token
		if err := keyring.Set(models.KeyringServiceName, models.KeyringGitHubTokenKey, tokenInput); err != nil {
			return fmt.Errorf("failed to store token in keyring: %w", err)
		}
		if err := db.SetConfig(models.ConfigGitHubTokenSet, "true"); err != nil {
			return fmt.Errorf("failed to save token flag: %w", err)
		}
		fmt.Println("(token stored in system keyring)")
	}

	// Save configuration
	if err := db.SetConfig(models.ConfigGitHubRepo, repoInput); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := db.SetConfig(models.ConfigGitHubIssuePrefix, prefixInput); err != nil {
		return fmt.Errorf("failed to save prefix: %w", err)
	}

	fmt.Println()
	fmt.Println("GitHub integration configured successfully!")
	fmt.Printf("  Repository:   %s\n", repoInput)
	fmt.Printf("  Issue Prefix: %s\n", prefixInput)

	return nil
}

// GetGitHubToken retrieves the GitHub token from keyring or environment
func GetGitHubToken() (string, error) {
	if token := env.Variables().GitHubToken; token != "" {
		return token, nil
	}

	token, err := keyring.Get(models.KeyringServiceName, models.KeyringGitHubTokenKey)
	if err != nil {
		return "", fmt.Errorf("GitHub token not found. Run 'pk config github' or set PIPEKIT_GITHUB_TOKEN")
	}
	return token, nil
}
