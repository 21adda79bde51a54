package env

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"pipekit/internal/log"
)

var variables = new(Environment)

// Process the environment variables set for pipekit.
func Process() error {
	if err := envconfig.Process("pipekit", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used by pipekit.
type Environment struct {
	LogLevel       string   `split_words:"true" default:"warning"`
	DBPath         string   `split_words:"true" default:""`
	RepositoryRoot string   `split_words:"true" default:""`
	GitHubToken    string   `envconfig:"GITHUB_TOKEN" default:""`
	NativeDCCs     []string `envconfig:"NATIVE_DCCS" default:"maya"`
	NativePatterns []string `split_words:"true" default:"**/*.ma"`
}
