package main

import (
	"fmt"
	"os"

	"github.com/deploymenttheory/go-pipeline-runner/cmd"
	"github.com/deploymenttheory/go-pipeline-runner/internal/config"
	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
)

func main() {
	// Get app configuration file from environment if specified
	configFile := os.Getenv("PIPELINE_RUNNER_CONFIG")

	// 1. Initialize application configuration
	if err := config.Initialize(configFile); err != nil {
		// For app configuration errors, we print to stderr and exit since we can't continue
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logging based on application configuration
	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	// 3. Run the CLI; subcommands choose the process exit code
	code := cmd.Execute()

	// Ensure logs are flushed before exit
	logger.Sync()
	os.Exit(code)
}

// initLogging initializes the logger based on configuration settings
func initLogging() error {
	logConfig := logger.LoggerConfig{
		Debug:     config.Instance.Debug,
		LogFormat: config.Instance.LogFormat,
		LogFile:   config.Instance.LogFile,
	}

	return logger.InitLogger(logConfig)
}
