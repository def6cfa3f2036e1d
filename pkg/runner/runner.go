// Package runner exposes the pipeline executor to embedding programs, such
// as a CI front end that receives trigger events from elsewhere.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-pipeline-runner/internal/capture"
	"github.com/deploymenttheory/go-pipeline-runner/internal/config"
	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
	"github.com/deploymenttheory/go-pipeline-runner/internal/pipeline"
)

// InitOptions contains options for initializing the runner API
type InitOptions struct {
	ConfigFile string // Path to configuration file
	Debug      bool   // Enable debug logging
	LogFormat  string // Log format: "human" or "json"
	LogFile    string // Path to log file
}

// Trigger describes the event a pipeline run is invoked for
type Trigger struct {
	Event   string            // pull_request, push or tag
	Ref     string            // branch or tag name
	Env     map[string]string // environment available to steps and conditions
	Secrets map[string]string // secret values, redacted from captured output
}

var initialized bool

// Initialize initializes the runner API with the given options
func Initialize(options InitOptions) error {
	if initialized {
		return nil // Already initialized
	}

	configErr := config.Initialize(options.ConfigFile)

	// Update config with provided options
	if options.Debug {
		config.Instance.Debug = true
	}

	if options.LogFormat != "" {
		config.Instance.LogFormat = options.LogFormat
	}

	if options.LogFile != "" {
		config.Instance.LogFile = options.LogFile
	}

	logConfig := logger.LoggerConfig{
		Debug:     config.Instance.Debug,
		LogFormat: config.Instance.LogFormat,
		LogFile:   config.Instance.LogFile,
	}

	if err := logger.InitLogger(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if configErr != nil {
		logger.LogWarn("Configuration initialization warning", map[string]interface{}{
			"error": configErr.Error(),
		})
	}

	initialized = true
	return nil
}

// DefaultOptions returns the default initialization options
func DefaultOptions() InitOptions {
	return InitOptions{
		Debug:     false,
		LogFormat: "human",
	}
}

// RunPipelineFile executes a pipeline definition file for a trigger event.
// The returned result is complete even for failed and aborted runs; err is
// non-nil only when the run could not be assembled at all.
func RunPipelineFile(ctx context.Context, pipelineFile string, trigger Trigger) (*pipeline.Result, error) {
	// Ensure API is initialized
	if !initialized {
		if err := Initialize(DefaultOptions()); err != nil {
			return nil, fmt.Errorf("failed to initialize runner API: %w", err)
		}
	}

	def, err := pipeline.Load(pipelineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}

	rc, err := pipeline.NewRunContext(pipeline.TriggerEvent{
		Kind:    pipeline.EventKind(trigger.Event),
		Ref:     trigger.Ref,
		Env:     trigger.Env,
		Secrets: trigger.Secrets,
	})
	if err != nil {
		return nil, err
	}

	store, err := capture.NewStore(capture.Options{
		Dir:         config.Instance.Runner.ArtifactsDir,
		Compression: config.Instance.Runner.Capture.Compression,
		Digest:      config.Instance.Runner.Capture.Digest,
		Redactor:    capture.NewRedactor(rc.SecretValues()),
	})
	if err != nil {
		return nil, err
	}

	options := []pipeline.Option{
		pipeline.WithDefaultTimeout(config.Instance.Runner.DefaultTimeout),
	}
	if shell := config.Instance.Runner.Shell; shell != "" {
		options = append(options, pipeline.WithShell(strings.Fields(shell)))
	}

	executor := pipeline.NewExecutor(store, options...)
	return executor.Run(ctx, def, rc), nil
}

// Shutdown performs any necessary cleanup before the embedding program exits
func Shutdown() error {
	if initialized {
		logger.LogInfo("Runner API shutting down", nil)
		logger.Sync()
	}
	return nil
}
