package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/deploymenttheory/go-pipeline-runner/internal/capture"
	download "github.com/deploymenttheory/go-pipeline-runner/internal/common/netutil"
	"github.com/deploymenttheory/go-pipeline-runner/internal/config"
	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
	"github.com/deploymenttheory/go-pipeline-runner/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	runEvent        string
	runRef          string
	runEnvFiles     []string
	runSecretsFile  string
	runReportPath   string
	runReportFormat string
	runChecksum     string
)

// runCmd executes a pipeline file against a trigger event
var runCmd = &cobra.Command{
	Use:   "run <pipeline-file-or-url>",
	Short: "Execute a pipeline",
	Long: `Execute a pipeline definition against a trigger event.

The trigger event (--event, --ref) defaults to values inferred from
conventional CI environment variables. Extra environment can be layered in
with --env-file; secrets are loaded from --secrets-file and are redacted from
all captured step output.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := executePipeline(args[0])
		if err != nil {
			logger.LogError("Pipeline run failed to start", err, nil)
			exitCode = pipeline.ExitAborted
			return
		}
		exitCode = result.ExitCode()
	},
}

func init() {
	runCmd.Flags().StringVar(&runEvent, "event", "", "trigger event kind: pull_request, push or tag")
	runCmd.Flags().StringVar(&runRef, "ref", "", "branch or tag name the run is triggered for")
	runCmd.Flags().StringArrayVar(&runEnvFiles, "env-file", nil, "dotenv file layered over the process environment (repeatable)")
	runCmd.Flags().StringVar(&runSecretsFile, "secrets-file", "", "dotenv file holding secret values")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "write the run result to this file")
	runCmd.Flags().StringVar(&runReportFormat, "report-format", pipeline.ReportJSON, "report format: json or yaml")
	runCmd.Flags().StringVar(&runChecksum, "checksum", "", "expected sha256 of a remote pipeline file")
}

// executePipeline assembles the run context and executes the pipeline
func executePipeline(source string) (*pipeline.Result, error) {
	file, cleanup, err := resolvePipelineFile(source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	def, err := pipeline.Load(file)
	if err != nil {
		return nil, err
	}

	rc, err := buildRunContext()
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

	// A superseding signal cancels the run between steps.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := executor.Run(ctx, def, rc)

	if runReportPath != "" {
		if err := pipeline.WriteReport(result, runReportPath, runReportFormat); err != nil {
			logger.LogError("Failed to write run report", err, map[string]interface{}{
				"path": runReportPath,
			})
		}
	}

	return result, nil
}

// resolvePipelineFile fetches remote definitions into a temp file
func resolvePipelineFile(source string) (string, func(), error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return source, func() {}, nil
	}

	dir, err := os.MkdirTemp("", config.AppName+"-*")
	if err != nil {
		return "", nil, err
	}

	name := filepath.Base(source)
	if name == "" || name == "." || name == "/" {
		name = "pipeline.yaml"
	}
	dest := filepath.Join(dir, name)

	if err := download.DownloadFile(source, dest, runChecksum); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}

	return dest, func() { os.RemoveAll(dir) }, nil
}

// buildRunContext derives the trigger event from flags, env files and the
// process environment
func buildRunContext() (*pipeline.RunContext, error) {
	env := pipeline.EnvironSnapshot()

	for _, file := range runEnvFiles {
		overlay, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range overlay {
			env[k] = v
		}
	}

	secrets := map[string]string{}
	if runSecretsFile != "" {
		loaded, err := godotenv.Read(runSecretsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secrets file: %w", err)
		}
		secrets = loaded
	}

	kind, ref := pipeline.EventKind(runEvent), runRef
	if kind == "" || ref == "" {
		inferredKind, inferredRef, ok := pipeline.InferEvent(env)
		if kind == "" && ok {
			kind = inferredKind
		}
		if ref == "" && ok {
			ref = inferredRef
		}
	}
	if kind == "" {
		return nil, fmt.Errorf("no trigger event: pass --event or run inside a CI environment")
	}

	return pipeline.NewRunContext(pipeline.TriggerEvent{
		Kind:    kind,
		Ref:     ref,
		Env:     env,
		Secrets: secrets,
	})
}
