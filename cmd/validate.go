package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
	"github.com/deploymenttheory/go-pipeline-runner/internal/pipeline"
	"github.com/spf13/cobra"
)

// validateCmd checks a pipeline definition without executing anything
var validateCmd = &cobra.Command{
	Use:   "validate <pipeline-file>",
	Short: "Validate a pipeline definition without running it",
	Long: `Validate checks a pipeline definition against the current trigger
context: step names must be unique, every step needs a command, conditions
must parse, and every variable reference must resolve. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := pipeline.Load(args[0])
		if err != nil {
			logger.LogError("Failed to load pipeline", err, map[string]interface{}{
				"file": args[0],
			})
			exitCode = pipeline.ExitAborted
			return
		}

		if runEvent == "" && runRef == "" {
			if _, _, ok := pipeline.InferEvent(pipeline.EnvironSnapshot()); !ok {
				// No trigger information available; validate against a nominal
				// push to main so conditions and references can still be checked.
				runEvent, runRef = string(pipeline.EventPush), "main"
			}
		}

		rc, err := buildRunContext()
		if err != nil {
			logger.LogError("Failed to build run context", err, nil)
			exitCode = pipeline.ExitAborted
			return
		}

		errs := pipeline.Validate(def, rc)
		if len(errs) > 0 {
			for _, err := range errs {
				logger.LogError("Pipeline validation error", err, nil)
			}
			exitCode = pipeline.ExitAborted
			return
		}

		fmt.Printf("%s: %d steps, ok\n", def.Name, len(def.Steps))
	},
}

func init() {
	validateCmd.Flags().StringVar(&runEvent, "event", "", "trigger event kind: pull_request, push or tag")
	validateCmd.Flags().StringVar(&runRef, "ref", "", "branch or tag name to validate against")
	validateCmd.Flags().StringArrayVar(&runEnvFiles, "env-file", nil, "dotenv file layered over the process environment (repeatable)")
	validateCmd.Flags().StringVar(&runSecretsFile, "secrets-file", "", "dotenv file holding secret values")
}
