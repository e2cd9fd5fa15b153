package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/conveyor/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("conveyor", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Conveyor - A declarative, concurrency-first release pipeline engine.

Usage:
  conveyor [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline file or directory (shorthand).")
	branchFlag := flagSet.String("branch", "", "Branch of the triggering push event.")
	commitFlag := flagSet.String("commit", "", "Commit hash of the triggering push event.")
	serveFlag := flagSet.Bool("serve", false, "Run as a webhook server instead of a one-shot run.")
	listenFlag := flagSet.String("listen", ":8080", "Listen address for serve mode.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the job executor.")
	jobTimeoutFlag := flagSet.Duration("job-timeout", 30*time.Minute, "Default timeout for jobs that declare none.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 0, "Default timeout for steps that declare none. 0 is disabled.")
	repoFlag := flagSet.String("repo", "", "Path to the git working copy the tag actions operate on.")
	remoteFlag := flagSet.String("remote", "origin", "Name of the git remote tags are pushed to.")
	workDirFlag := flagSet.String("work-dir", "", "Directory hosting per-job workspaces. Defaults to the system temp dir.")
	artifactDirFlag := flagSet.String("artifact-dir", "", "Directory hosting the artifact store. Empty disables artifacts.")
	artifactRetentionFlag := flagSet.Duration("artifact-retention", 7*24*time.Hour, "How long stored artifacts are kept.")
	secretsFlag := flagSet.String("secrets-file", "", "Dotenv file loaded into the 'secrets' namespace.")
	registryURLFlag := flagSet.String("registry-url", "", "Package feed push endpoint for the registry_push action.")
	releaseURLFlag := flagSet.String("release-url", "", "Release record API base for the create_release action.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", path)

	if path == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if !*serveFlag && *branchFlag == "" {
		return nil, false, &ExitError{Code: 2, Message: "a -branch is required unless running with -serve"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PipelinePath:      path,
		Branch:            *branchFlag,
		Commit:            *commitFlag,
		Serve:             *serveFlag,
		ListenAddr:        *listenFlag,
		LogFormat:         logFormat,
		LogLevel:          logLevel,
		WorkerCount:       *workersFlag,
		JobTimeout:        *jobTimeoutFlag,
		StepTimeout:       *stepTimeoutFlag,
		RepoPath:          *repoFlag,
		Remote:            *remoteFlag,
		WorkDir:           *workDirFlag,
		ArtifactDir:       *artifactDirFlag,
		ArtifactRetention: *artifactRetentionFlag,
		SecretsFile:       *secretsFlag,
		RegistryURL:       *registryURLFlag,
		ReleaseURL:        *releaseURLFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
