package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory of hcl files

	// Branch and Commit describe the triggering event in run mode.
	Branch string
	Commit string

	// Serve switches the app from a one-shot run into webhook server mode.
	Serve      bool
	ListenAddr string

	LogFormat string
	LogLevel  string

	// WorkerCount bounds how many jobs run concurrently.
	WorkerCount int
	// JobTimeout applies to jobs that declare none of their own.
	JobTimeout time.Duration
	// StepTimeout applies to steps that declare none of their own.
	StepTimeout time.Duration

	// RepoPath is the local working copy the tag and release actions
	// operate on. Empty disables them.
	RepoPath string
	Remote   string

	// WorkDir hosts the per-job workspaces of a run.
	WorkDir string
	// ArtifactDir hosts the shared artifact store. Empty disables it.
	ArtifactDir       string
	ArtifactRetention time.Duration

	// SecretsFile is a dotenv file loaded into the `secrets` namespace.
	SecretsFile string

	// RegistryURL is the package feed push endpoint. Empty disables the
	// registry_push action.
	RegistryURL string
	// ReleaseURL is the release record API base. Empty disables the
	// create_release action.
	ReleaseURL string
}

// NewConfig validates a Config and fills in the defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if !cfg.Serve && cfg.Branch == "" {
		return nil, errors.New("a branch is required in run mode")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ArtifactRetention <= 0 {
		cfg.ArtifactRetention = 7 * 24 * time.Hour
	}
	return &cfg, nil
}
