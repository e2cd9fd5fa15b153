package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/dag"
	"github.com/vk/conveyor/internal/registry"
	"github.com/vk/conveyor/internal/runner"
)

// Run executes the main application logic: a single pipeline run in run
// mode, or the webhook server in serve mode.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.Serve {
		return a.serve(ctx)
	}

	event := config.Event{Branch: a.cfg.Branch, Commit: a.cfg.Commit}
	return a.runPipelines(ctx, event)
}

// runPipelines executes every pipeline whose trigger matches the event.
func (a *App) runPipelines(ctx context.Context, event config.Event) error {
	logger := ctxlog.FromContext(ctx)

	secrets, err := a.loadSecrets()
	if err != nil {
		return err
	}
	services, closeServices, err := a.buildServices(secrets)
	if err != nil {
		return err
	}
	defer closeServices()

	if services.Artifacts != nil {
		if n, err := services.Artifacts.Purge(ctx, time.Now()); err != nil {
			logger.Warn("Artifact purge failed.", "error", err)
		} else if n > 0 {
			logger.Info("Purged expired artifacts.", "count", n)
		}
	}

	runID := newRunID(event)
	baseVars := buildBaseVars(event, secrets)

	matched := 0
	var failures []string
	for _, pipeline := range a.model.Pipelines {
		if !pipeline.Trigger.Matches(event.Branch) {
			logger.Debug("Pipeline trigger does not match event.",
				"pipeline", pipeline.Name, "branch", event.Branch)
			continue
		}
		matched++
		if err := a.runPipeline(ctx, pipeline, event, runID, services, baseVars); err != nil {
			failures = append(failures, pipeline.Name)
			logger.Error("Pipeline run failed.", "pipeline", pipeline.Name, "error", err)
		}
	}

	if matched == 0 {
		logger.Warn("No pipeline matched the event.", "branch", event.Branch)
		return nil
	}
	if len(failures) > 0 {
		return fmt.Errorf("pipeline run failed: %s", strings.Join(failures, ", "))
	}
	return nil
}

// runPipeline runs one pipeline to completion and prints its summary.
func (a *App) runPipeline(ctx context.Context, pipeline *config.Pipeline, event config.Event, runID string, services *registry.Services, baseVars map[string]cty.Value) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting pipeline run.", "pipeline", pipeline.Name, "run_id", runID, "branch", event.Branch)

	graph, err := dag.Build(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("building job graph: %w", err)
	}

	workRoot, err := a.workRoot(runID, pipeline.Name)
	if err != nil {
		return err
	}

	jobRunner := runner.New(runner.Options{
		Registry:    a.registry,
		Services:    services,
		RunID:       runID,
		Event:       event,
		PipelineEnv: pipeline.Env,
		WorkRoot:    workRoot,
		SourceDir:   a.cfg.RepoPath,
		StepTimeout: a.cfg.StepTimeout,
	})

	exec := dag.NewExecutor(graph, jobRunner, a.cfg.WorkerCount, baseVars, a.cfg.JobTimeout)
	report, runErr := exec.Run(ctx)
	if report != nil {
		fmt.Fprint(a.outW, report.Summary())
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("🏁 Pipeline run finished.", "pipeline", pipeline.Name, "run_id", runID)
	return nil
}

// workRoot creates and returns the workspace root of one pipeline run.
func (a *App) workRoot(runID, pipeline string) (string, error) {
	base := a.cfg.WorkDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "conveyor")
	}
	root := filepath.Join(base, runID, pipeline)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace root: %w", err)
	}
	return root, nil
}

// newRunID derives a unique, log-friendly run identifier from the event.
func newRunID(event config.Event) string {
	stamp := time.Now().UTC().Format("20060102-150405")
	commit := event.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit == "" {
		return stamp
	}
	return stamp + "-" + commit
}

// buildBaseVars assembles the root evaluation namespace shared by every
// job of a run: the triggering event, the process environment, and the
// secrets file.
func buildBaseVars(event config.Event, secrets map[string]string) map[string]cty.Value {
	envVals := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envVals[k] = cty.StringVal(v)
		}
	}
	secretVals := map[string]cty.Value{}
	for k, v := range secrets {
		secretVals[k] = cty.StringVal(v)
	}

	vars := map[string]cty.Value{
		"event": cty.ObjectVal(map[string]cty.Value{
			"branch": cty.StringVal(event.Branch),
			"commit": cty.StringVal(event.Commit),
		}),
	}
	if len(envVals) > 0 {
		vars["env"] = cty.ObjectVal(envVals)
	} else {
		vars["env"] = cty.EmptyObjectVal
	}
	if len(secretVals) > 0 {
		vars["secrets"] = cty.ObjectVal(secretVals)
	} else {
		vars["secrets"] = cty.EmptyObjectVal
	}
	return vars
}
