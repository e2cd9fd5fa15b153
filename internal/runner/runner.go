// Package runner executes one job at a time: it acquires an isolated
// workspace, runs the job's steps strictly in order, and reports the job's
// terminal status plus its declared named outputs. Steps communicate only
// through the explicit output channel; there is no ambient shared state.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Options configures a Runner for one pipeline run.
type Options struct {
	Registry *registry.Registry
	Services *registry.Services
	RunID    string
	Event    config.Event
	// PipelineEnv is the pipeline-level env block, evaluated per job.
	PipelineEnv map[string]hcl.Expression
	// WorkRoot is the directory under which per-job workspaces are created.
	WorkRoot string
	// SourceDir, when set, seeds each job workspace with a copy of the
	// checkout before the first step runs.
	SourceDir string
	// Shell is the command prefix for `run` steps, e.g. ["/bin/sh", "-c"].
	Shell []string
	// StepTimeout applies to steps that declare none of their own.
	StepTimeout time.Duration
}

// Runner implements dag.JobRunner for one pipeline run.
type Runner struct {
	opts Options
}

// New returns a Runner. WorkRoot must already exist.
func New(opts Options) *Runner {
	if len(opts.Shell) == 0 {
		opts.Shell = []string{"/bin/sh", "-c"}
	}
	return &Runner{opts: opts}
}

// RunJob executes the job's steps in order inside a fresh workspace and, on
// success, evaluates the job's declared outputs into a string object.
func (r *Runner) RunJob(ctx context.Context, job *config.Job, evalCtx *hcl.EvalContext) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)

	workspace := filepath.Join(r.opts.WorkRoot, job.Name)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return cty.NilVal, fmt.Errorf("acquiring workspace for job '%s': %w", job.Name, err)
	}
	if r.opts.SourceDir != "" {
		if err := seedWorkspace(r.opts.SourceDir, workspace); err != nil {
			return cty.NilVal, fmt.Errorf("seeding workspace for job '%s': %w", job.Name, err)
		}
	}
	logger.Debug("Workspace acquired.", "path", workspace, "runs_on", job.RunsOn)

	// stepVars accumulates `step.<id>.outputs` for later steps of this job.
	stepVars := make(map[string]cty.Value)

	for _, step := range job.Steps {
		stepCtx := childContext(evalCtx, stepVars)
		stepLogger := logger.With("step", step.ID)

		outputs, err := r.runStep(ctx, job, step, workspace, stepCtx)
		if err != nil {
			if step.ContinueOnError {
				stepLogger.Warn("Step failed but is marked continue_on_error.", "error", err)
				stepVars[step.ID] = cty.ObjectVal(map[string]cty.Value{"outputs": cty.EmptyObjectVal})
				continue
			}
			// First failing step aborts the job; remaining steps never run.
			return cty.NilVal, fmt.Errorf("step '%s': %w", step.ID, err)
		}

		stepLogger.Debug("Step finished.")
		stepVars[step.ID] = cty.ObjectVal(map[string]cty.Value{"outputs": outputs})
	}

	return evalJobOutputs(job, childContext(evalCtx, stepVars))
}

// runStep dispatches one step with its timeout applied.
func (r *Runner) runStep(ctx context.Context, job *config.Job, step *config.Step, workspace string, stepCtx *hcl.EvalContext) (cty.Value, error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.opts.StepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if step.Run != nil {
		return r.runShellStep(ctx, job, step, workspace, stepCtx)
	}
	return r.runActionStep(ctx, job, step, workspace, stepCtx)
}

// childContext layers the job-local `step` variable over the shared context.
func childContext(parent *hcl.EvalContext, stepVars map[string]cty.Value) *hcl.EvalContext {
	child := parent.NewChild()
	child.Variables = map[string]cty.Value{
		"step": cty.ObjectVal(stepVars),
	}
	return child
}

// evalJobOutputs computes the job's declared output object. Every output is
// coerced to a string so dependents compare against literals predictably.
func evalJobOutputs(job *config.Job, evalCtx *hcl.EvalContext) (cty.Value, error) {
	if len(job.Outputs) == 0 {
		return cty.EmptyObjectVal, nil
	}

	out := make(map[string]cty.Value, len(job.Outputs))
	for _, decl := range job.Outputs {
		val, diags := decl.Value.Value(evalCtx)
		if diags.HasErrors() {
			return cty.NilVal, fmt.Errorf("evaluating output '%s': %w", decl.Name, diags)
		}
		strVal, err := convert.Convert(val, cty.String)
		if err != nil {
			return cty.NilVal, fmt.Errorf("output '%s' is not convertible to string: %w", decl.Name, err)
		}
		if strVal.IsNull() {
			strVal = cty.StringVal("")
		}
		out[decl.Name] = strVal
	}
	return cty.ObjectVal(out), nil
}

// seedWorkspace copies the checkout into a job workspace. The `.git`
// directory is left behind; steps operate on files, not repository state.
func seedWorkspace(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := seedWorkspace(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dstPath, data, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

// evalEnv flattens layered env expression maps into concrete variables.
// Later layers override earlier ones.
func evalEnv(evalCtx *hcl.EvalContext, layers ...map[string]hcl.Expression) (map[string]string, error) {
	env := make(map[string]string)
	for _, layer := range layers {
		for name, expr := range layer {
			val, diags := expr.Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("evaluating env '%s': %w", name, diags)
			}
			strVal, err := convert.Convert(val, cty.String)
			if err != nil || strVal.IsNull() {
				return nil, fmt.Errorf("env '%s' must be a string", name)
			}
			env[name] = strVal.AsString()
		}
	}
	return env, nil
}
