package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// OutputFileVar is the environment variable pointing a shell step at its
// output file. Lines of `name=value` appended there become the step's
// named outputs.
const OutputFileVar = "CONVEYOR_OUTPUT"

// runShellStep executes a `run` step through the configured shell, captures
// its combined output for the job log, and collects output variables from
// the explicit output file.
func (r *Runner) runShellStep(ctx context.Context, job *config.Job, step *config.Step, workspace string, stepCtx *hcl.EvalContext) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("job", job.Name, "step", step.ID)

	cmdVal, diags := step.Run.Value(stepCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating command: %w", diags)
	}
	cmdStr, err := convert.Convert(cmdVal, cty.String)
	if err != nil || cmdStr.IsNull() {
		return cty.NilVal, fmt.Errorf("'run' must produce a string command")
	}
	command := cmdStr.AsString()

	env, err := evalEnv(stepCtx, r.opts.PipelineEnv, job.Env, step.Env)
	if err != nil {
		return cty.NilVal, err
	}

	outFile, err := os.CreateTemp("", "conveyor-output-*")
	if err != nil {
		return cty.NilVal, fmt.Errorf("creating step output file: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	shell := r.opts.Shell
	args := append(append([]string{}, shell[1:]...), command)
	cmd := exec.CommandContext(ctx, shell[0], args...)
	cmd.Dir = workspace
	cmd.Env = os.Environ()
	for name, value := range env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}
	cmd.Env = append(cmd.Env, OutputFileVar+"="+outPath)

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	logger.Info("Running command.", "command", command)
	runErr := cmd.Run()

	for _, line := range strings.Split(strings.TrimRight(combined.String(), "\n"), "\n") {
		if line != "" {
			logger.Debug("step output", "line", line)
		}
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return cty.NilVal, fmt.Errorf("command timed out or was canceled: %w", ctx.Err())
		}
		return cty.NilVal, fmt.Errorf("command failed: %w\n%s", runErr, tail(&combined, 20))
	}

	return parseOutputFile(outPath)
}

// parseOutputFile reads `name=value` lines into the step's output object.
func parseOutputFile(path string) (cty.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading step outputs: %w", err)
	}
	defer f.Close()

	outputs := make(map[string]cty.Value)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found || name == "" {
			return cty.NilVal, fmt.Errorf("malformed output line %q: want name=value", line)
		}
		outputs[strings.TrimSpace(name)] = cty.StringVal(value)
	}
	if err := scanner.Err(); err != nil {
		return cty.NilVal, fmt.Errorf("reading step outputs: %w", err)
	}

	if len(outputs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(outputs), nil
}

// tail returns the last n lines of the buffer for error context.
func tail(buf *bytes.Buffer, n int) string {
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
