package hcl

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/schema"
)

// extractBodyAttributes flattens a raw block body into a map of named
// expressions. A nil block yields a nil map.
func extractBodyAttributes(body hcl.Body) (map[string]hcl.Expression, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		out[name] = attr.Expr
	}
	return out, nil
}

func parseTimeout(raw, where string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q on %s: %w", raw, where, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout on %s must be positive, got %q", where, raw)
	}
	return d, nil
}

// translatePipeline converts one HCL pipeline block into the agnostic model.
func (l *Loader) translatePipeline(p *schema.Pipeline) (*config.Pipeline, error) {
	out := &config.Pipeline{Name: p.Name, Trigger: &config.Trigger{}}

	if p.On != nil && p.On.Push != nil {
		out.Trigger.Branches = p.On.Push.Branches
	}

	if p.Env != nil {
		env, err := extractBodyAttributes(p.Env.Body)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q env: %w", p.Name, err)
		}
		out.Env = env
	}

	jobNames := make(map[string]struct{}, len(p.Jobs))
	for _, j := range p.Jobs {
		if _, dup := jobNames[j.Name]; dup {
			return nil, fmt.Errorf("pipeline %q: duplicate job %q", p.Name, j.Name)
		}
		jobNames[j.Name] = struct{}{}

		job, err := l.translateJob(p.Name, j)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, job)
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("pipeline %q declares no jobs", p.Name)
	}
	return out, nil
}

func (l *Loader) translateJob(pipeline string, j *schema.Job) (*config.Job, error) {
	where := fmt.Sprintf("job %q", j.Name)

	timeout, err := parseTimeout(j.Timeout, where)
	if err != nil {
		return nil, err
	}

	job := &config.Job{
		Name:    j.Name,
		RunsOn:  j.RunsOn,
		Needs:   j.Needs,
		When:    j.When,
		Timeout: timeout,
	}

	if j.Env != nil {
		env, err := extractBodyAttributes(j.Env.Body)
		if err != nil {
			return nil, fmt.Errorf("%s env: %w", where, err)
		}
		job.Env = env
	}

	stepIDs := make(map[string]struct{}, len(j.Steps))
	for _, s := range j.Steps {
		if _, dup := stepIDs[s.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate step %q", where, s.ID)
		}
		stepIDs[s.ID] = struct{}{}

		step, err := l.translateStep(where, s)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, step)
	}
	if len(job.Steps) == 0 {
		return nil, fmt.Errorf("%s declares no steps", where)
	}

	outputNames := make(map[string]struct{}, len(j.Outputs))
	for _, o := range j.Outputs {
		if _, dup := outputNames[o.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate output %q", where, o.Name)
		}
		outputNames[o.Name] = struct{}{}
		job.Outputs = append(job.Outputs, &config.Output{Name: o.Name, Value: o.Value})
	}

	return job, nil
}

func (l *Loader) translateStep(jobWhere string, s *schema.Step) (*config.Step, error) {
	where := fmt.Sprintf("%s step %q", jobWhere, s.ID)

	hasRun := !exprIsAbsent(s.Run)
	if hasRun == (s.Uses != "") {
		return nil, fmt.Errorf("%s must set exactly one of 'run' or 'uses'", where)
	}
	if s.Uses == "" && s.With != nil {
		return nil, fmt.Errorf("%s: 'with' is only valid on action steps", where)
	}

	timeout, err := parseTimeout(s.Timeout, where)
	if err != nil {
		return nil, err
	}

	step := &config.Step{
		ID:              s.ID,
		Uses:            s.Uses,
		Timeout:         timeout,
		ContinueOnError: s.ContinueOnError,
	}
	if hasRun {
		step.Run = s.Run
	}

	if s.With != nil {
		with, err := extractBodyAttributes(s.With.Body)
		if err != nil {
			return nil, fmt.Errorf("%s with: %w", where, err)
		}
		step.With = with
	}
	if s.Env != nil {
		env, err := extractBodyAttributes(s.Env.Body)
		if err != nil {
			return nil, fmt.Errorf("%s env: %w", where, err)
		}
		step.Env = env
	}

	return step, nil
}

// exprIsAbsent reports whether an optional expression attribute was left out.
// gohcl represents a missing optional expression as a null literal.
func exprIsAbsent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		// Not statically evaluable, so it was definitely written by the user.
		return false
	}
	return v.IsNull()
}
