package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of everything loaded from the user's
// pipeline files.
type Model struct {
	Pipelines []*Pipeline
}

// Pipeline is a declarative DAG of jobs bound to a trigger predicate. It is
// immutable for the duration of one run.
type Pipeline struct {
	Name    string
	Trigger *Trigger
	Env     map[string]hcl.Expression
	Jobs    []*Job
}

// Job returns the job with the given name, or nil.
func (p *Pipeline) Job(name string) *Job {
	for _, j := range p.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Trigger is the predicate deciding whether a repository event starts a run.
type Trigger struct {
	// Branches lists the branch names a push must target. Empty means any
	// branch.
	Branches []string
}

// Matches reports whether a push to the given branch fires this trigger.
func (t *Trigger) Matches(branch string) bool {
	if t == nil || len(t.Branches) == 0 {
		return true
	}
	for _, b := range t.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// Job is a named node in the pipeline DAG, executed in its own isolated
// workspace. Dependencies are declared through Needs; expressions may only
// reference jobs listed there.
type Job struct {
	Name   string
	RunsOn string
	Needs  []string
	// When is the optional run-condition expression. It is evaluated only
	// after every dependency succeeded; a nil When means exactly that
	// default condition.
	When    hcl.Expression
	Env     map[string]hcl.Expression
	Timeout time.Duration
	Steps   []*Step
	Outputs []*Output
}

// Step is one ordered unit of work inside a Job: either a shell command
// (Run) or a built-in action (Uses + With). Exactly one of the two is set.
type Step struct {
	// ID names the step for `step.<id>.outputs.<name>` references.
	ID              string
	Run             hcl.Expression
	Uses            string
	With            map[string]hcl.Expression
	Env             map[string]hcl.Expression
	Timeout         time.Duration
	ContinueOnError bool
}

// Output declares a named job output whose value is computed from completed
// step outputs once the job succeeds.
type Output struct {
	Name  string
	Value hcl.Expression
}

// Event is the repository event that triggered a run: a push of a commit to
// a branch.
type Event struct {
	Branch string
	Commit string
}
