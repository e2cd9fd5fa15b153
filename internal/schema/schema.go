// Package schema holds the HCL block structures for pipeline files. These
// structs mirror the on-disk syntax; the hcl loader translates them into the
// format-agnostic config model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Args represents the content of a `with` block on an action step.
type Args struct {
	Body hcl.Body `hcl:",remain"`
}

// EnvBlock represents the content of an `env` block.
type EnvBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Push represents the `push` block inside a trigger.
type Push struct {
	Branches []string `hcl:"branches,optional"`
}

// On represents the `on` trigger block of a pipeline.
type On struct {
	Push *Push `hcl:"push,block"`
}

// Output declares a named job output computed from step outputs.
type Output struct {
	Name  string         `hcl:"name,label"`
	Value hcl.Expression `hcl:"value"`
}

// Step represents a `step` block: one ordered unit of work inside a job.
type Step struct {
	ID              string         `hcl:"id,label"`
	Run             hcl.Expression `hcl:"run,optional"`
	Uses            string         `hcl:"uses,optional"`
	With            *Args          `hcl:"with,block"`
	Env             *EnvBlock      `hcl:"env,block"`
	Timeout         string         `hcl:"timeout,optional"`
	ContinueOnError bool           `hcl:"continue_on_error,optional"`
}

// Job represents a `job` block: a named node in the pipeline DAG.
type Job struct {
	Name    string         `hcl:"name,label"`
	RunsOn  string         `hcl:"runs_on,optional"`
	Needs   []string       `hcl:"needs,optional"`
	When    hcl.Expression `hcl:"when,optional"`
	Timeout string         `hcl:"timeout,optional"`
	Env     *EnvBlock      `hcl:"env,block"`
	Steps   []*Step        `hcl:"step,block"`
	Outputs []*Output      `hcl:"output,block"`
}

// Pipeline represents a top-level `pipeline` block.
type Pipeline struct {
	Name string    `hcl:"name,label"`
	On   *On       `hcl:"on,block"`
	Env  *EnvBlock `hcl:"env,block"`
	Jobs []*Job    `hcl:"job,block"`
}

// File represents the top-level structure of one pipeline file.
type File struct {
	Pipelines []*Pipeline `hcl:"pipeline,block"`
	Body      hcl.Body    `hcl:",remain"`
}
