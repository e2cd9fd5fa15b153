// Package version_gate implements the 'version_gate' action: it extracts
// the declared project version from a project file and checks that it is a
// valid semantic version strictly greater than the latest release tag.
package version_gate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/version"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conveyor/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted by the 'version_gate' action.
type Input struct {
	// ProjectFile is the path of the file carrying the declared version,
	// relative to the job workspace.
	ProjectFile string `hcl:"project_file"`
	// Pattern overrides the version extraction regexp. It must contain
	// exactly one capture group.
	Pattern string `hcl:"pattern,optional"`
	// TagPrefix is stripped from tag names before comparison.
	TagPrefix *string `hcl:"tag_prefix,optional"`
}

// OnRunVersionGate is the handler for the 'version_gate' action.
//
// A failed gate is not a step failure: the step succeeds with is_valid set
// to "false" and a reason, so pipelines can route around it with a run
// condition. Only broken inputs (missing project file, unreadable
// repository) fail the step.
func OnRunVersionGate(ctx context.Context, inv *registry.Invocation, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	pattern := input.Pattern
	if pattern == "" {
		pattern = version.DefaultPattern
	}
	prefix := "v"
	if input.TagPrefix != nil {
		prefix = *input.TagPrefix
	}

	path := input.ProjectFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(inv.Workspace, path)
	}
	declared, err := version.Extract(path, pattern)
	if err != nil {
		return cty.NilVal, fmt.Errorf("extracting project version: %w", err)
	}

	if inv.Tags == nil {
		return cty.NilVal, fmt.Errorf("version_gate: no repository configured")
	}
	tags, err := inv.Tags.ListTags(ctx)
	if err != nil {
		return cty.NilVal, fmt.Errorf("listing release tags: %w", err)
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	latestName, latest := version.LatestTag(names, prefix)

	res := version.Check(declared, latest)
	if !res.Valid {
		logger.Warn("Version gate rejected declared version.",
			"version", res.Version, "latest_tag", latestName, "reason", res.Reason)
	} else {
		logger.Info("Version gate passed.", "version", res.Version, "latest_tag", latestName)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"version":    cty.StringVal(res.Version),
		"is_valid":   cty.StringVal(fmt.Sprintf("%t", res.Valid)),
		"latest_tag": cty.StringVal(latestName),
		"reason":     cty.StringVal(res.Reason),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("version_gate", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunVersionGate,
	})
}
