// Package git_tag implements the 'git_tag' action: it creates an annotated
// release tag at the current head and pushes it to the configured remote.
package git_tag

import (
	"context"
	"fmt"

	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conveyor/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted by the 'git_tag' action.
type Input struct {
	// Version is the bare version to tag, without prefix.
	Version string `hcl:"version"`
	// TagPrefix is prepended to Version to form the tag name.
	TagPrefix *string `hcl:"tag_prefix,optional"`
	// Message is the annotation message. Defaults to "Release <tag>".
	Message string `hcl:"message,optional"`
	// Push controls whether the tag is pushed to the remote.
	Push *bool `hcl:"push,optional"`
}

// OnRunGitTag is the handler for the 'git_tag' action.
//
// An existing tag with the same name is a hard failure: it means the gate
// upstream was bypassed or two runs raced, and neither case should end in
// a silently reused tag.
func OnRunGitTag(ctx context.Context, inv *registry.Invocation, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if inv.Tags == nil {
		return cty.NilVal, fmt.Errorf("git_tag: no repository configured")
	}

	prefix := "v"
	if input.TagPrefix != nil {
		prefix = *input.TagPrefix
	}
	name := prefix + input.Version
	message := input.Message
	if message == "" {
		message = "Release " + name
	}

	tag, err := inv.Tags.CreateTag(ctx, name, message)
	if err != nil {
		return cty.NilVal, fmt.Errorf("creating tag '%s': %w", name, err)
	}
	logger.Info("Created release tag.", "tag", tag.Name, "commit", tag.Commit)

	if input.Push == nil || *input.Push {
		if err := inv.Tags.PushTag(ctx, name); err != nil {
			return cty.NilVal, fmt.Errorf("pushing tag '%s': %w", name, err)
		}
		logger.Info("Pushed release tag.", "tag", tag.Name)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"tag":    cty.StringVal(tag.Name),
		"commit": cty.StringVal(tag.Commit),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("git_tag", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunGitTag,
	})
}
