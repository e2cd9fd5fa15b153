// Package registry_push implements the 'registry_push' action: it uploads
// built package files to the configured package registry.
package registry_push

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conveyor/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted by the 'registry_push' action.
type Input struct {
	// Packages are glob patterns of package files to push, relative to the
	// job workspace.
	Packages []string `hcl:"packages"`
	// SkipDuplicate treats an already-published version as success.
	SkipDuplicate *bool `hcl:"skip_duplicate,optional"`
}

// OnRunRegistryPush is the handler for the 'registry_push' action.
func OnRunRegistryPush(ctx context.Context, inv *registry.Invocation, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if inv.Packages == nil {
		return cty.NilVal, fmt.Errorf("registry_push: no package registry configured")
	}
	skipDuplicate := true
	if input.SkipDuplicate != nil {
		skipDuplicate = *input.SkipDuplicate
	}

	var files []string
	for _, pattern := range input.Packages {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(inv.Workspace, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return cty.NilVal, fmt.Errorf("bad package pattern '%s': %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return cty.NilVal, fmt.Errorf("registry_push: no package files matched %v", input.Packages)
	}
	sort.Strings(files)

	published := make([]cty.Value, 0, len(files))
	for _, file := range files {
		logger.Info("Pushing package.", "file", filepath.Base(file))
		if err := inv.Packages.Push(ctx, file, skipDuplicate); err != nil {
			return cty.NilVal, fmt.Errorf("pushing '%s': %w", filepath.Base(file), err)
		}
		published = append(published, cty.StringVal(filepath.Base(file)))
	}

	return cty.ObjectVal(map[string]cty.Value{
		"count":     cty.StringVal(fmt.Sprintf("%d", len(published))),
		"published": cty.ListVal(published),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("registry_push", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunRegistryPush,
	})
}
