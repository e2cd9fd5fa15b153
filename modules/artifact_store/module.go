// Package artifact_store implements the 'artifact_upload' and
// 'artifact_download' actions for moving files between jobs of a run
// through the shared artifact store.
package artifact_store

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

// UploadInput defines the arguments accepted by 'artifact_upload'.
type UploadInput struct {
	// Name identifies the artifact within the run.
	Name string `hcl:"name"`
	// Paths are glob patterns of files to store, relative to the job
	// workspace.
	Paths []string `hcl:"paths"`
}

// DownloadInput defines the arguments accepted by 'artifact_download'.
type DownloadInput struct {
	// Name identifies the artifact within the run.
	Name string `hcl:"name"`
	// Dest is the directory the files land in, relative to the job
	// workspace. Defaults to the workspace itself.
	Dest string `hcl:"dest,optional"`
}

// OnRunArtifactUpload is the handler for the 'artifact_upload' action.
func OnRunArtifactUpload(ctx context.Context, inv *registry.Invocation, input *UploadInput) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if inv.Artifacts == nil {
		return cty.NilVal, fmt.Errorf("artifact_upload: no artifact store configured")
	}

	var files []string
	for _, pattern := range input.Paths {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(inv.Workspace, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return cty.NilVal, fmt.Errorf("bad path pattern '%s': %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return cty.NilVal, fmt.Errorf("artifact_upload: no files matched %v", input.Paths)
	}
	sort.Strings(files)

	if err := inv.Artifacts.Upload(ctx, inv.RunID, input.Name, files); err != nil {
		return cty.NilVal, fmt.Errorf("uploading artifact '%s': %w", input.Name, err)
	}
	logger.Info("Uploaded artifact.", "name", input.Name, "files", len(files))

	return cty.ObjectVal(map[string]cty.Value{
		"name":  cty.StringVal(input.Name),
		"count": cty.StringVal(fmt.Sprintf("%d", len(files))),
	}), nil
}

// OnRunArtifactDownload is the handler for the 'artifact_download' action.
func OnRunArtifactDownload(ctx context.Context, inv *registry.Invocation, input *DownloadInput) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if inv.Artifacts == nil {
		return cty.NilVal, fmt.Errorf("artifact_download: no artifact store configured")
	}

	dest := input.Dest
	if dest == "" {
		dest = inv.Workspace
	} else if !filepath.IsAbs(dest) {
		dest = filepath.Join(inv.Workspace, dest)
	}

	files, err := inv.Artifacts.Download(ctx, inv.RunID, input.Name, dest)
	if err != nil {
		return cty.NilVal, fmt.Errorf("downloading artifact '%s': %w", input.Name, err)
	}
	logger.Info("Downloaded artifact.", "name", input.Name, "files", len(files), "dest", dest)

	return cty.ObjectVal(map[string]cty.Value{
		"name":  cty.StringVal(input.Name),
		"dest":  cty.StringVal(dest),
		"count": cty.StringVal(fmt.Sprintf("%d", len(files))),
	}), nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("artifact_upload", &registry.RegisteredAction{
		NewInput: func() any { return new(UploadInput) },
		Fn:       OnRunArtifactUpload,
	})
	r.Register("artifact_download", &registry.RegisteredAction{
		NewInput: func() any { return new(DownloadInput) },
		Fn:       OnRunArtifactDownload,
	})
}
