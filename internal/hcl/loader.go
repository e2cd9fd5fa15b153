// Package hcl implements the HCL pipeline file loader. It parses `.hcl`
// files into the schema structs and translates them into the agnostic
// config model, validating structural rules along the way.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/fsutil"
	"github.com/vk/conveyor/internal/schema"
)

// Loader implements config.Loader for HCL pipeline files.
type Loader struct{}

// NewLoader returns a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every `.hcl` file under the given paths, parses each one, and
// merges the resulting pipelines into a single model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, p := range paths {
		found, err := fsutil.FindFilesByExtension(p, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scanning %s for pipeline files: %w", p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl pipeline files found under %v", paths)
	}
	logger.Debug("Found pipeline files.", "files", files)

	parser := hclparse.NewParser()
	model := &config.Model{}
	seen := make(map[string]string)

	for _, path := range files {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}

		var file schema.File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &file); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}

		for _, p := range file.Pipelines {
			if prev, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("pipeline %q in %s already defined in %s", p.Name, path, prev)
			}
			seen[p.Name] = path

			translated, err := l.translatePipeline(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			model.Pipelines = append(model.Pipelines, translated)
		}
		logger.Debug("Loaded pipeline file.", "file", path)
	}

	logger.Info("Pipeline definitions loaded.", "pipelines", len(model.Pipelines))
	return model, nil
}
