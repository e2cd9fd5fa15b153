// Package create_release implements the 'create_release' action: it builds
// release notes from the commit history since the previous release tag and
// creates a release record for an existing tag.
package create_release

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/gitrepo"
	"github.com/vk/conveyor/internal/release"
	"github.com/vk/conveyor/internal/version"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conveyor/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted by the 'create_release' action.
type Input struct {
	// Tag names the existing release tag to publish a record for.
	Tag string `hcl:"tag"`
	// TagPrefix identifies release tags when locating the previous one.
	TagPrefix *string `hcl:"tag_prefix,optional"`
	// MakeLatest marks the release as the repository's latest.
	MakeLatest *bool `hcl:"make_latest,optional"`
}

// OnRunCreateRelease is the handler for the 'create_release' action.
//
// The tag must already exist in the repository. Release notes cover the
// commits reachable from the tag but not from the previous release tag;
// the first release covers the whole history.
func OnRunCreateRelease(ctx context.Context, inv *registry.Invocation, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if inv.Tags == nil {
		return cty.NilVal, fmt.Errorf("create_release: no repository configured")
	}
	if inv.Releases == nil {
		return cty.NilVal, fmt.Errorf("create_release: no release endpoint configured")
	}
	prefix := "v"
	if input.TagPrefix != nil {
		prefix = *input.TagPrefix
	}

	tag, err := inv.Tags.LookupTag(ctx, input.Tag)
	if err != nil {
		return cty.NilVal, fmt.Errorf("looking up tag '%s': %w", input.Tag, err)
	}

	prev, err := previousReleaseTag(ctx, inv.Tags, tag.Name, prefix)
	if err != nil {
		return cty.NilVal, err
	}

	commits, err := inv.Tags.CommitsSince(ctx, prev)
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading history since '%s': %w", prev, err)
	}
	notes := release.Notes(commits)

	makeLatest := true
	if input.MakeLatest != nil {
		makeLatest = *input.MakeLatest
	}
	rec := release.Record{
		Tag:        tag.Name,
		Title:      strings.TrimPrefix(tag.Name, prefix),
		Body:       notes,
		MakeLatest: makeLatest,
	}
	if err := inv.Releases.Create(ctx, rec); err != nil {
		return cty.NilVal, fmt.Errorf("creating release for '%s': %w", tag.Name, err)
	}
	logger.Info("Created release.", "tag", tag.Name, "previous", prev, "commits", len(commits))

	return cty.ObjectVal(map[string]cty.Value{
		"tag":      cty.StringVal(tag.Name),
		"previous": cty.StringVal(prev),
	}), nil
}

// previousReleaseTag returns the newest release tag older than current, or
// "" when current is the first release.
func previousReleaseTag(ctx context.Context, store gitrepo.TagStore, current, prefix string) (string, error) {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tags: %w", err)
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Name == current {
			continue
		}
		names = append(names, t.Name)
	}
	currentBare := strings.TrimPrefix(current, prefix)

	// Keep only tags that sort below the current release.
	older := names[:0]
	for _, n := range names {
		bare := strings.TrimPrefix(n, prefix)
		if strings.HasPrefix(n, prefix) && version.IsValid(bare) && version.Compare(bare, currentBare) < 0 {
			older = append(older, n)
		}
	}
	name, _ := version.LatestTag(older, prefix)
	return name, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("create_release", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunCreateRelease,
	})
}
