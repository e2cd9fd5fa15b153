package version_gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/conveyor/internal/gitrepo"
	"github.com/vk/conveyor/internal/registry"
)

func writeProject(t *testing.T, dir, version string) {
	t.Helper()
	content := "<Project>\n  <PropertyGroup>\n    <Version>" + version + "</Version>\n  </PropertyGroup>\n</Project>\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.csproj"), []byte(content), 0o644))
}

func newInvocation(t *testing.T, tags gitrepo.TagStore) *registry.Invocation {
	t.Helper()
	return &registry.Invocation{
		Services:  &registry.Services{Tags: tags},
		RunID:     "run-1",
		Job:       "check_version",
		Workspace: t.TempDir(),
	}
}

func TestVersionGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("passes when version exceeds latest tag", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("head1")
		tags.SetTag("v1.2.2", "c1")
		tags.SetTag("v1.2.3", "c2")

		inv := newInvocation(t, tags)
		writeProject(t, inv.Workspace, "1.2.4")

		out, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "app.csproj"})
		require.NoError(t, err)
		assert.Equal(t, "true", out.GetAttr("is_valid").AsString())
		assert.Equal(t, "1.2.4", out.GetAttr("version").AsString())
		assert.Equal(t, "v1.2.3", out.GetAttr("latest_tag").AsString())
		assert.Empty(t, out.GetAttr("reason").AsString())
	})

	t.Run("rejects a version equal to the latest tag", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("head1")
		tags.SetTag("v1.2.3", "c1")

		inv := newInvocation(t, tags)
		writeProject(t, inv.Workspace, "1.2.3")

		out, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "app.csproj"})
		require.NoError(t, err)
		assert.Equal(t, "false", out.GetAttr("is_valid").AsString())
		assert.Contains(t, out.GetAttr("reason").AsString(), "not incremented")
	})

	t.Run("rejects an invalid version string", func(t *testing.T) {
		t.Parallel()
		inv := newInvocation(t, gitrepo.NewMemTagStore("head1"))
		writeProject(t, inv.Workspace, "1.2.banana")

		out, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "app.csproj"})
		require.NoError(t, err)
		assert.Equal(t, "false", out.GetAttr("is_valid").AsString())
	})

	t.Run("first release passes with no tags", func(t *testing.T) {
		t.Parallel()
		inv := newInvocation(t, gitrepo.NewMemTagStore("head1"))
		writeProject(t, inv.Workspace, "0.1.0")

		out, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "app.csproj"})
		require.NoError(t, err)
		assert.Equal(t, "true", out.GetAttr("is_valid").AsString())
		assert.Empty(t, out.GetAttr("latest_tag").AsString())
	})

	t.Run("ignores tags outside the prefix", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("head1")
		tags.SetTag("v9.9.9", "c1")
		tags.SetTag("app-v1.0.0", "c2")

		inv := newInvocation(t, tags)
		writeProject(t, inv.Workspace, "1.0.1")

		prefix := "app-v"
		out, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "app.csproj", TagPrefix: &prefix})
		require.NoError(t, err)
		assert.Equal(t, "true", out.GetAttr("is_valid").AsString())
		assert.Equal(t, "app-v1.0.0", out.GetAttr("latest_tag").AsString())
	})

	t.Run("missing project file fails the step", func(t *testing.T) {
		t.Parallel()
		inv := newInvocation(t, gitrepo.NewMemTagStore("head1"))

		_, err := OnRunVersionGate(ctx, inv, &Input{ProjectFile: "nope.csproj"})
		assert.ErrorContains(t, err, "extracting project version")
	})
}
