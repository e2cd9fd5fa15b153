package git_tag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/conveyor/internal/gitrepo"
	"github.com/vk/conveyor/internal/registry"
)

func newInvocation(tags gitrepo.TagStore) *registry.Invocation {
	return &registry.Invocation{
		Services: &registry.Services{Tags: tags},
		RunID:    "run-1",
		Job:      "tag_and_push",
	}
}

func TestGitTag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates and pushes a prefixed tag", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("")
		tags.AddCommit("abc1234", "release prep")

		out, err := OnRunGitTag(ctx, newInvocation(tags), &Input{Version: "1.2.3"})
		require.NoError(t, err)
		assert.Equal(t, "v1.2.3", out.GetAttr("tag").AsString())
		assert.Equal(t, "abc1234", out.GetAttr("commit").AsString())
		assert.True(t, tags.Pushed("v1.2.3"))

		tag, err := tags.LookupTag(ctx, "v1.2.3")
		require.NoError(t, err)
		assert.Equal(t, "abc1234", tag.Commit)
	})

	t.Run("push can be disabled", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("")
		tags.AddCommit("abc1234", "release prep")

		noPush := false
		_, err := OnRunGitTag(ctx, newInvocation(tags), &Input{Version: "1.2.3", Push: &noPush})
		require.NoError(t, err)
		assert.False(t, tags.Pushed("v1.2.3"))
	})

	t.Run("existing tag is a hard failure", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("")
		tags.AddCommit("abc1234", "release prep")
		tags.SetTag("v1.2.3", "older00")

		_, err := OnRunGitTag(ctx, newInvocation(tags), &Input{Version: "1.2.3"})
		require.ErrorIs(t, err, gitrepo.ErrTagExists)

		// The original tag stays untouched.
		tag, lookupErr := tags.LookupTag(ctx, "v1.2.3")
		require.NoError(t, lookupErr)
		assert.Equal(t, "older00", tag.Commit)
	})

	t.Run("custom prefix", func(t *testing.T) {
		t.Parallel()
		tags := gitrepo.NewMemTagStore("")
		tags.AddCommit("abc1234", "release prep")

		prefix := "release-"
		out, err := OnRunGitTag(ctx, newInvocation(tags), &Input{Version: "2.0.0", TagPrefix: &prefix})
		require.NoError(t, err)
		assert.Equal(t, "release-2.0.0", out.GetAttr("tag").AsString())
	})
}
