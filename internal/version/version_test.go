package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "App.csproj")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("finds a single-line version element", func(t *testing.T) {
		t.Parallel()
		path := writeProjectFile(t, `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <TargetFramework>net8.0</TargetFramework>
    <Version>1.0.2</Version>
  </PropertyGroup>
</Project>`)

		v, err := Extract(path, DefaultPattern)
		require.NoError(t, err)
		assert.Equal(t, "1.0.2", v)
	})

	t.Run("custom pattern", func(t *testing.T) {
		t.Parallel()
		path := writeProjectFile(t, "name = demo\nversion = \"2.3.4\"\n")

		v, err := Extract(path, `version = "([^"]+)"`)
		require.NoError(t, err)
		assert.Equal(t, "2.3.4", v)
	})

	t.Run("missing version fails", func(t *testing.T) {
		t.Parallel()
		path := writeProjectFile(t, "<Project></Project>")

		_, err := Extract(path, DefaultPattern)
		assert.ErrorContains(t, err, "no version matching")
	})

	t.Run("pattern without capture group is rejected", func(t *testing.T) {
		t.Parallel()
		path := writeProjectFile(t, "<Version>1.0.0</Version>")

		_, err := Extract(path, `<Version>.*</Version>`)
		assert.ErrorContains(t, err, "exactly one capture group")
	})
}

func TestCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.2", "1.0.1", 1},
		{"1.0.1", "1.0.1", 0},
		{"1.0.0", "1.0.1", -1},
		// Multi-digit components must not be ordered lexicographically.
		{"1.10.0", "1.9.0", 1},
		{"1.0.0", "", 1},
		{"", "", 0},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, Compare(tc.a, tc.b), "Compare(%q, %q)", tc.a, tc.b)
	}
}

func TestLatestTag(t *testing.T) {
	t.Parallel()

	t.Run("picks the highest version, not the lexicographic maximum", func(t *testing.T) {
		t.Parallel()
		name, bare := LatestTag([]string{"v1.9.0", "v1.10.0", "v1.2.3"}, "v")
		assert.Equal(t, "v1.10.0", name)
		assert.Equal(t, "1.10.0", bare)
	})

	t.Run("ignores tags outside the release convention", func(t *testing.T) {
		t.Parallel()
		name, bare := LatestTag([]string{"nightly", "v1.0.0", "vNext", "release-2"}, "v")
		assert.Equal(t, "v1.0.0", name)
		assert.Equal(t, "1.0.0", bare)
	})

	t.Run("no release tags yet", func(t *testing.T) {
		t.Parallel()
		name, bare := LatestTag([]string{"nightly"}, "v")
		assert.Empty(t, name)
		assert.Empty(t, bare)
	})
}

func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("incremented version passes", func(t *testing.T) {
		t.Parallel()
		res := Check("1.0.2", "1.0.1")
		assert.True(t, res.Valid)
		assert.Empty(t, res.Reason)
	})

	t.Run("equal version fails with diagnostic", func(t *testing.T) {
		t.Parallel()
		res := Check("1.0.1", "1.0.1")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "project version is not incremented")
	})

	t.Run("older version fails", func(t *testing.T) {
		t.Parallel()
		res := Check("1.0.0", "1.0.1")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "older than the latest release")
	})

	t.Run("first release always passes", func(t *testing.T) {
		t.Parallel()
		res := Check("1.0.0", "")
		assert.True(t, res.Valid)
	})

	t.Run("malformed declared version fails", func(t *testing.T) {
		t.Parallel()
		res := Check("not-a-version", "1.0.0")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "not a valid semantic version")
	})
}
