package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("positional pipeline path with branch", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-branch", "master", "release.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "release.hcl", cfg.PipelinePath)
		assert.Equal(t, "master", cfg.Branch)
		assert.Equal(t, 4, cfg.WorkerCount)
		assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
	})

	t.Run("pipeline flag wins over positional", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"-pipeline", "a.hcl", "-branch", "master", "b.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "a.hcl", cfg.PipelinePath)
	})

	t.Run("no path prints usage and exits cleanly", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{}, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("missing branch in run mode", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		_, _, err := Parse([]string{"release.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("serve mode needs no branch", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-serve", "release.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.True(t, cfg.Serve)
		assert.Equal(t, ":8080", cfg.ListenAddr)
	})

	t.Run("invalid log format", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		_, _, err := Parse([]string{"-log-format", "xml", "-branch", "master", "release.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		_, _, err := Parse([]string{"-log-level", "loud", "-branch", "master", "release.hcl"}, &out)
		require.Error(t, err)
	})
}
