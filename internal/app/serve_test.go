package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePush(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, token string) (*httptest.Server, *branchRuns) {
		t.Helper()
		a, _ := newTestApp(t, shellPipeline, Config{Serve: true})
		runs := &branchRuns{active: make(map[string]*runHandle)}
		srv := httptest.NewServer(a.handlePush(context.Background(), runs, token))
		t.Cleanup(srv.Close)
		return srv, runs
	}

	t.Run("accepts a push and runs the pipeline", func(t *testing.T) {
		t.Parallel()
		srv, runs := newServer(t, "")

		res, err := http.Post(srv.URL, "application/json",
			strings.NewReader(`{"branch": "master", "commit": "abc123"}`))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusAccepted, res.StatusCode)

		runs.wait()
	})

	t.Run("rejects a missing branch", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, "")

		res, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"commit": "abc123"}`))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, "")

		res, err := http.Post(srv.URL, "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("enforces the webhook token", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t, "hunter2")

		res, err := http.Post(srv.URL, "application/json",
			strings.NewReader(`{"branch": "master"}`))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

		req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"branch": "master"}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer hunter2")
		res2, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res2.Body.Close()
		assert.Equal(t, http.StatusAccepted, res2.StatusCode)
	})
}

func TestBranchRunsSupersede(t *testing.T) {
	t.Parallel()

	runs := &branchRuns{active: make(map[string]*runHandle)}

	var mu sync.Mutex
	canceled := false
	started := make(chan struct{})

	runs.start(context.Background(), "master", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		mu.Lock()
		canceled = true
		mu.Unlock()
	})
	<-started

	done := make(chan struct{})
	runs.start(context.Background(), "master", func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second run never started")
	}
	runs.wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, canceled, "first run should have been superseded")
}

func TestBranchRunsCancelAll(t *testing.T) {
	t.Parallel()

	runs := &branchRuns{active: make(map[string]*runHandle)}
	for _, branch := range []string{"a", "b"} {
		runs.start(context.Background(), branch, func(ctx context.Context) {
			<-ctx.Done()
		})
	}
	runs.cancelAll()
	runs.wait()
}
