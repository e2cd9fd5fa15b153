package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry accepts package uploads and answers 409 for names it has
// already seen, mimicking skip-duplicate registry semantics.
type fakeRegistry struct {
	mu       sync.Mutex
	packages map[string]int
}

func (f *fakeRegistry) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("package")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()

		f.mu.Lock()
		defer f.mu.Unlock()
		if _, dup := f.packages[header.Filename]; dup {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.packages[header.Filename]++
		w.WriteHeader(http.StatusCreated)
	}
}

func packageFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.1.0.2.nupkg")
	require.NoError(t, os.WriteFile(p, []byte("nupkg-bytes"), 0o644))
	return p
}

func TestClientPush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("publishing twice is a no-op the second time", func(t *testing.T) {
		t.Parallel()
		reg := &fakeRegistry{packages: make(map[string]int)}
		srv := httptest.NewServer(reg.handler())
		defer srv.Close()

		client := New(Options{IndexURL: srv.URL, APIKey: "secret"})
		defer client.Close()

		file := packageFile(t)
		require.NoError(t, client.Push(ctx, file, true))
		require.NoError(t, client.Push(ctx, file, true))

		// Registry state unchanged from the first publish.
		assert.Equal(t, 1, reg.packages[filepath.Base(file)])
	})

	t.Run("duplicate without skip-duplicate is an error", func(t *testing.T) {
		t.Parallel()
		reg := &fakeRegistry{packages: make(map[string]int)}
		srv := httptest.NewServer(reg.handler())
		defer srv.Close()

		client := New(Options{IndexURL: srv.URL, APIKey: "secret"})
		defer client.Close()

		file := packageFile(t)
		require.NoError(t, client.Push(ctx, file, false))
		assert.ErrorContains(t, client.Push(ctx, file, false), "already has")
	})

	t.Run("hard rejection surfaces status and body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "api key invalid", http.StatusForbidden)
		}))
		defer srv.Close()

		client := New(Options{IndexURL: srv.URL, APIKey: "wrong"})
		defer client.Close()

		err := client.Push(ctx, packageFile(t), true)
		assert.ErrorContains(t, err, "403")
	})
}
