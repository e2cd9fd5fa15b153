// Package artifact implements the shared artifact store: a filesystem-backed
// key-value store mapping an artifact name to a set of files, scoped per
// pipeline run, with a retention period after which entries are purged.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/conveyor/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// ErrExists is returned when uploading under a name already taken within
// the same run. Writers must use unique names per run.
var ErrExists = errors.New("artifact already exists")

// ErrNotFound is returned when downloading an artifact that was never
// uploaded. Consumers fail loudly rather than receiving an empty set.
var ErrNotFound = errors.New("artifact not found")

const metaFile = ".conveyor-artifact.yaml"

// meta is the per-entry sidecar recording provenance and retention.
type meta struct {
	Name      string    `yaml:"name"`
	RunID     string    `yaml:"run_id"`
	CreatedAt time.Time `yaml:"created_at"`
	Retention string    `yaml:"retention"`
	Files     []string  `yaml:"files"`
}

// Store is a filesystem-backed artifact store rooted at one directory.
type Store struct {
	root      string
	retention time.Duration
}

// NewStore creates a store rooted at root. Entries older than retention are
// eligible for purging; a zero retention keeps entries forever.
func NewStore(root string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &Store{root: root, retention: retention}, nil
}

func (s *Store) entryDir(runID, name string) string {
	return filepath.Join(s.root, runID, name)
}

// Upload stores the given files under name within runID. The name must be
// unique within the run.
func (s *Store) Upload(ctx context.Context, runID, name string, paths []string) error {
	logger := ctxlog.FromContext(ctx)

	if name == "" {
		return errors.New("artifact name must not be empty")
	}
	if len(paths) == 0 {
		return fmt.Errorf("artifact %q: no files to upload", name)
	}

	dir := s.entryDir(runID, name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s (run %s)", ErrExists, name, runID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact entry: %w", err)
	}

	m := meta{
		Name:      name,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Retention: s.retention.String(),
	}
	for _, src := range paths {
		base := filepath.Base(src)
		if err := copyFile(src, filepath.Join(dir, base)); err != nil {
			return fmt.Errorf("storing %s into artifact %q: %w", src, name, err)
		}
		m.Files = append(m.Files, base)
	}

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encoding artifact metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), raw, 0o644); err != nil {
		return fmt.Errorf("writing artifact metadata: %w", err)
	}

	logger.Info("Uploaded artifact.", "artifact", name, "run", runID, "files", len(m.Files))
	return nil
}

// Download copies the named artifact's files into destDir and returns their
// paths.
func (s *Store) Download(ctx context.Context, runID, name, destDir string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	dir := s.entryDir(runID, name)
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run %s)", ErrNotFound, name, runID)
		}
		return nil, fmt.Errorf("reading artifact metadata: %w", err)
	}
	var m meta
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding artifact metadata: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download destination: %w", err)
	}

	var out []string
	for _, f := range m.Files {
		dst := filepath.Join(destDir, f)
		if err := copyFile(filepath.Join(dir, f), dst); err != nil {
			return nil, fmt.Errorf("downloading %s from artifact %q: %w", f, name, err)
		}
		out = append(out, dst)
	}

	logger.Info("Downloaded artifact.", "artifact", name, "run", runID, "files", len(out))
	return out, nil
}

// Purge removes every entry whose retention has elapsed at the given time
// and returns how many were removed.
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	logger := ctxlog.FromContext(ctx)
	if s.retention <= 0 {
		return 0, nil
	}

	runs, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("scanning artifact root: %w", err)
	}

	removed := 0
	for _, run := range runs {
		if !run.IsDir() {
			continue
		}
		runDir := filepath.Join(s.root, run.Name())
		entries, err := os.ReadDir(runDir)
		if err != nil {
			return removed, fmt.Errorf("scanning run %s: %w", run.Name(), err)
		}
		for _, entry := range entries {
			raw, err := os.ReadFile(filepath.Join(runDir, entry.Name(), metaFile))
			if err != nil {
				continue
			}
			var m meta
			if err := yaml.Unmarshal(raw, &m); err != nil {
				continue
			}
			if now.Sub(m.CreatedAt) > s.retention {
				if err := os.RemoveAll(filepath.Join(runDir, entry.Name())); err != nil {
					return removed, fmt.Errorf("purging artifact %s: %w", m.Name, err)
				}
				logger.Info("Purged expired artifact.", "artifact", m.Name, "run", m.RunID)
				removed++
			}
		}
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
