package gitrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemTagStore is an in-memory TagStore used by tests and dry runs. Pushes
// are recorded but go nowhere.
type MemTagStore struct {
	mu      sync.Mutex
	head    string
	tags    map[string]Tag
	history []Commit // newest first
	pushed  map[string]bool
}

// NewMemTagStore returns an empty in-memory store with the given head hash.
func NewMemTagStore(head string) *MemTagStore {
	return &MemTagStore{
		head:   head,
		tags:   make(map[string]Tag),
		pushed: make(map[string]bool),
	}
}

// AddCommit prepends a commit to the history and moves head to it.
func (s *MemTagStore) AddCommit(hash, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]Commit{{Hash: hash, Subject: subject, When: time.Now()}}, s.history...)
	s.head = hash
}

// SetTag inserts a tag directly, bypassing the conflict check. Test setup only.
func (s *MemTagStore) SetTag(name, commit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[name] = Tag{Name: name, Commit: commit}
}

// Pushed reports whether the named tag was pushed.
func (s *MemTagStore) Pushed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed[name]
}

func (s *MemTagStore) ListTags(ctx context.Context) ([]Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (s *MemTagStore) LookupTag(ctx context.Context, name string) (Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[name]
	if !ok {
		return Tag{}, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	return t, nil
}

func (s *MemTagStore) CreateTag(ctx context.Context, name, message string) (Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tags[name]; exists {
		return Tag{}, fmt.Errorf("%w: %s", ErrTagExists, name)
	}
	t := Tag{Name: name, Commit: s.head}
	s.tags[name] = t
	return t, nil
}

func (s *MemTagStore) PushTag(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tags[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	s.pushed[name] = true
	return nil
}

func (s *MemTagStore) Head(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

func (s *MemTagStore) CommitsSince(ctx context.Context, tagName string) ([]Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := ""
	if tagName != "" {
		t, ok := s.tags[tagName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTagNotFound, tagName)
		}
		stop = t.Commit
	}

	var out []Commit
	for _, c := range s.history {
		if c.Hash == stop {
			break
		}
		out = append(out, c)
	}
	return out, nil
}
