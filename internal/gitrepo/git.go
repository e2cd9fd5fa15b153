package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/vk/conveyor/internal/ctxlog"
)

// GitStore implements TagStore on a local git working copy via go-git.
type GitStore struct {
	repo   *git.Repository
	remote string
	ident  Identity
	auth   transport.AuthMethod
}

// Open opens the working copy at path. remote names the push target
// (usually "origin"); auth may be nil for unauthenticated remotes.
func Open(path, remote string, ident Identity, auth transport.AuthMethod) (*GitStore, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", path, err)
	}
	if remote == "" {
		remote = "origin"
	}
	return &GitStore{repo: repo, remote: remote, ident: ident, auth: auth}, nil
}

// NewFromRepository wraps an already-open go-git repository. Used by tests
// that build fixture repositories in memory.
func NewFromRepository(repo *git.Repository, remote string, ident Identity) *GitStore {
	if remote == "" {
		remote = "origin"
	}
	return &GitStore{repo: repo, remote: remote, ident: ident}
}

// ListTags returns every tag in the repository with its target commit.
func (s *GitStore) ListTags(ctx context.Context) ([]Tag, error) {
	iter, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer iter.Close()

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, Tag{
			Name:   ref.Name().Short(),
			Commit: s.targetCommit(ref).String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// targetCommit resolves a tag reference to the commit it points at,
// dereferencing annotated tag objects.
func (s *GitStore) targetCommit(ref *plumbing.Reference) plumbing.Hash {
	if tagObj, err := s.repo.TagObject(ref.Hash()); err == nil {
		return tagObj.Target
	}
	return ref.Hash()
}

// LookupTag returns the named tag, or ErrTagNotFound.
func (s *GitStore) LookupTag(ctx context.Context, name string) (Tag, error) {
	ref, err := s.repo.Reference(plumbing.NewTagReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return Tag{}, fmt.Errorf("%w: %s", ErrTagNotFound, name)
		}
		return Tag{}, fmt.Errorf("looking up tag %s: %w", name, err)
	}
	return Tag{Name: name, Commit: s.targetCommit(ref).String()}, nil
}

// CreateTag creates an annotated tag at the current head.
func (s *GitStore) CreateTag(ctx context.Context, name, message string) (Tag, error) {
	logger := ctxlog.FromContext(ctx)

	head, err := s.repo.Head()
	if err != nil {
		return Tag{}, fmt.Errorf("resolving head: %w", err)
	}

	if message == "" {
		message = name
	}
	_, err = s.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  s.ident.Name,
			Email: s.ident.Email,
			When:  time.Now(),
		},
		Message: message,
	})
	if err != nil {
		if errors.Is(err, git.ErrTagExists) {
			return Tag{}, fmt.Errorf("%w: %s", ErrTagExists, name)
		}
		return Tag{}, fmt.Errorf("creating tag %s: %w", name, err)
	}

	logger.Info("Created annotated tag.", "tag", name, "commit", head.Hash().String())
	return Tag{Name: name, Commit: head.Hash().String()}, nil
}

// PushTag publishes the named tag to the remote. A remote that already has
// the tag at the same commit counts as success.
func (s *GitStore) PushTag(ctx context.Context, name string) error {
	logger := ctxlog.FromContext(ctx)

	spec := gitconfig.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", name, name))
	err := s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: s.remote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       s.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		logger.Debug("Remote already has tag.", "tag", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pushing tag %s to %s: %w", name, s.remote, err)
	}
	logger.Info("Pushed tag to remote.", "tag", name, "remote", s.remote)
	return nil
}

// Head returns the hash of the current head commit.
func (s *GitStore) Head(ctx context.Context) (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving head: %w", err)
	}
	return head.Hash().String(), nil
}

// CommitsSince walks history from head down to the commit the named tag
// points at, excluding it. An empty name returns the full history.
func (s *GitStore) CommitsSince(ctx context.Context, tagName string) ([]Commit, error) {
	var stop plumbing.Hash
	if tagName != "" {
		tag, err := s.LookupTag(ctx, tagName)
		if err != nil {
			return nil, err
		}
		stop = plumbing.NewHash(tag.Commit)
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving head: %w", err)
	}
	iter, err := s.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	defer iter.Close()

	var commits []Commit
	errStop := errors.New("stop")
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == stop {
			return errStop
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Subject: firstLine(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	return commits, nil
}

func firstLine(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i]
		}
	}
	return msg
}
