// Package gitrepo provides the tag store: an append-only set of named
// pointers into the repository's commit history, with list, create, and
// push operations. The production implementation sits on go-git; an
// in-memory implementation backs tests.
package gitrepo

import (
	"context"
	"errors"
	"time"
)

// ErrTagExists is returned when creating a tag whose name is already taken.
// A given version may be tagged at most once, so this is always fatal to
// the caller.
var ErrTagExists = errors.New("tag already exists")

// ErrTagNotFound is returned when a named tag does not exist.
var ErrTagNotFound = errors.New("tag not found")

// Tag is a named pointer to a commit.
type Tag struct {
	Name   string
	Commit string
}

// Commit is one entry of the repository history.
type Commit struct {
	Hash    string
	Subject string
	Author  string
	When    time.Time
}

// Identity names the author of created tags.
type Identity struct {
	Name  string
	Email string
}

// TagStore is the engine's view of the repository tag namespace.
type TagStore interface {
	// ListTags returns every tag in the repository.
	ListTags(ctx context.Context) ([]Tag, error)

	// LookupTag returns the named tag, or ErrTagNotFound.
	LookupTag(ctx context.Context, name string) (Tag, error)

	// CreateTag creates an annotated tag at the current head. It returns
	// ErrTagExists when the name is taken; it never silently overwrites.
	CreateTag(ctx context.Context, name, message string) (Tag, error)

	// PushTag publishes the named tag to the remote repository.
	PushTag(ctx context.Context, name string) error

	// Head returns the hash of the current head commit.
	Head(ctx context.Context) (string, error)

	// CommitsSince returns the commits reachable from head down to (and
	// excluding) the commit the named tag points at, newest first. An
	// empty tag name returns the full history.
	CommitsSince(ctx context.Context, tagName string) ([]Commit, error)
}
