// Package release creates user-facing release records: one per release tag,
// titled with the bare version and carrying change notes generated from the
// commit history since the previous release.
package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/gitrepo"
	"resty.dev/v3"
)

// ErrReleaseExists is returned when a record for the tag was already
// created. Releases are 1:1 with tags.
var ErrReleaseExists = errors.New("release already exists for tag")

// Record is the payload sent to the release endpoint.
type Record struct {
	Tag        string `json:"tag_name"`
	Title      string `json:"name"`
	Body       string `json:"body"`
	MakeLatest bool   `json:"make_latest"`
}

// Client talks to the release record endpoint.
type Client struct {
	http *resty.Client
}

// NewClient builds a release client authorized with the given token.
func NewClient(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.http.Close()
}

// Create publishes the release record. A conflicting record for the same
// tag returns ErrReleaseExists.
func (c *Client) Create(ctx context.Context, rec Record) error {
	logger := ctxlog.FromContext(ctx)

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Post("/releases")
	if err != nil {
		return fmt.Errorf("creating release for %s: %w", rec.Tag, err)
	}

	switch {
	case res.IsSuccess():
		logger.Info("Created release record.", "tag", rec.Tag, "title", rec.Title)
		return nil
	case res.StatusCode() == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrReleaseExists, rec.Tag)
	default:
		return fmt.Errorf("release endpoint rejected %s: %d %s", rec.Tag, res.StatusCode(), res.String())
	}
}

// Notes renders change notes from the commits since the previous release,
// newest first. With no commits it still produces a non-empty body.
func Notes(commits []gitrepo.Commit) string {
	if len(commits) == 0 {
		return "No changes recorded since the previous release."
	}
	var sb strings.Builder
	sb.WriteString("## What's Changed\n\n")
	for _, c := range commits {
		short := c.Hash
		if len(short) > 7 {
			short = short[:7]
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Subject, short)
	}
	return sb.String()
}
