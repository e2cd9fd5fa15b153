// Package publish implements the package registry client. Uploads are
// idempotent: a package version that already exists at the registry counts
// as success, because the version gate prevents true duplicates and network
// retries must not turn a replay into a failure.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/conveyor/internal/ctxlog"
	"resty.dev/v3"
)

// Options configures the registry client.
type Options struct {
	// IndexURL is the registry push endpoint.
	IndexURL string
	// APIKey is the registry credential, injected from the secret store.
	APIKey string
	// Retries is how many times a transient failure is retried before the
	// owning job fails. Retries use exponential backoff.
	Retries int
}

// Client talks to the external package registry.
type Client struct {
	http *resty.Client
}

// New builds a registry client. Transient failures (network errors, 5xx)
// are retried with backoff; conflict responses are never retried.
func New(opts Options) *Client {
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}
	c := resty.New().
		SetBaseURL(opts.IndexURL).
		SetHeader("X-Api-Key", opts.APIKey).
		SetTimeout(60 * time.Second).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second)
	return &Client{http: c}
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.http.Close()
}

// Push uploads one package file. When skipDuplicate is set, a conflict
// response ("already exists") is success and the registry state is left
// untouched; otherwise the conflict surfaces as an error.
func (c *Client) Push(ctx context.Context, file string, skipDuplicate bool) error {
	logger := ctxlog.FromContext(ctx)

	res, err := c.http.R().
		SetContext(ctx).
		SetFile("package", file).
		Put("")
	if err != nil {
		return fmt.Errorf("pushing %s to registry: %w", file, err)
	}

	switch {
	case res.IsSuccess():
		logger.Info("Published package.", "file", file, "status", res.StatusCode())
		return nil
	case res.StatusCode() == http.StatusConflict:
		if skipDuplicate {
			logger.Info("Package already present at registry, skipping.", "file", file)
			return nil
		}
		return fmt.Errorf("registry already has %s", file)
	default:
		return fmt.Errorf("registry rejected %s: %d %s", file, res.StatusCode(), res.String())
	}
}
