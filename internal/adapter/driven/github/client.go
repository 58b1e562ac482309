// Package github implements the ReleaseSource port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"golang.org/x/time/rate"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReleaseSource = (*Client)(nil)

// maxAttempts bounds every API call and download.
const maxAttempts = 3

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	// BaseURL points at a GitHub Enterprise API; empty means api.github.com.
	BaseURL string
	// RetryDelay is the fixed wait between attempts (default 10s).
	RetryDelay time.Duration
	// Rate caps outbound requests per second; zero or negative disables pacing.
	Rate float64
}

// Client implements the driven.ReleaseSource port using the go-github library.
// The token is bound at construction and attached to every API request.
type Client struct {
	gh         *gh.Client
	download   *http.Client // Follows asset redirects; carries no API token.
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  2. go-github (GitHub REST API client with token auth)
//
// Responses are never cached: every poll sees the current release.
func NewClient(token string, opts Options) (*Client, error) {
	rateLimitClient := github_ratelimit.NewClient(http.DefaultTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise URL %q: %w", opts.BaseURL, err)
		}
	}

	return newClient(client, &http.Client{}, opts), nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string, opts Options) (*Client, error) {
	client := gh.NewClient(httpClient).WithAuthToken(token)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return newClient(client, httpClient, opts), nil
}

func newClient(client *gh.Client, download *http.Client, opts Options) *Client {
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = 10 * time.Second
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}

	return &Client{
		gh:         client,
		download:   download,
		limiter:    rate.NewLimiter(limit, 1),
		retryDelay: retryDelay,
	}
}

// FetchLatestRelease retrieves the most recent published release of the repository.
func (c *Client) FetchLatestRelease(ctx context.Context, repoFullName string) (model.RawRelease, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return model.RawRelease{}, err
	}

	var release *gh.RepositoryRelease
	err = c.withRetry(ctx, "fetch latest release of "+repoFullName, func() error {
		r, resp, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
		if err != nil {
			return err
		}
		logRateLimit(resp, repoFullName+"/releases/latest")
		release = r
		return nil
	})
	if err != nil {
		return model.RawRelease{}, err
	}

	return mapRelease(release), nil
}

// FetchReleaseByTag pages through the repository's releases and returns the
// one tagged tag.
func (c *Client) FetchReleaseByTag(ctx context.Context, repoFullName, tag string) (model.RawRelease, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return model.RawRelease{}, err
	}

	opts := &gh.ListOptions{PerPage: 100}

	for {
		var (
			releases []*gh.RepositoryRelease
			resp     *gh.Response
		)
		err := c.withRetry(ctx, fmt.Sprintf("list releases of %s (page %d)", repoFullName, max(opts.Page, 1)), func() error {
			var err error
			releases, resp, err = c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
			if err != nil {
				return err
			}
			logRateLimit(resp, repoFullName+"/releases")
			return nil
		})
		if err != nil {
			return model.RawRelease{}, err
		}

		for _, r := range releases {
			if r.GetTagName() == tag {
				return mapRelease(r), nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return model.RawRelease{}, fmt.Errorf("release %s of %s: %w", tag, repoFullName, driven.ErrReleaseNotFound)
}

// withRetry runs op up to maxAttempts times with a constant delay between
// attempts. Exhaustion is reported as driven.ErrNetwork carrying the last error.
func (c *Client) withRetry(ctx context.Context, operation string, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), maxAttempts-1),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, policy, func(err error, wait time.Duration) {
		slog.Warn("github request failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return fmt.Errorf("%w: %s failed after %d attempts: %w", driven.ErrNetwork, operation, attempt, err)
	}

	return nil
}

// mapRelease converts a go-github RepositoryRelease to a domain RawRelease.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRelease(r *gh.RepositoryRelease) model.RawRelease {
	assets := make([]model.RawAsset, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, model.RawAsset{
			ID:   a.GetID(),
			Name: a.GetName(),
			URL:  a.GetURL(),
		})
	}

	var publishedAt string
	if r.PublishedAt != nil {
		publishedAt = r.GetPublishedAt().UTC().Format(time.RFC3339)
	}

	return model.RawRelease{
		Name:        r.GetName(),
		TagName:     r.GetTagName(),
		PublishedAt: publishedAt,
		HTMLURL:     r.GetHTMLURL(),
		Body:        r.GetBody(),
		Assets:      assets,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
