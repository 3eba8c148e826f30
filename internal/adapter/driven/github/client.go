// Package github implements the SourceClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
	"github.com/ewhitmore/nbcrhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SourceClient = (*Client)(nil)

// pageSize is the per-call item cap for every list endpoint. List calls fetch
// a single page; results beyond it are truncated.
const pageSize = 100

// Client implements the driven.SourceClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// ListRepositories retrieves the authenticated user's repositories sorted by
// update time, most recent first. One page of up to 100 repositories is
// returned; deeper pages are not fetched.
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}

	repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}

	logRateLimit(resp, "repositories", len(repos))

	if resp.NextPage != 0 {
		slog.Warn("repository list truncated at one page", "fetched", len(repos))
	}

	result := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		result = append(result, mapRepository(r))
	}

	return result, nil
}

// ListPullRequests retrieves pull requests of every state for the given
// repository, sorted by update time descending. One page of up to 100 items
// is returned.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string) ([]model.PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
	}

	logRateLimit(resp, owner+"/"+repo+"/pulls", len(prs))

	result := make([]model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		result = append(result, mapPullRequest(pr, owner+"/"+repo))
	}

	return result, nil
}

// ListReviews retrieves the review events for a pull request in submission
// order, one entry per event.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]model.Reviewer, error) {
	opts := &gh.ListOptions{PerPage: pageSize}

	reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for %s/%s#%d: %w", owner, repo, number, err)
	}

	logRateLimit(resp, fmt.Sprintf("%s/%s/pulls/%d/reviews", owner, repo, number), len(reviews))

	result := make([]model.Reviewer, 0, len(reviews))
	for _, r := range reviews {
		result = append(result, mapReviewer(r))
	}

	return result, nil
}

// mapRepository converts a go-github Repository to a domain model Repository.
// The config store's ID and branch set are folded in later by the reconciler;
// the adapter leaves them at their zero values.
func mapRepository(r *gh.Repository) model.Repository {
	return model.Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		AvatarURL:     r.GetOwner().GetAvatarURL(),
		DefaultBranch: r.GetDefaultBranch(),
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}

// mapPullRequest converts a go-github PullRequest to a domain model
// PullRequest. Status is derived here: merged when a merge timestamp exists,
// else open when the remote state is "open", else closed. Review-derived
// fields are filled by the classifier.
func mapPullRequest(pr *gh.PullRequest, repoFullName string) model.PullRequest {
	var mergedAt *time.Time
	if t := pr.GetMergedAt(); !t.IsZero() {
		v := t.Time
		mergedAt = &v
	}

	status := model.PRStatusClosed
	switch {
	case mergedAt != nil:
		status = model.PRStatusMerged
	case pr.GetState() == "open":
		status = model.PRStatusOpen
	}

	return model.PullRequest{
		ID:             pr.GetID(),
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		RepositoryName: repoFullName,
		Author: model.Author{
			Login:     loginOrUnknown(pr.GetUser().GetLogin()),
			AvatarURL: pr.GetUser().GetAvatarURL(),
		},
		CreatedAt: pr.GetCreatedAt().Time,
		MergedAt:  mergedAt,
		Status:    status,
	}
}

// mapReviewer converts a go-github PullRequestReview to a single review event.
func mapReviewer(r *gh.PullRequestReview) model.Reviewer {
	return model.Reviewer{
		Login:     loginOrUnknown(r.GetUser().GetLogin()),
		AvatarURL: r.GetUser().GetAvatarURL(),
		Status:    model.ReviewStatus(strings.ToLower(r.GetState())),
	}
}

// loginOrUnknown substitutes "unknown" for a missing login so identity fields
// are never empty in the output.
func loginOrUnknown(login string) string {
	if login == "" {
		return "unknown"
	}
	return login
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
