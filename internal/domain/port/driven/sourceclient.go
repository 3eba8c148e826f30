package driven

import (
	"context"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
)

// SourceClient defines the driven port for the remote code-hosting API.
// Implementations are stateless pure I/O; all derived review state is
// computed by the application layer.
type SourceClient interface {
	// ListRepositories returns the authenticated user's repositories, most
	// recently updated first. A single page of up to 100 items is returned;
	// accounts with more repositories are truncated.
	ListRepositories(ctx context.Context) ([]model.Repository, error)

	// ListPullRequests returns pull requests of every state for one
	// repository, most recently updated first, up to 100 items.
	ListPullRequests(ctx context.Context, owner, repo string) ([]model.PullRequest, error)

	// ListReviews returns the review events submitted on a pull request, in
	// submission order, one entry per event.
	ListReviews(ctx context.Context, owner, repo string, number int) ([]model.Reviewer, error)
}
