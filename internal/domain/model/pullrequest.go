package model

import "time"

// Author identifies the user who opened a pull request.
type Author struct {
	Login     string
	AvatarURL string
}

// Reviewer is a single review event on a pull request as reported by the
// remote source. Events are not deduplicated per reviewer; a user who reviews
// twice appears twice.
type Reviewer struct {
	Login     string
	AvatarURL string
	Status    ReviewStatus
}

// PullRequest is a remote pull request with its derived review state.
// Instances are rebuilt wholesale on every fetch; nothing here is persisted.
type PullRequest struct {
	ID             int64
	Number         int
	Title          string
	RepositoryID   string // Config store ID of the owning repository; may be empty.
	RepositoryName string // Full name of the owning repository.
	Author         Author
	CreatedAt      time.Time
	MergedAt       *time.Time // nil means not merged.
	Status         PRStatus
	ReviewStatus   ReviewStatus
	Reviewers      []Reviewer

	// IsMergedBeforeReview is true when the PR was merged while carrying zero
	// review events. These are the PRs the pending-reviews worklist surfaces.
	IsMergedBeforeReview bool
}
