package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
	"github.com/ewhitmore/nbcrhub/internal/domain/port/driven"
)

// Sentinel errors returned by Tracker operations.
var (
	// ErrRepositoryNotFound indicates the requested repository is not in the
	// reconciled set.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrNotReady indicates a mutation was attempted before the session held
	// a client and actor.
	ErrNotReady = errors.New("session not ready")

	// ErrRefreshInFlight indicates a refresh pipeline is already running.
	ErrRefreshInFlight = errors.New("refresh already in flight")
)

// Tracker owns the reconciled repository set and the classified pull request
// set for one actor. It merges the remote source with persisted NBCR
// configuration, runs the toggle mutation protocol, and derives the
// pending-reviews worklist.
//
// All state is guarded by a single RWMutex. Mutations replace whole entities,
// so concurrent toggles on different repositories are independent; overlapping
// toggles on the same repository are last-write-wins and callers should not
// issue them.
type Tracker struct {
	session *Session
	store   driven.ConfigStore
	logger  *slog.Logger

	mu           sync.RWMutex
	repositories []model.Repository
	selected     *model.Repository
	pullRequests []model.PullRequest

	refreshing atomic.Bool
}

// NewTracker creates a Tracker bound to the given session and config store.
func NewTracker(session *Session, store driven.ConfigStore) *Tracker {
	return &Tracker{
		session: session,
		store:   store,
		logger:  slog.Default(),
	}
}

// FetchRepositories fetches the remote repository list, merges it with the
// actor's persisted NBCR configuration by full name, and atomically replaces
// the in-memory repository collection. When the session is not ready the call
// is a silent no-op: prior state is left untouched and no error is returned.
//
// Repositories with no matching configuration row are still returned; the
// remote source is authoritative for existence, the store only for NBCR state.
func (t *Tracker) FetchRepositories(ctx context.Context) error {
	client, actor, ok := t.session.Snapshot()
	if !ok {
		t.logger.Debug("session not ready, skipping repository fetch")
		return nil
	}

	remote, err := client.ListRepositories(ctx)
	if err != nil {
		t.logger.Error("repository fetch failed", "actor", actor, "error", err)
		return fmt.Errorf("fetching repositories: %w", err)
	}

	configs, err := t.store.ListConfig(ctx, actor)
	if err != nil {
		t.logger.Error("config list failed", "actor", actor, "error", err)
		return fmt.Errorf("listing nbcr config: %w", err)
	}

	byFullName := make(map[string]model.NbcrConfig, len(configs))
	for _, cfg := range configs {
		byFullName[cfg.FullName] = cfg
	}

	merged := make([]model.Repository, 0, len(remote))
	for _, repo := range remote {
		if cfg, found := byFullName[repo.FullName]; found {
			repo.ID = cfg.ID
			repo.NbcrEnabledBranches = cfg.NbcrEnabledBranches
		}
		merged = append(merged, repo)
	}

	t.mu.Lock()
	t.repositories = merged
	t.restitchSelectedLocked()
	t.mu.Unlock()

	t.logger.Info("repositories reconciled",
		"actor", actor,
		"remote", len(remote),
		"configured", len(configs),
	)

	return nil
}

// restitchSelectedLocked re-points the selected repository at the entry in the
// fresh collection with the same full name, so a held selection survives a
// refresh. Clears the selection when the repository no longer exists remotely.
// Caller must hold t.mu.
func (t *Tracker) restitchSelectedLocked() {
	if t.selected == nil {
		return
	}

	fullName := t.selected.FullName
	t.selected = nil
	for i := range t.repositories {
		if t.repositories[i].FullName == fullName {
			repo := t.repositories[i]
			t.selected = &repo
			return
		}
	}
}

// Repositories returns a copy of the reconciled repository collection.
func (t *Tracker) Repositories() []model.Repository {
	t.mu.RLock()
	defer t.mu.RUnlock()

	repos := make([]model.Repository, len(t.repositories))
	copy(repos, t.repositories)
	return repos
}

// SelectRepository sets the selected repository to the one matching key.
// Returns ErrRepositoryNotFound when no repository matches.
func (t *Tracker) SelectRepository(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.repositories {
		if matchesKey(t.repositories[i], key) {
			repo := t.repositories[i]
			t.selected = &repo
			return nil
		}
	}
	return ErrRepositoryNotFound
}

// SelectedRepository returns the currently selected repository, if any.
func (t *Tracker) SelectedRepository() (model.Repository, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.selected == nil {
		return model.Repository{}, false
	}
	return *t.selected, true
}

// ToggleNbcrForRepository flips whole-repository NBCR enablement. Enabling
// seeds the branch set with exactly the default branch; disabling clears it.
// The full record is persisted first; in-memory state changes only after the
// store confirms, and the persisted ID replaces any prior value. On store
// failure the in-memory repository is left unchanged.
func (t *Tracker) ToggleNbcrForRepository(ctx context.Context, key string) (model.Repository, error) {
	repo, err := t.lookup(key)
	if err != nil {
		return model.Repository{}, err
	}

	var branches []string
	if repo.IsNbcrEnabled() {
		branches = []string{}
	} else {
		branches = []string{repo.DefaultBranch}
	}

	return t.persistBranches(ctx, repo, branches)
}

// ToggleNbcrForBranch flips a single branch's membership in the enabled set.
// Toggling the same branch twice returns the set to its original state.
func (t *Tracker) ToggleNbcrForBranch(ctx context.Context, key, branch string) (model.Repository, error) {
	repo, err := t.lookup(key)
	if err != nil {
		return model.Repository{}, err
	}

	branches := make([]string, 0, len(repo.NbcrEnabledBranches)+1)
	if repo.HasBranchEnabled(branch) {
		for _, b := range repo.NbcrEnabledBranches {
			if b != branch {
				branches = append(branches, b)
			}
		}
	} else {
		branches = append(branches, repo.NbcrEnabledBranches...)
		branches = append(branches, branch)
	}

	return t.persistBranches(ctx, repo, branches)
}

// lookup resolves a repository key against the session and the reconciled set.
func (t *Tracker) lookup(key string) (model.Repository, error) {
	if !t.session.Ready() {
		return model.Repository{}, ErrNotReady
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.repositories {
		if matchesKey(t.repositories[i], key) {
			return t.repositories[i], nil
		}
	}
	return model.Repository{}, ErrRepositoryNotFound
}

// matchesKey matches a repository by store ID when one is assigned, falling
// back to the full name, which is always present and durable.
func matchesKey(repo model.Repository, key string) bool {
	return (repo.ID != "" && repo.ID == key) || repo.FullName == key
}

// persistBranches upserts the full configuration record for the repository and,
// on success, applies the new branch set and persisted ID to the in-memory
// entry and the selected-repository alias.
func (t *Tracker) persistBranches(ctx context.Context, repo model.Repository, branches []string) (model.Repository, error) {
	_, actor, ok := t.session.Snapshot()
	if !ok {
		return model.Repository{}, ErrNotReady
	}

	id, err := t.store.UpsertConfig(ctx, actor, model.NbcrConfig{
		ID:                  repo.ID,
		FullName:            repo.FullName,
		NbcrEnabledBranches: branches,
	})
	if err != nil {
		t.logger.Error("nbcr config write failed",
			"actor", actor,
			"repo", repo.FullName,
			"error", err,
		)
		return model.Repository{}, fmt.Errorf("persisting nbcr config for %s: %w", repo.FullName, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var updated model.Repository
	for i := range t.repositories {
		if t.repositories[i].FullName == repo.FullName {
			t.repositories[i].ID = id
			t.repositories[i].NbcrEnabledBranches = branches
			updated = t.repositories[i]
			break
		}
	}

	if t.selected != nil && t.selected.FullName == repo.FullName {
		sel := updated
		t.selected = &sel
	}

	t.logger.Info("nbcr config updated",
		"repo", repo.FullName,
		"enabled", len(branches) > 0,
		"branches", branches,
	)

	return updated, nil
}

// FetchPullRequests fetches and classifies all pull requests across the
// reconciled repository set, replacing the in-memory PR collection. A no-op
// when the session is not ready or the repository set is empty. Any sub-fetch
// failure aborts the whole batch; the prior collection is retained unchanged.
func (t *Tracker) FetchPullRequests(ctx context.Context) error {
	client, _, ok := t.session.Snapshot()
	if !ok {
		t.logger.Debug("session not ready, skipping pull request fetch")
		return nil
	}

	repos := t.Repositories()
	if len(repos) == 0 {
		t.logger.Debug("no repositories, skipping pull request fetch")
		return nil
	}

	all := make([]model.PullRequest, 0, len(repos))
	for _, repo := range repos {
		owner, name, err := splitFullName(repo.FullName)
		if err != nil {
			return err
		}

		prs, err := client.ListPullRequests(ctx, owner, name)
		if err != nil {
			t.logger.Error("pull request fetch failed", "repo", repo.FullName, "error", err)
			return fmt.Errorf("fetching pull requests for %s: %w", repo.FullName, err)
		}

		for _, pr := range prs {
			reviewers, err := client.ListReviews(ctx, owner, name, pr.Number)
			if err != nil {
				t.logger.Error("review fetch failed", "repo", repo.FullName, "pr", pr.Number, "error", err)
				return fmt.Errorf("fetching reviews for %s#%d: %w", repo.FullName, pr.Number, err)
			}
			all = append(all, classify(pr, reviewers, repo))
		}
	}

	t.mu.Lock()
	t.pullRequests = all
	t.mu.Unlock()

	t.logger.Info("pull requests classified", "repos", len(repos), "prs", len(all))

	return nil
}

// classify derives the review state of a pull request from its review events.
// Any review event counts as commented; per-event outcomes are not aggregated
// into the PR-level status.
func classify(pr model.PullRequest, reviewers []model.Reviewer, repo model.Repository) model.PullRequest {
	pr.RepositoryID = repo.ID
	pr.RepositoryName = repo.FullName
	pr.Reviewers = reviewers

	if len(reviewers) > 0 {
		pr.ReviewStatus = model.ReviewStatusCommented
	} else {
		pr.ReviewStatus = model.ReviewStatusPending
	}

	pr.IsMergedBeforeReview = pr.MergedAt != nil && len(reviewers) == 0

	return pr
}

// PullRequests returns a copy of the classified pull request collection.
func (t *Tracker) PullRequests() []model.PullRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prs := make([]model.PullRequest, len(t.pullRequests))
	copy(prs, t.pullRequests)
	return prs
}

// PendingReviews is the pure derived worklist: merged pull requests that still
// owe a review. Recomputed on every call; never cached.
func (t *Tracker) PendingReviews() []model.PullRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var pending []model.PullRequest
	for _, pr := range t.pullRequests {
		if pr.Status == model.PRStatusMerged &&
			pr.ReviewStatus == model.ReviewStatusPending &&
			pr.IsMergedBeforeReview {
			pending = append(pending, pr)
		}
	}
	return pending
}

// Refresh runs the two-stage pipeline: the repository fetch completes fully
// before the pull request fetch starts on the resulting set. A single-flight
// guard serializes refreshes; a second call while one is running returns
// ErrRefreshInFlight.
func (t *Tracker) Refresh(ctx context.Context) error {
	if !t.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer t.refreshing.Store(false)

	if err := t.FetchRepositories(ctx); err != nil {
		return err
	}
	return t.FetchPullRequests(ctx)
}

// splitFullName splits an "owner/repo" string into its two components.
func splitFullName(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
