package application_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewhitmore/nbcrhub/internal/application"
	"github.com/ewhitmore/nbcrhub/internal/domain/model"
)

// --- Mock implementations ---

type mockSourceClient struct {
	repos    []model.Repository
	reposErr error

	prs    map[string][]model.PullRequest // keyed by "owner/repo"
	prsErr map[string]error

	reviews    map[string][]model.Reviewer // keyed by "owner/repo#number"
	reviewsErr map[string]error

	// calls records every method invocation in order.
	calls []string

	// block, when non-nil, is received from at the start of ListRepositories.
	block chan struct{}
}

func (m *mockSourceClient) ListRepositories(_ context.Context) ([]model.Repository, error) {
	if m.block != nil {
		<-m.block
	}
	m.calls = append(m.calls, "repositories")
	if m.reposErr != nil {
		return nil, m.reposErr
	}
	return m.repos, nil
}

func (m *mockSourceClient) ListPullRequests(_ context.Context, owner, repo string) ([]model.PullRequest, error) {
	key := owner + "/" + repo
	m.calls = append(m.calls, "pulls:"+key)
	if err := m.prsErr[key]; err != nil {
		return nil, err
	}
	return m.prs[key], nil
}

func (m *mockSourceClient) ListReviews(_ context.Context, owner, repo string, number int) ([]model.Reviewer, error) {
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	m.calls = append(m.calls, "reviews:"+key)
	if err := m.reviewsErr[key]; err != nil {
		return nil, err
	}
	return m.reviews[key], nil
}

type mockConfigStore struct {
	rows      map[string]model.NbcrConfig // keyed by full name; single-actor tests
	nextID    int
	upserts   []model.NbcrConfig
	upsertErr error
	listErr   error
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{rows: make(map[string]model.NbcrConfig), nextID: 1}
}

func (m *mockConfigStore) ListConfig(_ context.Context, _ string) ([]model.NbcrConfig, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var configs []model.NbcrConfig
	for _, cfg := range m.rows {
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (m *mockConfigStore) UpsertConfig(_ context.Context, _ string, cfg model.NbcrConfig) (string, error) {
	if m.upsertErr != nil {
		return "", m.upsertErr
	}

	if existing, ok := m.rows[cfg.FullName]; ok {
		cfg.ID = existing.ID
	} else {
		cfg.ID = strconv.Itoa(m.nextID)
		m.nextID++
	}

	m.rows[cfg.FullName] = cfg
	m.upserts = append(m.upserts, cfg)
	return cfg.ID, nil
}

// --- Helpers ---

func newReadyTracker(client *mockSourceClient, store *mockConfigStore) *application.Tracker {
	session := application.NewSession()
	session.Init(client, "octocat")
	return application.NewTracker(session, store)
}

func remoteRepo(fullName, defaultBranch string) model.Repository {
	name := fullName
	if i := strings.IndexByte(fullName, '/'); i >= 0 {
		name = fullName[i+1:]
	}
	return model.Repository{
		Name:          name,
		FullName:      fullName,
		DefaultBranch: defaultBranch,
		UpdatedAt:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func mergedPR(number int, mergedAt time.Time) model.PullRequest {
	return model.PullRequest{
		ID:        int64(number),
		Number:    number,
		Title:     fmt.Sprintf("PR %d", number),
		Author:    model.Author{Login: "alice"},
		CreatedAt: mergedAt.Add(-24 * time.Hour),
		MergedAt:  &mergedAt,
		Status:    model.PRStatusMerged,
	}
}

// --- Reconciler ---

func TestFetchRepositories_NotReadySilentNoOp(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := application.NewTracker(application.NewSession(), newMockConfigStore())

	err := tracker.FetchRepositories(context.Background())

	require.NoError(t, err)
	assert.Empty(t, tracker.Repositories())
	assert.Empty(t, client.calls, "remote source must not be contacted without a session")
}

func TestFetchRepositories_MergesConfigByFullName(t *testing.T) {
	client := &mockSourceClient{
		repos: []model.Repository{
			remoteRepo("acme/api", "main"),
			remoteRepo("acme/web", "trunk"),
		},
	}
	store := newMockConfigStore()
	store.rows["acme/api"] = model.NbcrConfig{
		ID:                  "17",
		FullName:            "acme/api",
		NbcrEnabledBranches: []string{"main", "release"},
	}

	tracker := newReadyTracker(client, store)
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	repos := tracker.Repositories()
	require.Len(t, repos, 2)

	api := repos[0]
	assert.Equal(t, "17", api.ID)
	assert.Equal(t, []string{"main", "release"}, api.NbcrEnabledBranches)
	assert.True(t, api.IsNbcrEnabled())

	// Repositories without a config row still appear, with defaults.
	web := repos[1]
	assert.Empty(t, web.ID)
	assert.Empty(t, web.NbcrEnabledBranches)
	assert.False(t, web.IsNbcrEnabled())
}

func TestFetchRepositories_RemoteFailureRetainsPriorState(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())

	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.Len(t, tracker.Repositories(), 1)

	client.reposErr = errors.New("boom")
	err := tracker.FetchRepositories(context.Background())

	require.Error(t, err)
	assert.Len(t, tracker.Repositories(), 1, "prior collection must survive a failed fetch")
}

func TestFetchRepositories_RestitchesSelected(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())

	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.SelectRepository("acme/api"))

	// Remote metadata changes between refreshes.
	client.repos[0].Description = "now with docs"
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	selected, ok := tracker.SelectedRepository()
	require.True(t, ok)
	assert.Equal(t, "acme/api", selected.FullName)
	assert.Equal(t, "now with docs", selected.Description)
}

func TestFetchRepositories_ClearsSelectionWhenRepoDisappears(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())

	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.SelectRepository("acme/api"))

	client.repos = nil
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	_, ok := tracker.SelectedRepository()
	assert.False(t, ok)
}

// --- Toggle mutations ---

func TestToggleNbcrForRepository_EnableSeedsDefaultBranch(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	store := newMockConfigStore()
	tracker := newReadyTracker(client, store)
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	repo, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")

	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, repo.NbcrEnabledBranches)
	assert.True(t, repo.IsNbcrEnabled())
	assert.NotEmpty(t, repo.ID, "persisted ID must replace the empty in-memory ID")

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "acme/api", store.upserts[0].FullName)
	assert.Equal(t, []string{"main"}, store.upserts[0].NbcrEnabledBranches)
}

func TestToggleNbcrForRepository_DisableClearsBranches(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	store := newMockConfigStore()
	store.rows["acme/api"] = model.NbcrConfig{
		ID:                  "5",
		FullName:            "acme/api",
		NbcrEnabledBranches: []string{"main", "develop"},
	}
	tracker := newReadyTracker(client, store)
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	repo, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")

	require.NoError(t, err)
	assert.Empty(t, repo.NbcrEnabledBranches)
	assert.False(t, repo.IsNbcrEnabled())
}

func TestToggleNbcrForRepository_InvariantHoldsAfterEveryToggle(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	for range 4 {
		repo, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")
		require.NoError(t, err)
		assert.Equal(t, len(repo.NbcrEnabledBranches) > 0, repo.IsNbcrEnabled())
	}
}

func TestToggleNbcrForRepository_StoreFailureLeavesStateUnchanged(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	store := newMockConfigStore()
	tracker := newReadyTracker(client, store)
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	store.upsertErr = errors.New("disk full")
	_, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")

	require.Error(t, err)
	repos := tracker.Repositories()
	require.Len(t, repos, 1)
	assert.False(t, repos[0].IsNbcrEnabled(), "no optimistic update before the store confirms")
	assert.Empty(t, repos[0].NbcrEnabledBranches)
}

func TestToggleNbcrForRepository_NotFound(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	_, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/ghost")

	assert.ErrorIs(t, err, application.ErrRepositoryNotFound)
}

func TestToggleNbcrForRepository_UpdatesSelectedAlias(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.SelectRepository("acme/api"))

	_, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")
	require.NoError(t, err)

	selected, ok := tracker.SelectedRepository()
	require.True(t, ok)
	assert.True(t, selected.IsNbcrEnabled(), "open detail view must reflect the toggle without a re-fetch")
	assert.Equal(t, []string{"main"}, selected.NbcrEnabledBranches)
}

func TestToggleNbcrForBranch_RoundTripIsIdempotent(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	added, err := tracker.ToggleNbcrForBranch(context.Background(), "acme/api", "develop")
	require.NoError(t, err)
	assert.Equal(t, []string{"develop"}, added.NbcrEnabledBranches)

	removed, err := tracker.ToggleNbcrForBranch(context.Background(), "acme/api", "develop")
	require.NoError(t, err)
	assert.Empty(t, removed.NbcrEnabledBranches)
	assert.False(t, removed.IsNbcrEnabled())
}

func TestToggleNbcr_RepositoryThenBranchScenario(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	repo, err := tracker.ToggleNbcrForRepository(context.Background(), "acme/api")
	require.NoError(t, err)
	assert.True(t, repo.IsNbcrEnabled())
	assert.Equal(t, []string{"main"}, repo.NbcrEnabledBranches)

	repo, err = tracker.ToggleNbcrForBranch(context.Background(), "acme/api", "develop")
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "develop"}, repo.NbcrEnabledBranches)

	repo, err = tracker.ToggleNbcrForBranch(context.Background(), "acme/api", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"develop"}, repo.NbcrEnabledBranches)
	assert.True(t, repo.IsNbcrEnabled())
}

func TestToggleNbcrForBranch_ResolvesStoreID(t *testing.T) {
	client := &mockSourceClient{repos: []model.Repository{remoteRepo("acme/api", "main")}}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))

	first, err := tracker.ToggleNbcrForBranch(context.Background(), "acme/api", "main")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// Subsequent toggles can address the repository by its persisted ID.
	second, err := tracker.ToggleNbcrForBranch(context.Background(), first.ID, "develop")
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "develop"}, second.NbcrEnabledBranches)
}

// --- Classifier ---

func TestFetchPullRequests_NotReadyOrEmptySilentNoOp(t *testing.T) {
	client := &mockSourceClient{}
	notReady := application.NewTracker(application.NewSession(), newMockConfigStore())
	require.NoError(t, notReady.FetchPullRequests(context.Background()))
	assert.Empty(t, client.calls)

	// Ready session but empty repository set is also a no-op.
	ready := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, ready.FetchPullRequests(context.Background()))
	assert.Empty(t, client.calls)
}

func TestFetchPullRequests_ClassifiesReviewState(t *testing.T) {
	mergeTime := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	withReviews := mergedPR(1, mergeTime)
	withoutReviews := mergedPR(2, mergeTime)
	open := model.PullRequest{
		ID: 3, Number: 3, Title: "PR 3",
		Author: model.Author{Login: "bob"}, Status: model.PRStatusOpen,
	}

	client := &mockSourceClient{
		repos: []model.Repository{remoteRepo("acme/api", "main")},
		prs:   map[string][]model.PullRequest{"acme/api": {withReviews, withoutReviews, open}},
		reviews: map[string][]model.Reviewer{
			"acme/api#1": {{Login: "carol", Status: model.ReviewStatusApproved}},
		},
	}
	store := newMockConfigStore()
	store.rows["acme/api"] = model.NbcrConfig{ID: "9", FullName: "acme/api", NbcrEnabledBranches: []string{"main"}}

	tracker := newReadyTracker(client, store)
	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.FetchPullRequests(context.Background()))

	prs := tracker.PullRequests()
	require.Len(t, prs, 3)

	reviewed := prs[0]
	assert.Equal(t, model.ReviewStatusCommented, reviewed.ReviewStatus, "any review event collapses to commented")
	assert.False(t, reviewed.IsMergedBeforeReview)
	require.Len(t, reviewed.Reviewers, 1)
	assert.Equal(t, "carol", reviewed.Reviewers[0].Login)
	assert.Equal(t, "9", reviewed.RepositoryID)
	assert.Equal(t, "acme/api", reviewed.RepositoryName)

	unreviewed := prs[1]
	assert.Equal(t, model.ReviewStatusPending, unreviewed.ReviewStatus)
	assert.True(t, unreviewed.IsMergedBeforeReview)

	stillOpen := prs[2]
	assert.Equal(t, model.ReviewStatusPending, stillOpen.ReviewStatus)
	assert.False(t, stillOpen.IsMergedBeforeReview, "unmerged PRs are never merged-before-review")
}

func TestFetchPullRequests_FailureRetainsPriorCollection(t *testing.T) {
	mergeTime := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	client := &mockSourceClient{
		repos: []model.Repository{remoteRepo("acme/api", "main")},
		prs:   map[string][]model.PullRequest{"acme/api": {mergedPR(1, mergeTime)}},
	}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.FetchPullRequests(context.Background()))

	before := tracker.PullRequests()
	require.Len(t, before, 1)

	client.reviewsErr = map[string]error{"acme/api#1": errors.New("rate limited")}
	err := tracker.FetchPullRequests(context.Background())

	require.Error(t, err)
	assert.Equal(t, before, tracker.PullRequests(), "no partial commit on batch failure")
}

// --- Projection ---

func TestPendingReviews_FiltersMergedWithoutReviews(t *testing.T) {
	mergeTime := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	client := &mockSourceClient{
		repos: []model.Repository{remoteRepo("acme/api", "main")},
		prs: map[string][]model.PullRequest{
			"acme/api": {mergedPR(42, mergeTime), mergedPR(43, mergeTime)},
		},
		reviews: map[string][]model.Reviewer{
			"acme/api#43": {{Login: "dave", Status: model.ReviewStatusCommented}},
		},
	}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.FetchPullRequests(context.Background()))

	pending := tracker.PendingReviews()
	require.Len(t, pending, 1)
	assert.Equal(t, 42, pending[0].Number)

	// Every member satisfies the full predicate.
	for _, pr := range pending {
		assert.Equal(t, model.PRStatusMerged, pr.Status)
		assert.Equal(t, model.ReviewStatusPending, pr.ReviewStatus)
		assert.True(t, pr.IsMergedBeforeReview)
		assert.Empty(t, pr.Reviewers)
	}
}

func TestPendingReviews_ReviewEventRemovesPR(t *testing.T) {
	mergeTime := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	client := &mockSourceClient{
		repos: []model.Repository{remoteRepo("acme/api", "main")},
		prs:   map[string][]model.PullRequest{"acme/api": {mergedPR(42, mergeTime)}},
	}
	tracker := newReadyTracker(client, newMockConfigStore())
	require.NoError(t, tracker.FetchRepositories(context.Background()))
	require.NoError(t, tracker.FetchPullRequests(context.Background()))
	require.Len(t, tracker.PendingReviews(), 1)

	// A review lands on the merged PR; the next fetch reclassifies it.
	client.reviews = map[string][]model.Reviewer{
		"acme/api#42": {{Login: "erin", Status: model.ReviewStatusApproved}},
	}
	require.NoError(t, tracker.FetchPullRequests(context.Background()))

	assert.Empty(t, tracker.PendingReviews())

	prs := tracker.PullRequests()
	require.Len(t, prs, 1)
	assert.Equal(t, model.ReviewStatusCommented, prs[0].ReviewStatus)
	assert.False(t, prs[0].IsMergedBeforeReview)
}

// --- Refresh pipeline ---

func TestRefresh_RepositoriesCompleteBeforePullRequests(t *testing.T) {
	mergeTime := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	client := &mockSourceClient{
		repos: []model.Repository{remoteRepo("acme/api", "main")},
		prs:   map[string][]model.PullRequest{"acme/api": {mergedPR(1, mergeTime)}},
	}
	tracker := newReadyTracker(client, newMockConfigStore())

	require.NoError(t, tracker.Refresh(context.Background()))

	require.NotEmpty(t, client.calls)
	assert.Equal(t, "repositories", client.calls[0])
	assert.Equal(t, []string{"repositories", "pulls:acme/api", "reviews:acme/api#1"}, client.calls)
}

func TestRefresh_RepositoryFailureSkipsPullRequestStage(t *testing.T) {
	client := &mockSourceClient{reposErr: errors.New("unreachable")}
	tracker := newReadyTracker(client, newMockConfigStore())

	err := tracker.Refresh(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"repositories"}, client.calls, "PR fetch must not run on a failed repository list")
}

func TestRefresh_SecondCallWhileRunningIsRejected(t *testing.T) {
	client := &mockSourceClient{block: make(chan struct{})}
	tracker := newReadyTracker(client, newMockConfigStore())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- tracker.Refresh(context.Background())
	}()

	<-started
	// Give the goroutine a moment to enter the blocked ListRepositories call.
	time.Sleep(20 * time.Millisecond)

	err := tracker.Refresh(context.Background())
	assert.ErrorIs(t, err, application.ErrRefreshInFlight)

	close(client.block)
	require.NoError(t, <-done)
}
