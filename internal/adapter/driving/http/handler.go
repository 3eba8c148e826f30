// Package httphandler is the HTTP driving adapter serving the JSON API.
package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/ewhitmore/nbcrhub/internal/application"
	"github.com/ewhitmore/nbcrhub/internal/domain/model"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	tracker *application.Tracker
	session *application.Session
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(tracker *application.Tracker, session *application.Session, logger *slog.Logger) *Handler {
	return &Handler{
		tracker: tracker,
		session: session,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repositories", h.ListRepositories)
	mux.HandleFunc("GET /api/v1/repositories/{owner}/{repo}", h.GetRepository)
	mux.HandleFunc("POST /api/v1/repositories/{owner}/{repo}/select", h.SelectRepository)
	mux.HandleFunc("POST /api/v1/repositories/{owner}/{repo}/nbcr", h.ToggleRepositoryNbcr)
	mux.HandleFunc("POST /api/v1/repositories/{owner}/{repo}/branches/{branch}/nbcr", h.ToggleBranchNbcr)
	mux.HandleFunc("GET /api/v1/pullrequests", h.ListPullRequests)
	mux.HandleFunc("GET /api/v1/pending-reviews", h.ListPendingReviews)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepositories returns the reconciled repository collection.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos := h.tracker.Repositories()

	resp := make([]RepositoryResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepositoryResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRepository returns a single reconciled repository by full name.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	for _, repo := range h.tracker.Repositories() {
		if repo.FullName == fullName {
			writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
			return
		}
	}

	writeError(w, http.StatusNotFound, "repository not found")
}

// SelectRepository marks a repository as selected so subsequent toggles are
// reflected in the detail view without a re-fetch.
func (h *Handler) SelectRepository(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.tracker.SelectRepository(fullName); err != nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	repo, _ := h.tracker.SelectedRepository()
	writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
}

// ToggleRepositoryNbcr flips whole-repository NBCR enablement.
func (h *Handler) ToggleRepositoryNbcr(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	repo, err := h.tracker.ToggleNbcrForRepository(r.Context(), fullName)
	if err != nil {
		h.writeToggleError(w, fullName, err)
		return
	}

	writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
}

// ToggleBranchNbcr flips a single branch's NBCR membership.
func (h *Handler) ToggleBranchNbcr(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")
	branch := r.PathValue("branch")

	repo, err := h.tracker.ToggleNbcrForBranch(r.Context(), fullName, branch)
	if err != nil {
		h.writeToggleError(w, fullName, err)
		return
	}

	writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
}

// writeToggleError maps tracker mutation errors to HTTP status codes.
func (h *Handler) writeToggleError(w http.ResponseWriter, fullName string, err error) {
	switch {
	case errors.Is(err, application.ErrRepositoryNotFound):
		writeError(w, http.StatusNotFound, "repository not found")
	case errors.Is(err, application.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "github credentials not configured")
	default:
		h.logger.Error("nbcr toggle failed", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ListPullRequests returns the classified pull request collection.
func (h *Handler) ListPullRequests(w http.ResponseWriter, r *http.Request) {
	prs := h.tracker.PullRequests()

	resp := make([]PullRequestResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, toPullRequestResponse(pr))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListPendingReviews returns PRs merged with zero review events, most recently
// merged first (created time when the merge timestamp is somehow absent).
func (h *Handler) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	pending := h.tracker.PendingReviews()

	sort.SliceStable(pending, func(i, j int) bool {
		return sortTime(pending[i]).After(sortTime(pending[j]))
	})

	resp := make([]PullRequestResponse, 0, len(pending))
	for _, pr := range pending {
		resp = append(resp, toPullRequestResponse(pr))
	}

	writeJSON(w, http.StatusOK, resp)
}

// sortTime returns the timestamp a pending review is ordered by.
func sortTime(pr model.PullRequest) time.Time {
	if pr.MergedAt != nil {
		return *pr.MergedAt
	}
	return pr.CreatedAt
}

// Refresh runs the full fetch pipeline: repositories, then pull requests.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Refresh(r.Context()); err != nil {
		if errors.Is(err, application.ErrRefreshInFlight) {
			writeError(w, http.StatusConflict, "refresh already in flight")
			return
		}
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"repositories":  len(h.tracker.Repositories()),
		"pull_requests": len(h.tracker.PullRequests()),
	})
}

// GetSession reports whether a source client and actor are configured, and
// who the actor is.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		Ready: h.session.Ready(),
		Actor: h.session.Actor(),
	})
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
