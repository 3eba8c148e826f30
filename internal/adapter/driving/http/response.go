package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RepositoryResponse is the JSON representation of a reconciled repository.
type RepositoryResponse struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	FullName            string   `json:"full_name"`
	Description         string   `json:"description"`
	AvatarURL           string   `json:"avatar_url"`
	DefaultBranch       string   `json:"default_branch"`
	UpdatedAt           string   `json:"updated_at"`
	IsNbcrEnabled       bool     `json:"is_nbcr_enabled"`
	NbcrEnabledBranches []string `json:"nbcr_enabled_branches"`
}

// ReviewerResponse is a single review event on a pull request.
type ReviewerResponse struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Status    string `json:"status"`
}

// PullRequestResponse is the JSON representation of a classified pull request.
type PullRequestResponse struct {
	ID                   int64              `json:"id"`
	Number               int                `json:"number"`
	Title                string             `json:"title"`
	RepositoryID         string             `json:"repository_id"`
	RepositoryName       string             `json:"repository_name"`
	AuthorLogin          string             `json:"author_login"`
	AuthorAvatarURL      string             `json:"author_avatar_url"`
	CreatedAt            string             `json:"created_at"`
	MergedAt             *string            `json:"merged_at"`
	Status               string             `json:"status"`
	ReviewStatus         string             `json:"review_status"`
	Reviewers            []ReviewerResponse `json:"reviewers"`
	IsMergedBeforeReview bool               `json:"is_merged_before_review"`
}

// SessionResponse reports the authenticated actor context.
type SessionResponse struct {
	Ready bool   `json:"ready"`
	Actor string `json:"actor"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toRepositoryResponse converts a domain Repository to its JSON representation.
func toRepositoryResponse(repo model.Repository) RepositoryResponse {
	branches := repo.NbcrEnabledBranches
	if branches == nil {
		branches = []string{}
	}

	return RepositoryResponse{
		ID:                  repo.ID,
		Name:                repo.Name,
		FullName:            repo.FullName,
		Description:         repo.Description,
		AvatarURL:           repo.AvatarURL,
		DefaultBranch:       repo.DefaultBranch,
		UpdatedAt:           repo.UpdatedAt.UTC().Format(time.RFC3339),
		IsNbcrEnabled:       repo.IsNbcrEnabled(),
		NbcrEnabledBranches: branches,
	}
}

// toPullRequestResponse converts a domain PullRequest to its JSON representation.
func toPullRequestResponse(pr model.PullRequest) PullRequestResponse {
	var mergedAt *string
	if pr.MergedAt != nil {
		v := pr.MergedAt.UTC().Format(time.RFC3339)
		mergedAt = &v
	}

	reviewers := make([]ReviewerResponse, 0, len(pr.Reviewers))
	for _, r := range pr.Reviewers {
		reviewers = append(reviewers, ReviewerResponse{
			Login:     r.Login,
			AvatarURL: r.AvatarURL,
			Status:    string(r.Status),
		})
	}

	return PullRequestResponse{
		ID:                   pr.ID,
		Number:               pr.Number,
		Title:                pr.Title,
		RepositoryID:         pr.RepositoryID,
		RepositoryName:       pr.RepositoryName,
		AuthorLogin:          pr.Author.Login,
		AuthorAvatarURL:      pr.Author.AvatarURL,
		CreatedAt:            pr.CreatedAt.UTC().Format(time.RFC3339),
		MergedAt:             mergedAt,
		Status:               string(pr.Status),
		ReviewStatus:         string(pr.ReviewStatus),
		Reviewers:            reviewers,
		IsMergedBeforeReview: pr.IsMergedBeforeReview,
	}
}
