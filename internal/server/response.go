// ABOUTME: JSON response helpers and wire types for the API server
// ABOUTME: Error bodies use the same {"error","message"} shape as the auth gates

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/broodpress/internal/admin"
	"github.com/2389/broodpress/internal/content"
	"github.com/2389/broodpress/internal/store"
)

// maxBodyBytes bounds request bodies; article drafts are the largest input.
const maxBodyBytes = 1 << 20

// excerptRunes is the excerpt length in article listings.
const excerptRunes = 200

// writeJSON marshals v and writes it with the given status. If marshaling
// fails a 500 is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error","message":"encoding response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// errorResponse is the standard error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "Bad Request", message)
}

// writeServiceError maps admin service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, admin.ErrInvalidInput):
		writeBadRequest(w, err.Error())
	case errors.Is(err, admin.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, admin.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// MeResponse describes the calling key.
type MeResponse struct {
	Authenticated bool     `json:"authenticated"`
	KeyID         int64    `json:"key_id,omitempty"`
	Name          string   `json:"name,omitempty"`
	Permissions   []string `json:"permissions"`
}

// ArticleSummaryResponse is a list entry: the body is replaced by an excerpt.
type ArticleSummaryResponse struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Topic            string `json:"topic"`
	Excerpt          string `json:"excerpt"`
	FeaturedImageURL string `json:"featured_image_url,omitempty"`
	Status           string `json:"status"`
	PublishedURL     string `json:"published_url,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// ArticleResponse is the single-article view. HTML is set only when the
// rendered body was requested.
type ArticleResponse struct {
	*store.Article
	HTML string `json:"html,omitempty"`
}

// ReviewRequest is the body of POST /api/articles/{id}/review.
type ReviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// PublishRequest is the body of POST /api/articles/{id}/publish.
type PublishRequest struct {
	URL string `json:"url"`
}

// IssueKeyRequest is the body of POST /api/keys.
type IssueKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func toArticleSummary(a *store.Article) ArticleSummaryResponse {
	return ArticleSummaryResponse{
		ID:               a.ID,
		Title:            a.Title,
		Topic:            a.Topic,
		Excerpt:          content.Excerpt(a.Body, excerptRunes),
		FeaturedImageURL: a.FeaturedImageURL,
		Status:           string(a.Status),
		PublishedURL:     a.PublishedURL,
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
