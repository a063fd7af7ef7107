// ABOUTME: HTTP API handlers for articles, key administration and the audit log
// ABOUTME: Each route is registered behind the permission it needs

package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/broodpress/internal/admin"
	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/content"
	"github.com/2389/broodpress/internal/store"
)

// registerAPIRoutes mounts the /api routes on mux. The caller wraps mux in
// the request gate; each route adds its permission gate here.
func (s *Server) registerAPIRoutes(mux *http.ServeMux, gate auth.GateConfig) {
	read := auth.RequirePermissionHTTP(store.PermissionRead, gate)
	write := auth.RequirePermissionHTTP(store.PermissionWrite, gate)
	adm := auth.RequirePermissionHTTP(store.PermissionAdmin, gate)

	mux.HandleFunc("GET /api/me", s.handleMe)

	mux.Handle("GET /api/articles", read(http.HandlerFunc(s.handleListArticles)))
	mux.Handle("GET /api/articles/{id}", read(http.HandlerFunc(s.handleGetArticle)))
	mux.Handle("POST /api/articles", write(http.HandlerFunc(s.handleCreateArticle)))
	mux.Handle("POST /api/articles/{id}/review", write(http.HandlerFunc(s.handleReviewArticle)))
	mux.Handle("POST /api/articles/{id}/publish", write(http.HandlerFunc(s.handlePublishArticle)))

	mux.Handle("GET /api/keys", adm(http.HandlerFunc(s.handleListKeys)))
	mux.Handle("POST /api/keys", adm(http.HandlerFunc(s.handleIssueKey)))
	mux.Handle("POST /api/keys/{id}/revoke", adm(http.HandlerFunc(s.handleRevokeKey)))
	mux.Handle("DELETE /api/keys/{id}", adm(http.HandlerFunc(s.handleDeleteKey)))
	mux.Handle("GET /api/audit", adm(http.HandlerFunc(s.handleListAudit)))
}

// handleHealth returns 200 while the process is serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a := auth.FromContext(r.Context())
	if a == nil {
		writeJSON(w, http.StatusOK, MeResponse{Permissions: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		Authenticated: true,
		KeyID:         a.KeyID,
		Name:          a.KeyName,
		Permissions:   a.Permissions.List(),
	})
}

// pathID parses the {id} path value. Writes a 400 and returns false if it is
// not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryLimit parses ?limit=, returning 0 when absent.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	filter := store.ArticleFilter{Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.ArticleStatus(strings.ToLower(raw))
		filter.Status = &status
	}

	articles, err := s.articles.ListArticles(r.Context(), filter)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	resp := make([]ArticleSummaryResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, toArticleSummary(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": resp})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	article, err := s.articles.GetArticle(r.Context(), id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	resp := ArticleResponse{Article: article}
	if r.URL.Query().Get("format") == "html" {
		resp.HTML = content.RenderMarkdown(article.Body)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var in admin.DraftInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	article, err := s.articles.CreateDraft(r.Context(), auth.ActorFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ArticleResponse{Article: article})
}

func (s *Server) handleReviewArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	decision := admin.ReviewDecision(strings.ToLower(strings.TrimSpace(req.Decision)))
	article, err := s.articles.Review(r.Context(), auth.ActorFromContext(r.Context()), id, decision, req.Note)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleResponse{Article: article})
}

func (s *Server) handlePublishArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req PublishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	article, err := s.articles.MarkPublished(r.Context(), auth.ActorFromContext(r.Context()), id, strings.TrimSpace(req.URL))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleResponse{Article: article})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.ListKeys(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// handleIssueKey returns the plaintext key. This response is the only time
// it is ever shown.
func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	var req IssueKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	issued, err := s.keys.IssueKey(r.Context(), auth.ActorFromContext(r.Context()), req.Name, req.Permissions)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, issued)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.keys.RevokeKey(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.keys.DeleteKey(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit supports ?actor, ?action, ?target_type, ?target_id,
// ?since (RFC3339) and ?limit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	filter := store.AuditFilter{Limit: limit}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("action"); raw != "" {
		action := store.AuditAction(raw)
		if !validAuditAction(action) {
			writeBadRequest(w, "unknown audit action")
			return
		}
		filter.Action = &action
	}
	if raw := q.Get("actor"); raw != "" {
		filter.Actor = &raw
	}
	if raw := q.Get("target_type"); raw != "" {
		filter.TargetType = &raw
	}
	if raw := q.Get("target_id"); raw != "" {
		filter.TargetID = &raw
	}

	entries, err := s.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func validAuditAction(a store.AuditAction) bool {
	for _, v := range store.ValidAuditActions {
		if v == a {
			return true
		}
	}
	return false
}
