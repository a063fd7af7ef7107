// ABOUTME: Tests for the article, key and audit API handlers
// ABOUTME: Covers the review workflow, key administration and error status mapping

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/store"
)

type articleList struct {
	Articles []ArticleSummaryResponse `json:"articles"`
}

func createArticle(t *testing.T, srv *Server, token, title string) store.Article {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/articles", token, map[string]string{
		"title": title,
		"topic": "toddlers",
		"body":  "# " + title + "\n\nSome **bold** advice about bedtime.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[store.Article](t, rec)
}

func TestArticles_Workflow(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")

	a := createArticle(t, srv, token, "Bedtime routines")
	assert.Equal(t, store.ArticleStatusDraft, a.Status)

	rec := doRequest(t, srv, http.MethodPost, "/api/articles/"+store.FormatID(a.ID)+"/review", token,
		ReviewRequest{Decision: "approve", Note: "lovely"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[store.Article](t, rec)
	assert.Equal(t, store.ArticleStatusApproved, approved.Status)
	assert.Equal(t, "lovely", approved.ReviewNote)

	rec = doRequest(t, srv, http.MethodPost, "/api/articles/"+store.FormatID(a.ID)+"/publish", token,
		PublishRequest{URL: "https://blog.example.com/bedtime"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	published := decodeBody[store.Article](t, rec)
	assert.Equal(t, store.ArticleStatusPublished, published.Status)
	assert.Equal(t, "https://blog.example.com/bedtime", published.PublishedURL)
}

func TestArticles_InvalidTransitionConflict(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")
	a := createArticle(t, srv, token, "Picky eaters")

	rec := doRequest(t, srv, http.MethodPost, "/api/articles/"+store.FormatID(a.ID)+"/publish", token,
		PublishRequest{URL: "https://blog.example.com/picky"})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Conflict", decodeBody[errorResponse](t, rec).Error)
}

func TestArticles_UnknownDecision(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")
	a := createArticle(t, srv, token, "Teething")

	rec := doRequest(t, srv, http.MethodPost, "/api/articles/"+store.FormatID(a.ID)+"/review", token,
		ReviewRequest{Decision: "maybe"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArticles_ListWithExcerptAndFilter(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")
	first := createArticle(t, srv, token, "Screen time")
	createArticle(t, srv, token, "Potty training")

	rec := doRequest(t, srv, http.MethodPost, "/api/articles/"+store.FormatID(first.ID)+"/review", token,
		ReviewRequest{Decision: "reject"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/articles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[articleList](t, rec)
	require.Len(t, all.Articles, 2)
	assert.Equal(t, "Potty training", all.Articles[0].Title, "newest first")
	assert.NotContains(t, all.Articles[0].Excerpt, "**")
	assert.Contains(t, all.Articles[0].Excerpt, "bold advice")

	rec = doRequest(t, srv, http.MethodGet, "/api/articles?status=rejected", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decodeBody[articleList](t, rec)
	require.Len(t, rejected.Articles, 1)
	assert.Equal(t, first.ID, rejected.Articles[0].ID)

	rec = doRequest(t, srv, http.MethodGet, "/api/articles?status=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/articles?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArticles_GetHTML(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")
	a := createArticle(t, srv, token, "Tantrums")

	rec := doRequest(t, srv, http.MethodGet, "/api/articles/"+store.FormatID(a.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plain := decodeBody[map[string]any](t, rec)
	_, hasHTML := plain["html"]
	assert.False(t, hasHTML)

	rec = doRequest(t, srv, http.MethodGet, "/api/articles/"+store.FormatID(a.ID)+"?format=html", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rendered := decodeBody[map[string]any](t, rec)
	assert.Contains(t, rendered["html"], "<strong>bold</strong>")
}

func TestArticles_BadAndMissingIDs(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")

	rec := doRequest(t, srv, http.MethodGet, "/api/articles/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/articles/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArticles_CreateValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	token := issueToken(t, srv, "writer")

	rec := doRequest(t, srv, http.MethodPost, "/api/articles", token, map[string]string{"body": "no title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	raw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/articles", token, map[string]string{
		"title": "x", "body": "y", "surprise": "field",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestKeys_IssueListRevokeDelete(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := issueToken(t, srv, "root", "read", "write", "admin")

	rec := doRequest(t, srv, http.MethodPost, "/api/keys", adminToken, IssueKeyRequest{
		Name:        "generator",
		Permissions: []string{"write"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	issued := decodeBody[auth.IssuedKey](t, rec)
	assert.True(t, strings.HasPrefix(issued.Token, "bp_"))
	assert.Len(t, issued.Token, len("bp_")+64)

	rec = doRequest(t, srv, http.MethodGet, "/api/keys", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), issued.Token)
	assert.NotContains(t, rec.Body.String(), auth.HashToken(issued.Token))
	keys := decodeBody[struct {
		Keys []store.APIKeySummary `json:"keys"`
	}](t, rec)
	require.Len(t, keys.Keys, 2)

	// The new key can write but not read.
	rec = doRequest(t, srv, http.MethodGet, "/api/articles", issued.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	createArticle(t, srv, issued.Token, "Written by a generator")

	id := store.FormatID(issued.ID)
	rec = doRequest(t, srv, http.MethodPost, "/api/keys/"+id+"/revoke", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/keys/"+id, adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/keys/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/keys/"+id+"/revoke", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeys_IssueValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := issueToken(t, srv, "root", "admin")

	rec := doRequest(t, srv, http.MethodPost, "/api/keys", adminToken, IssueKeyRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/keys", adminToken, IssueKeyRequest{
		Name:        "weird",
		Permissions: []string{"superuser"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAudit_RecordsActorAndFilters(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := issueToken(t, srv, "root", "read", "write", "admin")

	rec := doRequest(t, srv, http.MethodPost, "/api/keys", adminToken, IssueKeyRequest{Name: "audited"})
	require.Equal(t, http.StatusCreated, rec.Code)
	createArticle(t, srv, adminToken, "Audited article")

	type auditList struct {
		Entries []store.AuditEntry `json:"entries"`
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/audit", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[auditList](t, rec)
	require.Len(t, all.Entries, 2)
	for _, e := range all.Entries {
		assert.Equal(t, "root", e.Actor)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/audit?action=issue_key", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decodeBody[auditList](t, rec)
	require.Len(t, issued.Entries, 1)
	assert.Equal(t, store.AuditIssueKey, issued.Entries[0].Action)

	rec = doRequest(t, srv, http.MethodGet, "/api/audit?action=explode", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/audit?since=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
