// ABOUTME: Article review workflow service shared by the admin CLI and the HTTP API
// ABOUTME: Creates drafts, enforces allowed status transitions and audits every change

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/2389/broodpress/internal/store"
)

const (
	maxTitleLength = 200
	maxTopicLength = 100
	maxNoteLength  = 2000
)

// ReviewDecision is a reviewer's verdict on an article.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
	DecisionReopen  ReviewDecision = "reopen"
)

// transitions lists the status changes each decision performs.
var transitions = map[ReviewDecision]struct{ from, to store.ArticleStatus }{
	DecisionApprove: {store.ArticleStatusDraft, store.ArticleStatusApproved},
	DecisionReject:  {store.ArticleStatusDraft, store.ArticleStatusRejected},
	DecisionReopen:  {store.ArticleStatusRejected, store.ArticleStatusDraft},
}

// CanTransition reports whether an article may move from one status to another.
func CanTransition(from, to store.ArticleStatus) bool {
	if from == store.ArticleStatusApproved && to == store.ArticleStatusPublished {
		return true
	}
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// ArticleAdminStore defines the store operations needed for the review workflow.
type ArticleAdminStore interface {
	store.ArticleStore
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// DraftInput is the content of a new article.
type DraftInput struct {
	Title            string `json:"title"`
	Topic            string `json:"topic"`
	Body             string `json:"body"`
	FeaturedImageURL string `json:"featured_image_url"`
}

// ArticleService runs the draft, review and publish workflow.
type ArticleService struct {
	store  ArticleAdminStore
	logger *slog.Logger
}

// NewArticleService creates an ArticleService.
func NewArticleService(s ArticleAdminStore, logger *slog.Logger) *ArticleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleService{
		store:  s,
		logger: logger.With("component", "admin.articles"),
	}
}

// CreateDraft validates and stores a new draft.
func (s *ArticleService) CreateDraft(ctx context.Context, actor string, in DraftInput) (*store.Article, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLength)
	}
	topic := strings.TrimSpace(in.Topic)
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return nil, fmt.Errorf("%w: topic exceeds %d characters", ErrInvalidInput, maxTopicLength)
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("%w: body required", ErrInvalidInput)
	}
	if in.FeaturedImageURL != "" {
		if err := validateURL(in.FeaturedImageURL); err != nil {
			return nil, fmt.Errorf("%w: featured_image_url: %v", ErrInvalidInput, err)
		}
	}

	article := &store.Article{
		Title:            title,
		Topic:            topic,
		Body:             in.Body,
		FeaturedImageURL: in.FeaturedImageURL,
		Status:           store.ArticleStatusDraft,
	}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, err
	}

	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditCreateArticle,
		TargetType: store.AuditTargetArticle,
		TargetID:   store.FormatID(article.ID),
		Detail:     map[string]any{"title": article.Title},
	})
	return article, nil
}

// ListArticles returns articles newest first.
func (s *ArticleService) ListArticles(ctx context.Context, filter store.ArticleFilter) ([]*store.Article, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *filter.Status)
	}
	return s.store.ListArticles(ctx, filter)
}

// GetArticle returns one article or ErrNotFound.
func (s *ArticleService) GetArticle(ctx context.Context, id int64) (*store.Article, error) {
	return s.store.GetArticle(ctx, id)
}

// Review applies a reviewer decision. The note is stored with the article.
func (s *ArticleService) Review(ctx context.Context, actor string, id int64, decision ReviewDecision, note string) (*store.Article, error) {
	t, ok := transitions[decision]
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, decision)
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, fmt.Errorf("%w: note exceeds %d characters", ErrInvalidInput, maxNoteLength)
	}

	if err := s.transition(ctx, id, t.from, t.to, func() error {
		return s.store.UpdateArticleStatus(ctx, id, t.from, t.to, note)
	}); err != nil {
		return nil, err
	}

	detail := map[string]any{"decision": string(decision), "status": string(t.to)}
	if note != "" {
		detail["note"] = note
	}
	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditReviewArticle,
		TargetType: store.AuditTargetArticle,
		TargetID:   store.FormatID(id),
		Detail:     detail,
	})

	return s.store.GetArticle(ctx, id)
}

// MarkPublished records that an approved article went live at publishedURL.
func (s *ArticleService) MarkPublished(ctx context.Context, actor string, id int64, publishedURL string) (*store.Article, error) {
	if err := validateURL(publishedURL); err != nil {
		return nil, fmt.Errorf("%w: url: %v", ErrInvalidInput, err)
	}

	if err := s.transition(ctx, id, store.ArticleStatusApproved, store.ArticleStatusPublished, func() error {
		return s.store.SetArticlePublished(ctx, id, publishedURL)
	}); err != nil {
		return nil, err
	}

	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditPublishArticle,
		TargetType: store.AuditTargetArticle,
		TargetID:   store.FormatID(id),
		Detail:     map[string]any{"url": publishedURL},
	})

	return s.store.GetArticle(ctx, id)
}

// transition checks the current status and runs apply, mapping a lost
// compare-and-set race to ErrInvalidTransition.
func (s *ArticleService) transition(ctx context.Context, id int64, from, to store.ArticleStatus, apply func() error) error {
	current, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != from {
		return fmt.Errorf("%w: article %d is %s, cannot move to %s", ErrInvalidTransition, id, current.Status, to)
	}

	err = apply()
	if errors.Is(err, store.ErrStatusConflict) {
		return fmt.Errorf("%w: article %d changed status concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return err
	}

	s.logger.Info("article status changed", "id", id, "from", from, "to", to)
	return nil
}

// audit appends e to the audit log. Failures are logged, not returned.
func (s *ArticleService) audit(ctx context.Context, e *store.AuditEntry) {
	if err := s.store.AppendAuditLog(ctx, e); err != nil {
		s.logger.Warn("failed to append audit log", "action", e.Action, "target", e.TargetID, "error", err)
	}
}

// validateURL requires an absolute http or https URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host required")
	}
	return nil
}
