package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/finnbear/moderation"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

const (
	MinRating = 1
	MaxRating = 5

	// MaxCommentRunes bounds the length of a review comment
	MaxCommentRunes = 500
)

// Service stores append-only artifact reviews
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new review service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "reviews")),
	}
}

// Submit appends a review of an existing artifact. Inappropriate words in
// the comment are censored before the review is stored.
func (s *Service) Submit(ctx context.Context, name, reviewer string, rating int, comment string) (*model.Review, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, model.ErrInvalidRating
	}
	if utf8.RuneCountInString(comment) > MaxCommentRunes {
		return nil, fmt.Errorf("%w: comment longer than %d characters", model.ErrBadRequest, MaxCommentRunes)
	}
	if _, err := s.storage.GetArtifact(ctx, name); err != nil {
		return nil, err
	}

	if moderation.Scan(comment).Is(moderation.Inappropriate) {
		var censored int
		comment, censored = moderation.Censor(comment, moderation.Inappropriate)
		s.logger.InfoContext(ctx, "censored review comment",
			slog.String("game", name),
			slog.String("reviewer", reviewer),
			slog.Int("censored", censored))
	}

	review := &model.Review{
		ArtifactName: name,
		Reviewer:     reviewer,
		Rating:       rating,
		Comment:      comment,
		Timestamp:    s.clock.Now().UTC(),
	}
	if err := s.storage.AppendReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// List returns the reviews of name in insertion order
func (s *Service) List(ctx context.Context, name string) ([]model.Review, error) {
	return s.storage.ListReviews(ctx, name)
}

// Summary averages the most recent rating of each reviewer of name
func (s *Service) Summary(ctx context.Context, name string) (model.ReviewSummary, error) {
	reviews, err := s.storage.ListReviews(ctx, name)
	if err != nil {
		return model.ReviewSummary{}, err
	}
	return Summarize(reviews), nil
}

// Summarize aggregates reviews given in insertion order
func Summarize(reviews []model.Review) model.ReviewSummary {
	latest := make(map[string]int)
	for _, r := range reviews {
		latest[r.Reviewer] = r.Rating
	}
	if len(latest) == 0 {
		return model.ReviewSummary{}
	}

	total := 0
	for _, rating := range latest {
		total += rating
	}
	return model.ReviewSummary{
		Count:   len(latest),
		Average: float64(total) / float64(len(latest)),
	}
}
