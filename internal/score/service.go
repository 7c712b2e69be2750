package score

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/event"
)

// Store is the persistence the aggregator needs.
type Store interface {
	// RecomputeTotalScore overwrites the profile's total with the sum of marks over every
	// attempt of the user and returns it. The sum and the write are one atomic step.
	RecomputeTotalScore(ctx context.Context, username string) (decimal.Decimal, error)
	// TotalScore returns the stored total, zero for a user without a profile.
	TotalScore(ctx context.Context, username string) (decimal.Decimal, error)
	// SumMarksFor sums marks over the user's attempts on the given questions only.
	SumMarksFor(ctx context.Context, username string, questionIDs []int64) (decimal.Decimal, error)
	ListProfiles(ctx context.Context, limit int) ([]domain.QuizProfile, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Now      func() time.Time
}

type Service struct {
	eb    *event.Bus
	store Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:    c.EventBus,
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// RecomputeTotal sums the marks of all of the user's attempts, across every quiz, and
// overwrites the profile's total with the result. It never adds to the stored total, so
// calling it twice yields the same value.
func (s *Service) RecomputeTotal(ctx context.Context, username string) (decimal.Decimal, error) {
	total, err := s.store.RecomputeTotalScore(ctx, username)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute total score: %w", err)
	}

	s.eb.Publish(ctx, domain.EventScoreUpdated{
		Score: domain.Score{
			Username:   username,
			TotalScore: total,
			UpdateTime: s.now(),
		},
	})

	return total, nil
}

// Total returns the user's stored total score.
func (s *Service) Total(ctx context.Context, username string) (decimal.Decimal, error) {
	total, err := s.store.TotalScore(ctx, username)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get total score: %w", err)
	}
	return total, nil
}

// QuizTotal sums the user's marks on the given quiz questions.
func (s *Service) QuizTotal(ctx context.Context, username string, questionIDs []int64) (decimal.Decimal, error) {
	if len(questionIDs) == 0 {
		return decimal.Zero, nil
	}

	total, err := s.store.SumMarksFor(ctx, username, questionIDs)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum quiz marks: %w", err)
	}
	return total, nil
}

// TopProfiles returns up to limit profiles ordered by total score, highest first.
func (s *Service) TopProfiles(ctx context.Context, limit int) ([]domain.Score, error) {
	ps, err := s.store.ListProfiles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	scores := make([]domain.Score, 0, len(ps))
	for _, p := range ps {
		scores = append(scores, domain.Score{
			Username:   p.Username,
			TotalScore: p.TotalScore,
		})
	}
	return scores, nil
}
