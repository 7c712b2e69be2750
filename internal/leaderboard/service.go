package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/event"
	"github.com/victornm/letsquiz/internal/score"
)

const (
	publishInterval = 200 * time.Millisecond

	DefaultLimit = 500
)

type Config struct {
	EventBus *event.Bus
	Score    *score.Service
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	// mu orders the read of a total and its write to the sorted set.
	mu sync.Mutex

	eb     *event.Bus
	score  *score.Service
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		score:  c.Score,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	// Limit defaults to DefaultLimit and cannot exceed it.
	Limit int
}

// GetLeaderboard returns the top users by total score, highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	limit := req.Limit
	if limit < 0 {
		return nil, errors.InvalidArgument("limit must not be negative: %d", limit)
	}
	if limit == 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Username: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

// UpdateLeaderboard overwrites the user's score in the leaderboard with the total stored
// at handling time. Events may be handled out of order, so the total they carry is
// not used.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	sc := e.Score

	s.mu.Lock()
	total, err := s.score.Total(ctx, sc.Username)
	if err == nil {
		err = s.redis.ZAdd(ctx, s.leaderboardKey(), redis.Z{
			Score:  total.InexactFloat64(),
			Member: sc.Username,
		}).Err()
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, sc)
}

// Rebuild loads the top profiles into an empty leaderboard. A leaderboard that already
// has members is left alone.
func (s *Service) Rebuild(ctx context.Context) error {
	n, err := s.redis.ZCard(ctx, s.leaderboardKey()).Result()
	if err != nil {
		return fmt.Errorf("count leaderboard: %w", err)
	}
	if n > 0 {
		return nil
	}

	scores, err := s.score.TopProfiles(ctx, DefaultLimit)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}

	zs := make([]redis.Z, 0, len(scores))
	for _, sc := range scores {
		zs = append(zs, redis.Z{Score: sc.TotalScore.InexactFloat64(), Member: sc.Username})
	}

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(), zs...).Err(); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}

	slog.InfoContext(ctx, "leaderboard: rebuilt", "entries", len(zs))
	return nil
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per interval, so a
// burst of score updates results in a single notification.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sc domain.Score) error {
	// SETNX keeps concurrent instances from publishing within the same interval.
	ok, err := s.redis.SetNX(ctx, s.leaderboardTimeKey(), sc.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx)
}

func (s *Service) publishLeaderboard(ctx context.Context) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) leaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) leaderboardTimeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
