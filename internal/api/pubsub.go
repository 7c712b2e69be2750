package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/letsquiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptGraded struct {
		QuizID        int64  `json:"quiz_id"`
		QuestionID    int64  `json:"question_id"`
		IsCorrect     bool   `json:"is_correct"`
		MarksObtained string `json:"marks_obtained"`
	}
)

// PublishLeaderboardUpdated notifies every user on the leaderboard.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(&e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Username, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishAttemptGraded notifies the user whose answer was graded.
func (a *API) PublishAttemptGraded(ctx context.Context, e domain.EventAttemptGraded) error {
	return a.publishNotification(ctx, e.Attempt.Username, e.Name(), AttemptGraded{
		QuizID:        e.QuizID,
		QuestionID:    e.Attempt.QuestionID,
		IsCorrect:     e.Attempt.IsCorrect,
		MarksObtained: e.Attempt.MarksObtained.StringFixed(2),
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
