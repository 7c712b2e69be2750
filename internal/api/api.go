package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/event"
	"github.com/victornm/letsquiz/internal/leaderboard"
	"github.com/victornm/letsquiz/internal/session"
)

type Config struct {
	HTTP         gin.IRouter
	EventBus     *event.Bus
	Bank         *bank.Service
	Session      *session.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	bs *bank.Service
	ss *session.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		bs:     c.Bank,
		ss:     c.Session,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	v1 := c.HTTP.Group("/v1", identify)
	{
		v1.GET("/quizzes", a.ListQuizzes)
		v1.POST("/quizzes", a.CreateQuiz)
		v1.POST("/quizzes/:quiz_id/questions", a.AddQuestion)

		v1.GET("/quizzes/:quiz_id/play", a.Play)
		v1.POST("/quizzes/:quiz_id/answers", a.SubmitAnswer)
		v1.POST("/quizzes/:quiz_id/end", a.EndQuiz)
		v1.POST("/quizzes/:quiz_id/restart", a.RestartQuiz)
		v1.GET("/quizzes/:quiz_id/results", a.GetResults)
		v1.GET("/quizzes/:quiz_id/results.xlsx", a.ExportResults)

		v1.GET("/leaderboard", a.GetLeaderboard)
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameAttemptGraded, func(ctx context.Context, e event.Event) error {
		return a.PublishAttemptGraded(ctx, e.(domain.EventAttemptGraded))
	})

	return a
}
