package domain

const (
	EventNameAttemptGraded      = "attempt.graded"
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameQuizFinished       = "quiz.finished"
)

type EventAttemptGraded struct {
	QuizID  int64
	Attempt AttemptedQuestion
}

func (EventAttemptGraded) Name() string { return EventNameAttemptGraded }

type EventScoreUpdated struct {
	Score Score
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventQuizFinished struct {
	Attempt QuizAttempt
}

func (EventQuizFinished) Name() string { return EventNameQuizFinished }
