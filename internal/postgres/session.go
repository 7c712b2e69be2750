package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

const quizAttemptColumns = `attempt_id::TEXT, quiz_id, username, start_time, finish_time,
	current_index, total_score, finished, finish_reason`

func scanQuizAttempt(r pgx.CollectableRow) (domain.QuizAttempt, error) {
	var (
		a          domain.QuizAttempt
		finishTime *time.Time
	)
	err := r.Scan(&a.AttemptID, &a.QuizID, &a.Username, &a.StartTime, &finishTime,
		&a.CurrentIndex, &a.TotalScore, &a.Finished, &a.FinishReason)
	a.FinishTime = fromNullTime(finishTime)
	return a, err
}

func (s *Store) InsertQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error {
	const stmt = `
INSERT INTO quiz_attempts (attempt_id, quiz_id, username, start_time, current_index, total_score, finished)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.db.Exec(ctx, stmt, a.AttemptID, a.QuizID, a.Username, a.StartTime, a.CurrentIndex, a.TotalScore, a.Finished)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}
	return err
}

func (s *Store) UpdateQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error {
	const stmt = `
UPDATE quiz_attempts
SET finish_time = $2, current_index = $3, total_score = $4, finished = $5, finish_reason = $6
WHERE attempt_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, a.AttemptID, nullTime(a.FinishTime), a.CurrentIndex, a.TotalScore, a.Finished, a.FinishReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("quiz attempt not found: %s", a.AttemptID)
	}
	return nil
}

func (s *Store) GetQuizAttempt(ctx context.Context, attemptID string) (*domain.QuizAttempt, error) {
	const stmt = `SELECT ` + quizAttemptColumns + ` FROM quiz_attempts WHERE attempt_id = $1;`

	rows, err := s.db.Query(ctx, stmt, attemptID)
	if err != nil {
		return nil, err
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanQuizAttempt)
	if err != nil {
		return nil, notFound(err, "quiz attempt not found: %s", attemptID)
	}
	return &a, nil
}

func (s *Store) ListQuizAttempts(ctx context.Context, username string, quizID int64) ([]domain.QuizAttempt, error) {
	const stmt = `SELECT ` + quizAttemptColumns + `
FROM quiz_attempts
WHERE username = $1 AND quiz_id = $2
ORDER BY start_time DESC;`

	rows, err := s.db.Query(ctx, stmt, username, quizID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanQuizAttempt)
}
